package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType 帳戶類型
type AccountType string

const (
	AccountTypeSavings  AccountType = "Savings"
	AccountTypeChecking AccountType = "Checking"
)

// Account 帳戶
// Balance 使用 decimal 定點數，避免浮點誤差造成金額漂移
type Account struct {
	ID int64
	// UserID: 持有者的使用者 ID
	UserID int64
	// AccountNumber: 對外的帳號 (全系統唯一)
	AccountNumber string
	Balance       decimal.Decimal
	Type          AccountType
	CreatedAt     time.Time
}

// CanDebit 檢查扣款後餘額是否仍為非負
func (a *Account) CanDebit(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}

// LockOrder 回傳需要鎖定的帳戶 ID，並確保遞增順序以避免死鎖
// 兩筆反向轉帳 (A→B 與 B→A) 依相同順序取鎖，不會互相等待
func LockOrder(a, b int64) []int64 {
	if a < b {
		return []int64{a, b}
	}
	return []int64{b, a}
}
