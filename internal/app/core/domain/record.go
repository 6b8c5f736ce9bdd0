package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType 交易類型
// 為了極致節省記憶體，使用 uint8
type TransactionType uint8

const (
	// 存款
	TransactionTypeDeposit TransactionType = 1
	// 提款
	TransactionTypeWithdraw TransactionType = 2
	// 轉帳
	TransactionTypeTransfer TransactionType = 3
)

// String 回傳顯示用名稱
func (t TransactionType) String() string {
	switch t {
	case TransactionTypeDeposit:
		return "Deposit"
	case TransactionTypeWithdraw:
		return "Withdrawal"
	case TransactionTypeTransfer:
		return "Transfer"
	default:
		return "Unknown"
	}
}

// Transaction 單一帳戶的一筆帳務異動，寫入後不可變更 (append-only)
// Amount 帶正負號：入帳為正，出帳為負
type Transaction struct {
	ID int64
	// RefID: 外部追蹤號 (UUID)
	RefID       uuid.UUID
	AccountID   int64
	Type        TransactionType
	Amount      decimal.Decimal
	Description string
	CreatedAt   time.Time
}

// Transfer 兩個帳戶之間的一次資金移動，寫入後不可變更
// 一筆 Transfer 對應兩筆 Transaction (出帳 −Amount、入帳 +Amount，合計為零)
// Amount 恆為正數
type Transfer struct {
	ID                int64
	RefID             uuid.UUID
	SenderAccountID   int64
	ReceiverAccountID int64
	Amount            decimal.Decimal
	Description       string
	CreatedAt         time.Time
}

// TransferDirection 轉帳相對於查詢帳戶的方向
type TransferDirection string

const (
	TransferOutgoing TransferDirection = "out"
	TransferIncoming TransferDirection = "in"
)

// TransferEntry 轉帳查詢結果：附上雙方帳號供顯示使用
type TransferEntry struct {
	Transfer
	SenderNumber   string
	ReceiverNumber string
	// Direction: 以被查詢的帳戶為基準
	Direction TransferDirection
}
