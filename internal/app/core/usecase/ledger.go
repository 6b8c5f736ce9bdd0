package usecase

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// AccountRepository 帳戶存取介面
type AccountRepository interface {
	// Create 新增帳戶 (餘額為 0)，帳號重複時回傳 ErrDuplicateAccountNumber
	// 成功時回填 acct.ID 與 acct.CreatedAt
	Create(ctx context.Context, acct *domain.Account) error
	// GetByUser 取得使用者持有的所有帳戶
	GetByUser(ctx context.Context, userID int64) ([]domain.Account, error)
	// GetByNumber 依帳號查詢，不存在時回傳 ErrAccountNotFound
	GetByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	// LockForUpdate 依遞增 ID 順序鎖定帳戶列，回傳當前狀態
	// 不存在的 ID 不會出現在回傳的 map 中，由呼叫端自行判定
	LockForUpdate(ctx context.Context, ids ...int64) (map[int64]*domain.Account, error)
	// AdjustBalance 原子地將 delta (可正可負) 加到餘額並回傳新值
	// 帳戶不存在時回傳 ErrAccountNotFound
	AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) (decimal.Decimal, error)
}

// RecordRepository 帳務紀錄存取介面 (append-only)
type RecordRepository interface {
	// AppendTransaction 寫入一筆交易紀錄，時間戳由儲存層於寫入時指定
	// 成功時回填 tran.ID 與 tran.CreatedAt
	AppendTransaction(ctx context.Context, tran *domain.Transaction) error
	// AppendTransfer 寫入一筆轉帳紀錄
	AppendTransfer(ctx context.Context, tr *domain.Transfer) error
	// ListTransactions 取得帳戶的交易紀錄，依時間遞減排序
	ListTransactions(ctx context.Context, accountID int64) ([]domain.Transaction, error)
	// ListTransfers 取得帳戶收付雙向的轉帳紀錄，依時間遞減排序並附上對方帳號
	ListTransfers(ctx context.Context, accountID int64) ([]domain.TransferEntry, error)
}

// Repositories 綁定在同一個工作單元上的存取介面集合
type Repositories struct {
	Accounts AccountRepository
	Records  RecordRepository
}

// Store 帳本儲存介面
// 每次引擎操作都包在一個工作單元內：Update 內的所有寫入一起提交，
// fn 回傳錯誤時全部回滾，不會留下部分結果
type Store interface {
	// View 唯讀存取，不開啟寫入工作單元
	View(ctx context.Context, fn func(r Repositories) error) error
	// Update 開啟原子工作單元，fn 成功則提交、失敗則回滾
	Update(ctx context.Context, fn func(r Repositories) error) error
}
