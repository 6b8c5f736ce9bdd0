package mysql

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/mysql"
)

// MySQL driver 錯誤碼
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	ID            int64           `gorm:"primaryKey;autoIncrement"`
	UserID        int64           `gorm:"index"`
	AccountNumber string          `gorm:"uniqueIndex;size:32"`
	Balance       decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	AccountType   string          `gorm:"size:16"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

// sqlTransaction 對應資料庫的 transactions 表 (append-only)
type sqlTransaction struct {
	ID          int64           `gorm:"primaryKey;autoIncrement"`
	RefID       []byte          `gorm:"column:ref_id;type:binary(16);uniqueIndex"` // 對應 domain.Transaction.RefID
	AccountID   int64           `gorm:"index"`
	Type        uint8           `gorm:"column:transaction_type"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Description string          `gorm:"size:255"`
	CreatedAt   time.Time       `gorm:"index"`
}

func (*sqlTransaction) TableName() string {
	return "transactions"
}

// sqlTransfer 對應資料庫的 transfers 表 (append-only)
type sqlTransfer struct {
	ID                int64           `gorm:"primaryKey;autoIncrement"`
	RefID             []byte          `gorm:"column:ref_id;type:binary(16);uniqueIndex"`
	SenderAccountID   int64           `gorm:"index"`
	ReceiverAccountID int64           `gorm:"index"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Description       string          `gorm:"size:255"`
	CreatedAt         time.Time       `gorm:"index"`
}

func (*sqlTransfer) TableName() string {
	return "transfers"
}

// Store 以 MySQL 為後端的帳本儲存
// Update 對應一個資料庫交易 (read-committed 以上)，
// 帳戶列以 SELECT ... FOR UPDATE 悲觀鎖保護餘額的 check-and-update
type Store struct {
	client *mysql.Client
}

func NewStore(client *mysql.Client) *Store {
	return &Store{
		client: client,
	}
}

// AutoMigrate 建立或更新資料表結構
func (s *Store) AutoMigrate() error {
	return s.client.DB().AutoMigrate(&sqlAccount{}, &sqlTransaction{}, &sqlTransfer{})
}

// View 唯讀存取，不開啟交易
func (s *Store) View(ctx context.Context, fn func(r usecase.Repositories) error) error {
	return translateError(fn(bindRepositories(s.client.DB().WithContext(ctx))))
}

// Update 在單一資料庫交易內執行 fn，fn 回傳錯誤時整體回滾
func (s *Store) Update(ctx context.Context, fn func(r usecase.Repositories) error) error {
	err := s.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(bindRepositories(tx))
	})
	return translateError(err)
}

func bindRepositories(tx *gorm.DB) usecase.Repositories {
	return usecase.Repositories{
		Accounts: &accountRepository{tx: tx},
		Records:  &recordRepository{tx: tx},
	}
}

// translateError 將 driver 層錯誤轉成 domain 錯誤
// 1062 (帳號唯一鍵碰撞)、1205/1213 (鎖等待逾時/死鎖，交易已回滾、可重試)
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDuplicateEntry:
			return domain.ErrDuplicateAccountNumber
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock:
			return domain.ErrBusy
		}
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}

func toDomainAccount(row *sqlAccount) domain.Account {
	return domain.Account{
		ID:            row.ID,
		UserID:        row.UserID,
		AccountNumber: row.AccountNumber,
		Balance:       row.Balance,
		Type:          domain.AccountType(row.AccountType),
		CreatedAt:     row.CreatedAt,
	}
}

type accountRepository struct {
	tx *gorm.DB
}

func (r *accountRepository) Create(ctx context.Context, acct *domain.Account) error {
	row := sqlAccount{
		UserID:        acct.UserID,
		AccountNumber: acct.AccountNumber,
		Balance:       acct.Balance,
		AccountType:   string(acct.Type),
	}
	if err := r.tx.Create(&row).Error; err != nil {
		return err
	}
	acct.ID = row.ID
	acct.CreatedAt = row.CreatedAt
	return nil
}

func (r *accountRepository) GetByUser(ctx context.Context, userID int64) ([]domain.Account, error) {
	var rows []sqlAccount
	if err := r.tx.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	accounts := make([]domain.Account, 0, len(rows))
	for i := range rows {
		accounts = append(accounts, toDomainAccount(&rows[i]))
	}
	return accounts, nil
}

func (r *accountRepository) GetByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	var row sqlAccount
	err := r.tx.Where("account_number = ?", accountNumber).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	acct := toDomainAccount(&row)
	return &acct, nil
}

// LockForUpdate 悲觀鎖：依遞增 ID 順序鎖定帳戶列
func (r *accountRepository) LockForUpdate(ctx context.Context, ids ...int64) (map[int64]*domain.Account, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var rows []sqlAccount
	err := r.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", sorted).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	accounts := make(map[int64]*domain.Account, len(rows))
	for i := range rows {
		acct := toDomainAccount(&rows[i])
		accounts[acct.ID] = &acct
	}
	return accounts, nil
}

// AdjustBalance 以單一 UPDATE 原子調整餘額，再讀回新值
// 呼叫端已於同一交易內持有該列的 FOR UPDATE 鎖時不會與其他交易交錯
func (r *accountRepository) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	res := r.tx.Model(&sqlAccount{}).
		Where("id = ?", accountID).
		Update("balance", gorm.Expr("balance + ?", delta))
	if res.Error != nil {
		return decimal.Zero, res.Error
	}
	if res.RowsAffected == 0 {
		return decimal.Zero, domain.ErrAccountNotFound
	}

	var row sqlAccount
	if err := r.tx.Select("balance").First(&row, accountID).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Balance, nil
}

type recordRepository struct {
	tx *gorm.DB
}

func (r *recordRepository) AppendTransaction(ctx context.Context, tran *domain.Transaction) error {
	row := sqlTransaction{
		RefID:       tran.RefID[:],
		AccountID:   tran.AccountID,
		Type:        uint8(tran.Type),
		Amount:      tran.Amount,
		Description: tran.Description,
	}
	if err := r.tx.Create(&row).Error; err != nil {
		return err
	}
	tran.ID = row.ID
	tran.CreatedAt = row.CreatedAt
	return nil
}

func (r *recordRepository) AppendTransfer(ctx context.Context, tr *domain.Transfer) error {
	row := sqlTransfer{
		RefID:             tr.RefID[:],
		SenderAccountID:   tr.SenderAccountID,
		ReceiverAccountID: tr.ReceiverAccountID,
		Amount:            tr.Amount,
		Description:       tr.Description,
	}
	if err := r.tx.Create(&row).Error; err != nil {
		return err
	}
	tr.ID = row.ID
	tr.CreatedAt = row.CreatedAt
	return nil
}

func (r *recordRepository) ListTransactions(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	var rows []sqlTransaction
	err := r.tx.Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	transactions := make([]domain.Transaction, 0, len(rows))
	for i := range rows {
		transactions = append(transactions, domain.Transaction{
			ID:          rows[i].ID,
			RefID:       uuid.UUID(rows[i].RefID),
			AccountID:   rows[i].AccountID,
			Type:        domain.TransactionType(rows[i].Type),
			Amount:      rows[i].Amount,
			Description: rows[i].Description,
			CreatedAt:   rows[i].CreatedAt,
		})
	}
	return transactions, nil
}

// transferRow 轉帳查詢結果列，帶雙方帳號
type transferRow struct {
	ID                int64
	RefID             []byte `gorm:"column:ref_id"`
	SenderAccountID   int64
	ReceiverAccountID int64
	Amount            decimal.Decimal
	Description       string
	CreatedAt         time.Time
	SenderNumber      string
	ReceiverNumber    string
}

// ListTransfers 查詢帳戶收付雙向的轉帳，JOIN accounts 兩次取得雙方帳號
func (r *recordRepository) ListTransfers(ctx context.Context, accountID int64) ([]domain.TransferEntry, error) {
	var rows []transferRow
	err := r.tx.Table("transfers AS t").
		Select("t.*, s.account_number AS sender_number, r.account_number AS receiver_number").
		Joins("JOIN accounts AS s ON t.sender_account_id = s.id").
		Joins("JOIN accounts AS r ON t.receiver_account_id = r.id").
		Where("t.sender_account_id = ? OR t.receiver_account_id = ?", accountID, accountID).
		Order("t.created_at DESC, t.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	entries := make([]domain.TransferEntry, 0, len(rows))
	for i := range rows {
		direction := domain.TransferIncoming
		if rows[i].SenderAccountID == accountID {
			direction = domain.TransferOutgoing
		}
		entries = append(entries, domain.TransferEntry{
			Transfer: domain.Transfer{
				ID:                rows[i].ID,
				RefID:             uuid.UUID(rows[i].RefID),
				SenderAccountID:   rows[i].SenderAccountID,
				ReceiverAccountID: rows[i].ReceiverAccountID,
				Amount:            rows[i].Amount,
				Description:       rows[i].Description,
				CreatedAt:         rows[i].CreatedAt,
			},
			SenderNumber:   rows[i].SenderNumber,
			ReceiverNumber: rows[i].ReceiverNumber,
			Direction:      direction,
		})
	}
	return entries, nil
}

var _ usecase.Store = (*Store)(nil)
