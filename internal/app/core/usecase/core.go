package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// 未填寫 Description 時的預設值
const (
	defaultDepositDescription  = "Deposit"
	defaultWithdrawDescription = "Withdrawal"
	defaultTransferDescription = "Fund Transfer"
)

// CoreUseCase 是核心業務邏輯層：存款、提款、轉帳與帳務查詢
// 所有變更操作先經過持有權檢查，再於單一工作單元內完成餘額調整與紀錄寫入
type CoreUseCase struct {
	store Store
}

func NewCoreUseCase(store Store) *CoreUseCase {
	return &CoreUseCase{
		store: store,
	}
}

// DepositRequest 存款請求
type DepositRequest struct {
	UserID      int64
	AccountID   int64
	Amount      decimal.Decimal
	Description string
}

// WithdrawRequest 提款請求
type WithdrawRequest struct {
	UserID      int64
	AccountID   int64
	Amount      decimal.Decimal
	Description string
}

// TransferRequest 轉帳請求
// 收款方以對外帳號指定；SenderName 由身分提供者帶入，寫進收款方的交易描述
type TransferRequest struct {
	UserID          int64
	SenderName      string
	FromAccountID   int64
	ToAccountNumber string
	Amount          decimal.Decimal
	Description     string
}

// Receipt 單帳戶操作的結果
type Receipt struct {
	RefID     uuid.UUID
	AccountID int64
	Balance   decimal.Decimal
}

// TransferReceipt 轉帳結果：雙方的最新餘額
type TransferReceipt struct {
	RefID           uuid.UUID
	FromAccountID   int64
	FromBalance     decimal.Decimal
	ToAccountID     int64
	ToAccountNumber string
	ToBalance       decimal.Decimal
}

// CreateAccount 建立帳戶，初始餘額為 0
// 帳號由外部協作者產生；碰撞時回傳 ErrDuplicateAccountNumber，呼叫端換號重試
func (c *CoreUseCase) CreateAccount(ctx context.Context, userID int64, accountNumber string, accountType domain.AccountType) (*domain.Account, error) {
	acct := &domain.Account{
		UserID:        userID,
		AccountNumber: accountNumber,
		Balance:       decimal.Zero,
		Type:          accountType,
	}
	err := c.store.Update(ctx, func(r Repositories) error {
		return r.Accounts.Create(ctx, acct)
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// Accounts 取得使用者持有的所有帳戶
func (c *CoreUseCase) Accounts(ctx context.Context, userID int64) ([]domain.Account, error) {
	var accounts []domain.Account
	err := c.store.View(ctx, func(r Repositories) error {
		var err error
		accounts, err = r.Accounts.GetByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// Deposit 存款
// 步驟 (單一工作單元)：調整餘額 → 寫入 Deposit 交易紀錄
func (c *CoreUseCase) Deposit(ctx context.Context, req DepositRequest) (*Receipt, error) {
	if !req.Amount.IsPositive() {
		return nil, domain.ErrAmountNotPositive
	}
	if err := c.verifyOwnership(ctx, req.UserID, req.AccountID); err != nil {
		return nil, err
	}

	description := req.Description
	if description == "" {
		description = defaultDepositDescription
	}

	receipt := &Receipt{RefID: uuid.New(), AccountID: req.AccountID}
	err := c.store.Update(ctx, func(r Repositories) error {
		balance, err := r.Accounts.AdjustBalance(ctx, req.AccountID, req.Amount)
		if err != nil {
			return err
		}
		receipt.Balance = balance

		return r.Records.AppendTransaction(ctx, &domain.Transaction{
			RefID:       receipt.RefID,
			AccountID:   req.AccountID,
			Type:        domain.TransactionTypeDeposit,
			Amount:      req.Amount,
			Description: description,
		})
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Withdraw 提款
// 餘額檢查與扣款在同一工作單元內，且先鎖定帳戶列：
// 兩筆並發提款不可能都以過期餘額通過檢查而造成透支
func (c *CoreUseCase) Withdraw(ctx context.Context, req WithdrawRequest) (*Receipt, error) {
	if !req.Amount.IsPositive() {
		return nil, domain.ErrAmountNotPositive
	}
	if err := c.verifyOwnership(ctx, req.UserID, req.AccountID); err != nil {
		return nil, err
	}

	description := req.Description
	if description == "" {
		description = defaultWithdrawDescription
	}

	receipt := &Receipt{RefID: uuid.New(), AccountID: req.AccountID}
	err := c.store.Update(ctx, func(r Repositories) error {
		accounts, err := r.Accounts.LockForUpdate(ctx, req.AccountID)
		if err != nil {
			return err
		}
		acct, ok := accounts[req.AccountID]
		if !ok {
			return domain.ErrAccountNotFound
		}
		if !acct.CanDebit(req.Amount) {
			return domain.ErrInsufficientBalance
		}

		balance, err := r.Accounts.AdjustBalance(ctx, req.AccountID, req.Amount.Neg())
		if err != nil {
			return err
		}
		receipt.Balance = balance

		return r.Records.AppendTransaction(ctx, &domain.Transaction{
			RefID:       receipt.RefID,
			AccountID:   req.AccountID,
			Type:        domain.TransactionTypeWithdraw,
			Amount:      req.Amount.Neg(),
			Description: description,
		})
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Transfer 轉帳
// 五個步驟全部在同一工作單元內，一起提交或一起回滾：
// 1. 依帳號解析收款帳戶
// 2. 依遞增 ID 順序鎖定雙方帳戶列，檢查付款方餘額
// 3. 付款方扣款 + 寫入出帳交易紀錄
// 4. 收款方入帳 + 寫入入帳交易紀錄
// 5. 寫入 Transfer 紀錄
// 不存在「付款方已扣款、收款方未入帳」的可觀測狀態
func (c *CoreUseCase) Transfer(ctx context.Context, req TransferRequest) (*TransferReceipt, error) {
	if !req.Amount.IsPositive() {
		return nil, domain.ErrAmountNotPositive
	}
	if err := c.verifyOwnership(ctx, req.UserID, req.FromAccountID); err != nil {
		return nil, err
	}

	description := req.Description
	if description == "" {
		description = defaultTransferDescription
	}

	receipt := &TransferReceipt{RefID: uuid.New(), FromAccountID: req.FromAccountID}
	err := c.store.Update(ctx, func(r Repositories) error {
		to, err := r.Accounts.GetByNumber(ctx, req.ToAccountNumber)
		if err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				return domain.ErrRecipientNotFound
			}
			return err
		}
		if to.ID == req.FromAccountID {
			return domain.ErrSameAccount
		}
		receipt.ToAccountID = to.ID
		receipt.ToAccountNumber = to.AccountNumber

		accounts, err := r.Accounts.LockForUpdate(ctx, domain.LockOrder(req.FromAccountID, to.ID)...)
		if err != nil {
			return err
		}
		from, ok := accounts[req.FromAccountID]
		if !ok {
			return domain.ErrAccountNotFound
		}
		if _, ok := accounts[to.ID]; !ok {
			return domain.ErrRecipientNotFound
		}
		if !from.CanDebit(req.Amount) {
			return domain.ErrInsufficientBalance
		}

		// 付款方
		fromBalance, err := r.Accounts.AdjustBalance(ctx, req.FromAccountID, req.Amount.Neg())
		if err != nil {
			return err
		}
		receipt.FromBalance = fromBalance
		err = r.Records.AppendTransaction(ctx, &domain.Transaction{
			RefID:       uuid.New(),
			AccountID:   req.FromAccountID,
			Type:        domain.TransactionTypeTransfer,
			Amount:      req.Amount.Neg(),
			Description: fmt.Sprintf("Transfer to %s: %s", to.AccountNumber, description),
		})
		if err != nil {
			return err
		}

		// 收款方
		toBalance, err := r.Accounts.AdjustBalance(ctx, to.ID, req.Amount)
		if err != nil {
			return err
		}
		receipt.ToBalance = toBalance
		err = r.Records.AppendTransaction(ctx, &domain.Transaction{
			RefID:       uuid.New(),
			AccountID:   to.ID,
			Type:        domain.TransactionTypeTransfer,
			Amount:      req.Amount,
			Description: fmt.Sprintf("Transfer from %s: %s", req.SenderName, description),
		})
		if err != nil {
			return err
		}

		return r.Records.AppendTransfer(ctx, &domain.Transfer{
			RefID:             receipt.RefID,
			SenderAccountID:   req.FromAccountID,
			ReceiverAccountID: to.ID,
			Amount:            req.Amount,
			Description:       description,
		})
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Transactions 取得帳戶的交易紀錄 (時間遞減)，查詢前同樣檢查持有權
func (c *CoreUseCase) Transactions(ctx context.Context, userID, accountID int64) ([]domain.Transaction, error) {
	if err := c.verifyOwnership(ctx, userID, accountID); err != nil {
		return nil, err
	}
	var transactions []domain.Transaction
	err := c.store.View(ctx, func(r Repositories) error {
		var err error
		transactions, err = r.Records.ListTransactions(ctx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// Transfers 取得帳戶收付雙向的轉帳紀錄 (時間遞減)
func (c *CoreUseCase) Transfers(ctx context.Context, userID, accountID int64) ([]domain.TransferEntry, error) {
	if err := c.verifyOwnership(ctx, userID, accountID); err != nil {
		return nil, err
	}
	var transfers []domain.TransferEntry
	err := c.store.View(ctx, func(r Repositories) error {
		var err error
		transfers, err = r.Records.ListTransfers(ctx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return transfers, nil
}

// verifyOwnership 持有權檢查：accountID 必須屬於 userID
// 唯讀前置條件，在工作單元外執行即可；持有權不會在同一使用者的請求中途改變
func (c *CoreUseCase) verifyOwnership(ctx context.Context, userID, accountID int64) error {
	return c.store.View(ctx, func(r Repositories) error {
		accounts, err := r.Accounts.GetByUser(ctx, userID)
		if err != nil {
			return err
		}
		for i := range accounts {
			if accounts[i].ID == accountID {
				return nil
			}
		}
		return domain.ErrAccessDenied
	})
}
