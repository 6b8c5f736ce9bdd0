package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

var errBoom = errors.New("boom")

func newAccount(number string) *domain.Account {
	return &domain.Account{
		UserID:        1,
		AccountNumber: number,
		Balance:       decimal.Zero,
		Type:          domain.AccountTypeSavings,
	}
}

// fn 失敗時整個工作單元丟棄，不留任何狀態
func TestUpdateRollsBackOnError(t *testing.T) {
	store, err := NewStore(nil)
	require.NoError(t, err)
	ctx := context.Background()

	err = store.Update(ctx, func(r usecase.Repositories) error {
		acct := newAccount("111111111111")
		if err := r.Accounts.Create(ctx, acct); err != nil {
			return err
		}
		if _, err := r.Accounts.AdjustBalance(ctx, acct.ID, decimal.NewFromInt(100)); err != nil {
			return err
		}
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	err = store.View(ctx, func(r usecase.Repositories) error {
		_, err := r.Accounts.GetByNumber(ctx, "111111111111")
		assert.ErrorIs(t, err, domain.ErrAccountNotFound)

		accounts, err := r.Accounts.GetByUser(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, accounts)
		return nil
	})
	require.NoError(t, err)
}

func TestCreateDuplicateNumber(t *testing.T) {
	store, err := NewStore(nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, func(r usecase.Repositories) error {
		return r.Accounts.Create(ctx, newAccount("111111111111"))
	}))

	err = store.Update(ctx, func(r usecase.Repositories) error {
		return r.Accounts.Create(ctx, newAccount("111111111111"))
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateAccountNumber)
}

func TestViewRejectsWrites(t *testing.T) {
	store, err := NewStore(nil)
	require.NoError(t, err)
	ctx := context.Background()

	err = store.View(ctx, func(r usecase.Repositories) error {
		return r.Accounts.Create(ctx, newAccount("111111111111"))
	})
	assert.ErrorIs(t, err, errReadOnly)

	err = store.View(ctx, func(r usecase.Repositories) error {
		_, err := r.Accounts.AdjustBalance(ctx, 1, decimal.NewFromInt(1))
		return err
	})
	assert.ErrorIs(t, err, errReadOnly)
}

// 重開後從 WAL 還原：餘額、紀錄、ID 序列全部一致
func TestRecoverFromWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	ctx := context.Background()

	w, err := wal.NewWAL(path)
	require.NoError(t, err)

	store, err := NewStore(w)
	require.NoError(t, err)

	var accountID int64
	require.NoError(t, store.Update(ctx, func(r usecase.Repositories) error {
		acct := newAccount("111111111111")
		if err := r.Accounts.Create(ctx, acct); err != nil {
			return err
		}
		accountID = acct.ID
		if _, err := r.Accounts.AdjustBalance(ctx, acct.ID, decimal.NewFromInt(150)); err != nil {
			return err
		}
		return r.Records.AppendTransaction(ctx, &domain.Transaction{
			AccountID: acct.ID,
			Type:      domain.TransactionTypeDeposit,
			Amount:    decimal.NewFromInt(150),
		})
	}))
	require.NoError(t, w.Close())

	// 重新開啟同一個 WAL
	w2, err := wal.NewWAL(path)
	require.NoError(t, err)
	defer w2.Close()

	restored, err := NewStore(w2)
	require.NoError(t, err)

	err = restored.View(ctx, func(r usecase.Repositories) error {
		acct, err := r.Accounts.GetByNumber(ctx, "111111111111")
		require.NoError(t, err)
		assert.Equal(t, accountID, acct.ID)
		assert.True(t, acct.Balance.Equal(decimal.NewFromInt(150)))

		transactions, err := r.Records.ListTransactions(ctx, acct.ID)
		require.NoError(t, err)
		require.Len(t, transactions, 1)
		assert.True(t, transactions[0].Amount.Equal(decimal.NewFromInt(150)))
		return nil
	})
	require.NoError(t, err)

	// ID 序列接續，不會重複配號
	require.NoError(t, restored.Update(ctx, func(r usecase.Repositories) error {
		acct := newAccount("222222222222")
		if err := r.Accounts.Create(ctx, acct); err != nil {
			return err
		}
		assert.Greater(t, acct.ID, accountID)
		return nil
	}))
}

// 失敗的工作單元不得出現在 WAL 中，重放後不會看到它
func TestFailedUnitNotJournaled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	ctx := context.Background()

	w, err := wal.NewWAL(path)
	require.NoError(t, err)

	store, err := NewStore(w)
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, func(r usecase.Repositories) error {
		return r.Accounts.Create(ctx, newAccount("111111111111"))
	}))
	err = store.Update(ctx, func(r usecase.Repositories) error {
		if _, err := r.Accounts.AdjustBalance(ctx, 1, decimal.NewFromInt(999)); err != nil {
			return err
		}
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	require.NoError(t, w.Close())

	w2, err := wal.NewWAL(path)
	require.NoError(t, err)
	defer w2.Close()

	restored, err := NewStore(w2)
	require.NoError(t, err)

	err = restored.View(ctx, func(r usecase.Repositories) error {
		acct, err := r.Accounts.GetByNumber(ctx, "111111111111")
		require.NoError(t, err)
		assert.True(t, acct.Balance.IsZero())
		return nil
	})
	require.NoError(t, err)
}
