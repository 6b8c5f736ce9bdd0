package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

var errReadOnly = errors.New("read-only view")

// balanceAdjust 餘額異動事件
type balanceAdjust struct {
	AccountID int64
	Delta     decimal.Decimal
}

// journalEvent 工作單元內的單一狀態異動
type journalEvent struct {
	Account  *domain.Account     `json:"account,omitempty"`
	Adjust   *balanceAdjust      `json:"adjust,omitempty"`
	Tran     *domain.Transaction `json:"transaction,omitempty"`
	Transfer *domain.Transfer    `json:"transfer,omitempty"`
}

// commitRecord 一個已提交的工作單元，對應 WAL 的一行
// 以整個單元為寫入粒度，重放時不會出現半套的轉帳
type commitRecord struct {
	Events []journalEvent `json:"events"`
}

// Store 是一個使用 Mutex 實現的記憶體帳本儲存
//
// 寫入走 staging：Update 先在快照上執行，成功才換入正式狀態並記入 WAL，
// 失敗則整份丟棄，因此回滾不需要逆向操作
// 單一互斥鎖序列化所有工作單元；作為開發與測試後端，正確性優先於吞吐
type Store struct {
	mu  sync.RWMutex
	wal *wal.WAL

	accounts map[int64]*domain.Account
	byNumber map[string]int64
	// append-only，ID 即寫入順序
	transactions []domain.Transaction
	transfers    []domain.Transfer

	nextAccountID     int64
	nextTransactionID int64
	nextTransferID    int64
}

// NewStore 建立記憶體儲存並從 WAL 重放歷史狀態
// w 可為 nil (純記憶體，不落盤；測試用)
func NewStore(w *wal.WAL) (*Store, error) {
	s := &Store{
		wal:               w,
		accounts:          make(map[int64]*domain.Account),
		byNumber:          make(map[string]int64),
		nextAccountID:     1,
		nextTransactionID: 1,
		nextTransferID:    1,
	}
	if err := s.recoverFromWAL(); err != nil {
		return nil, err
	}
	return s, nil
}

// recoverFromWAL 逐行重放已提交的工作單元 (不重新寫入 WAL)
// 只有 NewStore 呼叫，無需 Lock (單執行緒)
func (s *Store) recoverFromWAL() error {
	if s.wal == nil {
		return nil
	}
	return s.wal.ReadAll(func(jsonRaw []byte) error {
		var rec commitRecord
		if err := json.Unmarshal(jsonRaw, &rec); err != nil {
			return err
		}
		for i := range rec.Events {
			s.applyEvent(&rec.Events[i])
		}
		return nil
	})
}

// applyEvent 重放單一事件；資料來自已提交的單元，不再做業務檢查
func (s *Store) applyEvent(ev *journalEvent) {
	switch {
	case ev.Account != nil:
		cp := *ev.Account
		s.accounts[cp.ID] = &cp
		s.byNumber[cp.AccountNumber] = cp.ID
		if cp.ID >= s.nextAccountID {
			s.nextAccountID = cp.ID + 1
		}
	case ev.Adjust != nil:
		if acct, ok := s.accounts[ev.Adjust.AccountID]; ok {
			acct.Balance = acct.Balance.Add(ev.Adjust.Delta)
		}
	case ev.Tran != nil:
		s.transactions = append(s.transactions, *ev.Tran)
		if ev.Tran.ID >= s.nextTransactionID {
			s.nextTransactionID = ev.Tran.ID + 1
		}
	case ev.Transfer != nil:
		s.transfers = append(s.transfers, *ev.Transfer)
		if ev.Transfer.ID >= s.nextTransferID {
			s.nextTransferID = ev.Transfer.ID + 1
		}
	}
}

// View 唯讀存取；綁定的介面拒絕任何寫入
func (s *Store) View(ctx context.Context, fn func(r usecase.Repositories) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := &view{store: s}
	return fn(usecase.Repositories{Accounts: v, Records: v})
}

// Update 開啟工作單元：fn 在完整快照 (stage) 上執行
// 成功 → 單元寫入 WAL、快照換入正式狀態；失敗 → 快照丟棄，狀態不變
func (s *Store) Update(ctx context.Context, fn func(r usecase.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.newStage()
	if err := fn(usecase.Repositories{Accounts: st, Records: st}); err != nil {
		return err
	}
	if len(st.events) == 0 {
		return nil
	}
	if s.wal != nil {
		if err := s.wal.Append(commitRecord{Events: st.events}); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
	}
	s.commit(st)
	return nil
}

func (s *Store) newStage() *stage {
	accounts := make(map[int64]*domain.Account, len(s.accounts))
	for id, a := range s.accounts {
		cp := *a
		accounts[id] = &cp
	}
	byNumber := make(map[string]int64, len(s.byNumber))
	for n, id := range s.byNumber {
		byNumber[n] = id
	}
	return &stage{
		store:             s,
		accounts:          accounts,
		byNumber:          byNumber,
		nextAccountID:     s.nextAccountID,
		nextTransactionID: s.nextTransactionID,
		nextTransferID:    s.nextTransferID,
	}
}

func (s *Store) commit(st *stage) {
	s.accounts = st.accounts
	s.byNumber = st.byNumber
	s.transactions = append(s.transactions, st.pendingTransactions...)
	s.transfers = append(s.transfers, st.pendingTransfers...)
	s.nextAccountID = st.nextAccountID
	s.nextTransactionID = st.nextTransactionID
	s.nextTransferID = st.nextTransferID
}

// getByUser 在鎖保護下收集使用者的帳戶快照 (依 ID 遞增)
func getByUser(accounts map[int64]*domain.Account, userID int64) []domain.Account {
	out := make([]domain.Account, 0)
	for _, a := range accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// listTransactions 取出帳戶的交易紀錄，依 ID 遞減 (ID 即寫入順序)
func listTransactions(committed, pending []domain.Transaction, accountID int64) []domain.Transaction {
	out := make([]domain.Transaction, 0)
	for _, t := range committed {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	for _, t := range pending {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// listTransfers 取出帳戶收付雙向的轉帳並附上雙方帳號，依 ID 遞減
func listTransfers(accounts map[int64]*domain.Account, committed, pending []domain.Transfer, accountID int64) []domain.TransferEntry {
	number := func(id int64) string {
		if a, ok := accounts[id]; ok {
			return a.AccountNumber
		}
		return ""
	}
	out := make([]domain.TransferEntry, 0)
	collect := func(trs []domain.Transfer) {
		for _, tr := range trs {
			if tr.SenderAccountID != accountID && tr.ReceiverAccountID != accountID {
				continue
			}
			direction := domain.TransferIncoming
			if tr.SenderAccountID == accountID {
				direction = domain.TransferOutgoing
			}
			out = append(out, domain.TransferEntry{
				Transfer:       tr,
				SenderNumber:   number(tr.SenderAccountID),
				ReceiverNumber: number(tr.ReceiverAccountID),
				Direction:      direction,
			})
		}
	}
	collect(committed)
	collect(pending)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// stage 是一個進行中的工作單元：完整狀態快照 + 待提交紀錄 + 事件日誌
type stage struct {
	store    *Store
	accounts map[int64]*domain.Account
	byNumber map[string]int64

	pendingTransactions []domain.Transaction
	pendingTransfers    []domain.Transfer
	events              []journalEvent

	nextAccountID     int64
	nextTransactionID int64
	nextTransferID    int64
}

func (st *stage) Create(ctx context.Context, acct *domain.Account) error {
	if _, ok := st.byNumber[acct.AccountNumber]; ok {
		return domain.ErrDuplicateAccountNumber
	}
	acct.ID = st.nextAccountID
	st.nextAccountID++
	acct.CreatedAt = time.Now()

	cp := *acct
	st.accounts[cp.ID] = &cp
	st.byNumber[cp.AccountNumber] = cp.ID
	st.events = append(st.events, journalEvent{Account: &cp})
	return nil
}

func (st *stage) GetByUser(ctx context.Context, userID int64) ([]domain.Account, error) {
	return getByUser(st.accounts, userID), nil
}

func (st *stage) GetByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	id, ok := st.byNumber[accountNumber]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *st.accounts[id]
	return &cp, nil
}

// LockForUpdate 大鎖已序列化整個工作單元，這裡只回傳當前快照
// 鎖定順序由呼叫端的 domain.LockOrder 保證，介面語意與 MySQL 後端一致
func (st *stage) LockForUpdate(ctx context.Context, ids ...int64) (map[int64]*domain.Account, error) {
	out := make(map[int64]*domain.Account, len(ids))
	for _, id := range ids {
		if a, ok := st.accounts[id]; ok {
			cp := *a
			out[id] = &cp
		}
	}
	return out, nil
}

func (st *stage) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	acct, ok := st.accounts[accountID]
	if !ok {
		return decimal.Zero, domain.ErrAccountNotFound
	}
	acct.Balance = acct.Balance.Add(delta)
	st.events = append(st.events, journalEvent{Adjust: &balanceAdjust{AccountID: accountID, Delta: delta}})
	return acct.Balance, nil
}

func (st *stage) AppendTransaction(ctx context.Context, tran *domain.Transaction) error {
	tran.ID = st.nextTransactionID
	st.nextTransactionID++
	tran.CreatedAt = time.Now()

	cp := *tran
	st.pendingTransactions = append(st.pendingTransactions, cp)
	st.events = append(st.events, journalEvent{Tran: &cp})
	return nil
}

func (st *stage) AppendTransfer(ctx context.Context, tr *domain.Transfer) error {
	tr.ID = st.nextTransferID
	st.nextTransferID++
	tr.CreatedAt = time.Now()

	cp := *tr
	st.pendingTransfers = append(st.pendingTransfers, cp)
	st.events = append(st.events, journalEvent{Transfer: &cp})
	return nil
}

func (st *stage) ListTransactions(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	return listTransactions(st.store.transactions, st.pendingTransactions, accountID), nil
}

func (st *stage) ListTransfers(ctx context.Context, accountID int64) ([]domain.TransferEntry, error) {
	return listTransfers(st.accounts, st.store.transfers, st.pendingTransfers, accountID), nil
}

// view 唯讀綁定；任何寫入方法一律回傳 errReadOnly
type view struct {
	store *Store
}

func (v *view) Create(ctx context.Context, acct *domain.Account) error {
	return errReadOnly
}

func (v *view) GetByUser(ctx context.Context, userID int64) ([]domain.Account, error) {
	return getByUser(v.store.accounts, userID), nil
}

func (v *view) GetByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	id, ok := v.store.byNumber[accountNumber]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *v.store.accounts[id]
	return &cp, nil
}

func (v *view) LockForUpdate(ctx context.Context, ids ...int64) (map[int64]*domain.Account, error) {
	return nil, errReadOnly
}

func (v *view) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, errReadOnly
}

func (v *view) AppendTransaction(ctx context.Context, tran *domain.Transaction) error {
	return errReadOnly
}

func (v *view) AppendTransfer(ctx context.Context, tr *domain.Transfer) error {
	return errReadOnly
}

func (v *view) ListTransactions(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	return listTransactions(v.store.transactions, nil, accountID), nil
}

func (v *view) ListTransfers(ctx context.Context, accountID int64) ([]domain.TransferEntry, error) {
	return listTransfers(v.store.accounts, v.store.transfers, nil, accountID), nil
}

var _ usecase.Store = (*Store)(nil)
