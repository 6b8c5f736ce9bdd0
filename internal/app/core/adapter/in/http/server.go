package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// 帳號為 12 位隨機數字 (外部協作者的產號規則)
const accountNumberDigits = 12

// 產號碰撞時的換號重試次數
const createAccountRetries = 3

type ctxKey int

const identityKey ctxKey = iota

// identityInfo 已認證的呼叫者身分
type identityInfo struct {
	UserID   int64
	UserName string
}

func withIdentity(ctx context.Context, ident identityInfo) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

func identityFrom(ctx context.Context) identityInfo {
	ident, _ := ctx.Value(identityKey).(identityInfo)
	return ident
}

// envelope 統一的回應外框
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Server 是帳本引擎的 HTTP Adapter (Driving Adapter)
// 身分由上游提供並無條件信任；rdb 可為 nil (不啟用冪等保護)
type Server struct {
	core *usecase.CoreUseCase
	rdb  *redis.Client
}

func NewServer(core *usecase.CoreUseCase, rdb *redis.Client) *Server {
	return &Server{
		core: core,
		rdb:  rdb,
	}
}

// Router 組出路由：查詢為 GET，變更操作掛上冪等中介層
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(s.identity)

		r.Get("/accounts", s.handleListAccounts)
		r.Post("/accounts", s.handleCreateAccount)
		r.Get("/transactions/{accountID}", s.handleListTransactions)
		r.Get("/transfers/{accountID}", s.handleListTransfers)

		r.Group(func(r chi.Router) {
			r.Use(s.idempotency)
			r.Post("/deposit", s.handleDeposit)
			r.Post("/withdraw", s.handleWithdraw)
			r.Post("/transfer", s.handleTransfer)
		})
	})
	return r
}

type createAccountRequest struct {
	Type string `json:"type"`
}

type accountView struct {
	ID            int64           `json:"id"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
	Type          string          `json:"type"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toAccountView(a *domain.Account) accountView {
	return accountView{
		ID:            a.ID,
		AccountNumber: a.AccountNumber,
		Balance:       a.Balance,
		Type:          string(a.Type),
		CreatedAt:     a.CreatedAt,
	}
}

// handleCreateAccount 開戶：帳號為本層隨機產生，碰撞時換號重試
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "Invalid request body"})
		return
	}
	accountType := domain.AccountType(req.Type)
	if accountType == "" {
		accountType = domain.AccountTypeSavings
	}

	ident := identityFrom(r.Context())
	var acct *domain.Account
	var err error
	for i := 0; i < createAccountRetries; i++ {
		acct, err = s.core.CreateAccount(r.Context(), ident.UserID, generateAccountNumber(), accountType)
		if !errors.Is(err, domain.ErrDuplicateAccountNumber) {
			break
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "Account created!", Data: toAccountView(acct)})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	ident := identityFrom(r.Context())
	accounts, err := s.core.Accounts(r.Context(), ident.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]accountView, 0, len(accounts))
	for i := range accounts {
		views = append(views, toAccountView(&accounts[i]))
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: views})
}

type amountRequest struct {
	AccountID   int64           `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type balanceView struct {
	AccountID int64           `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "Invalid request body"})
		return
	}
	ident := identityFrom(r.Context())
	receipt, err := s.core.Deposit(r.Context(), usecase.DepositRequest{
		UserID:      ident.UserID,
		AccountID:   req.AccountID,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Deposit successful!",
		Data:    balanceView{AccountID: receipt.AccountID, Balance: receipt.Balance},
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "Invalid request body"})
		return
	}
	ident := identityFrom(r.Context())
	receipt, err := s.core.Withdraw(r.Context(), usecase.WithdrawRequest{
		UserID:      ident.UserID,
		AccountID:   req.AccountID,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Withdrawal successful!",
		Data:    balanceView{AccountID: receipt.AccountID, Balance: receipt.Balance},
	})
}

type transferRequest struct {
	FromAccountID   int64           `json:"from_account_id"`
	ToAccountNumber string          `json:"to_account_number"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
}

type transferResultView struct {
	FromAccountID   int64           `json:"from_account_id"`
	FromBalance     decimal.Decimal `json:"from_balance"`
	ToAccountNumber string          `json:"to_account_number"`
	ToBalance       decimal.Decimal `json:"to_balance"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "Invalid request body"})
		return
	}
	ident := identityFrom(r.Context())
	receipt, err := s.core.Transfer(r.Context(), usecase.TransferRequest{
		UserID:          ident.UserID,
		SenderName:      ident.UserName,
		FromAccountID:   req.FromAccountID,
		ToAccountNumber: req.ToAccountNumber,
		Amount:          req.Amount,
		Description:     req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Transfer successful!",
		Data: transferResultView{
			FromAccountID:   receipt.FromAccountID,
			FromBalance:     receipt.FromBalance,
			ToAccountNumber: receipt.ToAccountNumber,
			ToBalance:       receipt.ToBalance,
		},
	})
}

type transactionView struct {
	ID          int64           `json:"id"`
	RefID       string          `json:"ref_id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "Invalid account id"})
		return
	}
	ident := identityFrom(r.Context())
	transactions, err := s.core.Transactions(r.Context(), ident.UserID, accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]transactionView, 0, len(transactions))
	for _, t := range transactions {
		views = append(views, transactionView{
			ID:          t.ID,
			RefID:       t.RefID.String(),
			Type:        t.Type.String(),
			Amount:      t.Amount,
			Description: t.Description,
			CreatedAt:   t.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: views})
}

type transferEntryView struct {
	ID             int64           `json:"id"`
	RefID          string          `json:"ref_id"`
	SenderNumber   string          `json:"sender_account"`
	ReceiverNumber string          `json:"receiver_account"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	Direction      string          `json:"direction"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "Invalid account id"})
		return
	}
	ident := identityFrom(r.Context())
	transfers, err := s.core.Transfers(r.Context(), ident.UserID, accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]transferEntryView, 0, len(transfers))
	for _, tr := range transfers {
		views = append(views, transferEntryView{
			ID:             tr.ID,
			RefID:          tr.RefID.String(),
			SenderNumber:   tr.SenderNumber,
			ReceiverNumber: tr.ReceiverNumber,
			Amount:         tr.Amount,
			Description:    tr.Description,
			Direction:      string(tr.Direction),
			CreatedAt:      tr.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: views})
}

// generateAccountNumber 產生 12 位隨機數字帳號
// 碰撞機率可忽略；真的撞上時以 ErrDuplicateAccountNumber 換號重試
func generateAccountNumber() string {
	digits := make([]byte, accountNumberDigits)
	for i := range digits {
		digits[i] = byte('0' + rand.Intn(10))
	}
	return string(digits)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// writeError 業務錯誤轉成對應的狀態碼與訊息
// InsufficientBalance 與 RecipientNotFound 是預期中的業務結果，
// 與基礎設施故障 (5xx) 分開對待
func writeError(w http.ResponseWriter, err error) {
	var status int
	var message string
	switch {
	case errors.Is(err, domain.ErrAmountNotPositive):
		status, message = http.StatusBadRequest, "Amount must be positive!"
	case errors.Is(err, domain.ErrSameAccount):
		status, message = http.StatusBadRequest, "Cannot transfer to the same account!"
	case errors.Is(err, domain.ErrAccessDenied):
		status, message = http.StatusForbidden, "Access denied!"
	case errors.Is(err, domain.ErrAccountNotFound):
		status, message = http.StatusNotFound, "Account not found!"
	case errors.Is(err, domain.ErrRecipientNotFound):
		status, message = http.StatusNotFound, "Recipient account not found!"
	case errors.Is(err, domain.ErrDuplicateAccountNumber):
		status, message = http.StatusConflict, "Account number already exists!"
	case errors.Is(err, domain.ErrInsufficientBalance):
		status, message = http.StatusUnprocessableEntity, "Insufficient balance!"
	case errors.Is(err, domain.ErrBusy):
		status, message = http.StatusServiceUnavailable, "Service busy, please retry"
	default:
		log.Printf("internal error: %v", err)
		status, message = http.StatusInternalServerError, "Internal server error"
	}
	writeJSON(w, status, envelope{Success: false, Message: message})
}
