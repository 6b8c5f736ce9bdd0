package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memory_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

func newTestServer(t *testing.T) (http.Handler, *usecase.CoreUseCase) {
	t.Helper()
	store, err := memory_adapter.NewStore(nil)
	require.NoError(t, err)
	core := usecase.NewCoreUseCase(store)
	return NewServer(core, nil).Router(), core
}

func doJSON(t *testing.T, handler http.Handler, method, path string, userID int64, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != 0 {
		req.Header.Set(headerUserID, strconv.FormatInt(userID, 10))
		req.Header.Set(headerUserName, "alice")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (envelope, map[string]any) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	data, _ := env.Data.(map[string]any)
	return env, data
}

func seedAccount(t *testing.T, core *usecase.CoreUseCase, userID int64, number, balance string) *domain.Account {
	t.Helper()
	acct, err := core.CreateAccount(context.Background(), userID, number, domain.AccountTypeSavings)
	require.NoError(t, err)
	if balance != "" {
		_, err = core.Deposit(context.Background(), usecase.DepositRequest{
			UserID: userID, AccountID: acct.ID, Amount: decimal.RequireFromString(balance),
		})
		require.NoError(t, err)
	}
	return acct
}

// 缺少身分標頭一律 401
func TestIdentityRequired(t *testing.T) {
	handler, _ := newTestServer(t)
	rec := doJSON(t, handler, http.MethodGet, "/api/accounts", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAccountEndpoint(t *testing.T) {
	handler, _ := newTestServer(t)
	rec := doJSON(t, handler, http.MethodPost, "/api/accounts", 1, map[string]string{"type": "Savings"})
	require.Equal(t, http.StatusCreated, rec.Code)

	env, data := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.Len(t, data["account_number"], accountNumberDigits)
	assert.Equal(t, "Savings", data["type"])
}

func TestDepositEndpoint(t *testing.T) {
	handler, core := newTestServer(t)
	acct := seedAccount(t, core, 1, "111111111111", "100")

	rec := doJSON(t, handler, http.MethodPost, "/api/deposit", 1, map[string]any{
		"account_id": acct.ID,
		"amount":     "50",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	env, data := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, "Deposit successful!", env.Message)
	assert.Equal(t, "150", data["balance"])
}

func TestWithdrawInsufficientEndpoint(t *testing.T) {
	handler, core := newTestServer(t)
	acct := seedAccount(t, core, 1, "111111111111", "100")

	rec := doJSON(t, handler, http.MethodPost, "/api/withdraw", 1, map[string]any{
		"account_id": acct.ID,
		"amount":     "150",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	env, _ := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "Insufficient balance!", env.Message)
}

func TestTransferEndpoint(t *testing.T) {
	handler, core := newTestServer(t)
	a := seedAccount(t, core, 1, "111111111111", "200")
	seedAccount(t, core, 2, "222222222222", "")

	rec := doJSON(t, handler, http.MethodPost, "/api/transfer", 1, map[string]any{
		"from_account_id":   a.ID,
		"to_account_number": "222222222222",
		"amount":            "50",
		"description":       "Rent",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	env, data := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, "Transfer successful!", env.Message)
	assert.Equal(t, "150", data["from_balance"])
	assert.Equal(t, "50", data["to_balance"])
	assert.Equal(t, "222222222222", data["to_account_number"])
}

func TestTransferRecipientNotFoundEndpoint(t *testing.T) {
	handler, core := newTestServer(t)
	a := seedAccount(t, core, 1, "111111111111", "200")

	rec := doJSON(t, handler, http.MethodPost, "/api/transfer", 1, map[string]any{
		"from_account_id":   a.ID,
		"to_account_number": "999999999999",
		"amount":            "50",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env, _ := decodeEnvelope(t, rec)
	assert.Equal(t, "Recipient account not found!", env.Message)
}

// 操作別人的帳戶一律 403
func TestForeignAccountForbidden(t *testing.T) {
	handler, core := newTestServer(t)
	a := seedAccount(t, core, 1, "111111111111", "100")

	rec := doJSON(t, handler, http.MethodPost, "/api/withdraw", 2, map[string]any{
		"account_id": a.ID,
		"amount":     "10",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/transactions/"+strconv.FormatInt(a.ID, 10), 2, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListTransactionsEndpoint(t *testing.T) {
	handler, core := newTestServer(t)
	a := seedAccount(t, core, 1, "111111111111", "100")

	rec := doJSON(t, handler, http.MethodGet, "/api/transactions/"+strconv.FormatInt(a.ID, 10), 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	items, ok := env.Data.([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "Deposit", item["type"])
	assert.Equal(t, "100", item["amount"])
}

func TestListTransfersEndpoint(t *testing.T) {
	handler, core := newTestServer(t)
	a := seedAccount(t, core, 1, "111111111111", "200")
	seedAccount(t, core, 2, "222222222222", "")
	_, err := core.Transfer(context.Background(), usecase.TransferRequest{
		UserID: 1, SenderName: "alice",
		FromAccountID: a.ID, ToAccountNumber: "222222222222",
		Amount: decimal.RequireFromString("50"),
	})
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodGet, "/api/transfers/"+strconv.FormatInt(a.ID, 10), 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	items, ok := env.Data.([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "out", item["direction"])
	assert.Equal(t, "222222222222", item["receiver_account"])
}

func TestInvalidAmountRejected(t *testing.T) {
	handler, core := newTestServer(t)
	acct := seedAccount(t, core, 1, "111111111111", "100")

	rec := doJSON(t, handler, http.MethodPost, "/api/deposit", 1, map[string]any{
		"account_id": acct.ID,
		"amount":     "-5",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
