package domain

import "errors"

var (
	// ErrAmountNotPositive 金額必須為正數
	ErrAmountNotPositive = errors.New("amount must be positive")

	// ErrInsufficientBalance 餘額不足
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrRecipientNotFound 找不到收款帳戶 (依帳號查詢失敗)
	ErrRecipientNotFound = errors.New("recipient account not found")

	// ErrDuplicateAccountNumber 帳號重複 (呼叫端應重新產生帳號後重試)
	ErrDuplicateAccountNumber = errors.New("duplicate account number")

	// ErrAccessDenied 帳戶不屬於該使用者
	ErrAccessDenied = errors.New("access denied")

	// ErrSameAccount 不允許轉帳至同一帳戶
	ErrSameAccount = errors.New("cannot transfer to the same account")

	// ErrBusy 鎖等待逾時或死鎖，該筆操作已完整回滾，呼叫端可安全重試
	ErrBusy = errors.New("operation busy, retry later")

	// ErrStoreUnavailable 底層儲存故障
	ErrStoreUnavailable = errors.New("store unavailable")
)
