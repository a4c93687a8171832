package apperror

import (
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// AppError is a structured error that calling layers map to user-facing
// responses. Expected business outcomes (missing wallet, insufficient
// funds) are returned as these typed values so callers can branch on Code.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Wallet & Ledger Business Logic (WAL) ----

// ErrWalletNotFound reports that no wallet exists for the identity/tenant.
func ErrWalletNotFound() *AppError {
	return New("WAL_001", "Wallet not found", http.StatusNotFound)
}

// ErrInsufficientFunds reports that a delta would drive a balance negative.
// Required and available amounts are surfaced so calling layers can show
// the shortfall.
func ErrInsufficientFunds(currency string, required, available decimal.Decimal) *AppError {
	return New("WAL_002",
		fmt.Sprintf("Insufficient %s: required %s, available %s", currency, required, available),
		http.StatusPaymentRequired)
}

// ErrInvalidDelta reports a malformed balance-change request.
func ErrInvalidDelta(message string) *AppError {
	return New("WAL_003", message, http.StatusBadRequest)
}

// ErrInvalidTransfer reports a malformed transfer request.
func ErrInvalidTransfer(message string) *AppError {
	return New("WAL_004", message, http.StatusBadRequest)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an unexpected infrastructure failure.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// ErrContentionTimeout reports that the wallet's row lock could not be
// acquired within the transactional timeout. Retry is the caller's decision.
func ErrContentionTimeout(err error) *AppError {
	return Wrap("SYS_002", "Wallet lock acquisition timeout", http.StatusServiceUnavailable, err)
}
