package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

type Service interface {
	Debit(ctx context.Context, req DebitRequest) (DebitResult, error)
	Credit(ctx context.Context, req CreditRequest) (CreditResult, error)
	GetBalance(ctx context.Context, customerID string) (int64, error)
}

var (
	ErrInsufficientCredits   = errors.New("insufficient_credits")
	ErrAccountNotFound       = errors.New("account_not_found")
	ErrInvalidCustomer       = errors.New("invalid_customer")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidIdempotencyKey = errors.New("invalid_idempotency_key")
)

// NormalizeCustomerID maps an email to the ledger's account key.
func NormalizeCustomerID(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ValidCustomerID reports whether a normalized id can name an account and a
// storage prefix.
func ValidCustomerID(id string) bool {
	if id == "" || strings.ContainsAny(id, "/\\") {
		return false
	}
	at := strings.Index(id, "@")
	return at > 0 && at < len(id)-1
}

// Repository persists ledger rows. Every method runs on the handle it is given so
// callers can compose them inside one transaction.
type Repository interface {
	InsertGrant(ctx context.Context, db *gorm.DB, grant *CreditGrant) (bool, error)
	InsertDebit(ctx context.Context, db *gorm.DB, debit *CreditDebit) (bool, error)
	EnsureAccount(ctx context.Context, db *gorm.DB, email string, now time.Time) error
	Increment(ctx context.Context, db *gorm.DB, email string, amount int64, now time.Time) error
	DecrementIfSufficient(ctx context.Context, db *gorm.DB, email string, amount int64, now time.Time) (bool, error)
	FindAccount(ctx context.Context, db *gorm.DB, email string) (*CreditAccount, error)
}
