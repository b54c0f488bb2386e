package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/restorehq/restore/pkg/db/pagination"
	"gorm.io/gorm"
)

type Service interface {
	BuyCredits(ctx context.Context, req BuyCreditsRequest) (BuyCreditsResult, error)
	Reconcile(ctx context.Context, payload []byte, headers http.Header) (ReconcileResult, error)
	ListReceipts(ctx context.Context, req ListReceiptsRequest) ([]Receipt, pagination.PageInfo, error)
	GetReceipt(ctx context.Context, id snowflake.ID) (*Receipt, error)
	ReceiptPDF(ctx context.Context, id snowflake.ID) ([]byte, error)
}

// Gateway is the payment provider surface used by the reconciler.
type Gateway interface {
	Provider() string
	VerifyWebhook(payload []byte, headers http.Header, now time.Time) error
	SessionIDFromWebhook(payload []byte) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, id string) error
}

// SessionLocker serializes reconciliation of one session. The release func
// is always non-nil.
type SessionLocker interface {
	Lock(ctx context.Context, sessionID string) (release func(context.Context), ok bool, err error)
}

type Repository interface {
	InsertReceipt(ctx context.Context, db *gorm.DB, receipt *Receipt) (bool, error)
	FindReceipt(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Receipt, error)
	ListReceipts(ctx context.Context, db *gorm.DB, email string, cursor *pagination.Cursor, limit int) ([]Receipt, error)
}

// ReceiptRenderer produces the downloadable form of a receipt.
type ReceiptRenderer interface {
	RenderReceipt(ctx context.Context, receipt *Receipt) ([]byte, error)
}

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrInvalidCredits   = errors.New("invalid_credits")
	ErrInvalidConfig    = errors.New("invalid_payment_config")
	ErrInvalidSession   = errors.New("invalid_checkout_session")
	ErrReceiptNotFound  = errors.New("receipt_not_found")
	ErrInvalidReceipt   = errors.New("invalid_receipt")
	ErrReconcileBusy    = errors.New("reconcile_in_progress")
)

// ReconciliationError reports a webhook that could not be settled. Retryable
// failures are answered with a non-2xx status so the provider redelivers.
type ReconciliationError struct {
	SessionID string
	Retryable bool
	Err       error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconcile session %s: %v", e.SessionID, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }
