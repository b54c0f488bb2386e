package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Receipt is the append-only record of one settled checkout payment.
type Receipt struct {
	ID                snowflake.ID   `json:"id" gorm:"primaryKey"`
	Email             string         `json:"email" gorm:"type:varchar(320);not null;index"`
	CheckoutSessionID string         `json:"checkout_session_id" gorm:"type:varchar(128);not null"`
	ExternalPaymentID string         `json:"external_payment_id" gorm:"type:varchar(128);not null;uniqueIndex"`
	Amount            int64          `json:"amount" gorm:"not null"`
	Quantity          int64          `json:"quantity" gorm:"not null"`
	Currency          string         `json:"currency" gorm:"type:varchar(8);not null"`
	Description       string         `json:"description" gorm:"type:text;not null;default:''"`
	PaidAt            time.Time      `json:"paid_at" gorm:"not null"`
	CreatedAt         time.Time      `json:"created_at" gorm:"not null"`
	Payload           datatypes.JSON `json:"-"`
}

func (Receipt) TableName() string { return "payment_receipts" }

const ProviderPayMongo = "paymongo"

// CheckoutSession is the provider's view of a session, reduced to what
// reconciliation needs.
type CheckoutSession struct {
	ID          string
	CheckoutURL string
	Status      string
	Email       string
	Quantity    int64
	Currency    string
	Description string
	Payment     *SessionPayment
	Raw         []byte
}

// SessionPayment is the settled payment attached to a session.
type SessionPayment struct {
	ID       string
	Status   string
	Amount   int64
	Currency string
	PaidAt   time.Time
}

// Paid reports whether the session carries a settled payment.
func (s *CheckoutSession) Paid() bool {
	return s != nil && s.Payment != nil && s.Payment.Status == PaymentStatusPaid
}

const PaymentStatusPaid = "paid"

type CheckoutRequest struct {
	Email       string
	Name        string
	Phone       string
	Credits     int64
	UnitAmount  int64
	Currency    string
	Description string
	SuccessURL  string
	CancelURL   string
}

type BuyCreditsRequest struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Credits int64  `json:"credits"`
}

type BuyCreditsResult struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Credits     int64  `json:"credits"`
}

type ReconcileStatus string

const (
	ReconcileCredited  ReconcileStatus = "credited"
	ReconcileDuplicate ReconcileStatus = "duplicate"
	ReconcileNotPaid   ReconcileStatus = "not_paid"
)

type ReconcileResult struct {
	Status    ReconcileStatus `json:"status"`
	SessionID string          `json:"session_id"`
	Email     string          `json:"email,omitempty"`
	Credits   int64           `json:"credits,omitempty"`
	Balance   int64           `json:"balance,omitempty"`
}

type ListReceiptsRequest struct {
	Email     string
	PageToken string
	PageSize  int
}
