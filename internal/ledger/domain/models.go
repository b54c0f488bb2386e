package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// CreditSource names where a grant came from.
type CreditSource string

const (
	SourcePayment    CreditSource = "payment"     // reconciled checkout payment
	SourceAdminGrant CreditSource = "admin_grant" // goodwill credit from restorectl
)

// CreditAccount is the prepaid balance for one customer. Balance never drops below zero.
type CreditAccount struct {
	Email     string    `gorm:"primaryKey;type:text"`
	Balance   int64     `gorm:"not null;default:0;check:chk_customer_credits_balance,balance >= 0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (CreditAccount) TableName() string { return "customer_credits" }

// CreditGrant is one applied credit. The unique idempotency key makes grants exactly-once.
type CreditGrant struct {
	ID             snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Email          string       `gorm:"type:text;not null;index:idx_credit_grants_email"`
	Amount         int64        `gorm:"not null"`
	IdempotencyKey string       `gorm:"type:text;not null;uniqueIndex:uq_credit_grants_idempotency_key"`
	Source         string       `gorm:"type:text;not null"`
	CreatedAt      time.Time    `gorm:"not null"`
}

func (CreditGrant) TableName() string { return "credit_grants" }

// CreditDebit is one applied debit, keyed by the request that caused it.
type CreditDebit struct {
	ID             snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Email          string       `gorm:"type:text;not null;index:idx_credit_debits_email"`
	Amount         int64        `gorm:"not null"`
	IdempotencyKey string       `gorm:"type:text;not null;uniqueIndex:uq_credit_debits_idempotency_key"`
	Reason         string       `gorm:"type:text;not null"`
	CreatedAt      time.Time    `gorm:"not null"`
}

func (CreditDebit) TableName() string { return "credit_debits" }

type DebitRequest struct {
	CustomerID string
	Amount     int64
	// IdempotencyKey is request scoped; a retried debit with the same key is not charged twice.
	IdempotencyKey string
	Reason         string
}

type DebitResult struct {
	Balance  int64 `json:"balance"`
	Replayed bool  `json:"replayed"`
}

type CreditRequest struct {
	CustomerID     string
	Amount         int64
	IdempotencyKey string
	Source         CreditSource
}

type CreditResult struct {
	Balance int64 `json:"balance"`
	// Applied is false when the idempotency key was already used.
	Applied bool `json:"applied"`
}
