package repository

import (
	"context"
	"time"

	"github.com/restorehq/restore/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertGrant(ctx context.Context, db *gorm.DB, grant *domain.CreditGrant) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(grant)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertDebit(ctx context.Context, db *gorm.DB, debit *domain.CreditDebit) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(debit)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) EnsureAccount(ctx context.Context, db *gorm.DB, email string, now time.Time) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.CreditAccount{
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}).Error
}

func (r *repo) Increment(ctx context.Context, db *gorm.DB, email string, amount int64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE customer_credits
		 SET balance = balance + ?, updated_at = ?
		 WHERE email = ?`,
		amount,
		now,
		email,
	).Error
}

// DecrementIfSufficient subtracts amount only when the balance covers it. The
// conditional update is the whole check-and-set, so concurrent debits cannot overdraw.
func (r *repo) DecrementIfSufficient(ctx context.Context, db *gorm.DB, email string, amount int64, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE customer_credits
		 SET balance = balance - ?, updated_at = ?
		 WHERE email = ? AND balance >= ?`,
		amount,
		now,
		email,
		amount,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindAccount(ctx context.Context, db *gorm.DB, email string) (*domain.CreditAccount, error) {
	var row struct {
		Email   string
		Balance int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT email, balance
		 FROM customer_credits
		 WHERE email = ?
		 LIMIT 1`,
		email,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.Email == "" {
		return nil, nil
	}
	return &domain.CreditAccount{Email: row.Email, Balance: row.Balance}, nil
}
