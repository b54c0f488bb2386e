package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/restorehq/restore/internal/payment/domain"
	"github.com/restorehq/restore/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// InsertReceipt appends a receipt unless one exists for the same external payment.
func (r *repo) InsertReceipt(ctx context.Context, db *gorm.DB, receipt *domain.Receipt) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_payment_id"}},
			DoNothing: true,
		}).
		Create(receipt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindReceipt(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Receipt, error) {
	var item domain.Receipt
	err := db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListReceipts returns up to limit receipts for email, newest first, after cursor.
func (r *repo) ListReceipts(ctx context.Context, db *gorm.DB, email string, cursor *pagination.Cursor, limit int) ([]domain.Receipt, error) {
	query := db.WithContext(ctx).
		Model(&domain.Receipt{}).
		Where("email = ?", email)
	if cursor != nil {
		query = query.Where("id < ?", cursor.ID)
	}

	var items []domain.Receipt
	if err := query.Order("id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
