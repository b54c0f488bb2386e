package domain

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/restorehq/restore/internal/tabular"
)

// DemandGroup holds every stored demand row of one product.
type DemandGroup struct {
	ProductID string           `json:"ProductID"`
	Rows      []tabular.Record `json:"Rows"`
}

type MonthlySales struct {
	Month string  `json:"Month"`
	Sales float64 `json:"Sales"`
}

type YearlySales struct {
	Year      int            `json:"Year"`
	SalesData []MonthlySales `json:"SalesData"`
}

type Insight struct {
	InsightData string `json:"InsightData"`
}

type Service interface {
	GetDemand(ctx context.Context, customerID string) ([]DemandGroup, error)
	GetSales(ctx context.Context, customerID string) ([]YearlySales, error)
	GetInsights(ctx context.Context, customerID string) ([]Insight, error)
	GetPrediction(ctx context.Context, customerID string) (json.RawMessage, error)
	GetSalesPrediction(ctx context.Context, customerID string) ([]tabular.Record, error)
}

var (
	ErrNoData          = errors.New("no_data")
	ErrInvalidCustomer = errors.New("invalid_customer")
)
