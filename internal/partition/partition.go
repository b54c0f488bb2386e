// Package partition splits a parsed upload into independently stored and trained units.
package partition

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/restorehq/restore/internal/tabular"
)

type Kind string

const (
	KindDemand Kind = "demand"
	KindSales  Kind = "sales"
)

const (
	// DemandKeyColumn groups demand rows; one partition per distinct value.
	DemandKeyColumn  = "ProductID"
	DemandDateColumn = "Date"
	// SalesValueColumn is the label the sales reader gives the second column.
	SalesValueColumn = "Sales"
	InsightColumn    = "InsightData"
)

var (
	ErrInvalidKind   = errors.New("invalid_kind")
	ErrMissingColumn = errors.New("missing_column")
)

func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindDemand:
		return KindDemand, nil
	case KindSales:
		return KindSales, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, raw)
	}
}

// Partition is one unit of storage, training and prediction.
type Partition struct {
	Name        string
	Kind        Kind
	GroupKey    string
	Columns     []string
	Rows        []tabular.Record
	StoragePath string
}

// ParseOptions returns the row checks the parser applies for kind.
func ParseOptions(kind Kind) tabular.Options {
	switch kind {
	case KindDemand:
		return tabular.Options{
			MinColumns:      1,
			DateColumns:     []string{DemandDateColumn},
			RequiredColumns: []string{DemandKeyColumn},
		}
	case KindSales:
		return tabular.Options{
			MinColumns:          2,
			DateColumnPositions: []int{0},
		}
	default:
		return tabular.Options{}
	}
}

// ValidateColumns checks that a header carries what kind needs.
func ValidateColumns(kind Kind, columns []string) error {
	switch kind {
	case KindDemand:
		for _, col := range columns {
			if col == DemandKeyColumn {
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrMissingColumn, DemandKeyColumn)
	case KindSales:
		if len(columns) < 2 {
			return fmt.Errorf("%w: sales needs a period and a value column", ErrMissingColumn)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
}

// DatasetPrefix is the object prefix holding every partition of kind for a customer.
func DatasetPrefix(kind Kind, customerID string) string {
	return fmt.Sprintf("%s/%s-%s/", kind, customerID, kind)
}

func StoragePath(kind Kind, customerID, name string) string {
	return DatasetPrefix(kind, customerID) + name + ".csv"
}

func InsightPrefix(customerID string) string {
	return fmt.Sprintf("insight/%s-insight/", customerID)
}

func InsightPath(customerID string) string {
	return InsightPrefix(customerID) + "insights.csv"
}

// SalesPredictionPrefix is where the ML service writes sales forecasts after
// training on a sales upload.
func SalesPredictionPrefix(customerID string) string {
	return fmt.Sprintf("sales-prediction/%s-sales-prediction/", customerID)
}

const (
	salesPrefix       = "sales_"
	salesSecondLayout = "20060102_150405"
	salesMinuteLayout = "20060102_1504"
)

// SalesName renders a UTC timestamp with nanosecond precision, sortable as text.
func SalesName(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%s_%09d", salesPrefix, t.Format(salesSecondLayout), t.Nanosecond())
}

// ParseSalesTimestamp extracts the time embedded in a sales partition name or
// object path. Older minute-precision names are accepted too.
func ParseSalesTimestamp(name string) (time.Time, bool) {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, ".csv")
	if !strings.HasPrefix(name, salesPrefix) {
		return time.Time{}, false
	}
	rest := strings.TrimPrefix(name, salesPrefix)

	parts := strings.Split(rest, "_")
	switch len(parts) {
	case 3:
		base, err := time.ParseInLocation(salesSecondLayout, parts[0]+"_"+parts[1], time.UTC)
		if err != nil {
			return time.Time{}, false
		}
		nanos, err := strconv.Atoi(parts[2])
		if err != nil || nanos < 0 || nanos >= int(time.Second) {
			return time.Time{}, false
		}
		return base.Add(time.Duration(nanos)), true
	case 2:
		t, err := time.ParseInLocation(salesMinuteLayout, rest, time.UTC)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}
