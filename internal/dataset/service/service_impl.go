package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	datasetdomain "github.com/restorehq/restore/internal/dataset/domain"
	ledgerdomain "github.com/restorehq/restore/internal/ledger/domain"
	"github.com/restorehq/restore/internal/objectstore"
	"github.com/restorehq/restore/internal/observability/logger"
	"github.com/restorehq/restore/internal/partition"
	"github.com/restorehq/restore/internal/providers/ml"
	"github.com/restorehq/restore/internal/tabular"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	Store objectstore.Store
	ML    ml.Client
}

type Service struct {
	log   *zap.Logger
	store objectstore.Store
	ml    ml.Client
}

func NewService(p Params) datasetdomain.Service {
	return &Service{
		log:   p.Log.Named("dataset.service"),
		store: p.Store,
		ml:    p.ML,
	}
}

// GetDemand merges every stored demand partition and regroups the rows by product.
func (s *Service) GetDemand(ctx context.Context, customerID string) ([]datasetdomain.DemandGroup, error) {
	customerID, err := normalize(customerID)
	if err != nil {
		return nil, err
	}

	paths, err := s.store.List(ctx, partition.DatasetPrefix(partition.KindDemand, customerID))
	if err != nil {
		return nil, err
	}

	index := map[string]int{}
	var groups []datasetdomain.DemandGroup
	found := false
	for _, path := range paths {
		if !strings.HasSuffix(strings.ToLower(path), ".csv") {
			continue
		}
		found = true

		table, err := s.read(ctx, path, tabular.Options{})
		if err != nil {
			var parseErr *tabular.ParseError
			if errors.As(err, &parseErr) {
				logger.WithContext(ctx, s.log).Warn("skipping unreadable demand object",
					zap.String("path", path),
					zap.Error(err),
				)
				continue
			}
			return nil, err
		}

		for _, row := range table.Rows {
			key := row[partition.DemandKeyColumn]
			i, ok := index[key]
			if !ok {
				i = len(groups)
				index[key] = i
				groups = append(groups, datasetdomain.DemandGroup{ProductID: key})
			}
			groups[i].Rows = append(groups[i].Rows, row)
		}
	}
	if !found {
		return nil, datasetdomain.ErrNoData
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].ProductID < groups[j].ProductID
	})
	return groups, nil
}

// GetSales reads the newest sales upload as a yearly series. The second
// column is the sales value whatever its header says; rows with a period
// that is not YYYY-MM or a value that is not a finite number are skipped.
func (s *Service) GetSales(ctx context.Context, customerID string) ([]datasetdomain.YearlySales, error) {
	customerID, err := normalize(customerID)
	if err != nil {
		return nil, err
	}

	path, err := s.latest(ctx, partition.DatasetPrefix(partition.KindSales, customerID))
	if err != nil {
		return nil, err
	}
	table, err := s.read(ctx, path, tabular.Options{MinColumns: 2})
	if err != nil {
		return nil, err
	}

	index := map[int]int{}
	var series []datasetdomain.YearlySales
	for _, row := range table.Rows {
		values := table.Values(row)
		year, month, ok := parsePeriod(values[0])
		if !ok {
			continue
		}
		sales, err := strconv.ParseFloat(strings.TrimSpace(values[1]), 64)
		if err != nil || math.IsNaN(sales) || math.IsInf(sales, 0) {
			continue
		}

		i, seen := index[year]
		if !seen {
			i = len(series)
			index[year] = i
			series = append(series, datasetdomain.YearlySales{Year: year})
		}
		series[i].SalesData = append(series[i].SalesData, datasetdomain.MonthlySales{
			Month: month.String(),
			Sales: sales,
		})
	}
	return series, nil
}

func (s *Service) GetInsights(ctx context.Context, customerID string) ([]datasetdomain.Insight, error) {
	customerID, err := normalize(customerID)
	if err != nil {
		return nil, err
	}

	path, err := s.latest(ctx, partition.InsightPrefix(customerID))
	if err != nil {
		return nil, err
	}
	table, err := s.read(ctx, path, tabular.Options{RequiredColumns: []string{partition.InsightColumn}})
	if err != nil {
		return nil, err
	}

	insights := make([]datasetdomain.Insight, 0, len(table.Rows))
	for _, row := range table.Rows {
		insights = append(insights, datasetdomain.Insight{InsightData: row[partition.InsightColumn]})
	}
	return insights, nil
}

func (s *Service) GetPrediction(ctx context.Context, customerID string) (json.RawMessage, error) {
	customerID, err := normalize(customerID)
	if err != nil {
		return nil, err
	}
	return s.ml.GetDemandPrediction(ctx, customerID)
}

// GetSalesPrediction returns the rows of the newest sales forecast as written
// by the ML service. Columns are passed through unchanged.
func (s *Service) GetSalesPrediction(ctx context.Context, customerID string) ([]tabular.Record, error) {
	customerID, err := normalize(customerID)
	if err != nil {
		return nil, err
	}

	path, err := s.latest(ctx, partition.SalesPredictionPrefix(customerID))
	if err != nil {
		return nil, err
	}
	table, err := s.read(ctx, path, tabular.Options{})
	if err != nil {
		return nil, err
	}
	if table.Rows == nil {
		return []tabular.Record{}, nil
	}
	return table.Rows, nil
}

func (s *Service) latest(ctx context.Context, prefix string) (string, error) {
	paths, err := s.store.List(ctx, prefix)
	if err != nil {
		return "", err
	}
	path, ok := datasetdomain.LatestObject(paths)
	if !ok {
		return "", datasetdomain.ErrNoData
	}
	return path, nil
}

func (s *Service) read(ctx context.Context, path string, opts tabular.Options) (*tabular.Table, error) {
	data, err := s.store.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return tabular.Parse(path, objectstore.ContentTypeCSV, bytes.NewReader(data), opts)
}

func normalize(customerID string) (string, error) {
	id := ledgerdomain.NormalizeCustomerID(customerID)
	if !ledgerdomain.ValidCustomerID(id) {
		return "", datasetdomain.ErrInvalidCustomer
	}
	return id, nil
}

func parsePeriod(value string) (int, time.Month, bool) {
	parts := strings.Split(strings.TrimSpace(value), "-")
	if len(parts) != 2 {
		return 0, 0, false
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, false
	}
	return year, time.Month(month), true
}
