package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/restorehq/restore/internal/clock"
	datasetdomain "github.com/restorehq/restore/internal/dataset/domain"
	datasetservice "github.com/restorehq/restore/internal/dataset/service"
	"github.com/restorehq/restore/internal/objectstore"
	"github.com/restorehq/restore/internal/partition"
	"github.com/restorehq/restore/internal/tabular"
	"github.com/restorehq/restore/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const customer = "jane@example.com"

func newService(t *testing.T) (datasetdomain.Service, *objectstore.BoltStore, *testutil.FakeML) {
	t.Helper()
	store, err := objectstore.NewBoltStore(filepath.Join(t.TempDir(), "objects.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fake := &testutil.FakeML{}
	svc := datasetservice.NewService(datasetservice.Params{Log: zap.NewNop(), Store: store, ML: fake})
	return svc, store, fake
}

// write stores an upload the way the ingest pipeline does.
func write(t *testing.T, store objectstore.Store, p *partition.Partitioner, kind partition.Kind, body string) []partition.Partition {
	t.Helper()
	table, err := tabular.Parse("upload.csv", "text/csv", strings.NewReader(body), partition.ParseOptions(kind))
	require.NoError(t, err)
	parts, err := p.Split(customer, kind, table)
	require.NoError(t, err)

	for _, part := range parts {
		data, err := tabular.EncodeCSV(part.Columns, part.Rows)
		require.NoError(t, err)
		require.NoError(t, store.Put(context.Background(), part.StoragePath, data, objectstore.ContentTypeCSV))
	}
	return parts
}

func TestSalesScenario(t *testing.T) {
	svc, store, _ := newService(t)
	p := partition.New(clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	parts := write(t, store, p, partition.KindSales, "Month,UnitsSold\n2024-01,100\n2024-02,bad\n2024-03,NaN\n2024-04,Inf\n2024-05,-Infinity\n")
	require.Len(t, parts, 1)
	assert.Len(t, parts[0].Rows, 5)

	series, err := svc.GetSales(context.Background(), customer)
	require.NoError(t, err)
	assert.Equal(t, []datasetdomain.YearlySales{{
		Year:      2024,
		SalesData: []datasetdomain.MonthlySales{{Month: "January", Sales: 100}},
	}}, series)

	_, err = json.Marshal(series)
	assert.NoError(t, err)
}

func TestSalesReadsLatestUpload(t *testing.T) {
	svc, store, _ := newService(t)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	p := partition.New(clk)

	write(t, store, p, partition.KindSales, "Month,Sales\n2023-12,5\n")
	clk.Advance(time.Minute)
	write(t, store, p, partition.KindSales, "Period,Revenue\n2024-01,7\n2024-02,8\n2025-01,9\n")

	series, err := svc.GetSales(context.Background(), customer)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 2024, series[0].Year)
	assert.Equal(t, []datasetdomain.MonthlySales{{Month: "January", Sales: 7}, {Month: "February", Sales: 8}}, series[0].SalesData)
	assert.Equal(t, 2025, series[1].Year)
}

func TestSalesNarrowHeaderIsParseError(t *testing.T) {
	svc, store, _ := newService(t)
	require.NoError(t, store.Put(context.Background(),
		partition.StoragePath(partition.KindSales, customer, "sales_20240101_000000_000000000"),
		[]byte("Month\n2024-01\n"), objectstore.ContentTypeCSV))

	_, err := svc.GetSales(context.Background(), customer)

	var parseErr *tabular.ParseError
	assert.True(t, errors.As(err, &parseErr))
}

func TestDemandRoundTrip(t *testing.T) {
	svc, store, _ := newService(t)
	p := partition.New(nil)

	body := "ProductID,Date,Quantity\nP2,2024-01-01,7\nP1,2024-01-01,4\nP1,2024-01-02,5\n"
	parts := write(t, store, p, partition.KindDemand, body)
	require.Len(t, parts, 2)

	groups, err := svc.GetDemand(context.Background(), " Jane@Example.com ")
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, "P1", groups[0].ProductID)
	assert.Equal(t, []tabular.Record{
		{"ProductID": "P1", "Date": "2024-01-01", "Quantity": "4"},
		{"ProductID": "P1", "Date": "2024-01-02", "Quantity": "5"},
	}, groups[0].Rows)
	assert.Equal(t, "P2", groups[1].ProductID)
	assert.Len(t, groups[1].Rows, 1)
}

func TestNoDataErrors(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.GetDemand(ctx, customer)
	assert.ErrorIs(t, err, datasetdomain.ErrNoData)
	_, err = svc.GetSales(ctx, customer)
	assert.ErrorIs(t, err, datasetdomain.ErrNoData)
	_, err = svc.GetInsights(ctx, customer)
	assert.ErrorIs(t, err, datasetdomain.ErrNoData)
	_, err = svc.GetDemand(ctx, "  ")
	assert.ErrorIs(t, err, datasetdomain.ErrInvalidCustomer)
	_, err = svc.GetSales(ctx, "jane@example.com/../other@example.com")
	assert.ErrorIs(t, err, datasetdomain.ErrInvalidCustomer)
}

func TestGetInsights(t *testing.T) {
	svc, store, _ := newService(t)
	data, err := tabular.EncodeCSV([]string{partition.InsightColumn}, []tabular.Record{{partition.InsightColumn: "Sales, mostly, rose"}})
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), partition.InsightPath(customer), data, objectstore.ContentTypeCSV))

	insights, err := svc.GetInsights(context.Background(), customer)
	require.NoError(t, err)
	assert.Equal(t, []datasetdomain.Insight{{InsightData: "Sales, mostly, rose"}}, insights)
}

func TestGetSalesPredictionReadsNewestForecast(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	prefix := partition.SalesPredictionPrefix(customer)

	_, err := svc.GetSalesPrediction(ctx, customer)
	assert.ErrorIs(t, err, datasetdomain.ErrNoData)

	require.NoError(t, store.Put(ctx, prefix+"sales_20240101_000000_000000000.csv",
		[]byte("Month,PredictedSales\n2024-02,90\n"), objectstore.ContentTypeCSV))
	require.NoError(t, store.Put(ctx, prefix+"sales_20240301_000000_000000000.csv",
		[]byte("Month,PredictedSales\n2024-04,120\n2024-05,130\n"), objectstore.ContentTypeCSV))

	rows, err := svc.GetSalesPrediction(ctx, "Jane@Example.com")
	require.NoError(t, err)
	assert.Equal(t, []tabular.Record{
		{"Month": "2024-04", "PredictedSales": "120"},
		{"Month": "2024-05", "PredictedSales": "130"},
	}, rows)
}

func TestGetPredictionDelegatesToML(t *testing.T) {
	svc, _, fake := newService(t)
	fake.PredictionFn = func(customerID string) (json.RawMessage, error) {
		assert.Equal(t, customer, customerID)
		return json.RawMessage(`[{"ProductID":"P1","Demand":3}]`), nil
	}

	out, err := svc.GetPrediction(context.Background(), "JANE@example.com")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"ProductID":"P1","Demand":3}]`, string(out))
}
