package ml

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/restorehq/restore/internal/config"
	"github.com/restorehq/restore/internal/providers/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Config{ML: config.MLConfig{BaseURL: srv.URL, Timeout: time.Second, MaxRetries: 3}}
	c := New(Params{Config: cfg, HTTP: srv.Client(), Log: zap.NewNop()})
	c.policy.InitialInterval = time.Millisecond
	c.policy.MaxInterval = time.Millisecond
	return c
}

func TestTrainModelSendsMultipart(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/train_model", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "a@x.io", r.FormValue("customerId"))
		assert.Equal(t, "demand", r.FormValue("kind"))

		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "product_p1.csv", header.Filename)
		assert.Equal(t, "ProductID\nP1\n", string(data))

		_, _ = w.Write([]byte(`{"message":"trained"}`))
	}))

	msg, err := c.TrainModel(context.Background(), "a@x.io", "demand", "product_p1.csv", []byte("ProductID\nP1\n"))
	require.NoError(t, err)
	assert.Equal(t, "trained", msg)
}

func TestTrainModelErrorBodyIsPermanent(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"error":"not enough rows"}`))
	}))

	_, err := c.TrainModel(context.Background(), "a@x.io", "demand", "f.csv", []byte("x"))

	var se *httpx.ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "not enough rows", se.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"ProductID":"P1","Demand":3}]`))
	}))

	out, err := c.PredictDemand(context.Background(), "a@x.io")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"ProductID":"P1","Demand":3}]`, string(out))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))

	_, err := c.PredictDemand(context.Background(), "a@x.io")

	var se *httpx.ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPredictDemandErrorObject(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"model missing"}`))
	}))

	_, err := c.PredictDemand(context.Background(), "a@x.io")

	var se *httpx.ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "model missing", se.Message)
}

func TestGetDemandPredictionUnescapesOnce(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a@x.io", r.URL.Query().Get("customerId"))
		_, _ = w.Write([]byte(`"[{\"ProductID\":\"P1\"}]"`))
	}))

	out, err := c.GetDemandPrediction(context.Background(), "a@x.io")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"ProductID":"P1"}]`, string(out))
}

func TestGetDemandPredictionRejectsNonArray(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	_, err := c.GetDemandPrediction(context.Background(), "a@x.io")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestGenerateInsightsFlattensText(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate-insights", r.URL.Path)
		_, _ = w.Write([]byte(`{"insights":"Sales rose\n\"sharply\"  in   March"}`))
	}))

	text, err := c.GenerateInsights(context.Background(), "sales.csv", []byte("Month,Sales\n"))
	require.NoError(t, err)
	assert.Equal(t, "Sales rose sharply in March", text)
}

func TestUnescape(t *testing.T) {
	assert.Equal(t, `[1,2]`, string(Unescape([]byte(` "[1,2]" `))))
	assert.Equal(t, `[1,2]`, string(Unescape([]byte(`[1,2]`))))
	assert.Equal(t, `"broken`, string(Unescape([]byte(`"broken`))))
}
