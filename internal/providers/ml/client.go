// Package ml is the client for the external training and prediction service.
package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/restorehq/restore/internal/config"
	"github.com/restorehq/restore/internal/providers/httpx"
	"github.com/restorehq/restore/pkg/retry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const serviceName = "ml"

const maxResponseBytes = 8 << 20

var (
	ErrEmptyPrediction = errors.New("empty_prediction")
	ErrInvalidResponse = errors.New("invalid_ml_response")
)

// Client is the narrow surface the orchestrator and reader depend on.
type Client interface {
	TrainModel(ctx context.Context, customerID, kind, fileName string, data []byte) (string, error)
	PredictDemand(ctx context.Context, customerID string) (json.RawMessage, error)
	GetDemandPrediction(ctx context.Context, customerID string) (json.RawMessage, error)
	GenerateInsights(ctx context.Context, fileName string, data []byte) (string, error)
}

type Params struct {
	fx.In

	Config config.Config
	HTTP   *http.Client
	Log    *zap.Logger
}

type HTTPClient struct {
	baseURL string
	http    *http.Client
	policy  retry.Policy
	log     *zap.Logger
}

var Module = fx.Module("providers.ml",
	fx.Provide(func(p Params) Client { return New(p) }),
)

func New(p Params) *HTTPClient {
	policy := retry.DefaultPolicy()
	policy.AttemptTimeout = p.Config.ML.Timeout
	if p.Config.ML.MaxRetries > 0 {
		policy.MaxTries = uint(p.Config.ML.MaxRetries)
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(p.Config.ML.BaseURL, "/"),
		http:    p.HTTP,
		policy:  policy,
		log:     log.Named("providers.ml"),
	}
}

// TrainModel uploads one partition and returns the service's message.
func (c *HTTPClient) TrainModel(ctx context.Context, customerID, kind, fileName string, data []byte) (string, error) {
	body, err := c.do(ctx, "train_model", func(ctx context.Context) (*http.Request, error) {
		return multipartRequest(ctx, c.baseURL+"/train_model", map[string]string{
			"customerId": customerID,
			"kind":       kind,
		}, fileName, data)
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &httpx.ServiceError{Service: serviceName, Op: "train_model", Err: ErrInvalidResponse}
	}
	if resp.Error != "" || strings.EqualFold(resp.Message, "error") {
		msg := resp.Error
		if msg == "" {
			msg = resp.Message
		}
		return "", &httpx.ServiceError{Service: serviceName, Op: "train_model", Message: msg}
	}
	return resp.Message, nil
}

// PredictDemand asks for a fresh prediction. The result is a JSON array.
func (c *HTTPClient) PredictDemand(ctx context.Context, customerID string) (json.RawMessage, error) {
	body, err := c.do(ctx, "predict_demand", func(ctx context.Context) (*http.Request, error) {
		return multipartRequest(ctx, c.baseURL+"/predict_demand", map[string]string{
			"customerId": customerID,
		}, "", nil)
	})
	if err != nil {
		return nil, err
	}
	return expectArray("predict_demand", body)
}

// GetDemandPrediction reads the last stored prediction. The service may
// return the array as a JSON-encoded string, which is unwrapped once.
func (c *HTTPClient) GetDemandPrediction(ctx context.Context, customerID string) (json.RawMessage, error) {
	endpoint := c.baseURL + "/demand_prediction?" + url.Values{"customerId": {customerID}}.Encode()
	body, err := c.do(ctx, "demand_prediction", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, err
	}
	return expectArray("demand_prediction", Unescape(body))
}

// GenerateInsights returns the insight text for a sales file, flattened to one line.
func (c *HTTPClient) GenerateInsights(ctx context.Context, fileName string, data []byte) (string, error) {
	body, err := c.do(ctx, "generate_insights", func(ctx context.Context) (*http.Request, error) {
		return multipartRequest(ctx, c.baseURL+"/generate-insights", nil, fileName, data)
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		Insights *string `json:"insights"`
		Error    string  `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &httpx.ServiceError{Service: serviceName, Op: "generate_insights", Err: ErrInvalidResponse}
	}
	if resp.Error != "" {
		return "", &httpx.ServiceError{Service: serviceName, Op: "generate_insights", Message: resp.Error}
	}
	if resp.Insights == nil {
		return "", &httpx.ServiceError{Service: serviceName, Op: "generate_insights", Message: "insights missing from response"}
	}
	return FlattenInsight(*resp.Insights), nil
}

func (c *HTTPClient) do(ctx context.Context, op string, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	policy := c.policy
	policy.OnRetry = func(err error, wait time.Duration) {
		c.log.Warn("retrying ml call", zap.String("op", op), zap.Duration("wait", wait), zap.Error(err))
	}

	return retry.Do(ctx, policy, func(ctx context.Context) ([]byte, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, httpx.ForRetry(&httpx.ServiceError{Service: serviceName, Op: op, Err: err})
		}
		defer httpx.Drain(resp.Body)

		body, err := httpx.ReadBody(ctx, resp.Body, maxResponseBytes)
		if err != nil {
			return nil, httpx.ForRetry(&httpx.ServiceError{Service: serviceName, Op: op, Err: err})
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, httpx.ForRetry(httpx.StatusError(serviceName, op, resp, body))
		}
		return body, nil
	})
}

func multipartRequest(ctx context.Context, endpoint string, fields map[string]string, fileName string, data []byte) (*http.Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			return nil, err
		}
	}
	if fileName != "" {
		part, err := w.CreateFormFile("file", fileName)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, nil
}

// Unescape unwraps a body that is a JSON string holding JSON.
func Unescape(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) < 2 || trimmed[0] != '"' {
		return trimmed
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return trimmed
	}
	return []byte(strings.TrimSpace(inner))
}

func expectArray(op string, body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &httpx.ServiceError{Service: serviceName, Op: op, Err: ErrEmptyPrediction}
	}
	if trimmed[0] == '{' {
		var resp struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(trimmed, &resp); err == nil && resp.Error != "" {
			return nil, &httpx.ServiceError{Service: serviceName, Op: op, Message: resp.Error}
		}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, &httpx.ServiceError{Service: serviceName, Op: op, Err: ErrInvalidResponse}
	}
	return json.RawMessage(trimmed), nil
}

// FlattenInsight collapses line breaks, quotes and runs of spaces so the
// text fits a single CSV cell.
func FlattenInsight(text string) string {
	text = strings.NewReplacer("\r", " ", "\n", " ", "\"", "").Replace(text)
	return strings.Join(strings.Fields(text), " ")
}

var _ Client = (*HTTPClient)(nil)
