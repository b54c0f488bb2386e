// Package httpx holds the process-wide outbound HTTP client and the error
// type shared by the ML and payment integrations.
package httpx

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/restorehq/restore/internal/config"
	"github.com/restorehq/restore/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.httpx",
	fx.Provide(NewClient),
)

// NewClient builds the single outbound client injected into every integration.
func NewClient(cfg config.Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Outbound.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = cfg.Outbound.MaxIdleConnsPerHost
	}
	transport.IdleConnTimeout = 90 * time.Second

	return &http.Client{
		Timeout:   cfg.Outbound.Timeout,
		Transport: &propagatingTransport{next: transport},
	}
}

type propagatingTransport struct {
	next http.RoundTripper
}

func (t *propagatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))
	for key, value := range correlation.Headers(req.Context()) {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}
	return t.next.RoundTrip(req)
}

// Drain discards the rest of body so the connection can be reused.
func Drain(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

// ReadBody reads at most limit bytes of a response body.
func ReadBody(ctx context.Context, body io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, limit))
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return data, err
}
