package paymongo

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/restorehq/restore/internal/config"
	paymentdomain "github.com/restorehq/restore/internal/payment/domain"
	"github.com/restorehq/restore/internal/providers/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret string, payload []byte, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return hex.EncodeToString(mac.Sum(nil))
}

func newAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()
	cfg := config.Config{PayMongo: config.PayMongoConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: "whsk_test",
		Timeout:       time.Second,
	}}
	client := http.DefaultClient
	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		cfg.PayMongo.BaseURL = srv.URL
		client = srv.Client()
	}
	return New(Params{Config: cfg, HTTP: client})
}

func TestVerifyWebhook(t *testing.T) {
	adapter := newAdapter(t, nil)
	payload := []byte(`{"data":{"id":"evt_1"}}`)
	now := time.Unix(1_700_000_000, 0)

	headers := http.Header{}
	headers.Set(signatureHeader, fmt.Sprintf("t=%d,te=%s,li=", now.Unix(), sign("whsk_test", payload, now.Unix())))
	assert.NoError(t, adapter.VerifyWebhook(payload, headers, now))

	headers.Set(signatureHeader, fmt.Sprintf("t=%d,te=,li=%s", now.Unix(), sign("whsk_test", payload, now.Unix())))
	assert.NoError(t, adapter.VerifyWebhook(payload, headers, now), "live signature")

	headers.Set(signatureHeader, fmt.Sprintf("t=%d,te=%s", now.Unix(), sign("wrong", payload, now.Unix())))
	assert.ErrorIs(t, adapter.VerifyWebhook(payload, headers, now), paymentdomain.ErrInvalidSignature)

	headers.Set(signatureHeader, fmt.Sprintf("t=%d,te=%s", now.Unix(), sign("whsk_test", payload, now.Unix())))
	assert.ErrorIs(t, adapter.VerifyWebhook(payload, headers, now.Add(time.Hour)), paymentdomain.ErrInvalidSignature, "stale")

	assert.ErrorIs(t, adapter.VerifyWebhook(payload, http.Header{}, now), paymentdomain.ErrInvalidSignature)
}

func TestVerifyWebhookWithoutSecret(t *testing.T) {
	adapter := New(Params{Config: config.Config{}})
	assert.NoError(t, adapter.VerifyWebhook([]byte(`{}`), http.Header{}, time.Now()))
}

func TestSessionIDFromWebhook(t *testing.T) {
	adapter := newAdapter(t, nil)

	id, err := adapter.SessionIDFromWebhook([]byte(`{"data":{"id":"evt_1","attributes":{"type":"checkout_session.payment.paid","data":{"id":"cs_abc"}}}}`))
	require.NoError(t, err)
	assert.Equal(t, "cs_abc", id)

	id, err = adapter.SessionIDFromWebhook([]byte(`{"data":{"id":"cs_direct","type":"checkout_session"}}`))
	require.NoError(t, err)
	assert.Equal(t, "cs_direct", id)

	_, err = adapter.SessionIDFromWebhook([]byte(`{"data":{"id":"evt_1"}}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)

	_, err = adapter.SessionIDFromWebhook([]byte(`not json`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}

func TestCreateCheckoutSession(t *testing.T) {
	adapter := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout_sessions", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sk_test_123", user)
		assert.Empty(t, pass)

		var body checkoutCreateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		attrs := body.Data.Attributes
		require.Len(t, attrs.LineItems, 1)
		assert.Equal(t, int64(5000), attrs.LineItems[0].Amount)
		assert.Equal(t, int64(3), attrs.LineItems[0].Quantity)
		assert.Equal(t, "a@x.io", attrs.Metadata["customer_email"])
		assert.Equal(t, "3", attrs.Metadata["credits"])

		_, _ = w.Write([]byte(`{"data":{"id":"cs_1","attributes":{"checkout_url":"https://checkout.paymongo.com/cs_1","status":"active","line_items":[{"amount":5000,"currency":"PHP","name":"Restore credits","quantity":3}]}}}`))
	}))

	session, err := adapter.CreateCheckoutSession(context.Background(), paymentdomain.CheckoutRequest{
		Email:      "a@x.io",
		Credits:    3,
		UnitAmount: 5000,
		Currency:   "PHP",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", session.ID)
	assert.Equal(t, "https://checkout.paymongo.com/cs_1", session.CheckoutURL)
	assert.False(t, session.Paid())
}

func TestGetCheckoutSessionPaid(t *testing.T) {
	adapter := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkout_sessions/cs_1", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"id":"cs_1","attributes":{
			"billing":{"email":""},
			"metadata":{"customer_email":"a@x.io","credits":"5"},
			"line_items":[{"amount":5000,"currency":"php","name":"Restore credits","quantity":5}],
			"payments":[{"id":"pay_9","attributes":{"amount":25000,"currency":"PHP","status":"paid","paid_at":1700000000}}],
			"status":"active"}}}`))
	}))

	session, err := adapter.GetCheckoutSession(context.Background(), "cs_1")
	require.NoError(t, err)
	require.True(t, session.Paid())
	assert.Equal(t, "a@x.io", session.Email)
	assert.Equal(t, int64(5), session.Quantity)
	assert.Equal(t, "PHP", session.Currency)
	assert.Equal(t, "pay_9", session.Payment.ID)
	assert.Equal(t, int64(25000), session.Payment.Amount)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), session.Payment.PaidAt)
}

func TestGetCheckoutSessionWithoutPaidAt(t *testing.T) {
	adapter := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"cs_1","attributes":{
			"billing":{"email":"a@x.io"},
			"line_items":[{"amount":5000,"currency":"php","name":"Restore credits","quantity":1}],
			"payments":[{"id":"pay_9","attributes":{"amount":5000,"currency":"PHP","status":"paid"}}],
			"status":"active"}}}`))
	}))

	session, err := adapter.GetCheckoutSession(context.Background(), "cs_1")
	require.NoError(t, err)
	require.True(t, session.Paid())
	assert.True(t, session.Payment.PaidAt.IsZero())
}

func TestProviderErrorsAreServiceErrors(t *testing.T) {
	adapter := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"code":"unauthorized","detail":"invalid key"}]}`))
	}))

	err := adapter.ExpireCheckoutSession(context.Background(), "cs_1")

	var se *httpx.ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, "invalid key", se.Message)
}

func TestMissingSecretKey(t *testing.T) {
	adapter := New(Params{Config: config.Config{}})
	_, err := adapter.GetCheckoutSession(context.Background(), "cs_1")
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}
