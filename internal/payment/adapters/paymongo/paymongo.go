// Package paymongo talks to the PayMongo checkout sessions API.
package paymongo

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/restorehq/restore/internal/config"
	paymentdomain "github.com/restorehq/restore/internal/payment/domain"
	"github.com/restorehq/restore/internal/providers/httpx"
	"go.uber.org/fx"
)

const (
	serviceName     = "paymongo"
	signatureHeader = "Paymongo-Signature"
	// signatureTolerance bounds how old a signed webhook may be.
	signatureTolerance = 5 * time.Minute
	maxResponseBytes   = 1 << 20
)

var paymentMethodTypes = []string{"card", "gcash", "paymaya", "grab_pay"}

type Params struct {
	fx.In

	Config config.Config
	HTTP   *http.Client
}

type Adapter struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	timeout       time.Duration
	http          *http.Client
}

func New(p Params) *Adapter {
	client := p.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{
		baseURL:       strings.TrimRight(p.Config.PayMongo.BaseURL, "/"),
		secretKey:     strings.TrimSpace(p.Config.PayMongo.SecretKey),
		webhookSecret: strings.TrimSpace(p.Config.PayMongo.WebhookSecret),
		timeout:       p.Config.PayMongo.Timeout,
		http:          client,
	}
}

func (a *Adapter) Provider() string { return paymentdomain.ProviderPayMongo }

// VerifyWebhook checks the Paymongo-Signature header, which carries a
// timestamp and test (te) or live (li) HMAC-SHA256 signatures of
// "timestamp.payload". Verification is skipped when no secret is configured.
func (a *Adapter) VerifyWebhook(payload []byte, headers http.Header, now time.Time) error {
	if a.webhookSecret == "" {
		return nil
	}
	sigHeader := strings.TrimSpace(headers.Get(signatureHeader))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	ts, signatures, err := parseSignature(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	if age := now.Sub(time.Unix(unix, 0)); age > signatureTolerance || age < -signatureTolerance {
		return paymentdomain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(ts + "." + string(payload)))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

func parseSignature(header string) (string, []string, error) {
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "t":
			timestamp = value
		case "te", "li":
			if value != "" {
				signatures = append(signatures, value)
			}
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, paymentdomain.ErrInvalidSignature
	}
	return timestamp, signatures, nil
}

// SessionIDFromWebhook finds the checkout session an event is about. Events
// wrap the resource in data.attributes.data; a bare session payload is accepted too.
func (a *Adapter) SessionIDFromWebhook(payload []byte) (string, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", paymentdomain.ErrInvalidPayload
	}
	if id := strings.TrimSpace(event.Data.Attributes.Data.ID); id != "" {
		return id, nil
	}
	if id := strings.TrimSpace(event.Data.ID); strings.HasPrefix(id, "cs_") {
		return id, nil
	}
	return "", paymentdomain.ErrInvalidPayload
}

func (a *Adapter) CreateCheckoutSession(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
	body := checkoutCreateRequest{}
	attrs := &body.Data.Attributes
	attrs.Billing = billing{Name: req.Name, Email: req.Email, Phone: req.Phone}
	attrs.LineItems = []lineItem{{
		Amount:      req.UnitAmount,
		Currency:    req.Currency,
		Name:        "Restore credits",
		Description: req.Description,
		Quantity:    req.Credits,
	}}
	attrs.PaymentMethodTypes = paymentMethodTypes
	attrs.Description = req.Description
	attrs.ShowDescription = true
	attrs.ShowLineItems = true
	attrs.SuccessURL = req.SuccessURL
	attrs.CancelURL = req.CancelURL
	attrs.Metadata = map[string]string{
		"customer_email": req.Email,
		"credits":        strconv.FormatInt(req.Credits, 10),
	}

	raw, err := a.do(ctx, "create_checkout_session", http.MethodPost, "/checkout_sessions", body)
	if err != nil {
		return nil, err
	}
	return decodeSession(raw)
}

func (a *Adapter) GetCheckoutSession(ctx context.Context, id string) (*paymentdomain.CheckoutSession, error) {
	raw, err := a.do(ctx, "get_checkout_session", http.MethodGet, "/checkout_sessions/"+id, nil)
	if err != nil {
		return nil, err
	}
	return decodeSession(raw)
}

func (a *Adapter) ExpireCheckoutSession(ctx context.Context, id string) error {
	_, err := a.do(ctx, "expire_checkout_session", http.MethodPost, "/checkout_sessions/"+id+"/expire", nil)
	return err
}

func (a *Adapter) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	if a.secretKey == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var reader *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(a.secretKey, "")
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, &httpx.ServiceError{Service: serviceName, Op: op, Err: err}
	}
	defer httpx.Drain(resp.Body)

	body, err := httpx.ReadBody(ctx, resp.Body, maxResponseBytes)
	if err != nil {
		return nil, &httpx.ServiceError{Service: serviceName, Op: op, Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, httpx.StatusError(serviceName, op, resp, body)
	}
	return body, nil
}

func decodeSession(raw []byte) (*paymentdomain.CheckoutSession, error) {
	var envelope struct {
		Data sessionResource `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrInvalidSession, err)
	}
	res := envelope.Data
	if strings.TrimSpace(res.ID) == "" {
		return nil, paymentdomain.ErrInvalidSession
	}

	session := &paymentdomain.CheckoutSession{
		ID:          res.ID,
		CheckoutURL: res.Attributes.CheckoutURL,
		Status:      res.Attributes.Status,
		Email:       strings.TrimSpace(res.Attributes.Billing.Email),
		Description: res.Attributes.Description,
		Raw:         raw,
	}
	if session.Email == "" {
		session.Email = metadataString(res.Attributes.Metadata, "customer_email")
	}
	for _, item := range res.Attributes.LineItems {
		session.Quantity += item.Quantity
		if session.Currency == "" {
			session.Currency = strings.ToUpper(item.Currency)
		}
	}

	for _, p := range res.Attributes.Payments {
		if p.Attributes.Status != paymentdomain.PaymentStatusPaid {
			continue
		}
		currency := strings.ToUpper(p.Attributes.Currency)
		if currency == "" {
			currency = session.Currency
		}
		session.Payment = &paymentdomain.SessionPayment{
			ID:       p.ID,
			Status:   p.Attributes.Status,
			Amount:   p.Attributes.Amount,
			Currency: currency,
			PaidAt:   unixTime(p.Attributes.PaidAt, res.Attributes.PaidAt),
		}
		break
	}
	return session, nil
}

func metadataString(metadata map[string]any, key string) string {
	switch value := metadata[key].(type) {
	case string:
		return strings.TrimSpace(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return ""
	}
}

func unixTime(primary, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(value, 0).UTC()
}

var _ paymentdomain.Gateway = (*Adapter)(nil)
