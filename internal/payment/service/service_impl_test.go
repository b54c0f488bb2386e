package service_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/restorehq/restore/internal/clock"
	"github.com/restorehq/restore/internal/config"
	ledgerdomain "github.com/restorehq/restore/internal/ledger/domain"
	ledgerrepo "github.com/restorehq/restore/internal/ledger/repository"
	ledgerservice "github.com/restorehq/restore/internal/ledger/service"
	paymentdomain "github.com/restorehq/restore/internal/payment/domain"
	paymentrepo "github.com/restorehq/restore/internal/payment/repository"
	paymentservice "github.com/restorehq/restore/internal/payment/service"
	"github.com/restorehq/restore/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const buyer = "buyer@example.com"

type fakeGateway struct {
	mu        sync.Mutex
	session   *paymentdomain.CheckoutSession
	fetchErr  error
	verifyErr error
	created   []paymentdomain.CheckoutRequest
	expired   []string
}

func (g *fakeGateway) Provider() string { return paymentdomain.ProviderPayMongo }

func (g *fakeGateway) VerifyWebhook(payload []byte, headers http.Header, now time.Time) error {
	return g.verifyErr
}

func (g *fakeGateway) SessionIDFromWebhook(payload []byte) (string, error) {
	if string(payload) == "" {
		return "", paymentdomain.ErrInvalidPayload
	}
	return string(payload), nil
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, req)
	return &paymentdomain.CheckoutSession{ID: "cs_new", CheckoutURL: "https://checkout.test/cs_new"}, nil
}

func (g *fakeGateway) GetCheckoutSession(ctx context.Context, id string) (*paymentdomain.CheckoutSession, error) {
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	return g.session, nil
}

func (g *fakeGateway) ExpireCheckoutSession(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expired = append(g.expired, id)
	return nil
}

type denyLocker struct{}

func (denyLocker) Lock(ctx context.Context, sessionID string) (func(context.Context), bool, error) {
	return func(context.Context) {}, false, nil
}

type harness struct {
	svc     paymentdomain.Service
	ledger  ledgerdomain.Service
	db      *gorm.DB
	gateway *fakeGateway
}

func newHarness(t *testing.T, locker paymentdomain.SessionLocker) *harness {
	t.Helper()
	db := testutil.OpenSQLite(t)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  ledgerrepo.Provide(),
		Clock: clk,
	})
	gateway := &fakeGateway{session: paidSession("cs_1", "pay_1", 5)}

	svc := paymentservice.NewService(paymentservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Config: config.Config{PayMongo: config.PayMongoConfig{
			SuccessURL: "https://app.test/ok",
			CancelURL:  "https://app.test/cancel",
		}},
		Pricing:   config.NewStaticPricingHolder(config.DefaultPricingConfig()),
		LedgerSvc: ledger,
		Repo:      paymentrepo.Provide(),
		Gateway:   gateway,
		Locker:    locker,
		Clock:     clk,
	})
	return &harness{svc: svc, ledger: ledger, db: db, gateway: gateway}
}

func paidSession(id, paymentID string, quantity int64) *paymentdomain.CheckoutSession {
	return &paymentdomain.CheckoutSession{
		ID:       id,
		Status:   "active",
		Email:    " Buyer@Example.com ",
		Quantity: quantity,
		Currency: "PHP",
		Payment: &paymentdomain.SessionPayment{
			ID:       paymentID,
			Status:   paymentdomain.PaymentStatusPaid,
			Amount:   quantity * 5000,
			Currency: "PHP",
			PaidAt:   time.Date(2024, 3, 1, 9, 59, 0, 0, time.UTC),
		},
		Raw: []byte(`{"data":{"id":"` + id + `"}}`),
	}
}

func countReceipts(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&paymentdomain.Receipt{}).Count(&n).Error)
	return n
}

func TestReconcileDuplicateWebhookCreditsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	first, err := h.svc.Reconcile(ctx, []byte("cs_1"), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.ReconcileCredited, first.Status)
	assert.Equal(t, buyer, first.Email)
	assert.Equal(t, int64(5), first.Balance)

	second, err := h.svc.Reconcile(ctx, []byte("cs_1"), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.ReconcileDuplicate, second.Status)
	assert.Equal(t, int64(5), second.Balance)

	balance, err := h.ledger.GetBalance(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)
	assert.Equal(t, int64(1), countReceipts(t, h.db))
	assert.Equal(t, []string{"cs_1", "cs_1"}, h.gateway.expired)
}

func TestReconcileRedeliveryAfterCreditFinishesSettlement(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	// An earlier delivery granted the credits but stopped before the receipt.
	_, err := h.ledger.Credit(ctx, ledgerdomain.CreditRequest{
		CustomerID:     buyer,
		Amount:         5,
		IdempotencyKey: paymentdomain.ProviderPayMongo + ":pay_1",
		Source:         ledgerdomain.SourcePayment,
	})
	require.NoError(t, err)

	res, err := h.svc.Reconcile(ctx, []byte("cs_1"), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.ReconcileDuplicate, res.Status)
	assert.Equal(t, int64(5), res.Balance)
	assert.Equal(t, int64(1), countReceipts(t, h.db))
	assert.Equal(t, []string{"cs_1"}, h.gateway.expired)
}

func TestReconcileRejectsPaymentWithoutID(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	h.gateway.session = paidSession("cs_a", "", 5)
	_, err := h.svc.Reconcile(ctx, []byte("cs_a"), http.Header{})
	var rerr *paymentdomain.ReconciliationError
	require.ErrorAs(t, err, &rerr)
	assert.False(t, rerr.Retryable)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSession)

	other := paidSession("cs_b", "pay_b", 7)
	other.Email = "other@example.com"
	h.gateway.session = other
	res, err := h.svc.Reconcile(ctx, []byte("cs_b"), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.ReconcileCredited, res.Status)

	balance, err := h.ledger.GetBalance(ctx, "other@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(7), balance)
	balance, err = h.ledger.GetBalance(ctx, buyer)
	require.NoError(t, err)
	assert.Zero(t, balance)
	assert.Equal(t, int64(1), countReceipts(t, h.db))
}

func TestReconcileStampsMissingPaidAtFromClock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.gateway.session.Payment.PaidAt = time.Time{}

	_, err := h.svc.Reconcile(ctx, []byte("cs_1"), http.Header{})
	require.NoError(t, err)

	var receipt paymentdomain.Receipt
	require.NoError(t, h.db.First(&receipt).Error)
	assert.True(t, receipt.PaidAt.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))
}

func TestReconcileConcurrentDeliveries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Reconcile(ctx, []byte("cs_1"), http.Header{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := h.ledger.GetBalance(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)
	assert.Equal(t, int64(1), countReceipts(t, h.db))
}

func TestReconcileUnpaidSessionLeavesLedgerUntouched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.gateway.session = &paymentdomain.CheckoutSession{ID: "cs_1", Status: "active", Email: buyer, Quantity: 5}

	res, err := h.svc.Reconcile(ctx, []byte("cs_1"), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.ReconcileNotPaid, res.Status)

	balance, err := h.ledger.GetBalance(ctx, buyer)
	require.NoError(t, err)
	assert.Zero(t, balance)
	assert.Zero(t, countReceipts(t, h.db))
}

func TestReconcileFetchFailureIsRetryable(t *testing.T) {
	h := newHarness(t, nil)
	h.gateway.fetchErr = errors.New("connection reset by peer")

	_, err := h.svc.Reconcile(context.Background(), []byte("cs_1"), http.Header{})
	var rerr *paymentdomain.ReconciliationError
	require.ErrorAs(t, err, &rerr)
	assert.True(t, rerr.Retryable)
	assert.Equal(t, "cs_1", rerr.SessionID)
	assert.Zero(t, countReceipts(t, h.db))
}

func TestReconcileRejectsBadSignature(t *testing.T) {
	h := newHarness(t, nil)
	h.gateway.verifyErr = paymentdomain.ErrInvalidSignature

	_, err := h.svc.Reconcile(context.Background(), []byte("cs_1"), http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
}

func TestReconcileEmptyPayload(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.svc.Reconcile(context.Background(), nil, http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}

func TestReconcileBusySessionAsksForRedelivery(t *testing.T) {
	h := newHarness(t, denyLocker{})

	_, err := h.svc.Reconcile(context.Background(), []byte("cs_1"), http.Header{})
	var rerr *paymentdomain.ReconciliationError
	require.ErrorAs(t, err, &rerr)
	assert.True(t, rerr.Retryable)
	assert.ErrorIs(t, err, paymentdomain.ErrReconcileBusy)
}

func TestReconcileMissingEmailIsNotRetryable(t *testing.T) {
	h := newHarness(t, nil)
	h.gateway.session.Email = ""

	_, err := h.svc.Reconcile(context.Background(), []byte("cs_1"), http.Header{})
	var rerr *paymentdomain.ReconciliationError
	require.ErrorAs(t, err, &rerr)
	assert.False(t, rerr.Retryable)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEmail)
}

func TestBuyCredits(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.svc.BuyCredits(context.Background(), paymentdomain.BuyCreditsRequest{Email: buyer, Name: "Buyer", Credits: 3})
	require.NoError(t, err)
	assert.Equal(t, "cs_new", res.SessionID)
	assert.Equal(t, int64(15000), res.Amount)
	assert.Equal(t, "PHP", res.Currency)

	require.Len(t, h.gateway.created, 1)
	req := h.gateway.created[0]
	assert.Equal(t, int64(3), req.Credits)
	assert.Equal(t, int64(5000), req.UnitAmount)
	assert.Equal(t, "https://app.test/ok", req.SuccessURL)
}

func TestBuyCreditsValidation(t *testing.T) {
	h := newHarness(t, nil)
	cases := []struct {
		name string
		req  paymentdomain.BuyCreditsRequest
		want error
	}{
		{"missing email", paymentdomain.BuyCreditsRequest{Credits: 1}, paymentdomain.ErrInvalidEmail},
		{"not an email", paymentdomain.BuyCreditsRequest{Email: "buyer", Credits: 1}, paymentdomain.ErrInvalidEmail},
		{"zero credits", paymentdomain.BuyCreditsRequest{Email: buyer}, paymentdomain.ErrInvalidCredits},
		{"negative credits", paymentdomain.BuyCreditsRequest{Email: buyer, Credits: -2}, paymentdomain.ErrInvalidCredits},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.BuyCredits(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, h.gateway.created)
}

func TestListReceiptsPaginates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	for _, id := range []string{"pay_a", "pay_b", "pay_c"} {
		h.gateway.session = paidSession("cs_"+id, id, 1)
		_, err := h.svc.Reconcile(ctx, []byte("cs_"+id), http.Header{})
		require.NoError(t, err)
	}

	page, info, err := h.svc.ListReceipts(ctx, paymentdomain.ListReceiptsRequest{Email: buyer, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, info.HasMore)
	assert.Equal(t, "pay_c", page[0].ExternalPaymentID)

	rest, info, err := h.svc.ListReceipts(ctx, paymentdomain.ListReceiptsRequest{Email: buyer, PageSize: 2, PageToken: info.NextPageToken})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.False(t, info.HasMore)
	assert.Equal(t, "pay_a", rest[0].ExternalPaymentID)

	got, err := h.svc.GetReceipt(ctx, page[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Quantity)

	_, err = h.svc.GetReceipt(ctx, snowflake.ID(42))
	assert.ErrorIs(t, err, paymentdomain.ErrReceiptNotFound)
}
