package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/restorehq/restore/internal/clock"
	"github.com/restorehq/restore/internal/config"
	ledgerdomain "github.com/restorehq/restore/internal/ledger/domain"
	"github.com/restorehq/restore/internal/observability/logger"
	obsmetrics "github.com/restorehq/restore/internal/observability/metrics"
	paymentdomain "github.com/restorehq/restore/internal/payment/domain"
	"github.com/restorehq/restore/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxCreditsPerPurchase = 100000

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Config     config.Config
	Pricing    *config.PricingHolder
	LedgerSvc  ledgerdomain.Service
	Repo       paymentdomain.Repository
	Gateway    paymentdomain.Gateway
	Renderer   paymentdomain.ReceiptRenderer `optional:"true"`
	Locker     paymentdomain.SessionLocker   `optional:"true"`
	Clock      clock.Clock                   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics           `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	cfg        config.PayMongoConfig
	pricing    *config.PricingHolder
	ledgerSvc  ledgerdomain.Service
	repo       paymentdomain.Repository
	gateway    paymentdomain.Gateway
	renderer   paymentdomain.ReceiptRenderer
	locker     paymentdomain.SessionLocker
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		cfg:        p.Config.PayMongo,
		pricing:    p.Pricing,
		ledgerSvc:  p.LedgerSvc,
		repo:       p.Repo,
		gateway:    p.Gateway,
		renderer:   p.Renderer,
		locker:     p.Locker,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

// BuyCredits opens a checkout session. Credits are granted only once the
// provider reports the session paid.
func (s *Service) BuyCredits(ctx context.Context, req paymentdomain.BuyCreditsRequest) (paymentdomain.BuyCreditsResult, error) {
	email := ledgerdomain.NormalizeCustomerID(req.Email)
	if !ledgerdomain.ValidCustomerID(email) {
		return paymentdomain.BuyCreditsResult{}, paymentdomain.ErrInvalidEmail
	}
	if req.Credits <= 0 || req.Credits > maxCreditsPerPurchase {
		return paymentdomain.BuyCreditsResult{}, paymentdomain.ErrInvalidCredits
	}

	pricing := s.pricing.Get()
	session, err := s.gateway.CreateCheckoutSession(ctx, paymentdomain.CheckoutRequest{
		Email:       email,
		Name:        strings.TrimSpace(req.Name),
		Phone:       strings.TrimSpace(req.Phone),
		Credits:     req.Credits,
		UnitAmount:  pricing.PricePerCredit,
		Currency:    pricing.Currency,
		Description: pricing.CreditDescription,
		SuccessURL:  s.cfg.SuccessURL,
		CancelURL:   s.cfg.CancelURL,
	})
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("create checkout session failed", zap.Error(err))
		return paymentdomain.BuyCreditsResult{}, err
	}

	s.obsMetrics.RecordPaymentEvent(ctx, s.gateway.Provider(), "checkout_created")
	return paymentdomain.BuyCreditsResult{
		SessionID:   session.ID,
		CheckoutURL: session.CheckoutURL,
		Amount:      req.Credits * pricing.PricePerCredit,
		Currency:    pricing.Currency,
		Credits:     req.Credits,
	}, nil
}

// Reconcile settles a webhook against the provider's authoritative session.
// Delivering the same event any number of times grants the credits once and
// writes one receipt.
func (s *Service) Reconcile(ctx context.Context, payload []byte, headers http.Header) (paymentdomain.ReconcileResult, error) {
	provider := s.gateway.Provider()
	if err := s.gateway.VerifyWebhook(payload, headers, s.clock.Now()); err != nil {
		s.obsMetrics.RecordPaymentEvent(ctx, provider, "invalid_signature")
		return paymentdomain.ReconcileResult{}, err
	}
	sessionID, err := s.gateway.SessionIDFromWebhook(payload)
	if err != nil {
		s.obsMetrics.RecordPaymentEvent(ctx, provider, "invalid_payload")
		return paymentdomain.ReconcileResult{}, err
	}

	log := logger.WithContext(ctx, s.log).With(zap.String("checkout_session_id", sessionID))

	if s.locker != nil {
		release, ok, err := s.locker.Lock(ctx, sessionID)
		switch {
		case err != nil:
			// Ledger and receipt keys keep an unlocked run correct.
			log.Warn("reconcile lock unavailable", zap.Error(err))
		case !ok:
			return paymentdomain.ReconcileResult{}, &paymentdomain.ReconciliationError{
				SessionID: sessionID,
				Retryable: true,
				Err:       paymentdomain.ErrReconcileBusy,
			}
		default:
			defer release(context.WithoutCancel(ctx))
		}
	}

	session, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		s.obsMetrics.RecordPaymentEvent(ctx, provider, "fetch_failed")
		log.Warn("fetch checkout session failed", zap.Error(err))
		return paymentdomain.ReconcileResult{}, &paymentdomain.ReconciliationError{SessionID: sessionID, Retryable: true, Err: err}
	}
	if !session.Paid() {
		s.obsMetrics.RecordPaymentEvent(ctx, provider, string(paymentdomain.ReconcileNotPaid))
		log.Info("checkout session not paid", zap.String("status", session.Status))
		return paymentdomain.ReconcileResult{Status: paymentdomain.ReconcileNotPaid, SessionID: sessionID}, nil
	}

	email := ledgerdomain.NormalizeCustomerID(session.Email)
	if email == "" {
		return paymentdomain.ReconcileResult{}, &paymentdomain.ReconciliationError{SessionID: sessionID, Err: paymentdomain.ErrInvalidEmail}
	}
	if session.Quantity <= 0 {
		return paymentdomain.ReconcileResult{}, &paymentdomain.ReconciliationError{SessionID: sessionID, Err: paymentdomain.ErrInvalidCredits}
	}
	payment := session.Payment
	if strings.TrimSpace(payment.ID) == "" {
		return paymentdomain.ReconcileResult{}, &paymentdomain.ReconciliationError{SessionID: sessionID, Err: paymentdomain.ErrInvalidSession}
	}

	credit, err := s.ledgerSvc.Credit(ctx, ledgerdomain.CreditRequest{
		CustomerID:     email,
		Amount:         session.Quantity,
		IdempotencyKey: provider + ":" + payment.ID,
		Source:         ledgerdomain.SourcePayment,
	})
	if err != nil {
		log.Error("credit grant failed", zap.Error(err))
		return paymentdomain.ReconcileResult{}, &paymentdomain.ReconciliationError{SessionID: sessionID, Retryable: true, Err: err}
	}

	if err := s.appendReceipt(ctx, email, session); err != nil {
		log.Error("append receipt failed", zap.Error(err))
		return paymentdomain.ReconcileResult{}, &paymentdomain.ReconciliationError{SessionID: sessionID, Retryable: true, Err: err}
	}

	if err := s.gateway.ExpireCheckoutSession(ctx, sessionID); err != nil {
		log.Warn("expire checkout session failed", zap.Error(err))
	}

	status := paymentdomain.ReconcileDuplicate
	if credit.Applied {
		status = paymentdomain.ReconcileCredited
	}

	s.obsMetrics.RecordPaymentEvent(ctx, provider, string(status))
	log.Info("checkout session reconciled",
		zap.String("status", string(status)),
		zap.String("payment_id", payment.ID),
		zap.Int64("credits", session.Quantity),
		zap.Int64("balance", credit.Balance),
	)
	return paymentdomain.ReconcileResult{
		Status:    status,
		SessionID: sessionID,
		Email:     email,
		Credits:   session.Quantity,
		Balance:   credit.Balance,
	}, nil
}

func (s *Service) appendReceipt(ctx context.Context, email string, session *paymentdomain.CheckoutSession) error {
	payment := session.Payment
	description := strings.TrimSpace(session.Description)
	if description == "" {
		description = s.pricing.Get().CreditDescription
	}
	currency := payment.Currency
	if currency == "" {
		currency = session.Currency
	}

	paidAt := payment.PaidAt
	if paidAt.IsZero() {
		paidAt = s.clock.Now()
	}

	receipt := &paymentdomain.Receipt{
		ID:                s.genID.Generate(),
		Email:             email,
		CheckoutSessionID: session.ID,
		ExternalPaymentID: payment.ID,
		Amount:            payment.Amount,
		Quantity:          session.Quantity,
		Currency:          currency,
		Description:       description,
		PaidAt:            paidAt.UTC(),
		CreatedAt:         s.clock.Now().UTC(),
	}
	if len(session.Raw) > 0 {
		receipt.Payload = datatypes.JSON(session.Raw)
	}

	_, err := s.repo.InsertReceipt(ctx, s.db, receipt)
	return err
}

func (s *Service) ListReceipts(ctx context.Context, req paymentdomain.ListReceiptsRequest) ([]paymentdomain.Receipt, pagination.PageInfo, error) {
	email := ledgerdomain.NormalizeCustomerID(req.Email)
	if email == "" {
		return nil, pagination.PageInfo{}, paymentdomain.ErrInvalidEmail
	}
	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	limit := page.Limit()
	items, err := s.repo.ListReceipts(ctx, s.db, email, cursor, limit+1)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}
	return pagination.Trim(items, limit, func(r paymentdomain.Receipt) pagination.Cursor {
		return pagination.Cursor{ID: int64(r.ID)}
	})
}

func (s *Service) GetReceipt(ctx context.Context, id snowflake.ID) (*paymentdomain.Receipt, error) {
	if id == 0 {
		return nil, paymentdomain.ErrInvalidReceipt
	}
	receipt, err := s.repo.FindReceipt(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, paymentdomain.ErrReceiptNotFound
	}
	return receipt, nil
}

func (s *Service) ReceiptPDF(ctx context.Context, id snowflake.ID) ([]byte, error) {
	receipt, err := s.GetReceipt(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.renderer == nil {
		return nil, errors.New("receipt renderer not configured")
	}
	return s.renderer.RenderReceipt(ctx, receipt)
}
