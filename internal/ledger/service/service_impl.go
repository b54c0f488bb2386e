package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/restorehq/restore/internal/clock"
	ledgerdomain "github.com/restorehq/restore/internal/ledger/domain"
	obsmetrics "github.com/restorehq/restore/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       ledgerdomain.Repository
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       ledgerdomain.Repository
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

// Debit charges amount against the customer's balance in a single transaction.
// Accounts are never created here; a debit against a missing account fails with ErrAccountNotFound.
func (s *Service) Debit(ctx context.Context, req ledgerdomain.DebitRequest) (ledgerdomain.DebitResult, error) {
	customerID := ledgerdomain.NormalizeCustomerID(req.CustomerID)
	if customerID == "" {
		return ledgerdomain.DebitResult{}, ledgerdomain.ErrInvalidCustomer
	}
	if req.Amount <= 0 {
		return ledgerdomain.DebitResult{}, ledgerdomain.ErrInvalidAmount
	}

	debitID := s.genID.Generate()
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = "debit:" + debitID.String()
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "usage"
	}

	var result ledgerdomain.DebitResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		inserted, err := s.repo.InsertDebit(ctx, tx, &ledgerdomain.CreditDebit{
			ID:             debitID,
			Email:          customerID,
			Amount:         req.Amount,
			IdempotencyKey: key,
			Reason:         reason,
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			account, err := s.repo.FindAccount(ctx, tx, customerID)
			if err != nil {
				return err
			}
			result.Replayed = true
			if account != nil {
				result.Balance = account.Balance
			}
			return nil
		}

		ok, err := s.repo.DecrementIfSufficient(ctx, tx, customerID, req.Amount, now)
		if err != nil {
			return err
		}
		account, err := s.repo.FindAccount(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if !ok {
			if account == nil {
				return ledgerdomain.ErrAccountNotFound
			}
			return ledgerdomain.ErrInsufficientCredits
		}
		result.Balance = account.Balance
		return nil
	})
	if err != nil {
		s.obsMetrics.RecordLedgerDebit(ctx, debitStatus(err))
		if !isLedgerRejection(err) {
			s.log.Error("debit failed",
				zap.String("customer_id", customerID),
				zap.Int64("amount", req.Amount),
				zap.Error(err),
			)
		}
		return ledgerdomain.DebitResult{}, err
	}

	status := "applied"
	if result.Replayed {
		status = "replayed"
	}
	s.obsMetrics.RecordLedgerDebit(ctx, status)
	s.log.Info("credits debited",
		zap.String("customer_id", customerID),
		zap.Int64("amount", req.Amount),
		zap.Int64("balance", result.Balance),
		zap.Bool("replayed", result.Replayed),
	)
	return result, nil
}

// Credit adds amount exactly once per idempotency key, creating the account on first use.
func (s *Service) Credit(ctx context.Context, req ledgerdomain.CreditRequest) (ledgerdomain.CreditResult, error) {
	customerID := ledgerdomain.NormalizeCustomerID(req.CustomerID)
	if customerID == "" {
		return ledgerdomain.CreditResult{}, ledgerdomain.ErrInvalidCustomer
	}
	if req.Amount <= 0 {
		return ledgerdomain.CreditResult{}, ledgerdomain.ErrInvalidAmount
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return ledgerdomain.CreditResult{}, ledgerdomain.ErrInvalidIdempotencyKey
	}
	source := req.Source
	if source == "" {
		source = ledgerdomain.SourcePayment
	}

	var result ledgerdomain.CreditResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		inserted, err := s.repo.InsertGrant(ctx, tx, &ledgerdomain.CreditGrant{
			ID:             s.genID.Generate(),
			Email:          customerID,
			Amount:         req.Amount,
			IdempotencyKey: key,
			Source:         string(source),
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}

		if inserted {
			if err := s.repo.EnsureAccount(ctx, tx, customerID, now); err != nil {
				return err
			}
			if err := s.repo.Increment(ctx, tx, customerID, req.Amount, now); err != nil {
				return err
			}
		}

		account, err := s.repo.FindAccount(ctx, tx, customerID)
		if err != nil {
			return err
		}
		result.Applied = inserted
		if account != nil {
			result.Balance = account.Balance
		}
		return nil
	})
	if err != nil {
		s.obsMetrics.RecordLedgerCredit(ctx, "error")
		s.log.Error("credit failed",
			zap.String("customer_id", customerID),
			zap.String("idempotency_key", key),
			zap.Error(err),
		)
		return ledgerdomain.CreditResult{}, err
	}

	status := "applied"
	if !result.Applied {
		status = "replayed"
	}
	s.obsMetrics.RecordLedgerCredit(ctx, status)
	s.log.Info("credits granted",
		zap.String("customer_id", customerID),
		zap.Int64("amount", req.Amount),
		zap.String("source", string(source)),
		zap.Bool("applied", result.Applied),
		zap.Int64("balance", result.Balance),
	)
	return result, nil
}

// GetBalance reports zero for customers that never bought credits.
func (s *Service) GetBalance(ctx context.Context, customerID string) (int64, error) {
	customerID = ledgerdomain.NormalizeCustomerID(customerID)
	if customerID == "" {
		return 0, ledgerdomain.ErrInvalidCustomer
	}

	account, err := s.repo.FindAccount(ctx, s.db, customerID)
	if err != nil {
		return 0, err
	}
	if account == nil {
		return 0, nil
	}
	return account.Balance, nil
}

func isLedgerRejection(err error) bool {
	return errors.Is(err, ledgerdomain.ErrInsufficientCredits) || errors.Is(err, ledgerdomain.ErrAccountNotFound)
}

func debitStatus(err error) string {
	switch {
	case errors.Is(err, ledgerdomain.ErrInsufficientCredits):
		return "insufficient"
	case errors.Is(err, ledgerdomain.ErrAccountNotFound):
		return "not_found"
	default:
		return "error"
	}
}
