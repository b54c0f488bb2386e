package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/restorehq/restore/internal/clock"
	"github.com/restorehq/restore/internal/config"
	ingestdomain "github.com/restorehq/restore/internal/ingest/domain"
	ledgerdomain "github.com/restorehq/restore/internal/ledger/domain"
	"github.com/restorehq/restore/internal/objectstore"
	obscontext "github.com/restorehq/restore/internal/observability/context"
	"github.com/restorehq/restore/internal/observability/logger"
	obsmetrics "github.com/restorehq/restore/internal/observability/metrics"
	"github.com/restorehq/restore/internal/partition"
	"github.com/restorehq/restore/internal/providers/ml"
	"github.com/restorehq/restore/internal/tabular"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultFanOutTimeout = 2 * time.Minute

type Params struct {
	fx.In

	Config     config.Config
	Pricing    *config.PricingHolder
	Log        *zap.Logger
	Ledger     ledgerdomain.Service
	Store      objectstore.Store
	ML         ml.Client
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	pricing     *config.PricingHolder
	ledger      ledgerdomain.Service
	store       objectstore.Store
	ml          ml.Client
	partitioner *partition.Partitioner
	tracer      trace.Tracer
	obsMetrics  *obsmetrics.Metrics

	concurrency   int
	fanOutTimeout time.Duration
}

func NewService(p Params) ingestdomain.Service {
	concurrency := p.Config.Ingest.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	timeout := p.Config.Ingest.FanOutTimeout
	if timeout <= 0 {
		timeout = defaultFanOutTimeout
	}
	return &Service{
		log:           p.Log.Named("ingest.service"),
		pricing:       p.Pricing,
		ledger:        p.Ledger,
		store:         p.Store,
		ml:            p.ML,
		partitioner:   partition.New(p.Clock),
		tracer:        otel.Tracer("restore/ingest"),
		obsMetrics:    p.ObsMetrics,
		concurrency:   concurrency,
		fanOutTimeout: timeout,
	}
}

// Upload validates, parses and partitions the file, charges the upload fee,
// then stores, trains and predicts every partition. Nothing is written
// before the debit succeeds, and the debit is kept when later steps fail.
func (s *Service) Upload(ctx context.Context, req ingestdomain.UploadRequest) (ingestdomain.UploadResult, error) {
	customerID := ledgerdomain.NormalizeCustomerID(req.CustomerID)
	if !ledgerdomain.ValidCustomerID(customerID) {
		return ingestdomain.UploadResult{}, ingestdomain.ErrInvalidCustomer
	}
	kind, err := partition.ParseKind(string(req.Kind))
	if err != nil {
		return ingestdomain.UploadResult{}, err
	}
	if req.Body == nil || strings.TrimSpace(req.FileName) == "" {
		return ingestdomain.UploadResult{}, ingestdomain.ErrMissingFile
	}
	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	ctx = obscontext.WithCustomerID(ctx, customerID)
	log := logger.WithContext(ctx, s.log).With(
		zap.String("upload_id", requestID),
		zap.String("kind", string(kind)),
	)

	ctx, span := s.tracer.Start(ctx, "ingest.upload", trace.WithAttributes(
		attribute.String("kind", string(kind)),
	))
	defer span.End()

	table, err := tabular.Parse(req.FileName, req.ContentType, req.Body, partition.ParseOptions(kind))
	if err != nil {
		s.obsMetrics.RecordUpload(ctx, string(kind), "rejected")
		return ingestdomain.UploadResult{}, err
	}
	if err := partition.ValidateColumns(kind, table.Columns); err != nil {
		s.obsMetrics.RecordUpload(ctx, string(kind), "rejected")
		return ingestdomain.UploadResult{}, err
	}
	if len(table.Rows) == 0 {
		s.obsMetrics.RecordUpload(ctx, string(kind), "rejected")
		return ingestdomain.UploadResult{}, ingestdomain.ErrEmptyUpload
	}

	parts, err := s.partitioner.Split(customerID, kind, table)
	if err != nil {
		s.obsMetrics.RecordUpload(ctx, string(kind), "rejected")
		return ingestdomain.UploadResult{}, err
	}

	fee := s.pricing.Get().UploadFee(string(kind))
	debit, err := s.ledger.Debit(ctx, ledgerdomain.DebitRequest{
		CustomerID:     customerID,
		Amount:         fee,
		IdempotencyKey: "upload:" + requestID,
		Reason:         "upload:" + string(kind),
	})
	if err != nil {
		status := "failed"
		if errors.Is(err, ledgerdomain.ErrInsufficientCredits) || errors.Is(err, ledgerdomain.ErrAccountNotFound) {
			status = "insufficient_credits"
		}
		s.obsMetrics.RecordUpload(ctx, string(kind), status)
		log.Info("upload rejected by ledger", zap.Int64("fee", fee), zap.Error(err))
		return ingestdomain.UploadResult{}, err
	}

	outcomes := s.fanOut(ctx, customerID, parts)

	result := ingestdomain.UploadResult{
		UploadID:   requestID,
		CustomerID: customerID,
		Kind:       kind,
		Status:     ingestdomain.UploadCompleted,
		Rows:       len(table.Rows),
		Balance:    debit.Balance,
		Replayed:   debit.Replayed,
		Partitions: outcomes,
		Warnings:   table.Warnings,
	}
	if !debit.Replayed {
		result.CreditsCharged = fee
	}
	for _, outcome := range outcomes {
		if outcome.Status != ingestdomain.PartitionCompleted {
			result.Status = ingestdomain.UploadPartial
			break
		}
	}

	s.obsMetrics.RecordUpload(ctx, string(kind), string(result.Status))
	log.Info("upload processed",
		zap.String("status", string(result.Status)),
		zap.Int("rows", result.Rows),
		zap.Int("partitions", len(outcomes)),
		zap.Int("warnings", len(table.Warnings)),
		zap.Int64("balance", debit.Balance),
		zap.Bool("replayed", debit.Replayed),
		zap.String("username", req.Username),
	)
	return result, nil
}
