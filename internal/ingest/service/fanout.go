package service

import (
	"context"
	"errors"

	ingestdomain "github.com/restorehq/restore/internal/ingest/domain"
	"github.com/restorehq/restore/internal/objectstore"
	"github.com/restorehq/restore/internal/observability/logger"
	"github.com/restorehq/restore/internal/observability/tracing"
	"github.com/restorehq/restore/internal/partition"
	"github.com/restorehq/restore/internal/tabular"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// fanOut runs every partition's pipeline with bounded parallelism. It is
// detached from the caller's cancellation so a paid upload still completes
// after a disconnect, but bounded by the fan-out timeout.
func (s *Service) fanOut(ctx context.Context, customerID string, parts []partition.Partition) []ingestdomain.PartitionOutcome {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fanOutTimeout)
	defer cancel()

	outcomes := make([]ingestdomain.PartitionOutcome, len(parts))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range parts {
		g.Go(func() error {
			outcomes[i] = s.runPartition(ctx, customerID, parts[i])
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// runPartition stores, trains and then predicts one partition. A failed step
// ends this partition only.
func (s *Service) runPartition(ctx context.Context, customerID string, part partition.Partition) (out ingestdomain.PartitionOutcome) {
	out = ingestdomain.PartitionOutcome{
		Name:        part.Name,
		StoragePath: part.StoragePath,
		Rows:        len(part.Rows),
		Status:      ingestdomain.PartitionFailed,
	}

	ctx, span := s.tracer.Start(ctx, "ingest.partition", trace.WithAttributes(
		attribute.String("kind", string(part.Kind)),
		attribute.Int("rows", len(part.Rows)),
	))
	defer func() {
		s.obsMetrics.RecordPartition(ctx, string(part.Kind), string(out.Status))
		if out.Status == ingestdomain.PartitionFailed {
			span.SetStatus(codes.Error, string(out.FailedStep))
			logger.WithContext(ctx, s.log).Warn("partition failed",
				zap.String("partition", part.Name),
				zap.String("step", string(out.FailedStep)),
				zap.String("error", out.Error),
			)
		}
		span.End()
	}()

	fail := func(step ingestdomain.Step, err error) ingestdomain.PartitionOutcome {
		out.FailedStep = step
		out.Error = err.Error()
		return out
	}

	if err := ctx.Err(); err != nil {
		return fail(ingestdomain.StepStore, err)
	}

	data, err := tabular.EncodeCSV(part.Columns, part.Rows)
	if err != nil {
		return fail(ingestdomain.StepEncode, err)
	}
	fileName := part.Name + ".csv"

	if err := s.step(ctx, ingestdomain.StepStore, func(ctx context.Context) error {
		return s.store.Put(ctx, part.StoragePath, data, objectstore.ContentTypeCSV)
	}); err != nil {
		return fail(ingestdomain.StepStore, err)
	}
	out.Stored = true

	if err := s.step(ctx, ingestdomain.StepTrain, func(ctx context.Context) error {
		_, err := s.ml.TrainModel(ctx, customerID, string(part.Kind), fileName, data)
		return err
	}); err != nil {
		return fail(ingestdomain.StepTrain, err)
	}
	out.Trained = true

	switch part.Kind {
	case partition.KindDemand:
		if err := s.step(ctx, ingestdomain.StepPredict, func(ctx context.Context) error {
			_, err := s.ml.PredictDemand(ctx, customerID)
			return err
		}); err != nil {
			return fail(ingestdomain.StepPredict, err)
		}
	case partition.KindSales:
		var insight string
		if err := s.step(ctx, ingestdomain.StepInsights, func(ctx context.Context) error {
			var err error
			insight, err = s.ml.GenerateInsights(ctx, fileName, data)
			return err
		}); err != nil {
			return fail(ingestdomain.StepInsights, err)
		}
		if err := s.step(ctx, ingestdomain.StepStoreInsights, func(ctx context.Context) error {
			return s.storeInsight(ctx, customerID, insight)
		}); err != nil {
			return fail(ingestdomain.StepStoreInsights, err)
		}
	default:
		return fail(ingestdomain.StepPredict, errors.New("unknown partition kind"))
	}
	out.Predicted = true
	out.Status = ingestdomain.PartitionCompleted
	return out
}

func (s *Service) storeInsight(ctx context.Context, customerID, insight string) error {
	data, err := tabular.EncodeCSV(
		[]string{partition.InsightColumn},
		[]tabular.Record{{partition.InsightColumn: insight}},
	)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, partition.InsightPath(customerID), data, objectstore.ContentTypeCSV)
}

func (s *Service) step(ctx context.Context, step ingestdomain.Step, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "ingest."+string(step))
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, string(step))
		return err
	}
	return nil
}
