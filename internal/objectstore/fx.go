package objectstore

import (
	"context"
	"fmt"

	"github.com/restorehq/restore/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("objectstore",
	fx.Provide(New),
)

// New opens the configured driver and wraps it with timeouts and retries.
func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Store, error) {
	var (
		driver Store
		closer func() error
	)

	switch cfg.Storage.Driver {
	case config.StorageDriverGCS:
		gcs, err := NewGCSStore(context.Background(), cfg.Storage.Bucket, cfg.Storage.CredentialsFile)
		if err != nil {
			return nil, err
		}
		driver, closer = gcs, gcs.Close
	case config.StorageDriverBolt, "":
		bolt, err := NewBoltStore(cfg.Storage.BoltPath)
		if err != nil {
			return nil, err
		}
		driver, closer = bolt, bolt.Close
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return closer()
		},
	})

	log.Named("objectstore").Info("object store ready",
		zap.String("driver", cfg.Storage.Driver),
		zap.String("bucket", cfg.Storage.Bucket),
	)
	return NewResilient(driver, cfg.Storage.Timeout, cfg.Storage.MaxRetries, log), nil
}
