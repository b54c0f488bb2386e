package pdf

import (
	"github.com/restorehq/restore/internal/config"
	paymentdomain "github.com/restorehq/restore/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(func(cfg config.Config, log *zap.Logger) paymentdomain.ReceiptRenderer {
		return New(cfg, log)
	}),
)

// Provider renders customer documents with maroto.
type Provider struct {
	issuer string
	log    *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) *Provider {
	issuer := cfg.AppName
	if issuer == "" {
		issuer = "Restore"
	}
	return &Provider{issuer: issuer, log: log.Named("providers.pdf")}
}
