package payment

import (
	"github.com/restorehq/restore/internal/payment/adapters/paymongo"
	paymentdomain "github.com/restorehq/restore/internal/payment/domain"
	"github.com/restorehq/restore/internal/payment/repository"
	paymentservice "github.com/restorehq/restore/internal/payment/service"
	"github.com/restorehq/restore/internal/ratelimit"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(p paymongo.Params) paymentdomain.Gateway { return paymongo.New(p) }),
	fx.Provide(func(l *ratelimit.SessionLocker) paymentdomain.SessionLocker { return l }),
	fx.Provide(paymentservice.NewService),
)
