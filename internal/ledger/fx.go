package ledger

import (
	"github.com/restorehq/restore/internal/ledger/repository"
	"github.com/restorehq/restore/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
