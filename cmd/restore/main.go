package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/restorehq/restore/internal/clock"
	"github.com/restorehq/restore/internal/config"
	"github.com/restorehq/restore/internal/dataset"
	"github.com/restorehq/restore/internal/ingest"
	"github.com/restorehq/restore/internal/ledger"
	"github.com/restorehq/restore/internal/migration"
	"github.com/restorehq/restore/internal/objectstore"
	"github.com/restorehq/restore/internal/observability"
	"github.com/restorehq/restore/internal/payment"
	"github.com/restorehq/restore/internal/providers/httpx"
	"github.com/restorehq/restore/internal/providers/ml"
	"github.com/restorehq/restore/internal/providers/pdf"
	"github.com/restorehq/restore/internal/ratelimit"
	"github.com/restorehq/restore/internal/server"
	"github.com/restorehq/restore/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// Collaborators
		objectstore.Module,
		httpx.Module,
		ml.Module,
		pdf.Module,
		ratelimit.Module,

		// Domains
		ledger.Module,
		ingest.Module,
		dataset.Module,
		payment.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
