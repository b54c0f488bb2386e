package main

import (
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/restorehq/restore/internal/config"
	"github.com/restorehq/restore/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// Version is set via ldflags during build.
	Version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "restorectl",
	Short:         "Operate a Restore deployment",
	Long:          `restorectl runs schema migrations and inspects or adjusts customer credits and receipts.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(creditsCmd)
	rootCmd.AddCommand(receiptsCmd)
}

type env struct {
	cfg config.Config
	db  *gorm.DB
	log *zap.Logger
}

// openEnv loads the same configuration the service uses and connects to its database.
func openEnv() (*env, func(), error) {
	cfg := config.Load()
	conn, err := db.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	log, err := zap.NewProduction()
	if err != nil {
		log = zap.NewNop()
	}
	closeFn := func() {
		_ = log.Sync()
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return &env{cfg: cfg, db: conn, log: log.Named("restorectl")}, closeFn, nil
}

func newNode() (*snowflake.Node, error) {
	// Node 1023 keeps CLI ids apart from the service's node.
	return snowflake.NewNode(1023)
}
