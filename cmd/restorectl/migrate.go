package main

import (
	"fmt"

	"github.com/restorehq/restore/internal/migration"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, closeFn, err := openEnv()
		if err != nil {
			return err
		}
		defer closeFn()

		if err := migration.Apply(e.db, e.cfg.DBType); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", e.cfg.DBType)
		return nil
	},
}
