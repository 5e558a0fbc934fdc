package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/sociallink/internal/observability"
	"github.com/xkilldash9x/sociallink/internal/store"
)

// Package-level hooks so tests can run the command without a database.
var (
	migrateUp   = store.Migrate
	migrateDown = store.Rollback
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <up|down>",
		Short:     "Apply or roll back the database schema",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			url := cfg.Database().URL
			if url == "" {
				return errors.New("database URL is not configured (hint: check SOCIALLINK_DATABASE_URL)")
			}

			switch args[0] {
			case "up":
				err = migrateUp(url)
			case "down":
				err = migrateDown(url)
			default:
				return fmt.Errorf("unknown direction %q (want up or down)", args[0])
			}
			if err != nil {
				return err
			}
			observability.GetLogger().Info("Migration finished.")
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: ok\n", args[0])
			return nil
		},
	}
}
