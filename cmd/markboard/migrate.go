package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lksh/markboard/internal/infrastructure/persistence/postgres"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status]",
	Short:     "Manage the database schema",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "status"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Database.URL == "" {
			return errors.New("DATABASE_URL is required")
		}

		action := "up"
		if len(args) == 1 {
			action = args[0]
		}

		ctx := cmd.Context()
		db, err := postgres.Open(ctx, postgres.DefaultPoolConfig(cfg.Database.URL))
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		migrator := postgres.NewMigrator(db)

		switch action {
		case "up":
			n, err := migrator.Migrate(ctx)
			if err != nil {
				return err
			}
			log.Info("migrations applied", "count", n)

		case "down":
			version, err := migrator.Rollback(ctx)
			if err != nil {
				return err
			}
			if version == 0 {
				log.Info("nothing to roll back")
			} else {
				log.Info("migration rolled back", "version", version)
			}

		case "status":
			migrations, err := migrator.Status(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
			for _, m := range migrations {
				applied := "no"
				if m.IsApplied {
					applied = m.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%03d\t%s\t%s\n", m.Version, m.Name, applied)
			}
			return w.Flush()
		}

		return nil
	},
}
