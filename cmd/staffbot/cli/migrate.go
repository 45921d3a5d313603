package cli

import (
	"github.com/spf13/cobra"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/app"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/platform/db"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			logger := app.NewLogger(cfg)
			pool, err := db.New(cmd.Context(), cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := db.Migrate(pool); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
}
