package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/and161185/passby/internal/migrate"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply, roll back or inspect database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dir := "up"
			if len(args) == 1 {
				dir = args[0]
			}
			ctx := cmd.Context()
			switch dir {
			case "up":
				err = migrate.Up(ctx, cfg.DB.DSN)
			case "down":
				err = migrate.Down(ctx, cfg.DB.DSN)
			case "status":
				err = migrate.Status(ctx, cfg.DB.DSN)
			}
			if err != nil {
				return fmt.Errorf("migrate %s: %w", dir, err)
			}
			return nil
		},
	}
}
