package cli

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/and161185/passby/internal/repository/postgres"
	"github.com/and161185/passby/internal/sweeper"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "sweep [encounters|tokens]",
		Short:     "Run one expiry sweep pass and exit",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"encounters", "tokens"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Dev)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			db, err := postgres.New(ctx, cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			clock := clockwork.NewRealClock()
			jobs := []sweeper.Job{
				sweeper.NewEncounters(postgres.NewEncounterRepo(db), postgres.NewBookmarkRepo(db), clock, cfg.EncounterSweep(), logger),
				sweeper.NewTokens(postgres.NewTokenRepo(db), clock, cfg.Sweepers.Tokens),
			}
			for _, job := range selectJobs(jobs, args) {
				n, err := sweeper.Pass(ctx, job, clock, logger)
				if err != nil {
					return fmt.Errorf("sweep %s: %w", job.Name(), err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: deleted %d\n", job.Name(), n)
			}
			return nil
		},
	}
}

// selectJobs returns the job named in args, or all jobs.
func selectJobs(jobs []sweeper.Job, args []string) []sweeper.Job {
	if len(args) == 0 {
		return jobs
	}
	for _, j := range jobs {
		if j.Name() == args[0] {
			return []sweeper.Job{j}
		}
	}
	return nil
}
