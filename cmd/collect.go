package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/focusops/focus-collector/internal/focus"
	"github.com/focusops/focus-collector/internal/id/uuid"
)

// newCollectCmd runs one collection run inline, without the API or worker
// pool. Useful for cron-style scheduling and for smoke-testing a query.
func newCollectCmd() *cobra.Command {
	var queryID string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Execute a single collection run for one query and exit.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			runID, err := uuid.New().NewID()
			if err != nil {
				return fmt.Errorf("mint run id: %w", err)
			}

			if err := a.Store.CreateRun(ctx, focus.QueryRun{
				ID:      runID,
				QueryID: queryID,
				Status:  focus.RunPending,
			}); err != nil {
				return fmt.Errorf("create run: %w", err)
			}

			a.Logger.Info("executing collection run",
				zap.String("run_id", runID),
				zap.String("query_id", queryID),
			)

			if err := a.Orchestrator.Execute(ctx, focus.RunJob{
				RunID:     runID,
				QueryID:   queryID,
				Attempt:   1,
				Submitted: time.Now().Unix(),
			}); err != nil {
				return fmt.Errorf("run %s failed: %w", runID, err)
			}

			run, err := a.Store.GetRun(ctx, runID)
			if err != nil {
				return fmt.Errorf("reload run: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s finished with status %s\n", run.ID, run.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&queryID, "query", "", "id of the query to collect")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}
