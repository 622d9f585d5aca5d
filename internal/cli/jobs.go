package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the database applies migrations.
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Migrated %s database\n", a.cfg.Database.Driver)
			return nil
		},
	}
}

func newReconcileCmd() *cobra.Command {
	var ruleID string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Materialize instances for active rules over the horizon",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := cmd.OutOrStdout()
			if ruleID != "" {
				report, err := a.reconciler.ReconcileRule(cmd.Context(), ruleID, a.clock.Today())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "Reconciled rule %s: created=%d refreshed=%d unchanged=%d preserved=%d pruned=%d\n",
					ruleID, report.Created, report.Refreshed, report.Unchanged, report.Preserved, report.Pruned)
				return nil
			}

			res := a.jobs.RunReconcile(cmd.Context())
			if !res.Success {
				return fmt.Errorf("reconcile failed: %s", res.Error)
			}
			_, _ = fmt.Fprintf(out, "Reconciled all rules: %d rows affected in %dms\n", res.AffectedCount, res.ExecutionTimeMs)
			return nil
		},
	}
	cmd.Flags().StringVar(&ruleID, "rule", "", "Reconcile only this rule")
	return cmd
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Mark pending instances dated before today as missed",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res := a.jobs.RunSweep(cmd.Context())
			if !res.Success {
				return fmt.Errorf("sweep failed: %s", res.Error)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Marked %d instances missed\n", res.AffectedCount)
			return nil
		},
	}
}
