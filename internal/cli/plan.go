package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"routine-planner/internal/model"
	"routine-planner/internal/plan"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage YAML plan documents",
	}
	cmd.AddCommand(newPlanImportCmd())
	return cmd
}

func newPlanImportCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import templates and rules from a plan file on behalf of a coach",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := plan.LoadFile(args[0])
			if err != nil {
				return err
			}
			if owner == "" {
				owner = doc.Owner
			}
			if owner == "" {
				return fmt.Errorf("plan has no owner; pass --owner")
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			user, err := a.users.Get(cmd.Context(), owner)
			if err != nil {
				if model.IsNotFound(err) {
					return fmt.Errorf("unknown user %q; add it with `planner user add`", owner)
				}
				return err
			}
			res, err := a.plans.Import(cmd.Context(), user.Actor(), doc)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Imported %d templates and %d rules\n", len(res.Templates), len(res.Rules))
			for _, r := range res.Rules {
				_, _ = fmt.Fprintf(out, "  %s  %s\n", r.ID, r.RecurrenceType)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Coach user id that will own the imported rules (default: the plan's owner)")
	return cmd
}
