package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"routine-planner/internal/model"
)

func newRuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Inspect recurrence rules",
	}
	cmd.AddCommand(newRuleListCmd())
	return cmd
}

func newRuleListCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active rules, or the rules one user can see",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var rules []model.RecurrenceRule
			if owner == "" {
				rules, err = a.rules.ListAllActive(cmd.Context())
			} else {
				user, gerr := a.users.Get(cmd.Context(), owner)
				if gerr != nil {
					return gerr
				}
				rules, err = a.rules.ListRules(cmd.Context(), user.Actor())
			}
			if err != nil {
				return err
			}
			printRules(cmd.OutOrStdout(), rules)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "user", "", "Only rules visible to this user")
	return cmd
}

func printRules(w io.Writer, rules []model.RecurrenceRule) {
	if len(rules) == 0 {
		_, _ = fmt.Fprintln(w, "No rules")
		return
	}
	for _, r := range rules {
		target := "-"
		switch {
		case r.AssigneeID != nil:
			target = "user:" + *r.AssigneeID
		case r.GroupID != nil:
			target = "group:" + *r.GroupID
		}
		_, _ = fmt.Fprintf(w, "%s  %-15s  %-28s  %s  from %s%s\n",
			r.ID, r.RecurrenceType, target, describeSchedule(r), r.StartDate, untilSuffix(r.EndDate))
	}
}

func describeSchedule(r model.RecurrenceRule) string {
	switch r.RecurrenceType {
	case model.RecurrenceWeekly:
		days := make([]string, 0, len(r.DaysOfWeek))
		for _, d := range r.DaysOfWeek {
			days = append(days, weekdayShort(d))
		}
		return strings.Join(days, ",")
	case model.RecurrenceCustomInterval:
		return fmt.Sprintf("every %dd", r.IntervalDays)
	default:
		return string(r.RecurrenceType)
	}
}

func weekdayShort(d int) string {
	names := [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	if d < 0 || d >= len(names) {
		return fmt.Sprint(d)
	}
	return names[d]
}

func untilSuffix(end *model.Date) string {
	if end == nil {
		return ""
	}
	return " until " + end.String()
}
