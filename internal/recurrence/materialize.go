package recurrence

import "routine-planner/internal/model"

// Occurrence is one date a rule fires on, with the content instances should carry.
type Occurrence struct {
	Date    model.Date
	Content model.Content
}

// Materialize returns the occurrences of rule inside [from, to], both inclusive,
// in ascending date order. Inactive rules and empty windows produce nothing.
func Materialize(rule model.RecurrenceRule, from, to model.Date) []Occurrence {
	if !rule.IsActive || from.After(to) || rule.StartDate.IsZero() {
		return nil
	}

	start := model.MaxDate(from, rule.StartDate)
	end := to
	if rule.EndDate != nil && !rule.EndDate.IsZero() {
		end = model.MinDate(end, *rule.EndDate)
	}
	if start.After(end) {
		return nil
	}

	content := rule.Snapshot()
	var dates []model.Date

	switch rule.RecurrenceType {
	case model.RecurrenceOnce:
		// start is already clamped to the window and the end date.
		if start == rule.StartDate {
			dates = append(dates, rule.StartDate)
		}
	case model.RecurrenceDaily:
		for d := start; !d.After(end); d = d.AddDays(1) {
			dates = append(dates, d)
		}
	case model.RecurrenceWeekly:
		for d := start; !d.After(end); d = d.AddDays(1) {
			if rule.HasDay(d.Weekday()) {
				dates = append(dates, d)
			}
		}
	case model.RecurrenceCustomInterval:
		dates = intervalDates(rule.StartDate, rule.IntervalDays, start, end)
	}

	if len(dates) == 0 {
		return nil
	}
	out := make([]Occurrence, 0, len(dates))
	for _, d := range dates {
		out = append(out, Occurrence{Date: d, Content: content})
	}
	return out
}

// intervalDates yields anchor + k*step (k >= 0) inside [start, end]. The first k is
// computed directly so long-running rules do not walk from their anchor.
func intervalDates(anchor model.Date, step int, start, end model.Date) []model.Date {
	if step <= 0 {
		return nil
	}
	k := 0
	if offset := start.DaysSince(anchor); offset > 0 {
		k = (offset + step - 1) / step
	}
	var dates []model.Date
	for d := anchor.AddDays(k * step); !d.After(end); d = d.AddDays(step) {
		dates = append(dates, d)
	}
	return dates
}

// Expand fans the occurrences of rule out to its targets and returns pending
// candidate instances. members is only consulted for group-targeted rules.
func Expand(rule model.RecurrenceRule, members []string, from, to model.Date) []model.TaskInstance {
	occurrences := Materialize(rule, from, to)
	targets := rule.Targets(members)
	if len(occurrences) == 0 || len(targets) == 0 {
		return nil
	}

	ruleID := rule.ID
	out := make([]model.TaskInstance, 0, len(occurrences)*len(targets))
	for _, occ := range occurrences {
		for _, assignee := range targets {
			out = append(out, model.TaskInstance{
				RecurrenceRuleID: &ruleID,
				AssigneeID:       assignee,
				Content:          occ.Content,
				ScheduledDate:    occ.Date,
				Status:           model.StatusPending,
			})
		}
	}
	return out
}

// Dates is a convenience for callers that only care about the calendar days.
func Dates(occurrences []Occurrence) []model.Date {
	out := make([]model.Date, len(occurrences))
	for i, o := range occurrences {
		out[i] = o.Date
	}
	return out
}
