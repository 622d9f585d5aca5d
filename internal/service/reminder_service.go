package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"routine-planner/internal/model"
)

// ReminderService builds human-readable summaries for daily notifications.
type ReminderService struct {
	instances *InstanceService
}

func NewReminderService(instances *InstanceService) *ReminderService {
	return &ReminderService{instances: instances}
}

// DailySummary renders today's list, the overdue count and last week's completion
// rate for one user as Telegram HTML.
func (s *ReminderService) DailySummary(ctx context.Context, user model.User) (string, error) {
	actor := user.Actor()
	today := s.instances.Today()

	todays, err := s.instances.ListToday(ctx, actor, user.ID)
	if err != nil {
		return "", err
	}
	overdue, err := s.instances.ListOverdue(ctx, actor, user.ID)
	if err != nil {
		return "", err
	}
	stats, err := s.instances.CompletionStats(ctx, actor, user.ID, today.AddDays(-7), today.AddDays(-1))
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Daily routine</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s, %s\n\n", today.Weekday(), today))

	builder.WriteString("🔥 <b>Today</b>\n")
	if len(todays) == 0 {
		builder.WriteString("— nothing scheduled\n")
	} else {
		builder.WriteString(FormatInstanceList(todays))
	}

	if len(overdue) > 0 {
		builder.WriteString(fmt.Sprintf("\n⚠️ %d overdue, they turn into missed tonight. See /overdue\n", len(overdue)))
	}
	if resolved := stats.Completed + stats.Missed; resolved > 0 {
		builder.WriteString(fmt.Sprintf("\n📈 Last 7 days: %d of %d done (%.0f%%)\n", stats.Completed, resolved, stats.CompletionRate*100))
	}

	return strings.TrimSpace(builder.String()), nil
}

// FormatInstanceList numbers instances from 1 so chat commands can refer to them.
func FormatInstanceList(items []model.TaskInstance) string {
	var sb strings.Builder
	for i, inst := range items {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, FormatInstance(inst)))
	}
	return sb.String()
}

func FormatInstance(inst model.TaskInstance) string {
	var sb strings.Builder

	sb.WriteString(statusIcon(inst.Status))
	sb.WriteByte(' ')
	if at := inst.TimeOfDay(); at != "" {
		sb.WriteString(at + " ")
	}
	sb.WriteString(html.EscapeString(strings.TrimSpace(inst.Name)))
	if inst.DurationMinutes > 0 {
		sb.WriteString(fmt.Sprintf(" <i>(%d min)</i>", inst.DurationMinutes))
	}
	if desc := strings.TrimSpace(inst.Description); desc != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(desc)))
	}
	if note := strings.TrimSpace(inst.CoachNote); note != "" {
		sb.WriteString(fmt.Sprintf("\n   🧑‍🏫 %s", html.EscapeString(note)))
	}
	if note := strings.TrimSpace(inst.StudentNote); note != "" {
		sb.WriteString(fmt.Sprintf("\n   💬 %s", html.EscapeString(note)))
	}
	return sb.String()
}

func statusIcon(status model.Status) string {
	switch status {
	case model.StatusCompleted:
		return "✅"
	case model.StatusMissed:
		return "❌"
	default:
		return "⬜"
	}
}
