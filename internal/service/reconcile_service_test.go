package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routine-planner/internal/model"
	"routine-planner/internal/repository"
)

func TestReconcileAllIsIdempotent(t *testing.T) {
	e := newEnv(t, "2024-03-10", ReconcileOptions{})
	ctx := context.Background()
	rule := e.storeRule(t, dailyRule("student-1", "2024-03-01"))

	first, err := e.reconciler.ReconcileAll(ctx, e.today())
	require.NoError(t, err)
	assert.Equal(t, 1, first.RulesProcessed)
	assert.Equal(t, 15, first.Created)
	assert.EqualValues(t, 15, first.Affected())

	rows := e.forRule(t, rule.ID)
	require.Len(t, rows, 15)
	assert.Equal(t, "2024-03-10", rows[0].ScheduledDate.String())
	assert.Equal(t, "2024-03-24", rows[14].ScheduledDate.String())
	assert.Equal(t, ReconcilerActor, rows[0].UpdatedBy)

	_, err = e.instances.SetStatus(ctx, rows[0].ID, model.StatusCompleted, student, e.clock.Now())
	require.NoError(t, err)

	second, err := e.reconciler.ReconcileAll(ctx, e.today())
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Equal(t, 15, second.Unchanged)
	assert.Zero(t, second.Affected())

	again := e.forRule(t, rule.ID)
	require.Len(t, again, 15)
	assert.Equal(t, model.StatusCompleted, again[0].Status)
	assert.Equal(t, rows[1].ID, again[1].ID)
}

func TestReconcileRollsHorizonForward(t *testing.T) {
	e := newEnv(t, "2024-03-10", ReconcileOptions{HorizonDays: 3})
	ctx := context.Background()
	rule := e.storeRule(t, dailyRule("student-1", "2024-03-01"))

	_, err := e.reconciler.ReconcileAll(ctx, e.today())
	require.NoError(t, err)
	require.Len(t, e.forRule(t, rule.ID), 4)

	e.clock.AdvanceDays(2)
	report, err := e.reconciler.ReconcileAll(ctx, e.today())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 2, report.Unchanged)
	assert.Len(t, e.forRule(t, rule.ID), 6)
}

func TestReconcileWeeklyPattern(t *testing.T) {
	e := newEnv(t, "2024-03-10", ReconcileOptions{})
	rule := dailyRule("student-1", "2024-03-01")
	rule.RecurrenceType = model.RecurrenceWeekly
	rule.DaysOfWeek = []int{1, 3, 5}
	e.storeRule(t, rule)

	_, err := e.reconciler.ReconcileRule(context.Background(), rule.ID, e.today())
	require.NoError(t, err)

	var days []string
	for _, inst := range e.forRule(t, rule.ID) {
		days = append(days, inst.ScheduledDate.String())
	}
	assert.Equal(t, []string{
		"2024-03-11", "2024-03-13", "2024-03-15",
		"2024-03-18", "2024-03-20", "2024-03-22",
	}, days)
}

func TestReconcileKeepsCustomizedInstances(t *testing.T) {
	e := newEnv(t, "2024-03-10", ReconcileOptions{})
	ctx := context.Background()

	tpl, err := e.ruleSvc.CreateTemplate(ctx, coach, &model.TaskTemplate{Content: model.Content{Name: "Stretch", DurationMinutes: 10}})
	require.NoError(t, err)
	rule := dailyRule("student-1", "2024-03-10")
	rule.TemplateID = &tpl.ID
	rule.Name = ""
	stored, err := e.ruleSvc.CreateRule(ctx, coach, rule)
	require.NoError(t, err)

	rows := e.forRule(t, stored.ID)
	require.Len(t, rows, 15)
	assert.Equal(t, "Stretch", rows[0].Name)

	name := "Stretch, lighter"
	_, err = e.instSvc.Customize(ctx, coach, rows[2].ID, ContentPatch{Name: &name})
	require.NoError(t, err)

	_, err = e.ruleSvc.UpdateTemplate(ctx, coach, tpl.ID, model.Content{Name: "Mobility", DurationMinutes: 15})
	require.NoError(t, err)

	rows = e.forRule(t, stored.ID)
	for i, inst := range rows {
		if i == 2 {
			assert.Equal(t, name, inst.Name)
			assert.Equal(t, 10, inst.DurationMinutes)
			assert.True(t, inst.IsCustomized)
			continue
		}
		assert.Equal(t, "Mobility", inst.Name, inst.ScheduledDate.String())
		assert.Equal(t, 15, inst.DurationMinutes)
	}
}

func TestReconcilePrunePolicy(t *testing.T) {
	tests := []struct {
		policy    StalePolicy
		wantRows  int
		wantPrune int64
	}{
		{StaleKeep, 15, 0},
		// Mondays 11 and 18 plus the completed Tuesday survive.
		{StalePrune, 3, 12},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			e := newEnv(t, "2024-03-10", ReconcileOptions{StalePolicy: tt.policy})
			ctx := context.Background()
			rule := e.storeRule(t, dailyRule("student-1", "2024-03-01"))

			_, err := e.reconciler.ReconcileRule(ctx, rule.ID, e.today())
			require.NoError(t, err)
			rows := e.forRule(t, rule.ID)
			require.Len(t, rows, 15)
			_, err = e.instances.SetStatus(ctx, rows[2].ID, model.StatusCompleted, student, e.clock.Now())
			require.NoError(t, err)

			rule.RecurrenceType = model.RecurrenceWeekly
			rule.DaysOfWeek = []int{1}
			require.NoError(t, e.rules.Save(ctx, rule))

			report, err := e.reconciler.ReconcileRule(ctx, rule.ID, e.today())
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrune, report.Pruned)
			assert.Len(t, e.forRule(t, rule.ID), tt.wantRows)
		})
	}
}

func TestReconcileGroupFanOut(t *testing.T) {
	e := newEnv(t, "2024-03-10", ReconcileOptions{HorizonDays: 6})
	ctx := context.Background()

	group, err := e.ruleSvc.CreateGroup(ctx, coach, "Morning crew", []string{"student-1", "student-2"})
	require.NoError(t, err)
	rule := dailyRule("", "2024-03-10")
	rule.AssigneeID = nil
	rule.GroupID = &group.ID
	stored, err := e.ruleSvc.CreateRule(ctx, coach, rule)
	require.NoError(t, err)

	assert.Len(t, e.forRule(t, stored.ID), 14)
	assert.Len(t, e.list(t, repository.InstanceFilter{AssigneeID: "student-2"}), 7)

	_, err = e.ruleSvc.AddGroupMember(ctx, coach, group.ID, "student-3")
	require.NoError(t, err)
	assert.Len(t, e.list(t, repository.InstanceFilter{AssigneeID: "student-3"}), 7)
	assert.Len(t, e.forRule(t, stored.ID), 21)
}

func TestReconcileIsolatesFailingRules(t *testing.T) {
	e := newEnv(t, "2024-03-10", ReconcileOptions{})
	ctx := context.Background()

	broken := dailyRule("student-1", "2024-03-01")
	broken.RecurrenceType = model.RecurrenceWeekly
	e.storeRule(t, broken)
	good := e.storeRule(t, dailyRule("student-2", "2024-03-01"))

	report, err := e.reconciler.ReconcileAll(ctx, e.today())
	require.NoError(t, err)
	assert.Equal(t, 2, report.RulesProcessed)
	assert.Equal(t, 1, report.RulesFailed)
	assert.Equal(t, 15, report.Created)
	assert.Len(t, e.forRule(t, good.ID), 15)
	assert.Empty(t, e.forRule(t, broken.ID))

	_, err = e.reconciler.ReconcileRule(ctx, broken.ID, e.today())
	assert.Error(t, err)
}

func TestReconcileSkipsInactiveRules(t *testing.T) {
	e := newEnv(t, "2024-03-10", ReconcileOptions{})
	ctx := context.Background()
	rule := e.storeRule(t, dailyRule("student-1", "2024-03-01"))
	require.NoError(t, e.rules.Deactivate(ctx, rule.ID, e.clock.Now()))

	report, err := e.reconciler.ReconcileRule(ctx, rule.ID, e.today())
	require.NoError(t, err)
	assert.Zero(t, report.Created)
	assert.Empty(t, e.forRule(t, rule.ID))

	_, err = e.reconciler.ReconcileRule(ctx, "missing", e.today())
	assert.True(t, model.IsNotFound(err))
}

func TestReconcileRespectsRuleBounds(t *testing.T) {
	e := newEnv(t, "2024-03-10", ReconcileOptions{})
	rule := dailyRule("student-1", "2024-03-12")
	end := model.MustParseDate("2024-03-14")
	rule.EndDate = &end
	e.storeRule(t, rule)

	_, err := e.reconciler.ReconcileAll(context.Background(), e.today())
	require.NoError(t, err)
	rows := e.forRule(t, rule.ID)
	require.Len(t, rows, 3)
	assert.Equal(t, "2024-03-12", rows[0].ScheduledDate.String())
	assert.Equal(t, "2024-03-14", rows[2].ScheduledDate.String())
}

func TestWindow(t *testing.T) {
	r := NewReconciler(nil, nil, nil, ReconcileOptions{HorizonDays: 7, StalePolicy: "bogus"}, nil, nil)
	from, to := r.Window(model.MustParseDate("2024-02-27"))
	assert.Equal(t, "2024-02-27", from.String())
	assert.Equal(t, "2024-03-05", to.String())
	assert.Equal(t, StaleKeep, r.opts.StalePolicy)

	def := NewReconciler(nil, nil, nil, ReconcileOptions{}, nil, nil)
	_, to = def.Window(model.MustParseDate("2024-03-10"))
	assert.Equal(t, "2024-03-24", to.String())
}
