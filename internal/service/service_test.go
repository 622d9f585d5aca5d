package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"routine-planner/internal/metrics"
	"routine-planner/internal/model"
	"routine-planner/internal/repository"
	"routine-planner/internal/testutil"
)

var (
	coach   = model.Actor{ID: "coach-1", Role: model.RoleCoach}
	coach2  = model.Actor{ID: "coach-2", Role: model.RoleCoach}
	student = model.Actor{ID: "student-1", Role: model.RoleStudent}
	other   = model.Actor{ID: "student-2", Role: model.RoleStudent}
)

type env struct {
	clock      *testutil.Clock
	metrics    *metrics.Metrics
	rules      *repository.RuleRepository
	templates  *repository.TemplateRepository
	groups     *repository.GroupRepository
	instances  *repository.InstanceRepository
	runs       *repository.JobRunRepository
	reconciler *Reconciler
	sweeper    *Sweeper
	ruleSvc    *RuleService
	instSvc    *InstanceService
	jobs       *JobRunner
}

// newEnv wires every service over a fresh database with the clock at noon UTC of day.
func newEnv(t *testing.T, day string, opts ReconcileOptions) *env {
	t.Helper()
	db := testutil.NewDB(t)
	e := &env{
		clock:     testutil.ClockAt(day),
		metrics:   metrics.New(),
		rules:     repository.NewRuleRepository(db),
		templates: repository.NewTemplateRepository(db),
		groups:    repository.NewGroupRepository(db),
		instances: repository.NewInstanceRepository(db),
		runs:      repository.NewJobRunRepository(db),
	}
	clock := NewClock(e.clock.Now, time.UTC)
	e.reconciler = NewReconciler(e.rules, e.groups, e.instances, opts, e.metrics, nil)
	e.sweeper = NewSweeper(e.instances, clock, e.metrics, nil)
	e.ruleSvc = NewRuleService(e.rules, e.templates, e.groups, e.reconciler, clock, nil)
	e.instSvc = NewInstanceService(e.instances, clock, e.metrics, nil)
	e.jobs = NewJobRunner(e.reconciler, e.sweeper, e.runs, clock, time.Minute, e.metrics, nil)
	return e
}

func (e *env) today() model.Date {
	return model.DateOf(e.clock.Now())
}

func dailyRule(assignee, start string) *model.RecurrenceRule {
	return &model.RecurrenceRule{
		OwnerID:        coach.ID,
		AssigneeID:     testutil.StrPtr(assignee),
		RecurrenceType: model.RecurrenceDaily,
		StartDate:      model.MustParseDate(start),
		IsActive:       true,
		Content:        model.Content{Name: "Read", DurationMinutes: 20},
	}
}

// storeRule saves a rule without going through RuleService, so nothing is reconciled yet.
func (e *env) storeRule(t *testing.T, rule *model.RecurrenceRule) *model.RecurrenceRule {
	t.Helper()
	require.NoError(t, e.rules.Create(context.Background(), rule))
	return rule
}

func (e *env) list(t *testing.T, f repository.InstanceFilter) []model.TaskInstance {
	t.Helper()
	out, err := e.instances.List(context.Background(), f)
	require.NoError(t, err)
	return out
}

func (e *env) forRule(t *testing.T, ruleID string) []model.TaskInstance {
	return e.list(t, repository.InstanceFilter{RuleID: ruleID})
}

// pendingInstance inserts a manual instance on the given day.
func (e *env) pendingInstance(t *testing.T, assignee, day string) *model.TaskInstance {
	t.Helper()
	inst := &model.TaskInstance{
		AssigneeID:    assignee,
		ScheduledDate: model.MustParseDate(day),
		Content:       model.Content{Name: "Practice " + day},
	}
	require.NoError(t, e.instances.Create(context.Background(), inst))
	return inst
}
