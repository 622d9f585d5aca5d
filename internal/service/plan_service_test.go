package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routine-planner/internal/model"
	"routine-planner/internal/plan"
	"routine-planner/internal/repository"
)

func TestImportPlan(t *testing.T) {
	e := newEnv(t, "2024-03-10", ReconcileOptions{})
	ctx := context.Background()
	require.NoError(t, e.groups.Create(ctx, &model.Group{ID: "group-1", OwnerID: coach.ID, Name: "Mornings"}))
	require.NoError(t, e.groups.AddMember(ctx, "group-1", "student-1"))
	require.NoError(t, e.groups.AddMember(ctx, "group-1", "student-2"))

	doc, err := plan.LoadFile("../plan/testdata/morning_routine.yaml")
	require.NoError(t, err)

	svc := NewPlanService(e.ruleSvc)
	_, err = svc.Import(ctx, student, doc)
	assert.True(t, model.IsForbidden(err))

	res, err := svc.Import(ctx, coach, doc)
	require.NoError(t, err)
	require.Len(t, res.Templates, 2)
	require.Len(t, res.Rules, 3)

	weekly := e.forRule(t, res.Rules[0].ID)
	require.Len(t, weekly, 6)
	assert.Equal(t, "Morning stretch", weekly[0].Name)
	assert.Equal(t, "07:30", weekly[0].TimeOfDay())

	assert.Len(t, e.forRule(t, res.Rules[1].ID), 30)

	var interval []string
	for _, inst := range e.forRule(t, res.Rules[2].ID) {
		interval = append(interval, inst.ScheduledDate.String())
	}
	assert.Equal(t, []string{"2024-03-11", "2024-03-14", "2024-03-17", "2024-03-20", "2024-03-23"}, interval)

	assert.Len(t, e.list(t, repository.InstanceFilter{AssigneeID: "student-2"}), 15)
}

func TestImportPlanValidatesBeforeWriting(t *testing.T) {
	e := newEnv(t, "2024-03-10", ReconcileOptions{})
	ctx := context.Background()

	doc, err := plan.Parse([]byte(`
templates:
  - key: scales
    name: Scales
rules:
  - template: scales
    assignee: student-1
    type: daily
    start: 2024-03-01
  - name: Broken
    assignee: student-1
    type: weekly
    start: 2024-03-01
`))
	require.NoError(t, err)

	_, err = NewPlanService(e.ruleSvc).Import(ctx, coach, doc)
	require.Error(t, err)
	assert.True(t, model.IsInvalidRule(err))
	assert.Contains(t, err.Error(), "rules[1]")

	templates, err := e.ruleSvc.ListTemplates(ctx, coach)
	require.NoError(t, err)
	assert.Empty(t, templates)
	rules, err := e.ruleSvc.ListRules(ctx, coach)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestImportPlanChecksGroupsBeforeWriting(t *testing.T) {
	e := newEnv(t, "2024-03-10", ReconcileOptions{})
	ctx := context.Background()

	doc, err := plan.Parse([]byte(`
rules:
  - name: Scales
    assignee: student-1
    type: daily
    start: 2024-03-01
  - name: Ensemble
    group: no-such-group
    type: daily
    start: 2024-03-01
`))
	require.NoError(t, err)

	_, err = NewPlanService(e.ruleSvc).Import(ctx, coach, doc)
	require.Error(t, err)
	assert.True(t, model.IsInvalidRule(err))
	assert.Contains(t, err.Error(), "rules[1]")
	assert.Contains(t, err.Error(), "no-such-group")

	rules, err := e.ruleSvc.ListRules(ctx, coach)
	require.NoError(t, err)
	assert.Empty(t, rules)
	assert.Empty(t, e.list(t, repository.InstanceFilter{}))
}
