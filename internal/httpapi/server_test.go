package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routine-planner/internal/metrics"
	"routine-planner/internal/model"
	"routine-planner/internal/repository"
	"routine-planner/internal/service"
	"routine-planner/internal/testutil"
)

var (
	coach   = model.Actor{ID: "coach-1", Role: model.RoleCoach}
	student = model.Actor{ID: "student-1", Role: model.RoleStudent}
	other   = model.Actor{ID: "student-2", Role: model.RoleStudent}
)

type fixture struct {
	server    *Server
	instances *repository.InstanceRepository
}

// Views decode responses without depending on the gorm column types.
type instanceView struct {
	ID               string       `json:"id"`
	RecurrenceRuleID *string      `json:"recurrence_rule_id"`
	AssigneeID       string       `json:"assignee_id"`
	Name             string       `json:"name"`
	DurationMinutes  int          `json:"duration_minutes"`
	ScheduledTime    *string      `json:"scheduled_time"`
	ScheduledDate    string       `json:"scheduled_date"`
	Status           model.Status `json:"status"`
	CompletedAt      *time.Time   `json:"completed_at"`
	IsCustomized     bool         `json:"is_customized"`
	CoachNote        string       `json:"coach_note"`
	StudentNote      string       `json:"student_note"`
}

type ruleView struct {
	ID       string `json:"id"`
	OwnerID  string `json:"owner_id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

type importView struct {
	Templates []struct {
		ID string `json:"id"`
	} `json:"templates"`
	Rules []ruleView `json:"rules"`
}

func setup(t *testing.T, opts Options) fixture {
	t.Helper()
	db := testutil.NewDB(t)
	clock := testutil.ClockAt("2024-03-10")
	svcClock := service.NewClock(clock.Now, time.UTC)
	m := metrics.New()

	rules := repository.NewRuleRepository(db)
	templates := repository.NewTemplateRepository(db)
	groups := repository.NewGroupRepository(db)
	instances := repository.NewInstanceRepository(db)

	reconciler := service.NewReconciler(rules, groups, instances, service.ReconcileOptions{HorizonDays: 6}, m, nil)
	sweeper := service.NewSweeper(instances, svcClock, m, nil)
	ruleSvc := service.NewRuleService(rules, templates, groups, reconciler, svcClock, nil)

	opts.Instances = service.NewInstanceService(instances, svcClock, m, nil)
	opts.Rules = ruleSvc
	opts.Plans = service.NewPlanService(ruleSvc)
	opts.Jobs = service.NewJobRunner(reconciler, sweeper, repository.NewJobRunRepository(db), svcClock, time.Minute, m, nil)
	opts.Metrics = m
	opts.DisableReqLogs = true

	return fixture{server: NewServer(opts), instances: instances}
}

func newRequest(method, path string, body any, actor *model.Actor) *http.Request {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if actor != nil {
		req.Header.Set(HeaderActorID, actor.ID)
		req.Header.Set(HeaderActorRole, string(actor.Role))
	}
	return req
}

func (f fixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f fixture) do(method, path string, body any, actor model.Actor) *httptest.ResponseRecorder {
	return f.serve(newRequest(method, path, body, &actor))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f fixture) instance(t *testing.T, assignee, day string) *model.TaskInstance {
	t.Helper()
	inst := &model.TaskInstance{
		AssigneeID:    assignee,
		ScheduledDate: model.MustParseDate(day),
		Content:       model.Content{Name: "Scales", DurationMinutes: 15},
	}
	require.NoError(t, f.instances.Create(context.Background(), inst))
	return inst
}

func TestHealthAndMetrics(t *testing.T) {
	f := setup(t, Options{})

	rec := f.serve(newRequest(http.MethodGet, "/health", nil, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = f.serve(newRequest(http.MethodPost, "/v1/jobs/sweep", nil, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.serve(newRequest(http.MethodGet, "/metrics", nil, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `planner_job_runs_total{job="sweep",success="true"} 1`)

	rec = f.serve(newRequest(http.MethodGet, "/nowhere", nil, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHeaderAuth(t *testing.T) {
	f := setup(t, Options{})

	rec := f.serve(newRequest(http.MethodGet, "/v1/instances/today", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/v1/instances/today", nil, model.Actor{ID: "x", Role: "admin"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/v1/instances/today", nil, student)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]instanceView](t, rec))
}

func TestTokenAuth(t *testing.T) {
	const secret = "test-secret"
	f := setup(t, Options{JWTSecret: secret})
	f.instance(t, "student-1", "2024-03-10")

	token, err := GenerateToken(secret, student, time.Hour)
	require.NoError(t, err)

	req := newRequest(http.MethodGet, "/v1/instances/today", nil, nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := f.serve(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]instanceView](t, rec), 1)

	forged, err := GenerateToken("other-secret", coach, time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken(secret, student, -time.Minute)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"headers only": "",
		"not bearer":   "Basic abc",
		"wrong key":    "Bearer " + forged,
		"expired":      "Bearer " + expired,
		"garbage":      "Bearer not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			req := newRequest(http.MethodGet, "/v1/instances/today", nil, &coach)
			if header != "" {
				req.Header.Set(echo.HeaderAuthorization, header)
			}
			assert.Equal(t, http.StatusUnauthorized, f.serve(req).Code)
		})
	}

	_, err = GenerateToken("", student, time.Hour)
	assert.Error(t, err)
	_, err = GenerateToken(secret, model.Actor{ID: "x", Role: "admin"}, time.Hour)
	assert.Error(t, err)
}

func TestRuleLifecycle(t *testing.T) {
	f := setup(t, Options{})

	rec := f.do(http.MethodPost, "/v1/rules", echo.Map{
		"assignee_id":      "student-1",
		"recurrence_type":  "weekly",
		"days_of_week":     []int{0, 1},
		"start_date":       "2024-03-01",
		"name":             "Scales",
		"duration_minutes": 15,
		"scheduled_time":   "07:30",
	}, coach)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rule := decode[ruleView](t, rec)
	assert.Equal(t, coach.ID, rule.OwnerID)
	assert.True(t, rule.IsActive)

	rec = f.do(http.MethodGet, "/v1/instances/today", nil, student)
	require.Equal(t, http.StatusOK, rec.Code)
	today := decode[[]instanceView](t, rec)
	require.Len(t, today, 1)
	require.NotNil(t, today[0].ScheduledTime)
	assert.Equal(t, "07:30:00", *today[0].ScheduledTime)

	rec = f.do(http.MethodGet, "/v1/instances/upcoming?days=3", nil, student)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]instanceView](t, rec), 1)

	rec = f.do(http.MethodGet, "/v1/rules/"+rule.ID, nil, other)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPut, "/v1/rules/"+rule.ID, echo.Map{
		"assignee_id":     "student-1",
		"recurrence_type": "daily",
		"start_date":      "2024-03-01",
		"name":            "Scales and arpeggios",
	}, coach)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Scales and arpeggios", decode[ruleView](t, rec).Name)

	rec = f.do(http.MethodGet, "/v1/instances?rule_id="+rule.ID, nil, coach)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]instanceView](t, rec), 7)

	rec = f.do(http.MethodDelete, "/v1/rules/"+rule.ID, nil, coach)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/v1/rules", nil, coach)
	require.Equal(t, http.StatusOK, rec.Code)
	rules := decode[[]ruleView](t, rec)
	require.Len(t, rules, 1)
	assert.False(t, rules[0].IsActive)
}

func TestRuleValidationErrors(t *testing.T) {
	f := setup(t, Options{})

	rec := f.do(http.MethodPost, "/v1/rules", echo.Map{
		"assignee_id":     "student-1",
		"recurrence_type": "hourly",
		"start_date":      "2024-03-01",
		"name":            "x",
	}, coach)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Contains(t, body["fields"], "recurrence_type")

	rec = f.do(http.MethodPost, "/v1/rules", echo.Map{
		"assignee_id":     "student-1",
		"recurrence_type": "weekly",
		"start_date":      "2024-03-01",
		"name":            "x",
	}, coach)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "days_of_week", decode[map[string]any](t, rec)["field"])

	rec = f.do(http.MethodPost, "/v1/rules", echo.Map{
		"assignee_id":     "student-1",
		"recurrence_type": "daily",
		"start_date":      "March 1st",
	}, coach)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/v1/rules", echo.Map{
		"assignee_id":     "student-1",
		"recurrence_type": "daily",
		"start_date":      "2024-03-01",
		"name":            "x",
	}, student)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/v1/rules", `{"recurrence_type":`, coach)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInstanceMutations(t *testing.T) {
	f := setup(t, Options{})
	inst := f.instance(t, "student-1", "2024-03-10")
	path := "/v1/instances/" + inst.ID

	rec := f.do(http.MethodPut, path+"/status", echo.Map{"status": "completed"}, other)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPut, path+"/status", echo.Map{"status": "completed"}, student)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[instanceView](t, rec)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	rec = f.do(http.MethodPut, path+"/status", echo.Map{"status": "missed"}, coach)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPut, path+"/status", echo.Map{"status": "done"}, student)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, path+"/toggle", echo.Map{"completed": false}, student)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusPending, decode[instanceView](t, rec).Status)

	rec = f.do(http.MethodPost, path+"/toggle", echo.Map{}, student)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, path+"/notes", echo.Map{"content": "all twelve keys"}, student)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "all twelve keys", decode[instanceView](t, rec).StudentNote)

	rec = f.do(http.MethodPost, path+"/notes", echo.Map{"content": "great"}, coach)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "great", decode[instanceView](t, rec).CoachNote)

	rec = f.do(http.MethodPatch, path, echo.Map{"duration_minutes": 30, "scheduled_time": "18:15"}, student)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[instanceView](t, rec)
	assert.True(t, got.IsCustomized)
	assert.Equal(t, 30, got.DurationMinutes)
	require.NotNil(t, got.ScheduledTime)
	assert.Equal(t, "18:15:00", *got.ScheduledTime)

	rec = f.do(http.MethodPatch, path, echo.Map{"scheduled_time": ""}, student)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[instanceView](t, rec).ScheduledTime)

	rec = f.do(http.MethodPatch, path, echo.Map{"scheduled_time": "late"}, student)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/v1/instances/nope", nil, coach)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMissedInstanceOverHTTP(t *testing.T) {
	f := setup(t, Options{})
	inst := f.instance(t, "student-1", "2024-03-09")

	rec := f.serve(newRequest(http.MethodPost, "/v1/jobs/sweep", nil, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[service.JobResult](t, rec)
	assert.True(t, res.Success)
	assert.EqualValues(t, 1, res.AffectedCount)

	rec = f.do(http.MethodGet, "/v1/instances/overdue", nil, student)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]instanceView](t, rec))

	path := "/v1/instances/" + inst.ID + "/status"
	rec = f.do(http.MethodPut, path, echo.Map{"status": "completed"}, student)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = f.do(http.MethodPut, path, echo.Map{"status": "completed"}, coach)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestManualInstancesAndStats(t *testing.T) {
	f := setup(t, Options{})
	body := echo.Map{"assignee_id": "student-1", "name": "Recital", "duration_minutes": 60, "scheduled_date": "2024-03-08"}

	rec := f.do(http.MethodPost, "/v1/instances", body, student)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/v1/instances", body, coach)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[instanceView](t, rec)
	assert.Nil(t, created.RecurrenceRuleID)
	assert.Equal(t, "2024-03-08", created.ScheduledDate)

	rec = f.do(http.MethodPost, "/v1/instances", echo.Map{"assignee_id": "student-1"}, coach)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPut, "/v1/instances/"+created.ID+"/status", echo.Map{"status": "completed"}, student)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/v1/stats?from=2024-03-01&to=2024-03-10", nil, student)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[service.CompletionStats](t, rec)
	assert.EqualValues(t, 1, stats.Completed)
	assert.InDelta(t, 1.0, stats.CompletionRate, 1e-9)

	rec = f.do(http.MethodGet, "/v1/stats?assignee_id=student-1", nil, other)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodGet, "/v1/stats?from=yesterday", nil, student)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/v1/instances?status=completed&from=2024-03-01", nil, student)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]instanceView](t, rec), 1)

	rec = f.do(http.MethodGet, "/v1/instances?status=lost", nil, student)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTemplatesAndGroups(t *testing.T) {
	f := setup(t, Options{})

	rec := f.do(http.MethodPost, "/v1/templates", echo.Map{"name": "Sight reading", "duration_minutes": 20}, coach)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tpl := decode[model.TaskTemplate](t, rec)

	rec = f.do(http.MethodPost, "/v1/groups", echo.Map{"name": "Strings", "members": []string{"student-1"}}, coach)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	group := decode[model.Group](t, rec)

	rec = f.do(http.MethodPost, "/v1/rules", echo.Map{
		"template_id":     tpl.ID,
		"group_id":        group.ID,
		"recurrence_type": "daily",
		"start_date":      "2024-03-10",
	}, coach)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, "/v1/groups/"+group.ID+"/members", echo.Map{"user_id": "student-2"}, coach)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[model.Group](t, rec).Members, 2)

	rec = f.do(http.MethodGet, "/v1/instances/today", nil, other)
	require.Equal(t, http.StatusOK, rec.Code)
	today := decode[[]instanceView](t, rec)
	require.Len(t, today, 1)
	assert.Equal(t, "Sight reading", today[0].Name)

	rec = f.do(http.MethodPut, "/v1/templates/"+tpl.ID, echo.Map{"name": "Sight reading II", "duration_minutes": 25}, coach)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/v1/instances/today", nil, other)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sight reading II", decode[[]instanceView](t, rec)[0].Name)

	rec = f.do(http.MethodDelete, "/v1/groups/"+group.ID+"/members/student-2", nil, coach)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/v1/templates", nil, coach)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.TaskTemplate](t, rec), 1)
}

func TestPlanImport(t *testing.T) {
	f := setup(t, Options{})
	doc := `
templates:
  - key: scales
    name: Scales
    time: "07:00"
rules:
  - template: scales
    assignee: student-1
    type: daily
    start: 2024-03-01
`
	rec := f.do(http.MethodPost, "/v1/plans", doc, coach)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[importView](t, rec)
	assert.Len(t, res.Templates, 1)
	require.Len(t, res.Rules, 1)

	rec = f.do(http.MethodGet, "/v1/instances?rule_id="+res.Rules[0].ID, nil, coach)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]instanceView](t, rec), 7)

	rec = f.do(http.MethodPost, "/v1/plans", "rules: [", coach)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/v1/plans", doc, student)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestJobsRequireCronSecret(t *testing.T) {
	f := setup(t, Options{CronSecret: "s3cret"})

	rec := f.serve(newRequest(http.MethodPost, "/v1/jobs/reconcile", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := newRequest(http.MethodPost, "/v1/jobs/reconcile", nil, nil)
	req.Header.Set(HeaderCronSecret, "s3cret")
	rec = f.serve(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `true`, string(mustField(t, rec, "success")))

	req = newRequest(http.MethodGet, "/v1/jobs/runs?job=reconcile", nil, nil)
	req.Header.Set(HeaderCronSecret, "s3cret")
	rec = f.serve(req)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]model.JobRun](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, model.JobReconcile, runs[0].Job)

	req = newRequest(http.MethodGet, "/v1/jobs/runs?job=backup", nil, nil)
	req.Header.Set(HeaderCronSecret, "s3cret")
	assert.Equal(t, http.StatusBadRequest, f.serve(req).Code)
}

func mustField(t *testing.T, rec *httptest.ResponseRecorder, key string) json.RawMessage {
	t.Helper()
	body := decode[map[string]json.RawMessage](t, rec)
	v, ok := body[key]
	require.True(t, ok, "missing %q in %s", key, rec.Body.String())
	return v
}
