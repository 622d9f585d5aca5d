package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"routine-planner/internal/model"
)

// SweeperActor is written to updated_by for rows the missed-task sweep touches.
const SweeperActor = "system:sweeper"

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// UpsertOutcome tells the reconciler what an upsert did to the stored row.
type UpsertOutcome string

const (
	OutcomeCreated   UpsertOutcome = "created"
	OutcomeRefreshed UpsertOutcome = "refreshed"
	OutcomeUnchanged UpsertOutcome = "unchanged"
	OutcomePreserved UpsertOutcome = "preserved"
)

// InstanceFilter narrows List. Zero values mean "no constraint".
type InstanceFilter struct {
	AssigneeID string
	RuleID     string
	From       *model.Date
	To         *model.Date
	Status     model.Status
	Limit      int
	Offset     int
}

// StatusCounts is a per-status tally used for completion analytics.
type StatusCounts struct {
	Pending   int64 `json:"pending"`
	Completed int64 `json:"completed"`
	Missed    int64 `json:"missed"`
}

// InstanceRepository persists task instances.
type InstanceRepository struct {
	db *gorm.DB
}

func NewInstanceRepository(db *gorm.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

var contentColumns = []string{"name", "description", "duration_minutes", "scheduled_time", "updated_at", "updated_by"}

// Upsert stores a materialized candidate keyed on (rule, assignee, date). New rows are
// inserted as given; existing rows only get their content refreshed, and only while
// they are not customized. Status, completion and notes of existing rows are never written.
func (r *InstanceRepository) Upsert(ctx context.Context, candidate *model.TaskInstance) (UpsertOutcome, error) {
	if candidate.RecurrenceRuleID == nil {
		return "", errors.New("upsert instance: candidate has no recurrence rule")
	}
	db := r.db.WithContext(ctx)

	var existing model.TaskInstance
	err := db.Where("recurrence_rule_id = ? AND assignee_id = ? AND scheduled_date = ?",
		*candidate.RecurrenceRuleID, candidate.AssigneeID, candidate.ScheduledDate).
		Take(&existing).Error
	outcome := OutcomeCreated
	switch {
	case err == nil:
		if existing.IsCustomized {
			return OutcomePreserved, nil
		}
		if existing.Content.Equal(candidate.Content) {
			return OutcomeUnchanged, nil
		}
		outcome = OutcomeRefreshed
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return "", storeErr("lookup instance", "task instance", "", err)
	}

	row := *candidate
	row.ID = ""
	row.Status = model.StatusPending
	row.CompletedAt = nil
	row.IsCustomized = false

	// A concurrent writer may have inserted or customized the row since the lookup;
	// the conflict clause keeps the write idempotent and the WHERE keeps edits safe.
	res := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "recurrence_rule_id"}, {Name: "assignee_id"}, {Name: "scheduled_date"}},
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Table: "task_instances", Name: "is_customized"}, Value: false},
		}},
		DoUpdates: clause.AssignmentColumns(contentColumns),
	}).Create(&row)
	if res.Error != nil {
		return "", storeErr("upsert instance", "task instance", "", res.Error)
	}
	if res.RowsAffected == 0 {
		return OutcomePreserved, nil
	}
	if outcome == OutcomeCreated {
		*candidate = row
	}
	return outcome, nil
}

// Create inserts a manual instance that no rule generated.
func (r *InstanceRepository) Create(ctx context.Context, inst *model.TaskInstance) error {
	if inst.Status == "" {
		inst.Status = model.StatusPending
	}
	if err := r.db.WithContext(ctx).Create(inst).Error; err != nil {
		return storeErr("create instance", "task instance", inst.ID, err)
	}
	return nil
}

func (r *InstanceRepository) Get(ctx context.Context, id string) (*model.TaskInstance, error) {
	var inst model.TaskInstance
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&inst).Error; err != nil {
		return nil, storeErr("get instance", "task instance", id, err)
	}
	return &inst, nil
}

// List returns instances ordered by date, untimed first, then time of day.
func (r *InstanceRepository) List(ctx context.Context, f InstanceFilter) ([]model.TaskInstance, error) {
	limit := f.Limit
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	var out []model.TaskInstance
	err := r.filtered(ctx, f).
		Order("scheduled_date ASC").
		Order("scheduled_time IS NOT NULL").
		Order("scheduled_time ASC").
		Order("id ASC").
		Limit(limit).
		Offset(f.Offset).
		Find(&out).Error
	if err != nil {
		return nil, storeErr("list instances", "task instance", "", err)
	}
	return out, nil
}

// CountByStatus tallies instances matching f, ignoring paging.
func (r *InstanceRepository) CountByStatus(ctx context.Context, f InstanceFilter) (StatusCounts, error) {
	f.Status = ""
	var rows []struct {
		Status model.Status
		Total  int64
	}
	err := r.filtered(ctx, f).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return StatusCounts{}, storeErr("count instances", "task instance", "", err)
	}

	var counts StatusCounts
	for _, row := range rows {
		switch row.Status {
		case model.StatusPending:
			counts.Pending = row.Total
		case model.StatusCompleted:
			counts.Completed = row.Total
		case model.StatusMissed:
			counts.Missed = row.Total
		}
	}
	return counts, nil
}

func (r *InstanceRepository) filtered(ctx context.Context, f InstanceFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&model.TaskInstance{})
	if f.AssigneeID != "" {
		q = q.Where("assignee_id = ?", f.AssigneeID)
	}
	if f.RuleID != "" {
		q = q.Where("recurrence_rule_id = ?", f.RuleID)
	}
	if f.From != nil {
		q = q.Where("scheduled_date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("scheduled_date <= ?", *f.To)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	return q
}

// SetStatus applies a user-driven status change. The write only lands if the
// row still has the status the transition was checked against.
func (r *InstanceRepository) SetStatus(ctx context.Context, id string, status model.Status, actor model.Actor, now time.Time) (*model.TaskInstance, error) {
	inst, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := model.CheckTransition(inst.Status, status, actor.Role); err != nil {
		return nil, err
	}
	if inst.Status == status {
		return inst, nil
	}
	return r.setStatusFrom(ctx, id, inst.Status, status, actor, now)
}

// setStatusFrom moves the row from one status to another. If a concurrent
// writer (usually the sweeper) changed it first, the move is rejected.
func (r *InstanceRepository) setStatusFrom(ctx context.Context, id string, from, to model.Status, actor model.Actor, now time.Time) (*model.TaskInstance, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": now,
		"updated_by": actor.ID,
	}
	if to == model.StatusCompleted {
		completedAt := now
		updates["completed_at"] = &completedAt
	} else {
		updates["completed_at"] = nil
	}
	res := r.db.WithContext(ctx).Model(&model.TaskInstance{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return nil, storeErr("set status", "task instance", id, res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &model.InvalidTransitionError{From: current.Status, To: to, Role: actor.Role}
	}
	return r.Get(ctx, id)
}

// AttachNote writes the coach or student note; allowed in every status.
func (r *InstanceRepository) AttachNote(ctx context.Context, id string, role model.Role, content string, actor model.Actor, now time.Time) (*model.TaskInstance, error) {
	column := "student_note"
	if role == model.RoleCoach {
		column = "coach_note"
	}
	if err := r.update(ctx, id, map[string]any{column: content, "updated_at": now, "updated_by": actor.ID}); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Customize overwrites the content of one instance and marks it customized so
// reconciliation leaves it alone from then on.
func (r *InstanceRepository) Customize(ctx context.Context, id string, content model.Content, actor model.Actor, now time.Time) (*model.TaskInstance, error) {
	updates := map[string]any{
		"name":             content.Name,
		"description":      content.Description,
		"duration_minutes": content.DurationMinutes,
		"scheduled_time":   content.ScheduledTime,
		"is_customized":    true,
		"updated_at":       now,
		"updated_by":       actor.ID,
	}
	if err := r.update(ctx, id, updates); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *InstanceRepository) update(ctx context.Context, id string, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&model.TaskInstance{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return storeErr("update instance", "task instance", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return &model.NotFoundError{Kind: "task instance", ID: id}
	}
	return nil
}

// SweepMissed turns every pending instance dated before today into missed with a
// single UPDATE, so a run either applies completely or not at all.
func (r *InstanceRepository) SweepMissed(ctx context.Context, today model.Date, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.TaskInstance{}).
		Where("status = ? AND scheduled_date < ?", model.StatusPending, today).
		Updates(map[string]any{
			"status":     model.StatusMissed,
			"updated_at": now,
			"updated_by": SweeperActor,
		})
	if res.Error != nil {
		return 0, storeErr("sweep missed", "task instance", "", res.Error)
	}
	return res.RowsAffected, nil
}

// PruneStale deletes pending, non-customized instances of a rule inside [from, to]
// whose date is no longer in keep. Completed, missed and customized rows survive.
func (r *InstanceRepository) PruneStale(ctx context.Context, ruleID string, keep []model.Date, from, to model.Date) (int64, error) {
	q := r.db.WithContext(ctx).
		Where("recurrence_rule_id = ? AND status = ? AND is_customized = ?", ruleID, model.StatusPending, false).
		Where("scheduled_date >= ? AND scheduled_date <= ?", from, to)
	if len(keep) > 0 {
		q = q.Where("scheduled_date NOT IN ?", keep)
	}
	res := q.Delete(&model.TaskInstance{})
	if res.Error != nil {
		return 0, storeErr("prune instances", "task instance", ruleID, res.Error)
	}
	return res.RowsAffected, nil
}
