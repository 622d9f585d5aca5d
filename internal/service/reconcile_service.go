package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"routine-planner/internal/metrics"
	"routine-planner/internal/model"
	"routine-planner/internal/recurrence"
	"routine-planner/internal/repository"
)

// StalePolicy decides what happens to future instances a rule no longer produces
// after its pattern changed.
type StalePolicy string

const (
	// StaleKeep leaves them; they are swept to missed once their date passes.
	StaleKeep StalePolicy = "keep"
	// StalePrune deletes pending, non-customized ones inside the horizon.
	StalePrune StalePolicy = "prune"
)

func (p StalePolicy) Valid() bool {
	return p == StaleKeep || p == StalePrune
}

const (
	DefaultHorizonDays = 14
	// ReconcilerActor is written to updated_by for rows reconciliation touches.
	ReconcilerActor = "system:reconciler"
)

type ReconcileOptions struct {
	HorizonDays int
	StalePolicy StalePolicy
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	RulesProcessed int           `json:"rules_processed"`
	RulesFailed    int           `json:"rules_failed"`
	Created        int           `json:"created"`
	Refreshed      int           `json:"refreshed"`
	Unchanged      int           `json:"unchanged"`
	Preserved      int           `json:"preserved"`
	Failed         int           `json:"failed"`
	Pruned         int64         `json:"pruned"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Affected counts rows the pass actually wrote.
func (r ReconcileReport) Affected() int64 {
	return int64(r.Created+r.Refreshed) + r.Pruned
}

func (r *ReconcileReport) add(o ReconcileReport) {
	r.RulesProcessed += o.RulesProcessed
	r.RulesFailed += o.RulesFailed
	r.Created += o.Created
	r.Refreshed += o.Refreshed
	r.Unchanged += o.Unchanged
	r.Preserved += o.Preserved
	r.Failed += o.Failed
	r.Pruned += o.Pruned
}

func (r *ReconcileReport) count(outcome repository.UpsertOutcome) {
	switch outcome {
	case repository.OutcomeCreated:
		r.Created++
	case repository.OutcomeRefreshed:
		r.Refreshed++
	case repository.OutcomeUnchanged:
		r.Unchanged++
	case repository.OutcomePreserved:
		r.Preserved++
	}
}

// Reconciler materializes active rules over a rolling horizon and upserts the
// result. Running it any number of times converges to the same rows.
type Reconciler struct {
	rules     *repository.RuleRepository
	groups    *repository.GroupRepository
	instances *repository.InstanceRepository
	opts      ReconcileOptions
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewReconciler(
	rules *repository.RuleRepository,
	groups *repository.GroupRepository,
	instances *repository.InstanceRepository,
	opts ReconcileOptions,
	m *metrics.Metrics,
	log *slog.Logger,
) *Reconciler {
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = DefaultHorizonDays
	}
	if !opts.StalePolicy.Valid() {
		opts.StalePolicy = StaleKeep
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		rules:     rules,
		groups:    groups,
		instances: instances,
		opts:      opts,
		metrics:   m,
		log:       log,
	}
}

// Window returns the inclusive date range a pass materializes for today.
func (r *Reconciler) Window(today model.Date) (model.Date, model.Date) {
	return today, today.AddDays(r.opts.HorizonDays)
}

// ReconcileAll processes every active rule. A failing rule is logged and counted;
// the error return is reserved for not being able to list rules at all.
func (r *Reconciler) ReconcileAll(ctx context.Context, today model.Date) (ReconcileReport, error) {
	started := time.Now()
	rules, err := r.rules.ListActive(ctx)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("list active rules: %w", err)
	}

	from, to := r.Window(today)
	var report ReconcileReport
	for _, rule := range rules {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.add(r.reconcileRule(ctx, rule, from, to))
	}
	report.Elapsed = time.Since(started)

	r.log.Info("reconcile finished",
		"rules", report.RulesProcessed,
		"rules_failed", report.RulesFailed,
		"created", report.Created,
		"refreshed", report.Refreshed,
		"unchanged", report.Unchanged,
		"preserved", report.Preserved,
		"failed", report.Failed,
		"pruned", report.Pruned,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

// ReconcileRule brings a single rule's instances up to date, typically right
// after the rule was created or edited.
func (r *Reconciler) ReconcileRule(ctx context.Context, ruleID string, today model.Date) (ReconcileReport, error) {
	started := time.Now()
	rule, err := r.rules.Get(ctx, ruleID)
	if err != nil {
		return ReconcileReport{}, err
	}
	from, to := r.Window(today)
	report := r.reconcileRule(ctx, *rule, from, to)
	report.Elapsed = time.Since(started)
	if report.RulesFailed > 0 {
		return report, fmt.Errorf("reconcile rule %s: %d writes failed, see logs", ruleID, report.Failed)
	}
	return report, nil
}

func (r *Reconciler) reconcileRule(ctx context.Context, rule model.RecurrenceRule, from, to model.Date) ReconcileReport {
	report := ReconcileReport{RulesProcessed: 1}
	log := r.log.With("rule_id", rule.ID)

	if !rule.IsActive {
		return report
	}
	if err := rule.Validate(); err != nil {
		log.Warn("skipping invalid rule", "err", err)
		report.RulesFailed = 1
		r.metrics.RuleFailed()
		return report
	}

	var members []string
	if rule.GroupID != nil && *rule.GroupID != "" {
		ids, err := r.groups.Members(ctx, *rule.GroupID)
		if err != nil {
			log.Warn("load group members failed", "group_id", *rule.GroupID, "err", err)
			report.RulesFailed = 1
			r.metrics.RuleFailed()
			return report
		}
		members = ids
	}

	for _, candidate := range recurrence.Expand(rule, members, from, to) {
		candidate.UpdatedBy = ReconcilerActor
		outcome, err := r.instances.Upsert(ctx, &candidate)
		if err != nil {
			log.Warn("upsert instance failed",
				"assignee_id", candidate.AssigneeID,
				"date", candidate.ScheduledDate.String(),
				"err", err,
			)
			report.Failed++
			continue
		}
		report.count(outcome)
	}

	if r.opts.StalePolicy == StalePrune && report.Failed == 0 {
		keep := recurrence.Dates(recurrence.Materialize(rule, from, to))
		pruned, err := r.instances.PruneStale(ctx, rule.ID, keep, from, to)
		if err != nil {
			log.Warn("prune stale instances failed", "err", err)
			report.Failed++
		}
		report.Pruned = pruned
	}

	if report.Failed > 0 {
		report.RulesFailed = 1
		r.metrics.RuleFailed()
	}
	r.metrics.AddReconciled(string(repository.OutcomeCreated), report.Created)
	r.metrics.AddReconciled(string(repository.OutcomeRefreshed), report.Refreshed)
	r.metrics.AddReconciled(string(repository.OutcomeUnchanged), report.Unchanged)
	r.metrics.AddReconciled(string(repository.OutcomePreserved), report.Preserved)
	return report
}
