package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"routine-planner/internal/config"
	"routine-planner/internal/logging"
	"routine-planner/internal/metrics"
	"routine-planner/internal/repository"
	"routine-planner/internal/service"
)

// app holds everything a command needs, built once from the loaded config.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	db      *gorm.DB
	metrics *metrics.Metrics
	clock   service.Clock

	users *repository.UserRepository

	reconciler *service.Reconciler
	sweeper    *service.Sweeper
	jobs       *service.JobRunner
	instances  *service.InstanceService
	rules      *service.RuleService
	plans      *service.PlanService
	reminders  *service.ReminderService
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := configFrom(cmd.Context())
	if err != nil {
		return nil, err
	}
	log, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	db, err := repository.NewDB(repository.Options{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.URL,
		Logger: logging.Gorm(log),
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		metrics: metrics.New(),
		clock:   service.NewClock(nil, cfg.Location),
		users:   repository.NewUserRepository(db),
	}

	ruleRepo := repository.NewRuleRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	instanceRepo := repository.NewInstanceRepository(db)

	a.reconciler = service.NewReconciler(ruleRepo, groupRepo, instanceRepo, service.ReconcileOptions{
		HorizonDays: cfg.Reconcile.HorizonDays,
		StalePolicy: cfg.Reconcile.StalePolicy,
	}, a.metrics, log)
	a.sweeper = service.NewSweeper(instanceRepo, a.clock, a.metrics, log)
	a.jobs = service.NewJobRunner(a.reconciler, a.sweeper, repository.NewJobRunRepository(db), a.clock, cfg.Jobs.Timeout, a.metrics, log)
	a.instances = service.NewInstanceService(instanceRepo, a.clock, a.metrics, log)
	a.rules = service.NewRuleService(ruleRepo, repository.NewTemplateRepository(db), groupRepo, a.reconciler, a.clock, log)
	a.plans = service.NewPlanService(a.rules)
	a.reminders = service.NewReminderService(a.instances)
	return a, nil
}

func (a *app) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
