package cli

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"routine-planner/internal/bot"
	"routine-planner/internal/httpapi"
	"routine-planner/internal/service"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var (
		addr        string
		noBot       bool
		noScheduler bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the daily jobs and the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			return a.serve(cmd.Context(), addr, !noBot && a.cfg.Telegram.Token != "", !noScheduler)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: http.addr)")
	cmd.Flags().BoolVar(&noBot, "no-bot", false, "Do not start the Telegram bot")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Do not run the in-process daily jobs; rely on /v1/jobs instead")
	return cmd
}

func (a *app) serve(ctx context.Context, addr string, withBot, withScheduler bool) error {
	errCh := make(chan error, 2)

	var tg *bot.Bot
	if withBot {
		var err error
		tg, err = bot.New(a.cfg.Telegram.Token, a.users, a.instances, a.reminders, a.log)
		if err != nil {
			return err
		}
	}

	if withScheduler {
		scheduler, err := a.schedule(tg)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()

		// Catch up right away instead of waiting for the first tick.
		res := a.jobs.RunReconcile(ctx)
		if !res.Success {
			a.log.Warn("startup reconcile failed", "err", res.Error)
		}
	}

	srv := httpapi.NewServer(httpapi.Options{
		Addr:       addr,
		Instances:  a.instances,
		Rules:      a.rules,
		Plans:      a.plans,
		Jobs:       a.jobs,
		Metrics:    a.metrics,
		JWTSecret:  a.cfg.Auth.JWTSecret,
		CronSecret: a.cfg.Auth.CronSecret,
		Log:        a.log,
	})
	go func() {
		errCh <- errors.Wrap(srv.Start(), "http")
	}()

	if tg != nil {
		go func() {
			a.log.Info("telegram bot started")
			err := tg.Start(ctx)
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			errCh <- errors.Wrap(err, "telegram")
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		a.log.Warn("http shutdown", "err", err)
	}
	a.log.Info("shutdown complete")
	return runErr
}

// schedule registers the daily jobs. An empty time disables a job.
func (a *app) schedule(tg *bot.Bot) (*service.SchedulerService, error) {
	scheduler := service.NewSchedulerService(a.cfg.Location, a.cfg.Jobs.Timeout, a.log)

	if at := a.cfg.Jobs.ReconcileAt; at != "" {
		if _, err := scheduler.ScheduleDaily("reconcile", at, func(ctx context.Context) {
			a.jobs.RunReconcile(ctx)
		}); err != nil {
			return nil, err
		}
	}
	if at := a.cfg.Jobs.SweepAt; at != "" {
		if _, err := scheduler.ScheduleDaily("sweep", at, func(ctx context.Context) {
			a.jobs.RunSweep(ctx)
		}); err != nil {
			return nil, err
		}
	}
	if at := a.cfg.Jobs.DigestAt; at != "" && tg != nil {
		if _, err := scheduler.ScheduleDaily("digest", at, func(ctx context.Context) {
			if err := tg.SendDailyReports(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("daily digest", "err", err)
			}
		}); err != nil {
			return nil, err
		}
	}
	return scheduler, nil
}
