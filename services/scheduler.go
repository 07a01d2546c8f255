package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartScheduler runs the periodic jobs: auto-start of due tournaments and
// re-submission of stuck payouts. Each job runs at most once at a time.
func StartScheduler(interval time.Duration, tournaments TournamentService, payouts PayoutService, logger *slog.Logger) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	jobs := []struct {
		name string
		run  func(ctx context.Context) (int, error)
	}{
		{name: "start-due-tournaments", run: tournaments.StartDueTournaments},
		{name: "reconcile-stuck-payouts", run: payouts.ReconcileStuck},
	}
	for _, j := range jobs {
		j := j
		_, err := sched.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() {
				// Задача не должна пережить свой интервал.
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				defer cancel()
				n, err := j.run(ctx)
				if err != nil {
					logger.Error("Scheduler job failed", slog.String("job", j.name), slog.Any("error", err))
					return
				}
				if n > 0 {
					logger.Info("Scheduler job done", slog.String("job", j.name), slog.Int("processed", n))
				}
			}),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, fmt.Errorf("failed to register job %s: %w", j.name, err)
		}
	}

	sched.Start()
	logger.Info("Scheduler started", slog.Duration("interval", interval))
	return sched, nil
}
