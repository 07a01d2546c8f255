package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingTournaments struct {
	TournamentService
	calls atomic.Int32
}

func (c *countingTournaments) StartDueTournaments(context.Context) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

type countingPayouts struct {
	PayoutService
	calls atomic.Int32
}

func (c *countingPayouts) ReconcileStuck(context.Context) (int, error) {
	c.calls.Add(1)
	return 1, nil
}

func TestStartSchedulerRunsBothJobs(t *testing.T) {
	tournaments, payouts := &countingTournaments{}, &countingPayouts{}
	sched, err := StartScheduler(20*time.Millisecond, tournaments, payouts, discardLogger())
	if err != nil {
		t.Fatalf("StartScheduler: %v", err)
	}
	defer func() { _ = sched.Shutdown() }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tournaments.calls.Load() >= 2 && payouts.calls.Load() >= 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("jobs ran %d and %d times, want at least 2 each", tournaments.calls.Load(), payouts.calls.Load())
}
