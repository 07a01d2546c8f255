package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/tournament-settlement/brackets"
	"github.com/Dosada05/tournament-settlement/events"
	"github.com/Dosada05/tournament-settlement/models"
	"github.com/Dosada05/tournament-settlement/repositories"
	"golang.org/x/sync/errgroup"
)

// Действия аудита.
const (
	AuditTournamentCreated        = "tournament.created"
	AuditTournamentStarted        = "tournament.started"
	AuditTournamentCompleted      = "tournament.completed"
	AuditRoundGenerated           = "round.generated"
	AuditMatchReported            = "match.reported"
	AuditEntryRegistered          = "entry.registered"
	AuditEntryConfirmed           = "entry.confirmed"
	AuditEntryRefunded            = "entry.refunded"
	AuditEntryLatePaymentRefunded = "entry.late_payment_refunded"
	AuditPrizePoolSeeded          = "prize_pool.seeded"
	AuditPayoutRequested          = "payout.requested"
	AuditPayoutApproved           = "payout.approved"
	AuditPayoutCompleted          = "payout.completed"
	AuditPayoutFailed             = "payout.failed"
	AuditPayoutRejected           = "payout.rejected"
)

func actorRef(actor models.Actor) *int {
	if actor.UserID == 0 {
		return nil
	}
	id := actor.UserID
	return &id
}

func marshalState(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

func recordAudit(ctx context.Context, exec repositories.SQLExecutor, repo repositories.AuditRepository,
	action string, actor models.Actor, entityType, entityID string, before, after interface{}) error {
	rec := &models.AuditRecord{
		Action:      action,
		ActorID:     actorRef(actor),
		EntityType:  entityType,
		EntityID:    entityID,
		BeforeState: marshalState(before),
		AfterState:  marshalState(after),
	}
	if err := repo.Record(ctx, exec, rec); err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}

// publish runs after commit. A lost notification never undoes a committed change.
func publish(ctx context.Context, bus events.Bus, logger *slog.Logger, evts ...events.Event) {
	if bus == nil {
		return
	}
	for _, evt := range evts {
		if err := bus.Publish(ctx, evt); err != nil {
			logger.WarnContext(ctx, "Failed to publish event",
				slog.String("type", evt.Type), slog.Int("tournament_id", evt.TournamentID), slog.Any("error", err))
		}
	}
}

func requireAdmin(actor models.Actor) error {
	if !actor.IsAdmin() {
		return ErrForbiddenOperation
	}
	return nil
}

func mapTournamentErr(err error) error {
	if errors.Is(err, repositories.ErrTournamentNotFound) {
		return ErrTournamentNotFound
	}
	return err
}

// tournamentSnapshot - всё, из чего выводятся таблица и право на приз.
type tournamentSnapshot struct {
	Players  []int
	Matches  []*models.Match
	Schedule []*models.PayoutScheduleSlot
}

type snapshotLoader struct {
	entryRepo    repositories.EntryRepository
	matchRepo    repositories.MatchRepository
	scheduleRepo repositories.PayoutScheduleRepository
}

// load reads confirmed players, matches and the payout schedule. Outside a
// transaction the reads run in parallel; a transaction has a single connection
// so they run one after another.
func (l *snapshotLoader) load(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, withSchedule bool) (*tournamentSnapshot, error) {
	snap := &tournamentSnapshot{}

	steps := []func(context.Context) error{
		func(ctx context.Context) error {
			confirmed := models.EntryStatusConfirmed
			entries, err := l.entryRepo.ListByTournament(ctx, exec, tournamentID, &confirmed)
			if err != nil {
				return fmt.Errorf("failed to list confirmed entries for tournament %d: %w", tournamentID, err)
			}
			snap.Players = make([]int, 0, len(entries))
			for _, e := range entries {
				snap.Players = append(snap.Players, e.UserID)
			}
			return nil
		},
		func(ctx context.Context) error {
			matches, err := l.matchRepo.ListByTournament(ctx, exec, tournamentID, nil)
			if err != nil {
				return fmt.Errorf("failed to list matches for tournament %d: %w", tournamentID, err)
			}
			snap.Matches = matches
			return nil
		},
	}
	if withSchedule {
		steps = append(steps, func(ctx context.Context) error {
			schedule, err := l.scheduleRepo.ListByTournament(ctx, exec, tournamentID)
			if err != nil {
				return fmt.Errorf("failed to load payout schedule for tournament %d: %w", tournamentID, err)
			}
			snap.Schedule = schedule
			return nil
		})
	}

	if exec != nil {
		for _, step := range steps {
			if err := step(ctx); err != nil {
				return nil, err
			}
		}
		return snap, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	for _, step := range steps {
		step := step
		g.Go(func() error { return step(gCtx) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *tournamentSnapshot) standings() []*models.Standing {
	standings := brackets.ComputeStandings(s.Players, s.Matches)
	brackets.AssignPlacements(standings)
	return standings
}
