package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Dosada05/tournament-settlement/brackets"
	"github.com/Dosada05/tournament-settlement/events"
	"github.com/Dosada05/tournament-settlement/models"
	"github.com/Dosada05/tournament-settlement/repositories"
	"github.com/Dosada05/tournament-settlement/utils"
	"github.com/shopspring/decimal"
)

type ScheduleSlotInput struct {
	Position int             `json:"position"`
	Percent  decimal.Decimal `json:"percent"`
}

type CreateTournamentInput struct {
	Name       string              `json:"name"`
	SeasonID   int                 `json:"season_id"`
	EntryFee   decimal.Decimal     `json:"entry_fee"`
	MaxPlayers int                 `json:"max_players"`
	StartDate  time.Time           `json:"start_date"`
	Schedule   []ScheduleSlotInput `json:"schedule,omitempty"`
}

// RoundAdvance describes what an advance call did.
type RoundAdvance struct {
	TournamentID int             `json:"tournament_id"`
	Round        int             `json:"round"`
	Completed    bool            `json:"completed"`
	Matches      []*models.Match `json:"matches,omitempty"`
}

type TournamentService interface {
	CreateTournament(ctx context.Context, actor models.Actor, input CreateTournamentInput) (*models.Tournament, error)
	StartTournament(ctx context.Context, actor models.Actor, tournamentID int) (*RoundAdvance, error)
	// StartDueTournaments starts every REGISTRATION tournament whose start date has passed.
	StartDueTournaments(ctx context.Context) (int, error)

	ReportResult(ctx context.Context, actor models.Actor, matchID int, result models.MatchResult) (*models.Match, error)
	AdvanceRound(ctx context.Context, actor models.Actor, tournamentID int) (*RoundAdvance, error)
	GetStandings(ctx context.Context, tournamentID int) ([]*models.Standing, error)
	ListPairings(ctx context.Context, tournamentID int, round *int) ([]*models.Match, error)
}

type tournamentService struct {
	tx             repositories.Transactor
	tournamentRepo repositories.TournamentRepository
	entryRepo      repositories.EntryRepository
	matchRepo      repositories.MatchRepository
	scheduleRepo   repositories.PayoutScheduleRepository
	auditRepo      repositories.AuditRepository
	loader         *snapshotLoader
	generator      brackets.PairingGenerator
	lockOffset     time.Duration
	bus            events.Bus
	logger         *slog.Logger
	now            func() time.Time
}

func NewTournamentService(
	tx repositories.Transactor,
	tournamentRepo repositories.TournamentRepository,
	entryRepo repositories.EntryRepository,
	matchRepo repositories.MatchRepository,
	scheduleRepo repositories.PayoutScheduleRepository,
	auditRepo repositories.AuditRepository,
	generator brackets.PairingGenerator,
	lockOffset time.Duration,
	bus events.Bus,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		tx:             tx,
		tournamentRepo: tournamentRepo,
		entryRepo:      entryRepo,
		matchRepo:      matchRepo,
		scheduleRepo:   scheduleRepo,
		auditRepo:      auditRepo,
		loader: &snapshotLoader{
			entryRepo:    entryRepo,
			matchRepo:    matchRepo,
			scheduleRepo: scheduleRepo,
		},
		generator:  generator,
		lockOffset: lockOffset,
		bus:        bus,
		logger:     logger,
		now:        time.Now,
	}
}

func validateSchedule(slots []ScheduleSlotInput) error {
	total := decimal.Zero
	seen := make(map[int]bool, len(slots))
	for _, s := range slots {
		if s.Position < 1 || s.Position > len(slots) || seen[s.Position] || !s.Percent.IsPositive() {
			return ErrInvalidSchedule
		}
		seen[s.Position] = true
		total = total.Add(s.Percent)
	}
	if total.GreaterThan(decimal.NewFromInt(100)) {
		return ErrInvalidSchedule
	}
	return nil
}

func (s *tournamentService) CreateTournament(ctx context.Context, actor models.Actor, input CreateTournamentInput) (*models.Tournament, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	now := s.now().UTC()
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name is required", ErrValidationFailed)
	case input.SeasonID <= 0:
		return nil, fmt.Errorf("%w: season_id is required", ErrValidationFailed)
	case input.EntryFee.IsNegative():
		return nil, fmt.Errorf("%w: entry fee must not be negative", ErrValidationFailed)
	case input.MaxPlayers < 2:
		return nil, fmt.Errorf("%w: max_players must be at least 2", ErrValidationFailed)
	case !input.StartDate.After(now):
		return nil, fmt.Errorf("%w: start date must be in the future", ErrValidationFailed)
	}
	if err := validateSchedule(input.Schedule); err != nil {
		return nil, err
	}

	t := &models.Tournament{
		Name:       name,
		SeasonID:   input.SeasonID,
		Status:     models.TournamentStatusRegistration,
		EntryFee:   utils.RoundCurrency(input.EntryFee),
		PrizePool:  decimal.Zero,
		MaxPlayers: input.MaxPlayers,
		StartDate:  input.StartDate.UTC(),
		// lockAt фиксируется один раз при создании.
		LockAt: input.StartDate.UTC().Add(-s.lockOffset),
	}

	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.tournamentRepo.Create(ctx, exec, t); err != nil {
			switch {
			case errors.Is(err, repositories.ErrTournamentNameConflict):
				return ErrTournamentNameConflict
			case errors.Is(err, repositories.ErrTournamentInvalidSeason):
				return fmt.Errorf("%w: unknown season %d", ErrValidationFailed, input.SeasonID)
			}
			return err
		}
		slots := make([]*models.PayoutScheduleSlot, 0, len(input.Schedule))
		for _, in := range input.Schedule {
			slots = append(slots, &models.PayoutScheduleSlot{TournamentID: t.ID, Position: in.Position, Percent: in.Percent})
		}
		if len(slots) == 0 {
			slots = models.DefaultPayoutSchedule(t.ID)
		}
		if err := s.scheduleRepo.CreateSlots(ctx, exec, slots); err != nil {
			return err
		}
		return recordAudit(ctx, exec, s.auditRepo, AuditTournamentCreated, actor, "tournament", strconv.Itoa(t.ID), nil, t)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Tournament created", slog.Int("tournament_id", t.ID), slog.Time("lock_at", t.LockAt))
	return t, nil
}

func (s *tournamentService) StartTournament(ctx context.Context, actor models.Actor, tournamentID int) (*RoundAdvance, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	var advance *RoundAdvance
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournamentRepo.GetForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return mapTournamentErr(err)
		}
		if t.Status != models.TournamentStatusRegistration {
			return fmt.Errorf("%w: tournament is %s", ErrInvalidStatusTransition, t.Status)
		}

		snap, err := s.loader.load(ctx, exec, tournamentID, false)
		if err != nil {
			return err
		}
		if len(snap.Players) < 2 {
			return ErrNotEnoughPlayers
		}

		if err := s.tournamentRepo.UpdateStatus(ctx, exec, tournamentID, t.Status, models.TournamentStatusInProgress); err != nil {
			return err
		}
		matches, err := s.insertRound(ctx, exec, tournamentID, 1, snap)
		if err != nil {
			return err
		}
		advance = &RoundAdvance{TournamentID: tournamentID, Round: 1, Matches: matches}
		return recordAudit(ctx, exec, s.auditRepo, AuditTournamentStarted, actor, "tournament", strconv.Itoa(tournamentID),
			map[string]interface{}{"status": t.Status},
			map[string]interface{}{"status": models.TournamentStatusInProgress, "players": len(snap.Players), "round": 1})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Tournament started", slog.Int("tournament_id", tournamentID), slog.Int("matches", len(advance.Matches)))
	publish(ctx, s.bus, s.logger, events.New(events.TypeRoundStarted, tournamentID, advance))
	return advance, nil
}

func (s *tournamentService) StartDueTournaments(ctx context.Context) (int, error) {
	due, err := s.tournamentRepo.ListDueToStart(ctx, nil, s.now().UTC())
	if err != nil {
		return 0, err
	}
	started := 0
	for _, t := range due {
		if _, err := s.StartTournament(ctx, models.SystemActor, t.ID); err != nil {
			// Турнир без достаточного числа игроков остаётся в регистрации до решения администратора.
			s.logger.WarnContext(ctx, "Auto-start skipped", slog.Int("tournament_id", t.ID), slog.Any("error", err))
			continue
		}
		started++
	}
	return started, nil
}

// insertRound pairs and stores the given round inside the caller's transaction.
func (s *tournamentService) insertRound(ctx context.Context, exec repositories.SQLExecutor, tournamentID, round int, snap *tournamentSnapshot) ([]*models.Match, error) {
	var standings []*models.Standing
	if round > 1 {
		standings = brackets.ComputeStandings(snap.Players, snap.Matches)
	}
	generated, err := s.generator.GenerateRound(ctx, brackets.GenerateRoundParams{
		Round:     round,
		Players:   snap.Players,
		Standings: standings,
		History:   snap.Matches,
	})
	if err != nil {
		if errors.Is(err, brackets.ErrNotEnoughPlayers) {
			return nil, ErrNotEnoughPlayers
		}
		return nil, fmt.Errorf("failed to generate round %d for tournament %d: %w", round, tournamentID, err)
	}

	matches := brackets.RoundMatches(tournamentID, generated)
	if err := s.matchRepo.CreateBatch(ctx, exec, matches); err != nil {
		if errors.Is(err, repositories.ErrRoundAlreadyExists) {
			return nil, ErrRoundAlreadyAdvanced
		}
		return nil, err
	}
	return matches, nil
}
