package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-settlement/models"
	"github.com/Dosada05/tournament-settlement/repositories"
	"github.com/Dosada05/tournament-settlement/utils"
	"github.com/shopspring/decimal"
)

// Entitlement - вычисленное право на приз. Никогда не хранится как источник истины.
type Entitlement struct {
	UserID       int             `json:"user_id"`
	TournamentID int             `json:"tournament_id"`
	Placement    int             `json:"placement"`
	Percent      decimal.Decimal `json:"percent"`
	PoolBase     decimal.Decimal `json:"pool_base"`
	Amount       decimal.Decimal `json:"amount"`
}

// Matches reports whether a stored entitlement agrees exactly with this one.
func (e *Entitlement) Matches(amount *decimal.Decimal, placement *int) bool {
	return amount != nil && placement != nil &&
		amount.Equal(e.Amount) && *placement == e.Placement
}

// ResolveEntitlement is the pure core: placement lookup in ranked standings,
// schedule slot lookup and amount = pool × percent / 100 rounded to cents.
func ResolveEntitlement(standings []*models.Standing, schedule []*models.PayoutScheduleSlot, pool decimal.Decimal, userID int) (*Entitlement, error) {
	var mine *models.Standing
	for _, s := range standings {
		if s.UserID == userID {
			mine = s
			break
		}
	}
	if mine == nil || mine.Placement == 0 {
		return nil, ErrNoEntitlement
	}

	for _, slot := range schedule {
		if slot.Position != mine.Placement {
			continue
		}
		amount := utils.PercentOf(pool, slot.Percent)
		if !amount.IsPositive() {
			return nil, ErrNoEntitlement
		}
		return &Entitlement{
			UserID:    userID,
			Placement: mine.Placement,
			Percent:   slot.Percent,
			PoolBase:  pool,
			Amount:    amount,
		}, nil
	}
	return nil, ErrNoEntitlement
}

type EntitlementService interface {
	// Resolve re-derives the entitlement from persisted state. Pass a
	// transaction executor to read under the caller's locks, or nil.
	Resolve(ctx context.Context, exec repositories.SQLExecutor, tournamentID, userID int) (*Entitlement, error)
}

type entitlementService struct {
	loader     *snapshotLoader
	ledgerRepo repositories.LedgerRepository
}

func NewEntitlementService(
	entryRepo repositories.EntryRepository,
	matchRepo repositories.MatchRepository,
	scheduleRepo repositories.PayoutScheduleRepository,
	ledgerRepo repositories.LedgerRepository,
) EntitlementService {
	return &entitlementService{
		loader: &snapshotLoader{
			entryRepo:    entryRepo,
			matchRepo:    matchRepo,
			scheduleRepo: scheduleRepo,
		},
		ledgerRepo: ledgerRepo,
	}
}

var errNoConfirmedEntries = errors.New("tournament has no confirmed entries")

func (s *entitlementService) Resolve(ctx context.Context, exec repositories.SQLExecutor, tournamentID, userID int) (*Entitlement, error) {
	snap, err := s.loader.load(ctx, exec, tournamentID, true)
	if err != nil {
		return nil, err
	}
	if len(snap.Players) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoEntitlement, errNoConfirmedEntries)
	}

	if len(snap.Schedule) == 0 {
		defaults := models.DefaultPayoutSchedule(tournamentID)
		if err := s.loader.scheduleRepo.CreateSlots(ctx, exec, defaults); err != nil {
			return nil, err
		}
		snap.Schedule = defaults
	}

	pool, err := s.ledgerRepo.DistributableBalance(ctx, exec, tournamentID)
	if err != nil {
		return nil, err
	}

	ent, err := ResolveEntitlement(snap.standings(), snap.Schedule, pool, userID)
	if err != nil {
		return nil, err
	}
	ent.TournamentID = tournamentID
	return ent, nil
}
