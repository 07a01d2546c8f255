package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Dosada05/tournament-settlement/events"
	"github.com/Dosada05/tournament-settlement/models"
	"github.com/Dosada05/tournament-settlement/repositories"
	"github.com/Dosada05/tournament-settlement/utils"
	"github.com/shopspring/decimal"
)

// Доля взноса в призовой фонд; платформе остаётся остаток (25%).
var prizeSharePercent = decimal.NewFromInt(75)

// LedgerInput is one entry to append. Informational entries get a balance
// snapshot but never move the balance.
type LedgerInput struct {
	Type            models.LedgerEntryType
	Amount          decimal.Decimal
	Informational   bool
	RelatedUserID   *int
	RelatedPayoutID *string
	Description     string
}

type LedgerVerification struct {
	TournamentID    int             `json:"tournament_id"`
	Entries         int             `json:"entries"`
	ComputedBalance decimal.Decimal `json:"computed_balance"`
	LastBalance     decimal.Decimal `json:"last_balance"`
	PrizePool       decimal.Decimal `json:"prize_pool"`
	// FirstBadEntryID is set when a stored snapshot disagrees with the running sum.
	FirstBadEntryID *int64 `json:"first_bad_entry_id,omitempty"`
	Consistent      bool   `json:"consistent"`
}

type LedgerService interface {
	// CreateLedgerEntries appends entries in order inside the caller's
	// transaction and projects the resulting balance onto tournament.prize_pool.
	CreateLedgerEntries(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, inputs []LedgerInput) ([]*models.PrizePoolLedgerEntry, error)
	RecordEntryFee(ctx context.Context, exec repositories.SQLExecutor, tournamentID, userID int, fee, processingFee decimal.Decimal) ([]*models.PrizePoolLedgerEntry, error)
	RecordRefund(ctx context.Context, exec repositories.SQLExecutor, tournamentID, userID int) ([]*models.PrizePoolLedgerEntry, error)
	RecordPayout(ctx context.Context, exec repositories.SQLExecutor, payout *models.Payout) ([]*models.PrizePoolLedgerEntry, error)

	SeedPrizePool(ctx context.Context, actor models.Actor, tournamentID int, amount decimal.Decimal) (*models.PrizePoolLedgerEntry, error)
	ListLedger(ctx context.Context, actor models.Actor, tournamentID int) ([]*models.PrizePoolLedgerEntry, error)
	VerifyLedger(ctx context.Context, tournamentID int) (*LedgerVerification, error)
}

type ledgerService struct {
	tx             repositories.Transactor
	ledgerRepo     repositories.LedgerRepository
	tournamentRepo repositories.TournamentRepository
	auditRepo      repositories.AuditRepository
	bus            events.Bus
	logger         *slog.Logger
}

func NewLedgerService(
	tx repositories.Transactor,
	ledgerRepo repositories.LedgerRepository,
	tournamentRepo repositories.TournamentRepository,
	auditRepo repositories.AuditRepository,
	bus events.Bus,
	logger *slog.Logger,
) LedgerService {
	return &ledgerService{
		tx:             tx,
		ledgerRepo:     ledgerRepo,
		tournamentRepo: tournamentRepo,
		auditRepo:      auditRepo,
		bus:            bus,
		logger:         logger,
	}
}

func (s *ledgerService) CreateLedgerEntries(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, inputs []LedgerInput) ([]*models.PrizePoolLedgerEntry, error) {
	if exec == nil {
		return nil, errors.New("ledger entries must be written inside a transaction")
	}
	// Блокировка строки турнира сериализует писателей журнала одного турнира.
	if _, err := s.tournamentRepo.GetForUpdate(ctx, exec, tournamentID); err != nil {
		return nil, mapTournamentErr(err)
	}

	balance, err := s.ledgerRepo.LastBalance(ctx, exec, tournamentID)
	if err != nil {
		return nil, err
	}

	moved := false
	created := make([]*models.PrizePoolLedgerEntry, 0, len(inputs))
	for _, in := range inputs {
		amount := utils.RoundCurrency(in.Amount)
		if !in.Informational {
			balance = balance.Add(amount)
			moved = true
		}
		entry := &models.PrizePoolLedgerEntry{
			TournamentID:    tournamentID,
			Type:            in.Type,
			Amount:          amount,
			Balance:         balance,
			AffectsBalance:  !in.Informational,
			RelatedUserID:   in.RelatedUserID,
			RelatedPayoutID: in.RelatedPayoutID,
			Description:     in.Description,
		}
		if err := s.ledgerRepo.Insert(ctx, exec, entry); err != nil {
			return nil, err
		}
		created = append(created, entry)
	}

	if moved {
		if err := s.tournamentRepo.SetPrizePool(ctx, exec, tournamentID, balance); err != nil {
			return nil, mapTournamentErr(err)
		}
	}
	return created, nil
}

func (s *ledgerService) RecordEntryFee(ctx context.Context, exec repositories.SQLExecutor, tournamentID, userID int, fee, processingFee decimal.Decimal) ([]*models.PrizePoolLedgerEntry, error) {
	if !fee.IsPositive() {
		return nil, nil
	}
	user := userID
	prizeShare := utils.PercentOf(fee, prizeSharePercent)
	// Платформа получает остаток, чтобы сумма долей всегда равнялась взносу.
	platformShare := utils.RoundCurrency(fee).Sub(prizeShare)
	inputs := []LedgerInput{
		{Type: models.LedgerEntryFee, Amount: prizeShare, RelatedUserID: &user, Description: "entry fee prize share"},
		{Type: models.LedgerPlatformFee, Amount: platformShare, Informational: true, RelatedUserID: &user, Description: "entry fee platform share"},
	}
	if processingFee.IsPositive() {
		inputs = append(inputs, LedgerInput{
			Type: models.LedgerStripeFee, Amount: processingFee.Neg(), Informational: true,
			RelatedUserID: &user, Description: "payment processing fee",
		})
	}
	return s.CreateLedgerEntries(ctx, exec, tournamentID, inputs)
}

// RecordRefund reverses the prize share the user's entry fee put into the pool.
func (s *ledgerService) RecordRefund(ctx context.Context, exec repositories.SQLExecutor, tournamentID, userID int) ([]*models.PrizePoolLedgerEntry, error) {
	credits, err := s.ledgerRepo.FindByUserAndType(ctx, exec, tournamentID, userID, models.LedgerEntryFee)
	if err != nil {
		return nil, err
	}
	share := decimal.Zero
	for _, c := range credits {
		share = share.Add(c.Amount)
	}
	if !share.IsPositive() {
		return nil, nil
	}
	user := userID
	return s.CreateLedgerEntries(ctx, exec, tournamentID, []LedgerInput{
		{Type: models.LedgerRefund, Amount: share.Neg(), RelatedUserID: &user, Description: "entry refund"},
	})
}

func (s *ledgerService) RecordPayout(ctx context.Context, exec repositories.SQLExecutor, payout *models.Payout) ([]*models.PrizePoolLedgerEntry, error) {
	user := payout.UserID
	payoutID := payout.ID
	return s.CreateLedgerEntries(ctx, exec, payout.TournamentID, []LedgerInput{
		{Type: models.LedgerPayout, Amount: payout.Amount.Neg(), RelatedUserID: &user, RelatedPayoutID: &payoutID, Description: "prize payout"},
	})
}

func (s *ledgerService) SeedPrizePool(ctx context.Context, actor models.Actor, tournamentID int, amount decimal.Decimal) (*models.PrizePoolLedgerEntry, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	amount = utils.RoundCurrency(amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var seeded *models.PrizePoolLedgerEntry
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournamentRepo.GetForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return mapTournamentErr(err)
		}
		if t.Status == models.TournamentStatusCompleted || t.Status == models.TournamentStatusCancelled {
			return fmt.Errorf("%w: tournament is %s", ErrInvalidStatusTransition, t.Status)
		}
		before := t.PrizePool
		entries, err := s.CreateLedgerEntries(ctx, exec, tournamentID, []LedgerInput{
			{Type: models.LedgerSeed, Amount: amount, Description: "prize pool seed"},
		})
		if err != nil {
			return err
		}
		seeded = entries[0]
		return recordAudit(ctx, exec, s.auditRepo, AuditPrizePoolSeeded, actor, "tournament", strconv.Itoa(tournamentID),
			map[string]interface{}{"prize_pool": before},
			map[string]interface{}{"prize_pool": seeded.Balance, "ledger_entry_id": seeded.ID})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Prize pool seeded",
		slog.Int("tournament_id", tournamentID), slog.String("amount", amount.StringFixed(2)))
	publish(ctx, s.bus, s.logger, events.New(events.TypeLedgerAppended, tournamentID, seeded))
	return seeded, nil
}

func (s *ledgerService) ListLedger(ctx context.Context, actor models.Actor, tournamentID int) ([]*models.PrizePoolLedgerEntry, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if _, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID); err != nil {
		return nil, mapTournamentErr(err)
	}
	return s.ledgerRepo.ListByTournament(ctx, nil, tournamentID)
}

// VerifyLedger replays the ledger and checks every snapshot and the projected prize pool.
func (s *ledgerService) VerifyLedger(ctx context.Context, tournamentID int) (*LedgerVerification, error) {
	t, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return nil, mapTournamentErr(err)
	}
	entries, err := s.ledgerRepo.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}

	v := &LedgerVerification{
		TournamentID:    tournamentID,
		Entries:         len(entries),
		ComputedBalance: decimal.Zero,
		LastBalance:     decimal.Zero,
		PrizePool:       t.PrizePool,
	}
	for _, e := range entries {
		if e.AffectsBalance {
			v.ComputedBalance = v.ComputedBalance.Add(e.Amount)
		}
		if v.FirstBadEntryID == nil && !e.Balance.Equal(v.ComputedBalance) {
			id := e.ID
			v.FirstBadEntryID = &id
		}
		v.LastBalance = e.Balance
	}
	v.Consistent = v.FirstBadEntryID == nil &&
		v.LastBalance.Equal(v.ComputedBalance) &&
		t.PrizePool.Equal(v.ComputedBalance)

	if !v.Consistent {
		s.logger.ErrorContext(ctx, "Ledger verification failed",
			slog.Int("tournament_id", tournamentID),
			slog.String("computed", v.ComputedBalance.StringFixed(2)),
			slog.String("prize_pool", t.PrizePool.StringFixed(2)))
	}
	return v, nil
}
