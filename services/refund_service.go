package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Dosada05/tournament-settlement/events"
	"github.com/Dosada05/tournament-settlement/models"
	"github.com/Dosada05/tournament-settlement/payments"
	"github.com/Dosada05/tournament-settlement/repositories"
)

// IsRefundable: запись не отменена, турнир в регистрации и now строго раньше lockAt.
func IsRefundable(entry *models.Entry, tournament *models.Tournament, now time.Time) bool {
	if entry == nil || tournament == nil {
		return false
	}
	return entry.Status != models.EntryStatusCancelled &&
		tournament.Status == models.TournamentStatusRegistration &&
		now.Before(tournament.LockAt)
}

type RefundEligibility struct {
	TournamentID int       `json:"tournament_id"`
	Refundable   bool      `json:"refundable"`
	LockAt       time.Time `json:"lock_at"`
}

type RefundService interface {
	CheckEligibility(ctx context.Context, actor models.Actor, tournamentID int) (*RefundEligibility, error)
	Refund(ctx context.Context, actor models.Actor, tournamentID int) (*models.Entry, error)
}

type refundService struct {
	tx             repositories.Transactor
	tournamentRepo repositories.TournamentRepository
	entryRepo      repositories.EntryRepository
	auditRepo      repositories.AuditRepository
	ledger         LedgerService
	provider       payments.Provider
	bus            events.Bus
	logger         *slog.Logger
	now            func() time.Time
}

func NewRefundService(
	tx repositories.Transactor,
	tournamentRepo repositories.TournamentRepository,
	entryRepo repositories.EntryRepository,
	auditRepo repositories.AuditRepository,
	ledger LedgerService,
	provider payments.Provider,
	bus events.Bus,
	logger *slog.Logger,
) RefundService {
	return &refundService{
		tx:             tx,
		tournamentRepo: tournamentRepo,
		entryRepo:      entryRepo,
		auditRepo:      auditRepo,
		ledger:         ledger,
		provider:       provider,
		bus:            bus,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *refundService) CheckEligibility(ctx context.Context, actor models.Actor, tournamentID int) (*RefundEligibility, error) {
	t, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return nil, mapTournamentErr(err)
	}
	e, err := s.entryRepo.GetByUserAndTournament(ctx, nil, actor.UserID, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrEntryNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return &RefundEligibility{
		TournamentID: tournamentID,
		Refundable:   IsRefundable(e, t, s.now()),
		LockAt:       t.LockAt,
	}, nil
}

// Refund cancels the caller's entry before lock. A paid entry is refunded
// through the provider inside the transaction, so a provider error leaves the
// entry untouched and the call can be repeated with the same idempotency key.
func (s *refundService) Refund(ctx context.Context, actor models.Actor, tournamentID int) (*models.Entry, error) {
	if actor.UserID <= 0 {
		return nil, ErrForbiddenOperation
	}

	var (
		entry         *models.Entry
		ledgerEntries []*models.PrizePoolLedgerEntry
	)
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournamentRepo.GetForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return mapTournamentErr(err)
		}
		e, err := s.entryRepo.GetForUpdate(ctx, exec, actor.UserID, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrEntryNotFound) {
				return ErrEntryNotFound
			}
			return err
		}
		now := s.now()
		if !IsRefundable(e, t, now) {
			return ErrRefundNotAllowed
		}
		before := *e
		wasConfirmed := e.Status == models.EntryStatusConfirmed

		if wasConfirmed && e.PaymentReference != nil && t.EntryFee.IsPositive() {
			if s.provider == nil {
				return fmt.Errorf("%w: no payment provider configured", ErrProviderFailure)
			}
			key := "refund-entry-" + strconv.Itoa(e.ID)
			if _, err := s.provider.CreateRefund(ctx, *e.PaymentReference, key); err != nil {
				return fmt.Errorf("%w: %w", ErrProviderFailure, err)
			}
			ledgerEntries, err = s.ledger.RecordRefund(ctx, exec, tournamentID, e.UserID)
			if err != nil {
				return err
			}
		}
		if wasConfirmed {
			if err := s.tournamentRepo.AdjustCurrentPlayers(ctx, exec, tournamentID, -1); err != nil {
				return mapTournamentErr(err)
			}
		}

		at := now.UTC()
		if err := s.entryRepo.Cancel(ctx, exec, e.ID, at); err != nil {
			if errors.Is(err, repositories.ErrEntryStatusConflict) {
				return ErrRefundNotAllowed
			}
			return err
		}
		e.Status = models.EntryStatusCancelled
		e.CancelledAt = &at
		entry = e
		return recordAudit(ctx, exec, s.auditRepo, AuditEntryRefunded, actor, "entry", strconv.Itoa(e.ID), before, e)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Entry refunded", slog.Int("tournament_id", tournamentID), slog.Int("user_id", actor.UserID))
	evts := []events.Event{events.New(events.TypeEntryUpdated, tournamentID, entry)}
	for _, le := range ledgerEntries {
		evts = append(evts, events.New(events.TypeLedgerAppended, tournamentID, le))
	}
	publish(ctx, s.bus, s.logger, evts...)
	return entry, nil
}
