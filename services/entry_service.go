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
	"github.com/Dosada05/tournament-settlement/utils"
)

type EntryService interface {
	RegisterEntry(ctx context.Context, actor models.Actor, tournamentID int) (*models.Entry, error)
	// ConfirmEntryPayment is driven by the payment webhook and is a no-op for
	// an entry that is already CONFIRMED. A payment for a cancelled entry or one
	// that lands after registration closed is refunded and reported with
	// ErrLatePaymentRefunded.
	ConfirmEntryPayment(ctx context.Context, confirmation *payments.PaymentConfirmation) (*models.Entry, error)
}

type entryService struct {
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

func NewEntryService(
	tx repositories.Transactor,
	tournamentRepo repositories.TournamentRepository,
	entryRepo repositories.EntryRepository,
	auditRepo repositories.AuditRepository,
	ledger LedgerService,
	provider payments.Provider,
	bus events.Bus,
	logger *slog.Logger,
) EntryService {
	return &entryService{
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

func (s *entryService) RegisterEntry(ctx context.Context, actor models.Actor, tournamentID int) (*models.Entry, error) {
	if actor.UserID <= 0 {
		return nil, ErrForbiddenOperation
	}

	entry := &models.Entry{UserID: actor.UserID, TournamentID: tournamentID, Status: models.EntryStatusPending}
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournamentRepo.GetForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return mapTournamentErr(err)
		}
		if t.Status != models.TournamentStatusRegistration || !s.now().Before(t.LockAt) {
			return ErrRegistrationNotOpen
		}
		if t.CurrentPlayers >= t.MaxPlayers {
			return ErrTournamentFull
		}

		if err := s.entryRepo.Create(ctx, exec, entry); err != nil {
			if errors.Is(err, repositories.ErrEntryExists) {
				return ErrEntryExists
			}
			return err
		}

		// Бесплатный турнир: оплаты не будет, подтверждаем сразу.
		if !t.EntryFee.IsPositive() {
			if err := s.confirm(ctx, exec, t, entry, "free-entry"); err != nil {
				return err
			}
		}
		return recordAudit(ctx, exec, s.auditRepo, AuditEntryRegistered, actor, "entry", strconv.Itoa(entry.ID), nil, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Entry registered",
		slog.Int("tournament_id", tournamentID), slog.Int("user_id", actor.UserID), slog.String("status", string(entry.Status)))
	publish(ctx, s.bus, s.logger, events.New(events.TypeEntryUpdated, tournamentID, entry))
	return entry, nil
}

func (s *entryService) ConfirmEntryPayment(ctx context.Context, conf *payments.PaymentConfirmation) (*models.Entry, error) {
	if conf == nil || conf.UserID <= 0 || conf.TournamentID <= 0 || conf.PaymentReference == "" {
		return nil, fmt.Errorf("%w: incomplete payment confirmation", ErrValidationFailed)
	}

	var (
		entry         *models.Entry
		alreadyDone   bool
		refunded      bool
		ledgerEntries []*models.PrizePoolLedgerEntry
	)
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournamentRepo.GetForUpdate(ctx, exec, conf.TournamentID)
		if err != nil {
			return mapTournamentErr(err)
		}
		e, err := s.entryRepo.GetForUpdate(ctx, exec, conf.UserID, conf.TournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrEntryNotFound) {
				return ErrEntryNotFound
			}
			return err
		}
		entry = e

		closed := t.Status != models.TournamentStatusRegistration || !s.now().Before(t.LockAt)
		switch {
		case e.Status == models.EntryStatusConfirmed:
			alreadyDone = true
			return nil
		case e.Status == models.EntryStatusCancelled || closed:
			// Деньги списаны, но участия не будет: возвращаем платёж, леджер не трогаем.
			refunded = true
			return s.refundLatePayment(ctx, exec, e, conf.PaymentReference)
		}
		if paid := utils.RoundCurrency(conf.Amount); !paid.Equal(utils.RoundCurrency(t.EntryFee)) {
			return fmt.Errorf("%w: paid %s, entry fee %s", ErrPaymentAmountMismatch, paid.StringFixed(2), t.EntryFee.StringFixed(2))
		}
		if t.CurrentPlayers >= t.MaxPlayers {
			return ErrTournamentFull
		}

		before := *e
		if err := s.confirm(ctx, exec, t, e, conf.PaymentReference); err != nil {
			return err
		}
		ledgerEntries, err = s.ledger.RecordEntryFee(ctx, exec, t.ID, e.UserID, t.EntryFee, conf.ProcessingFee)
		if err != nil {
			return err
		}
		return recordAudit(ctx, exec, s.auditRepo, AuditEntryConfirmed, models.SystemActor, "entry", strconv.Itoa(e.ID), before, e)
	})
	if err != nil {
		return nil, err
	}
	if alreadyDone {
		s.logger.InfoContext(ctx, "Duplicate payment confirmation ignored",
			slog.Int("tournament_id", conf.TournamentID), slog.Int("user_id", conf.UserID))
		return entry, nil
	}
	if refunded {
		s.logger.WarnContext(ctx, "Late payment refunded",
			slog.Int("tournament_id", conf.TournamentID), slog.Int("user_id", conf.UserID),
			slog.String("payment_reference", conf.PaymentReference))
		publish(ctx, s.bus, s.logger, events.New(events.TypeEntryUpdated, conf.TournamentID, entry))
		return entry, ErrLatePaymentRefunded
	}

	s.logger.InfoContext(ctx, "Entry confirmed",
		slog.Int("tournament_id", conf.TournamentID), slog.Int("user_id", conf.UserID),
		slog.String("paid", conf.Amount.StringFixed(2)))
	evts := []events.Event{events.New(events.TypeEntryUpdated, conf.TournamentID, entry)}
	for _, le := range ledgerEntries {
		evts = append(evts, events.New(events.TypeLedgerAppended, conf.TournamentID, le))
	}
	publish(ctx, s.bus, s.logger, evts...)
	return entry, nil
}

func (s *entryService) confirm(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, e *models.Entry, reference string) error {
	at := s.now().UTC()
	if err := s.entryRepo.Confirm(ctx, exec, e.ID, reference, at); err != nil {
		if errors.Is(err, repositories.ErrEntryStatusConflict) {
			return ErrInvalidStatusTransition
		}
		return err
	}
	if err := s.tournamentRepo.AdjustCurrentPlayers(ctx, exec, t.ID, 1); err != nil {
		return mapTournamentErr(err)
	}
	e.Status = models.EntryStatusConfirmed
	e.PaymentReference = &reference
	e.ConfirmedAt = &at
	return nil
}

// refundLatePayment returns a payment that can no longer buy a seat and
// cancels the entry if it is still PENDING. The refund key is stable per
// entry, so a replayed webhook hits the same provider refund.
func (s *entryService) refundLatePayment(ctx context.Context, exec repositories.SQLExecutor, e *models.Entry, reference string) error {
	if s.provider == nil {
		return fmt.Errorf("%w: no payment provider configured", ErrProviderFailure)
	}
	key := "refund-entry-" + strconv.Itoa(e.ID)
	if _, err := s.provider.CreateRefund(ctx, reference, key); err != nil {
		return fmt.Errorf("%w: %w", ErrProviderFailure, err)
	}
	if e.Status == models.EntryStatusCancelled {
		return nil
	}

	before := *e
	at := s.now().UTC()
	if err := s.entryRepo.Cancel(ctx, exec, e.ID, at); err != nil {
		if errors.Is(err, repositories.ErrEntryStatusConflict) {
			return ErrInvalidStatusTransition
		}
		return err
	}
	e.Status = models.EntryStatusCancelled
	e.CancelledAt = &at
	return recordAudit(ctx, exec, s.auditRepo, AuditEntryLatePaymentRefunded, models.SystemActor, "entry", strconv.Itoa(e.ID), before, e)
}
