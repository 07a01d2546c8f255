package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/tournament-settlement/events"
	"github.com/Dosada05/tournament-settlement/models"
	"github.com/Dosada05/tournament-settlement/payments"
	"github.com/Dosada05/tournament-settlement/repositories"
	"github.com/Dosada05/tournament-settlement/utils"
	"github.com/google/uuid"
)

type PayoutService interface {
	GetEntitlement(ctx context.Context, actor models.Actor, tournamentID int) (*Entitlement, error)
	// RequestPayout is idempotent per (user, tournament): a second call returns the first payout.
	RequestPayout(ctx context.Context, actor models.Actor, tournamentID int) (*models.Payout, error)
	ApprovePayout(ctx context.Context, actor models.Actor, payoutID string) (*models.Payout, error)
	RejectPayout(ctx context.Context, actor models.Actor, payoutID string, reason string) (*models.Payout, error)
	// ReconcileStuck re-submits PROCESSING payouts older than the stale threshold.
	ReconcileStuck(ctx context.Context) (int, error)
}

type PayoutPolicy struct {
	ProviderTimeout  time.Duration
	StalePayoutAfter time.Duration
}

type payoutService struct {
	tx             repositories.Transactor
	payoutRepo     repositories.PayoutRepository
	tournamentRepo repositories.TournamentRepository
	entryRepo      repositories.EntryRepository
	userRepo       repositories.UserRepository
	complianceRepo repositories.ComplianceRepository
	auditRepo      repositories.AuditRepository
	entitlements   EntitlementService
	ledger         LedgerService
	provider       payments.Provider
	policy         PayoutPolicy
	bus            events.Bus
	logger         *slog.Logger
	now            func() time.Time
	newID          func() string
}

func NewPayoutService(
	tx repositories.Transactor,
	payoutRepo repositories.PayoutRepository,
	tournamentRepo repositories.TournamentRepository,
	entryRepo repositories.EntryRepository,
	userRepo repositories.UserRepository,
	complianceRepo repositories.ComplianceRepository,
	auditRepo repositories.AuditRepository,
	entitlements EntitlementService,
	ledger LedgerService,
	provider payments.Provider,
	policy PayoutPolicy,
	bus events.Bus,
	logger *slog.Logger,
) PayoutService {
	return &payoutService{
		tx:             tx,
		payoutRepo:     payoutRepo,
		tournamentRepo: tournamentRepo,
		entryRepo:      entryRepo,
		userRepo:       userRepo,
		complianceRepo: complianceRepo,
		auditRepo:      auditRepo,
		entitlements:   entitlements,
		ledger:         ledger,
		provider:       provider,
		policy:         policy,
		bus:            bus,
		logger:         logger,
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

func (s *payoutService) GetEntitlement(ctx context.Context, actor models.Actor, tournamentID int) (*Entitlement, error) {
	if actor.UserID <= 0 {
		return nil, ErrForbiddenOperation
	}
	if _, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID); err != nil {
		return nil, mapTournamentErr(err)
	}
	return s.entitlements.Resolve(ctx, nil, tournamentID, actor.UserID)
}

// requireCashSeason fails unless the tournament's season pays cash.
func (s *payoutService) requireCashSeason(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) error {
	season, err := s.complianceRepo.GetSeasonByTournament(ctx, exec, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrSeasonNotFound) {
			return ErrSeasonNotCash
		}
		return err
	}
	if season.PrizeMode != models.PrizeModeCash {
		return ErrSeasonNotCash
	}
	return nil
}

func (s *payoutService) antiCheatHold(ctx context.Context, exec repositories.SQLExecutor, userID, tournamentID int) (bool, error) {
	cases, err := s.complianceRepo.ListAntiCheatCases(ctx, exec, userID, tournamentID)
	if err != nil {
		return false, err
	}
	return models.HasHold(cases), nil
}

func (s *payoutService) RequestPayout(ctx context.Context, actor models.Actor, tournamentID int) (*models.Payout, error) {
	if actor.UserID <= 0 {
		return nil, ErrForbiddenOperation
	}

	var payout *models.Payout
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		existing, err := s.payoutRepo.GetByUserAndTournament(ctx, exec, actor.UserID, tournamentID)
		if err == nil {
			payout = existing
			return nil
		}
		if !errors.Is(err, repositories.ErrPayoutNotFound) {
			return err
		}

		if err := s.requireCashSeason(ctx, exec, tournamentID); err != nil {
			return err
		}
		t, err := s.tournamentRepo.GetByID(ctx, exec, tournamentID)
		if err != nil {
			return mapTournamentErr(err)
		}
		if t.Status != models.TournamentStatusCompleted {
			return ErrTournamentNotCompleted
		}
		entry, err := s.entryRepo.GetByUserAndTournament(ctx, exec, actor.UserID, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrEntryNotFound) {
				return ErrEntryNotConfirmed
			}
			return err
		}
		if entry.Status != models.EntryStatusConfirmed {
			return ErrEntryNotConfirmed
		}
		hold, err := s.antiCheatHold(ctx, exec, actor.UserID, tournamentID)
		if err != nil {
			return err
		}
		if hold {
			return ErrAntiCheatHold
		}
		kyc, err := s.complianceRepo.GetKYC(ctx, exec, actor.UserID)
		if err != nil {
			return err
		}
		if kyc.Status != models.KYCStatusVerified {
			return ErrKYCNotVerified
		}
		ent, err := s.entitlements.Resolve(ctx, exec, tournamentID, actor.UserID)
		if err != nil {
			return err
		}

		amount := ent.Amount
		placement := ent.Placement
		p := &models.Payout{
			ID:                s.newID(),
			UserID:            actor.UserID,
			TournamentID:      tournamentID,
			Amount:            amount,
			EntitlementAmount: &amount,
			Placement:         &placement,
			Status:            models.PayoutStatusPending,
			AntiCheatHold:     false,
			KYCVerifiedAt:     kyc.VerifiedAt,
		}
		if err := s.payoutRepo.Create(ctx, exec, p); err != nil {
			return err
		}
		payout = p
		return recordAudit(ctx, exec, s.auditRepo, AuditPayoutRequested, actor, "payout", p.ID, nil, p)
	})
	if errors.Is(err, repositories.ErrPayoutExists) {
		// Параллельный запрос успел создать выплату первым.
		return s.payoutRepo.GetByUserAndTournament(ctx, nil, actor.UserID, tournamentID)
	}
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Payout requested",
		slog.String("payout_id", payout.ID), slog.Int("tournament_id", tournamentID), slog.Int("user_id", actor.UserID))
	publish(ctx, s.bus, s.logger, events.New(events.TypePayoutUpdated, tournamentID, payout))
	return payout, nil
}

func (s *payoutService) getPayout(ctx context.Context, exec repositories.SQLExecutor, id string) (*models.Payout, error) {
	p, err := s.payoutRepo.GetByID(ctx, exec, id)
	if err != nil {
		if errors.Is(err, repositories.ErrPayoutNotFound) {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return p, nil
}

// ApprovePayout re-validates everything, wins the PENDING to PROCESSING flip,
// and only then calls the provider. The flip commits before the transfer.
func (s *payoutService) ApprovePayout(ctx context.Context, actor models.Actor, payoutID string) (*models.Payout, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	var (
		payout      *models.Payout
		destination string
	)
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		p, err := s.getPayout(ctx, exec, payoutID)
		if err != nil {
			return err
		}
		if p.Status != models.PayoutStatusPending {
			return ErrPayoutAlreadyProcessed
		}
		if err := s.requireCashSeason(ctx, exec, p.TournamentID); err != nil {
			return err
		}
		hold, err := s.antiCheatHold(ctx, exec, p.UserID, p.TournamentID)
		if err != nil {
			return err
		}
		if hold {
			return ErrAntiCheatHold
		}

		ent, err := s.entitlements.Resolve(ctx, exec, p.TournamentID, p.UserID)
		if err != nil {
			if errors.Is(err, ErrNoEntitlement) {
				return fmt.Errorf("%w: %w", ErrEntitlementMismatch, err)
			}
			return err
		}
		if p.EntitlementAmount == nil && p.Placement == nil {
			if err := s.payoutRepo.BackfillEntitlement(ctx, exec, p.ID, ent.Amount, ent.Placement); err != nil {
				return err
			}
			amount, placement := ent.Amount, ent.Placement
			p.EntitlementAmount, p.Placement = &amount, &placement
		}
		if !ent.Matches(p.EntitlementAmount, p.Placement) || !p.Amount.Equal(ent.Amount) {
			s.logger.ErrorContext(ctx, "Entitlement mismatch on approval",
				slog.String("payout_id", p.ID), slog.Int("tournament_id", p.TournamentID),
				slog.String("stored", p.Amount.StringFixed(2)), slog.String("recomputed", ent.Amount.StringFixed(2)))
			return ErrEntitlementMismatch
		}

		user, err := s.userRepo.GetByID(ctx, exec, p.UserID)
		if err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if user.PaymentAccountID == nil || *user.PaymentAccountID == "" {
			return ErrNoPaymentDestination
		}
		destination = *user.PaymentAccountID

		before := *p
		if err := s.payoutRepo.MarkProcessing(ctx, exec, p.ID, actorRef(actor)); err != nil {
			if errors.Is(err, repositories.ErrPayoutStatusConflict) {
				return ErrPayoutAlreadyProcessed
			}
			return err
		}
		p.Status = models.PayoutStatusProcessing
		p.ReviewedBy = actorRef(actor)
		payout = p
		return recordAudit(ctx, exec, s.auditRepo, AuditPayoutApproved, actor, "payout", p.ID, before, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Payout approved, submitting transfer",
		slog.String("payout_id", payout.ID), slog.Int("tournament_id", payout.TournamentID))
	return s.submitTransfer(ctx, actor, payout, destination)
}

// submitTransfer calls the provider for a PROCESSING payout and finalises it.
func (s *payoutService) submitTransfer(ctx context.Context, actor models.Actor, p *models.Payout, destination string) (*models.Payout, error) {
	if s.provider == nil {
		return s.fail(ctx, actor, p, errors.New("no payment provider configured"))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.policy.ProviderTimeout)
	transferID, err := s.provider.CreateTransfer(callCtx, destination, utils.ToMinorUnits(p.Amount), p.ID)
	cancel()
	if err != nil {
		return s.fail(ctx, actor, p, err)
	}
	return s.complete(ctx, actor, p, transferID)
}

func (s *payoutService) fail(ctx context.Context, actor models.Actor, p *models.Payout, cause error) (*models.Payout, error) {
	reason := cause.Error()
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		before := *p
		if err := s.payoutRepo.MarkFailed(ctx, exec, p.ID, reason); err != nil {
			return err
		}
		p.Status = models.PayoutStatusFailed
		p.FailureReason = &reason
		return recordAudit(ctx, exec, s.auditRepo, AuditPayoutFailed, actor, "payout", p.ID, before, p)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to mark payout as FAILED",
			slog.String("payout_id", p.ID), slog.Any("cause", cause), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", ErrProviderFailure, cause)
	}

	s.logger.ErrorContext(ctx, "Payout transfer failed",
		slog.String("payout_id", p.ID), slog.Int("tournament_id", p.TournamentID), slog.Any("error", cause))
	publish(ctx, s.bus, s.logger, events.New(events.TypePayoutUpdated, p.TournamentID, p))
	return p, fmt.Errorf("%w: %w", ErrProviderFailure, cause)
}

// complete marks the payout COMPLETED, posts the PAYOUT ledger entry (which
// moves tournament.prize_pool by the same value) and audits, in one transaction.
func (s *payoutService) complete(ctx context.Context, actor models.Actor, p *models.Payout, transferID string) (*models.Payout, error) {
	var ledgerEntries []*models.PrizePoolLedgerEntry
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		before := *p
		if err := s.payoutRepo.MarkCompleted(ctx, exec, p.ID, transferID); err != nil {
			return err
		}
		var err error
		ledgerEntries, err = s.ledger.RecordPayout(ctx, exec, p)
		if err != nil {
			return err
		}
		p.Status = models.PayoutStatusCompleted
		p.ProviderTransferID = &transferID
		return recordAudit(ctx, exec, s.auditRepo, AuditPayoutCompleted, actor, "payout", p.ID, before, p)
	})
	if err != nil {
		// Перевод уже создан; выплата остаётся PROCESSING и будет дозавершена сверкой.
		s.logger.ErrorContext(ctx, "Transfer succeeded but payout finalisation failed",
			slog.String("payout_id", p.ID), slog.String("transfer_id", transferID), slog.Any("error", err))
		return nil, err
	}

	s.logger.InfoContext(ctx, "Payout completed",
		slog.String("payout_id", p.ID), slog.Int("tournament_id", p.TournamentID), slog.String("amount", p.Amount.StringFixed(2)))
	evts := []events.Event{events.New(events.TypePayoutUpdated, p.TournamentID, p)}
	for _, le := range ledgerEntries {
		evts = append(evts, events.New(events.TypeLedgerAppended, p.TournamentID, le))
	}
	publish(ctx, s.bus, s.logger, evts...)
	return p, nil
}

func (s *payoutService) RejectPayout(ctx context.Context, actor models.Actor, payoutID string, reason string) (*models.Payout, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	var payout *models.Payout
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		p, err := s.getPayout(ctx, exec, payoutID)
		if err != nil {
			return err
		}
		if !p.Status.CanTransitionTo(models.PayoutStatusRejected) {
			return fmt.Errorf("%w: payout is %s", ErrInvalidStatusTransition, p.Status)
		}
		before := *p
		if err := s.payoutRepo.MarkRejected(ctx, exec, p.ID, actorRef(actor), reason); err != nil {
			if errors.Is(err, repositories.ErrPayoutStatusConflict) {
				return ErrPayoutAlreadyProcessed
			}
			return err
		}
		p.Status = models.PayoutStatusRejected
		p.ReviewedBy = actorRef(actor)
		if reason != "" {
			p.FailureReason = &reason
		}
		payout = p
		return recordAudit(ctx, exec, s.auditRepo, AuditPayoutRejected, actor, "payout", p.ID, before, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Payout rejected", slog.String("payout_id", payoutID))
	publish(ctx, s.bus, s.logger, events.New(events.TypePayoutUpdated, payout.TournamentID, payout))
	return payout, nil
}

func (s *payoutService) ReconcileStuck(ctx context.Context) (int, error) {
	stale, err := s.payoutRepo.ListStaleProcessing(ctx, nil, s.now().Add(-s.policy.StalePayoutAfter))
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, p := range stale {
		user, err := s.userRepo.GetByID(ctx, nil, p.UserID)
		if err != nil || user.PaymentAccountID == nil || *user.PaymentAccountID == "" {
			s.logger.WarnContext(ctx, "Cannot reconcile payout without destination",
				slog.String("payout_id", p.ID), slog.Any("error", err))
			continue
		}
		// Тот же ключ идемпотентности: провайдер вернёт уже созданный перевод.
		if _, err := s.submitTransfer(ctx, models.SystemActor, p, *user.PaymentAccountID); err != nil {
			s.logger.WarnContext(ctx, "Stuck payout reconciliation failed", slog.String("payout_id", p.ID), slog.Any("error", err))
			continue
		}
		settled++
	}
	return settled, nil
}
