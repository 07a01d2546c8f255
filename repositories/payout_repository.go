package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/tournament-settlement/models"
	"github.com/shopspring/decimal"
)

var (
	ErrPayoutNotFound        = errors.New("payout not found")
	ErrPayoutExists          = errors.New("payout already exists for this user and tournament")
	ErrPayoutStatusConflict  = errors.New("payout status changed concurrently")
	ErrEntitlementAlreadySet = errors.New("payout entitlement is already set")
)

type PayoutRepository interface {
	// Create returns ErrPayoutExists when the (user, tournament) pair already has a payout.
	Create(ctx context.Context, exec SQLExecutor, payout *models.Payout) error
	GetByID(ctx context.Context, exec SQLExecutor, id string) (*models.Payout, error)
	GetByUserAndTournament(ctx context.Context, exec SQLExecutor, userID, tournamentID int) (*models.Payout, error)
	// MarkProcessing flips PENDING to PROCESSING. Only one concurrent caller gets nil.
	MarkProcessing(ctx context.Context, exec SQLExecutor, id string, reviewerID *int) error
	MarkCompleted(ctx context.Context, exec SQLExecutor, id string, transferID string) error
	MarkFailed(ctx context.Context, exec SQLExecutor, id string, reason string) error
	MarkRejected(ctx context.Context, exec SQLExecutor, id string, reviewerID *int, reason string) error
	// BackfillEntitlement sets entitlement and placement only when both are still empty.
	BackfillEntitlement(ctx context.Context, exec SQLExecutor, id string, amount decimal.Decimal, placement int) error
	UpdateAntiCheatHold(ctx context.Context, exec SQLExecutor, id string, hold bool) error
	ListStaleProcessing(ctx context.Context, exec SQLExecutor, olderThan time.Time) ([]*models.Payout, error)
}

type postgresPayoutRepository struct {
	db *sql.DB
}

func NewPostgresPayoutRepository(db *sql.DB) PayoutRepository {
	return &postgresPayoutRepository{db: db}
}

func (r *postgresPayoutRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const payoutColumns = `
	id, user_id, tournament_id, amount, entitlement_amount, placement, status,
	anti_cheat_hold, kyc_verified_at, provider_transfer_id, failure_reason, reviewed_by,
	created_at, updated_at`

func (r *postgresPayoutRepository) scanPayout(row rowScanner) (*models.Payout, error) {
	p := &models.Payout{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.TournamentID, &p.Amount, &p.EntitlementAmount, &p.Placement, &p.Status,
		&p.AntiCheatHold, &p.KYCVerifiedAt, &p.ProviderTransferID, &p.FailureReason, &p.ReviewedBy,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *postgresPayoutRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Payout) error {
	// ON CONFLICT keeps the surrounding transaction usable when the pair already exists.
	query := `
		INSERT INTO payouts (id, user_id, tournament_id, amount, entitlement_amount, placement, status,
			anti_cheat_hold, kyc_verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, tournament_id) DO NOTHING
		RETURNING created_at, updated_at`
	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		p.ID, p.UserID, p.TournamentID, p.Amount, p.EntitlementAmount, p.Placement, p.Status,
		p.AntiCheatHold, p.KYCVerifiedAt,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPayoutExists
		}
		return fmt.Errorf("failed to create payout: %w", err)
	}
	return nil
}

func (r *postgresPayoutRepository) GetByID(ctx context.Context, exec SQLExecutor, id string) (*models.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1`
	return r.scanPayout(r.getExecutor(exec).QueryRowContext(ctx, query, id))
}

func (r *postgresPayoutRepository) GetByUserAndTournament(ctx context.Context, exec SQLExecutor, userID, tournamentID int) (*models.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE user_id = $1 AND tournament_id = $2`
	return r.scanPayout(r.getExecutor(exec).QueryRowContext(ctx, query, userID, tournamentID))
}

func (r *postgresPayoutRepository) transition(ctx context.Context, exec SQLExecutor, id string, from, to models.PayoutStatus, set string, args ...interface{}) error {
	query := fmt.Sprintf(`UPDATE payouts SET status = $1, updated_at = NOW()%s WHERE id = $2 AND status = $3`, set)
	all := append([]interface{}{to, id, from}, args...)
	result, err := r.getExecutor(exec).ExecContext(ctx, query, all...)
	if err != nil {
		return fmt.Errorf("failed to move payout %s to %s: %w", id, to, err)
	}
	return checkAffectedRows(result, ErrPayoutStatusConflict)
}

func (r *postgresPayoutRepository) MarkProcessing(ctx context.Context, exec SQLExecutor, id string, reviewerID *int) error {
	return r.transition(ctx, exec, id, models.PayoutStatusPending, models.PayoutStatusProcessing,
		", reviewed_by = $4", reviewerID)
}

func (r *postgresPayoutRepository) MarkCompleted(ctx context.Context, exec SQLExecutor, id string, transferID string) error {
	return r.transition(ctx, exec, id, models.PayoutStatusProcessing, models.PayoutStatusCompleted,
		", provider_transfer_id = $4", transferID)
}

func (r *postgresPayoutRepository) MarkFailed(ctx context.Context, exec SQLExecutor, id string, reason string) error {
	return r.transition(ctx, exec, id, models.PayoutStatusProcessing, models.PayoutStatusFailed,
		", failure_reason = $4", reason)
}

func (r *postgresPayoutRepository) MarkRejected(ctx context.Context, exec SQLExecutor, id string, reviewerID *int, reason string) error {
	return r.transition(ctx, exec, id, models.PayoutStatusPending, models.PayoutStatusRejected,
		", reviewed_by = $4, failure_reason = $5", reviewerID, reason)
}

func (r *postgresPayoutRepository) BackfillEntitlement(ctx context.Context, exec SQLExecutor, id string, amount decimal.Decimal, placement int) error {
	query := `
		UPDATE payouts SET entitlement_amount = $1, placement = $2, updated_at = NOW()
		WHERE id = $3 AND entitlement_amount IS NULL AND placement IS NULL`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, amount, placement, id)
	if err != nil {
		return fmt.Errorf("failed to backfill entitlement for payout %s: %w", id, err)
	}
	return checkAffectedRows(result, ErrEntitlementAlreadySet)
}

func (r *postgresPayoutRepository) UpdateAntiCheatHold(ctx context.Context, exec SQLExecutor, id string, hold bool) error {
	query := `UPDATE payouts SET anti_cheat_hold = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, hold, id)
	if err != nil {
		return fmt.Errorf("failed to update anti-cheat hold for payout %s: %w", id, err)
	}
	return checkAffectedRows(result, ErrPayoutNotFound)
}

func (r *postgresPayoutRepository) ListStaleProcessing(ctx context.Context, exec SQLExecutor, olderThan time.Time) ([]*models.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC`
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, models.PayoutStatusProcessing, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale payouts: %w", err)
	}
	defer rows.Close()

	payouts := make([]*models.Payout, 0)
	for rows.Next() {
		p, scanErr := r.scanPayout(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan payout row: %w", scanErr)
		}
		payouts = append(payouts, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during payout rows iteration: %w", err)
	}
	return payouts, nil
}
