package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-settlement/models"
	"github.com/shopspring/decimal"
)

var ErrLedgerEntryNotFound = errors.New("ledger entry not found")

// LedgerRepository is append-only: there is no update or delete.
type LedgerRepository interface {
	// LastBalance returns the balance of the latest entry, zero for an empty ledger.
	LastBalance(ctx context.Context, exec SQLExecutor, tournamentID int) (decimal.Decimal, error)
	Insert(ctx context.Context, exec SQLExecutor, entry *models.PrizePoolLedgerEntry) error
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.PrizePoolLedgerEntry, error)
	// DistributableBalance sums every balance-affecting entry except payouts.
	DistributableBalance(ctx context.Context, exec SQLExecutor, tournamentID int) (decimal.Decimal, error)
	FindByUserAndType(ctx context.Context, exec SQLExecutor, tournamentID, userID int, entryType models.LedgerEntryType) ([]*models.PrizePoolLedgerEntry, error)
}

type postgresLedgerRepository struct {
	db *sql.DB
}

func NewPostgresLedgerRepository(db *sql.DB) LedgerRepository {
	return &postgresLedgerRepository{db: db}
}

func (r *postgresLedgerRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const ledgerColumns = `
	id, tournament_id, type, amount, balance, affects_balance,
	related_user_id, related_payout_id, description, created_at`

func scanLedgerEntry(row rowScanner) (*models.PrizePoolLedgerEntry, error) {
	e := &models.PrizePoolLedgerEntry{}
	err := row.Scan(&e.ID, &e.TournamentID, &e.Type, &e.Amount, &e.Balance, &e.AffectsBalance,
		&e.RelatedUserID, &e.RelatedPayoutID, &e.Description, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLedgerEntryNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *postgresLedgerRepository) LastBalance(ctx context.Context, exec SQLExecutor, tournamentID int) (decimal.Decimal, error) {
	var balance decimal.Decimal
	query := `
		SELECT balance FROM prize_pool_ledger
		WHERE tournament_id = $1
		ORDER BY id DESC LIMIT 1`
	err := r.getExecutor(exec).QueryRowContext(ctx, query, tournamentID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("failed to read ledger balance for tournament %d: %w", tournamentID, err)
	}
	return balance, nil
}

func (r *postgresLedgerRepository) Insert(ctx context.Context, exec SQLExecutor, e *models.PrizePoolLedgerEntry) error {
	query := `
		INSERT INTO prize_pool_ledger (tournament_id, type, amount, balance, affects_balance,
			related_user_id, related_payout_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`
	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		e.TournamentID, e.Type, e.Amount, e.Balance, e.AffectsBalance,
		e.RelatedUserID, e.RelatedPayoutID, e.Description,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert %s ledger entry: %w", e.Type, err)
	}
	return nil
}

func (r *postgresLedgerRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.PrizePoolLedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM prize_pool_ledger WHERE tournament_id = $1 ORDER BY id ASC`
	return r.list(ctx, exec, query, tournamentID)
}

func (r *postgresLedgerRepository) DistributableBalance(ctx context.Context, exec SQLExecutor, tournamentID int) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := `
		SELECT COALESCE(SUM(amount), 0) FROM prize_pool_ledger
		WHERE tournament_id = $1 AND affects_balance AND type <> $2`
	err := r.getExecutor(exec).QueryRowContext(ctx, query, tournamentID, models.LedgerPayout).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum distributable pool for tournament %d: %w", tournamentID, err)
	}
	return total, nil
}

func (r *postgresLedgerRepository) FindByUserAndType(ctx context.Context, exec SQLExecutor, tournamentID, userID int, entryType models.LedgerEntryType) ([]*models.PrizePoolLedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM prize_pool_ledger
		WHERE tournament_id = $1 AND related_user_id = $2 AND type = $3
		ORDER BY id ASC`
	return r.list(ctx, exec, query, tournamentID, userID, entryType)
}

func (r *postgresLedgerRepository) list(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]*models.PrizePoolLedgerEntry, error) {
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.PrizePoolLedgerEntry, 0)
	for rows.Next() {
		e, scanErr := scanLedgerEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during ledger rows iteration: %w", err)
	}
	return entries, nil
}
