package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Dosada05/tournament-settlement/models"
)

var (
	ErrEntryNotFound          = errors.New("entry not found")
	ErrEntryExists            = errors.New("user is already registered for this tournament")
	ErrEntryTournamentInvalid = errors.New("entry tournament conflict or invalid")
	ErrEntryStatusConflict    = errors.New("entry status changed concurrently")
)

type EntryRepository interface {
	Create(ctx context.Context, exec SQLExecutor, entry *models.Entry) error
	GetByUserAndTournament(ctx context.Context, exec SQLExecutor, userID, tournamentID int) (*models.Entry, error)
	GetForUpdate(ctx context.Context, exec SQLExecutor, userID, tournamentID int) (*models.Entry, error)
	// ListByTournament returns entries in registration order.
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, status *models.EntryStatus) ([]*models.Entry, error)
	Confirm(ctx context.Context, exec SQLExecutor, id int, paymentReference string, at time.Time) error
	Cancel(ctx context.Context, exec SQLExecutor, id int, at time.Time) error
}

type postgresEntryRepository struct {
	db *sql.DB
}

func NewPostgresEntryRepository(db *sql.DB) EntryRepository {
	return &postgresEntryRepository{db: db}
}

func (r *postgresEntryRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const entryColumns = `id, user_id, tournament_id, status, payment_reference, created_at, confirmed_at, cancelled_at`

func (r *postgresEntryRepository) scanEntry(row rowScanner) (*models.Entry, error) {
	e := &models.Entry{}
	err := row.Scan(&e.ID, &e.UserID, &e.TournamentID, &e.Status, &e.PaymentReference, &e.CreatedAt, &e.ConfirmedAt, &e.CancelledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *postgresEntryRepository) Create(ctx context.Context, exec SQLExecutor, e *models.Entry) error {
	query := `
		INSERT INTO entries (user_id, tournament_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	err := r.getExecutor(exec).QueryRowContext(ctx, query, e.UserID, e.TournamentID, e.Status).Scan(&e.ID, &e.CreatedAt)
	return r.handleEntryError(err)
}

func (r *postgresEntryRepository) GetByUserAndTournament(ctx context.Context, exec SQLExecutor, userID, tournamentID int) (*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE user_id = $1 AND tournament_id = $2`
	return r.scanEntry(r.getExecutor(exec).QueryRowContext(ctx, query, userID, tournamentID))
}

func (r *postgresEntryRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, userID, tournamentID int) (*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE user_id = $1 AND tournament_id = $2 FOR UPDATE`
	return r.scanEntry(r.getExecutor(exec).QueryRowContext(ctx, query, userID, tournamentID))
}

func (r *postgresEntryRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, status *models.EntryStatus) ([]*models.Entry, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + entryColumns + ` FROM entries WHERE tournament_id = $1`)
	args := []interface{}{tournamentID}
	if status != nil {
		queryBuilder.WriteString(" AND status = $")
		queryBuilder.WriteString(strconv.Itoa(len(args) + 1))
		args = append(args, *status)
	}
	queryBuilder.WriteString(" ORDER BY created_at ASC, id ASC")

	rows, err := r.getExecutor(exec).QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	entries := make([]*models.Entry, 0)
	for rows.Next() {
		e, scanErr := r.scanEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during entry rows iteration: %w", err)
	}
	return entries, nil
}

func (r *postgresEntryRepository) Confirm(ctx context.Context, exec SQLExecutor, id int, paymentReference string, at time.Time) error {
	query := `
		UPDATE entries SET status = $1, payment_reference = $2, confirmed_at = $3
		WHERE id = $4 AND status = $5`
	result, err := r.getExecutor(exec).ExecContext(ctx, query,
		models.EntryStatusConfirmed, paymentReference, at, id, models.EntryStatusPending)
	if err != nil {
		return fmt.Errorf("failed to confirm entry %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrEntryStatusConflict)
}

func (r *postgresEntryRepository) Cancel(ctx context.Context, exec SQLExecutor, id int, at time.Time) error {
	query := `UPDATE entries SET status = $1, cancelled_at = $2 WHERE id = $3 AND status <> $1`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, models.EntryStatusCancelled, at, id)
	if err != nil {
		return fmt.Errorf("failed to cancel entry %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrEntryStatusConflict)
}

func (r *postgresEntryRepository) handleEntryError(err error) error {
	if err == nil {
		return nil
	}
	if constraint, ok := constraintViolation(err); ok {
		switch constraint {
		case "entries_user_id_tournament_id_key":
			return ErrEntryExists
		case "entries_tournament_id_fkey":
			return ErrEntryTournamentInvalid
		}
	}
	return err
}
