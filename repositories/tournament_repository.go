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
	ErrTournamentNotFound       = errors.New("tournament not found")
	ErrTournamentNameConflict   = errors.New("tournament name already exists")
	ErrTournamentInvalidSeason  = errors.New("invalid season reference")
	ErrTournamentStatusConflict = errors.New("tournament status changed concurrently")
)

type TournamentRepository interface {
	Create(ctx context.Context, exec SQLExecutor, tournament *models.Tournament) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	// GetForUpdate locks the tournament row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error
	SetPrizePool(ctx context.Context, exec SQLExecutor, id int, prizePool decimal.Decimal) error
	AdjustCurrentPlayers(ctx context.Context, exec SQLExecutor, id int, delta int) error
	ListDueToStart(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Tournament, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, name, season_id, status, entry_fee, prize_pool, current_players, max_players,
	start_date, lock_at, created_at`

func (r *postgresTournamentRepository) scanTournament(row rowScanner) (*models.Tournament, error) {
	t := &models.Tournament{}
	err := row.Scan(
		&t.ID, &t.Name, &t.SeasonID, &t.Status, &t.EntryFee, &t.PrizePool, &t.CurrentPlayers, &t.MaxPlayers,
		&t.StartDate, &t.LockAt, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *postgresTournamentRepository) Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments (name, season_id, status, entry_fee, prize_pool, current_players, max_players, start_date, lock_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		t.Name, t.SeasonID, t.Status, t.EntryFee, t.PrizePool, t.CurrentPlayers, t.MaxPlayers, t.StartDate, t.LockAt,
	).Scan(&t.ID, &t.CreatedAt)

	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	return r.scanTournament(r.getExecutor(exec).QueryRowContext(ctx, query, id))
}

func (r *postgresTournamentRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1 FOR UPDATE`
	return r.scanTournament(r.getExecutor(exec).QueryRowContext(ctx, query, id))
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error {
	query := `UPDATE tournaments SET status = $1 WHERE id = $2 AND status = $3`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update status of tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentStatusConflict)
}

func (r *postgresTournamentRepository) SetPrizePool(ctx context.Context, exec SQLExecutor, id int, prizePool decimal.Decimal) error {
	query := `UPDATE tournaments SET prize_pool = $1 WHERE id = $2`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, prizePool, id)
	if err != nil {
		return fmt.Errorf("failed to set prize pool of tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) AdjustCurrentPlayers(ctx context.Context, exec SQLExecutor, id int, delta int) error {
	query := `UPDATE tournaments SET current_players = GREATEST(current_players + $1, 0) WHERE id = $2`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, delta, id)
	if err != nil {
		return fmt.Errorf("failed to adjust players of tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) ListDueToStart(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + `
		FROM tournaments
		WHERE status = $1 AND start_date <= $2
		ORDER BY start_date ASC, id ASC`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, models.TournamentStatusRegistration, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments due to start: %w", err)
	}
	defer rows.Close()

	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		t, scanErr := r.scanTournament(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		tournaments = append(tournaments, t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	if constraint, ok := constraintViolation(err); ok {
		switch constraint {
		case "tournaments_name_key":
			return ErrTournamentNameConflict
		case "tournaments_season_id_fkey":
			return ErrTournamentInvalidSeason
		}
	}
	return err
}
