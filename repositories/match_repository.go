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
	ErrMatchNotFound          = errors.New("match not found")
	ErrMatchAlreadyCompleted  = errors.New("match already has a result")
	ErrRoundAlreadyExists     = errors.New("matches for this round already exist")
	ErrMatchTournamentInvalid = errors.New("match tournament conflict or invalid")
)

type MatchRepository interface {
	CreateBatch(ctx context.Context, exec SQLExecutor, matches []*models.Match) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, round *int) ([]*models.Match, error)
	MaxRound(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	CountByRound(ctx context.Context, exec SQLExecutor, tournamentID, round int) (total int, completed int, err error)
	RecordResult(ctx context.Context, exec SQLExecutor, id int, result models.MatchResult, at time.Time) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `id, tournament_id, round, board, player1_id, player2_id, result, status, created_at, completed_at`

func (r *postgresMatchRepository) scanMatch(row rowScanner) (*models.Match, error) {
	m := &models.Match{}
	err := row.Scan(&m.ID, &m.TournamentID, &m.Round, &m.Board, &m.Player1ID, &m.Player2ID, &m.Result, &m.Status, &m.CreatedAt, &m.CompletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return m, nil
}

// CreateBatch inserts a whole round. The (tournament_id, round, board) unique
// key makes a duplicate round insert fail instead of doubling the round.
func (r *postgresMatchRepository) CreateBatch(ctx context.Context, exec SQLExecutor, matches []*models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO matches (tournament_id, round, board, player1_id, player2_id, result, status, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	for _, m := range matches {
		var completedAt *time.Time
		if m.Status == models.MatchStatusCompleted {
			now := time.Now().UTC()
			completedAt = &now
			m.CompletedAt = completedAt
		}
		err := executor.QueryRowContext(ctx, query,
			m.TournamentID, m.Round, m.Board, m.Player1ID, m.Player2ID, m.Result, m.Status, completedAt,
		).Scan(&m.ID, &m.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create match round %d board %d: %w", m.Round, m.Board, r.handleMatchError(err))
		}
	}
	return nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	return r.scanMatch(r.getExecutor(exec).QueryRowContext(ctx, query, id))
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, roundFilter *int) ([]*models.Match, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + matchColumns + ` FROM matches WHERE tournament_id = $1`)
	args := []interface{}{tournamentID}
	if roundFilter != nil {
		queryBuilder.WriteString(" AND round = $")
		queryBuilder.WriteString(strconv.Itoa(len(args) + 1))
		args = append(args, *roundFilter)
	}
	queryBuilder.WriteString(" ORDER BY round ASC, board ASC, id ASC")

	rows, err := r.getExecutor(exec).QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		m, scanErr := r.scanMatch(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) MaxRound(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	var round int
	query := `SELECT COALESCE(MAX(round), 0) FROM matches WHERE tournament_id = $1`
	if err := r.getExecutor(exec).QueryRowContext(ctx, query, tournamentID).Scan(&round); err != nil {
		return 0, fmt.Errorf("failed to read max round for tournament %d: %w", tournamentID, err)
	}
	return round, nil
}

func (r *postgresMatchRepository) CountByRound(ctx context.Context, exec SQLExecutor, tournamentID, round int) (int, int, error) {
	var total, completed int
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = $3)
		FROM matches WHERE tournament_id = $1 AND round = $2`
	err := r.getExecutor(exec).QueryRowContext(ctx, query, tournamentID, round, models.MatchStatusCompleted).Scan(&total, &completed)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count matches of round %d: %w", round, err)
	}
	return total, completed, nil
}

func (r *postgresMatchRepository) RecordResult(ctx context.Context, exec SQLExecutor, id int, result models.MatchResult, at time.Time) error {
	query := `
		UPDATE matches SET result = $1, status = $2, completed_at = $3
		WHERE id = $4 AND status = $5 AND player2_id IS NOT NULL`
	res, err := r.getExecutor(exec).ExecContext(ctx, query,
		result, models.MatchStatusCompleted, at, id, models.MatchStatusScheduled)
	if err != nil {
		return fmt.Errorf("failed to record result for match %d: %w", id, err)
	}
	return checkAffectedRows(res, ErrMatchAlreadyCompleted)
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	if constraint, ok := constraintViolation(err); ok {
		switch constraint {
		case "matches_tournament_id_round_board_key":
			return ErrRoundAlreadyExists
		case "matches_tournament_id_fkey":
			return ErrMatchTournamentInvalid
		}
	}
	return err
}
