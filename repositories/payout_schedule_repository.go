package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dosada05/tournament-settlement/models"
)

type PayoutScheduleRepository interface {
	// ListByTournament returns slots ordered by position.
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.PayoutScheduleSlot, error)
	CreateSlots(ctx context.Context, exec SQLExecutor, slots []*models.PayoutScheduleSlot) error
}

type postgresPayoutScheduleRepository struct {
	db *sql.DB
}

func NewPostgresPayoutScheduleRepository(db *sql.DB) PayoutScheduleRepository {
	return &postgresPayoutScheduleRepository{db: db}
}

func (r *postgresPayoutScheduleRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresPayoutScheduleRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.PayoutScheduleSlot, error) {
	query := `
		SELECT id, tournament_id, position, percent
		FROM payout_schedules WHERE tournament_id = $1
		ORDER BY position ASC`
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payout schedule for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	slots := make([]*models.PayoutScheduleSlot, 0)
	for rows.Next() {
		s := &models.PayoutScheduleSlot{}
		if err := rows.Scan(&s.ID, &s.TournamentID, &s.Position, &s.Percent); err != nil {
			return nil, fmt.Errorf("failed to scan payout schedule row: %w", err)
		}
		slots = append(slots, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during payout schedule rows iteration: %w", err)
	}
	return slots, nil
}

func (r *postgresPayoutScheduleRepository) CreateSlots(ctx context.Context, exec SQLExecutor, slots []*models.PayoutScheduleSlot) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO payout_schedules (tournament_id, position, percent)
		VALUES ($1, $2, $3)
		ON CONFLICT (tournament_id, position) DO NOTHING
		RETURNING id`
	for _, s := range slots {
		err := executor.QueryRowContext(ctx, query, s.TournamentID, s.Position, s.Percent).Scan(&s.ID)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to create payout slot %d: %w", s.Position, err)
		}
	}
	return nil
}
