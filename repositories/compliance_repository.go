package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-settlement/models"
)

var ErrSeasonNotFound = errors.New("season not found")

// ComplianceRepository reads the KYC store, the anti-cheat registry and the
// season configuration. All three are owned by other systems.
type ComplianceRepository interface {
	// GetKYC never fails with not-found: a user without a record is PENDING.
	GetKYC(ctx context.Context, exec SQLExecutor, userID int) (*models.KYCRecord, error)
	ListAntiCheatCases(ctx context.Context, exec SQLExecutor, userID, tournamentID int) ([]*models.AntiCheatCase, error)
	GetSeasonByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (*models.Season, error)
}

type postgresComplianceRepository struct {
	db *sql.DB
}

func NewPostgresComplianceRepository(db *sql.DB) ComplianceRepository {
	return &postgresComplianceRepository{db: db}
}

func (r *postgresComplianceRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresComplianceRepository) GetKYC(ctx context.Context, exec SQLExecutor, userID int) (*models.KYCRecord, error) {
	rec := &models.KYCRecord{UserID: userID}
	query := `SELECT status, verified_at FROM kyc_records WHERE user_id = $1`
	err := r.getExecutor(exec).QueryRowContext(ctx, query, userID).Scan(&rec.Status, &rec.VerifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			rec.Status = models.KYCStatusPending
			return rec, nil
		}
		return nil, fmt.Errorf("failed to read kyc for user %d: %w", userID, err)
	}
	return rec, nil
}

func (r *postgresComplianceRepository) ListAntiCheatCases(ctx context.Context, exec SQLExecutor, userID, tournamentID int) ([]*models.AntiCheatCase, error) {
	query := `
		SELECT id, user_id, tournament_id, status, created_at
		FROM anti_cheat_cases WHERE user_id = $1 AND tournament_id = $2
		ORDER BY id ASC`
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, userID, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query anti-cheat cases: %w", err)
	}
	defer rows.Close()

	cases := make([]*models.AntiCheatCase, 0)
	for rows.Next() {
		c := &models.AntiCheatCase{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.TournamentID, &c.Status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan anti-cheat case: %w", err)
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

func (r *postgresComplianceRepository) GetSeasonByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (*models.Season, error) {
	query := `
		SELECT s.id, s.name, s.mode, s.prize_mode
		FROM seasons s JOIN tournaments t ON t.season_id = s.id
		WHERE t.id = $1`
	s := &models.Season{}
	err := r.getExecutor(exec).QueryRowContext(ctx, query, tournamentID).Scan(&s.ID, &s.Name, &s.Mode, &s.PrizeMode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSeasonNotFound
		}
		return nil, err
	}
	return s, nil
}
