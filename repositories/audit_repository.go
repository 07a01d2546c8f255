package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dosada05/tournament-settlement/models"
)

type AuditRepository interface {
	Record(ctx context.Context, exec SQLExecutor, record *models.AuditRecord) error
}

type postgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) AuditRepository {
	return &postgresAuditRepository{db: db}
}

func (r *postgresAuditRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresAuditRepository) Record(ctx context.Context, exec SQLExecutor, rec *models.AuditRecord) error {
	query := `
		INSERT INTO audit_log (action, actor_id, entity_type, entity_id, before_state, after_state)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		rec.Action, rec.ActorID, rec.EntityType, rec.EntityID, nullableJSON(rec.BeforeState), nullableJSON(rec.AfterState),
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to write audit record %s: %w", rec.Action, err)
	}
	return nil
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
