package models

import (
	"encoding/json"
	"time"
)

type AuditRecord struct {
	ID          int64           `json:"id"`
	Action      string          `json:"action"`
	ActorID     *int            `json:"actor_id,omitempty"`
	EntityType  string          `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	BeforeState json.RawMessage `json:"before_state,omitempty"`
	AfterState  json.RawMessage `json:"after_state,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
