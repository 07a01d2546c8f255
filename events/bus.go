package events

import (
	"context"
	"encoding/json"
	"time"
)

// Типы событий, публикуемых после фиксации транзакции.
const (
	TypeStandingsUpdated    = "standings.updated"
	TypeRoundStarted        = "round.started"
	TypeTournamentCompleted = "tournament.completed"
	TypeLedgerAppended      = "ledger.appended"
	TypePayoutUpdated       = "payout.updated"
	TypeEntryUpdated        = "entry.updated"
)

type Event struct {
	Type         string          `json:"type"`
	TournamentID int             `json:"tournament_id"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// New builds an event, marshalling payload. A payload that cannot be
// marshalled is dropped rather than failing the caller.
func New(eventType string, tournamentID int, payload interface{}) Event {
	evt := Event{Type: eventType, TournamentID: tournamentID, OccurredAt: time.Now().UTC()}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			evt.Payload = raw
		}
	}
	return evt
}

// Bus carries notifications between instances.
type Bus interface {
	Publish(ctx context.Context, evt Event) error
	// Subscribe returns a channel that is closed when ctx is done.
	Subscribe(ctx context.Context) (<-chan Event, error)
	Close() error
}
