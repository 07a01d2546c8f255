package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TournamentStatus представляет статусы турнира, соответствующие ENUM в БД.
type TournamentStatus string

const (
	TournamentStatusRegistration TournamentStatus = "REGISTRATION"
	TournamentStatusInProgress   TournamentStatus = "IN_PROGRESS"
	TournamentStatusCompleted    TournamentStatus = "COMPLETED"
	TournamentStatusCancelled    TournamentStatus = "CANCELLED"
)

// Tournament представляет турнир со швейцарской системой и призовым фондом.
type Tournament struct {
	ID             int              `json:"id" db:"id"`
	Name           string           `json:"name" db:"name"`
	SeasonID       int              `json:"season_id" db:"season_id"`
	Status         TournamentStatus `json:"status" db:"status"`
	EntryFee       decimal.Decimal  `json:"entry_fee" db:"entry_fee"`
	PrizePool      decimal.Decimal  `json:"prize_pool" db:"prize_pool"` // projection of the ledger balance
	CurrentPlayers int              `json:"current_players" db:"current_players"`
	MaxPlayers     int              `json:"max_players" db:"max_players"`
	StartDate      time.Time        `json:"start_date" db:"start_date"`
	LockAt         time.Time        `json:"lock_at" db:"lock_at"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
}

var tournamentTransitions = map[TournamentStatus][]TournamentStatus{
	TournamentStatusRegistration: {TournamentStatusInProgress, TournamentStatusCancelled},
	TournamentStatusInProgress:   {TournamentStatusCompleted, TournamentStatusCancelled},
	TournamentStatusCompleted:    {},
	TournamentStatusCancelled:    {},
}

// CanTransitionTo reports whether next is a legal forward move from s.
func (s TournamentStatus) CanTransitionTo(next TournamentStatus) bool {
	for _, allowed := range tournamentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
