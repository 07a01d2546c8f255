package models

import "time"

type MatchStatus string

const (
	MatchStatusScheduled MatchStatus = "SCHEDULED"
	MatchStatusCompleted MatchStatus = "COMPLETED"
)

type MatchResult string

const (
	MatchResultPlayer1 MatchResult = "PLAYER1"
	MatchResultPlayer2 MatchResult = "PLAYER2"
	MatchResultDraw    MatchResult = "DRAW"
)

func (r MatchResult) Valid() bool {
	switch r {
	case MatchResultPlayer1, MatchResultPlayer2, MatchResultDraw:
		return true
	}
	return false
}

// Match - партия одного тура. Player2ID == nil означает bye.
type Match struct {
	ID           int          `json:"id" db:"id"`
	TournamentID int          `json:"tournament_id" db:"tournament_id"`
	Round        int          `json:"round" db:"round"`
	Board        int          `json:"board" db:"board"`
	Player1ID    int          `json:"player1_id" db:"player1_id"`
	Player2ID    *int         `json:"player2_id,omitempty" db:"player2_id"`
	Result       *MatchResult `json:"result,omitempty" db:"result"`
	Status       MatchStatus  `json:"status" db:"status"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
}

func (m *Match) IsBye() bool {
	return m.Player2ID == nil
}
