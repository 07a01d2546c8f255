package models

import "github.com/shopspring/decimal"

// PayoutScheduleSlot maps a 1-based placement to a share of the prize pool.
type PayoutScheduleSlot struct {
	ID           int             `json:"id" db:"id"`
	TournamentID int             `json:"tournament_id" db:"tournament_id"`
	Position     int             `json:"position" db:"position"`
	Percent      decimal.Decimal `json:"percent" db:"percent"`
}

// DefaultPayoutSchedule is winner-takes-all.
func DefaultPayoutSchedule(tournamentID int) []*PayoutScheduleSlot {
	return []*PayoutScheduleSlot{{TournamentID: tournamentID, Position: 1, Percent: decimal.NewFromInt(100)}}
}
