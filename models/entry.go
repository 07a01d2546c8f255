package models

import "time"

type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "PENDING"
	EntryStatusConfirmed EntryStatus = "CONFIRMED"
	EntryStatusCancelled EntryStatus = "CANCELLED"
)

// Entry - регистрация игрока в турнире. Одна на пару (user, tournament).
type Entry struct {
	ID               int         `json:"id" db:"id"`
	UserID           int         `json:"user_id" db:"user_id"`
	TournamentID     int         `json:"tournament_id" db:"tournament_id"`
	Status           EntryStatus `json:"status" db:"status"`
	PaymentReference *string     `json:"-" db:"payment_reference"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	ConfirmedAt      *time.Time  `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CancelledAt      *time.Time  `json:"cancelled_at,omitempty" db:"cancelled_at"`
}
