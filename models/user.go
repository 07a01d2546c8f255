package models

import "time"

type UserRole string

const (
	RoleUser  UserRole = "USER"
	RoleAdmin UserRole = "ADMIN"
)

type User struct {
	ID               int       `json:"id"`
	Nickname         string    `json:"nickname"`
	Email            string    `json:"email"`
	Role             UserRole  `json:"role"`
	PaymentAccountID *string   `json:"-"` // Stripe connected account
	CreatedAt        time.Time `json:"created_at"`
}

// Actor - вызывающий, полученный от провайдера идентичности.
type Actor struct {
	UserID int
	Role   UserRole
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// SystemActor is used for webhook- and scheduler-driven mutations.
var SystemActor = Actor{UserID: 0, Role: RoleAdmin}
