package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "PENDING"
	PayoutStatusProcessing PayoutStatus = "PROCESSING"
	PayoutStatusCompleted  PayoutStatus = "COMPLETED"
	PayoutStatusFailed     PayoutStatus = "FAILED"
	PayoutStatusRejected   PayoutStatus = "REJECTED"
)

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusPending:    {PayoutStatusProcessing, PayoutStatusRejected},
	PayoutStatusProcessing: {PayoutStatusCompleted, PayoutStatusFailed},
}

// CanTransitionTo - статусы выплаты двигаются только вперёд.
func (s PayoutStatus) CanTransitionTo(next PayoutStatus) bool {
	for _, allowed := range payoutTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s PayoutStatus) IsTerminal() bool {
	return len(payoutTransitions[s]) == 0
}

// Payout - выплата приза. Одна на пару (user, tournament).
type Payout struct {
	ID                 string           `json:"id" db:"id"`
	UserID             int              `json:"user_id" db:"user_id"`
	TournamentID       int              `json:"tournament_id" db:"tournament_id"`
	Amount             decimal.Decimal  `json:"amount" db:"amount"`
	EntitlementAmount  *decimal.Decimal `json:"entitlement_amount,omitempty" db:"entitlement_amount"`
	Placement          *int             `json:"placement,omitempty" db:"placement"`
	Status             PayoutStatus     `json:"status" db:"status"`
	AntiCheatHold      bool             `json:"anti_cheat_hold" db:"anti_cheat_hold"`
	KYCVerifiedAt      *time.Time       `json:"kyc_verified_at,omitempty" db:"kyc_verified_at"`
	ProviderTransferID *string          `json:"provider_transfer_id,omitempty" db:"provider_transfer_id"`
	FailureReason      *string          `json:"failure_reason,omitempty" db:"failure_reason"`
	ReviewedBy         *int             `json:"reviewed_by,omitempty" db:"reviewed_by"`
	CreatedAt          time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at" db:"updated_at"`
}
