package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type LedgerEntryType string

const (
	LedgerEntryFee    LedgerEntryType = "ENTRY_FEE"
	LedgerPlatformFee LedgerEntryType = "PLATFORM_FEE"
	LedgerStripeFee   LedgerEntryType = "STRIPE_FEE"
	LedgerPayout      LedgerEntryType = "PAYOUT"
	LedgerRefund      LedgerEntryType = "REFUND"
	LedgerSeed        LedgerEntryType = "SEED"
)

// PrizePoolLedgerEntry - запись журнала призового фонда. Только вставка, без UPDATE/DELETE.
type PrizePoolLedgerEntry struct {
	ID              int64           `json:"id" db:"id"`
	TournamentID    int             `json:"tournament_id" db:"tournament_id"`
	Type            LedgerEntryType `json:"type" db:"type"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Balance         decimal.Decimal `json:"balance" db:"balance"`
	AffectsBalance  bool            `json:"affects_balance" db:"affects_balance"`
	RelatedUserID   *int            `json:"related_user_id,omitempty" db:"related_user_id"`
	RelatedPayoutID *string         `json:"related_payout_id,omitempty" db:"related_payout_id"`
	Description     string          `json:"description,omitempty" db:"description"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}
