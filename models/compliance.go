package models

import "time"

type KYCStatus string

const (
	KYCStatusPending  KYCStatus = "PENDING"
	KYCStatusVerified KYCStatus = "VERIFIED"
	KYCStatusRejected KYCStatus = "REJECTED"
)

type KYCRecord struct {
	UserID     int        `json:"user_id"`
	Status     KYCStatus  `json:"status"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

type AntiCheatStatus string

const (
	AntiCheatSoftFlag  AntiCheatStatus = "SOFT_FLAG"
	AntiCheatHardFlag  AntiCheatStatus = "HARD_FLAG"
	AntiCheatAppealed  AntiCheatStatus = "APPEALED"
	AntiCheatResolved  AntiCheatStatus = "RESOLVED"
	AntiCheatDismissed AntiCheatStatus = "DISMISSED"
)

type AntiCheatCase struct {
	ID           int             `json:"id"`
	UserID       int             `json:"user_id"`
	TournamentID int             `json:"tournament_id"`
	Status       AntiCheatStatus `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (c *AntiCheatCase) IsHold() bool {
	switch c.Status {
	case AntiCheatSoftFlag, AntiCheatHardFlag, AntiCheatAppealed:
		return true
	}
	return false
}

// HasHold - удержание есть, если хотя бы одно дело открыто.
func HasHold(cases []*AntiCheatCase) bool {
	for _, c := range cases {
		if c.IsHold() {
			return true
		}
	}
	return false
}

type SeasonMode string

const (
	SeasonModeFree SeasonMode = "free"
	SeasonModePaid SeasonMode = "paid"
)

type PrizeMode string

const (
	PrizeModeCash     PrizeMode = "cash"
	PrizeModeGiftCard PrizeMode = "gift_card"
)

type Season struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	Mode      SeasonMode `json:"mode"`
	PrizeMode PrizeMode  `json:"prize_mode"`
}
