package services

import "errors"

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден
	ErrNotFound           = errors.New("requested resource not found")
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrEntryNotFound      = errors.New("entry not found")
	ErrMatchNotFound      = errors.New("match not found")
	ErrPayoutNotFound     = errors.New("payout not found")
	ErrUserNotFound       = errors.New("user not found")

	// Ошибки валидации
	ErrValidationFailed      = errors.New("validation failed")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrInvalidMatchResult    = errors.New("match result must be PLAYER1, PLAYER2 or DRAW")
	ErrPaymentAmountMismatch = errors.New("paid amount does not match the entry fee")
	ErrInvalidSchedule       = errors.New("payout schedule positions must be unique and start at 1, percents must sum to at most 100")

	// Ошибки авторизации
	ErrForbiddenOperation = errors.New("operation not allowed for the current user")

	// Ошибки предусловий
	ErrSeasonNotCash           = errors.New("season does not pay cash prizes")
	ErrTournamentNotCompleted  = errors.New("tournament is not completed")
	ErrTournamentNotInProgress = errors.New("tournament is not in progress")
	ErrRegistrationNotOpen     = errors.New("tournament registration is not open")
	ErrTournamentFull          = errors.New("tournament registration is full")
	ErrNotEnoughPlayers        = errors.New("not enough confirmed entries to start (minimum 2)")
	ErrEntryNotConfirmed       = errors.New("caller has no confirmed entry in this tournament")
	ErrEntryCancelled          = errors.New("entry is cancelled")
	ErrKYCNotVerified          = errors.New("kyc verification is required for cash payouts")
	ErrAntiCheatHold           = errors.New("payout is on anti-cheat hold")
	ErrNoEntitlement           = errors.New("no prize entitlement for this placement")
	ErrNoPaymentDestination    = errors.New("recipient has no payment destination")
	ErrRefundNotAllowed        = errors.New("entry is not refundable")
	ErrRoundNotComplete        = errors.New("current round still has unfinished matches")
	ErrStatementsDisabled      = errors.New("statement export is not configured")
	ErrLatePaymentRefunded     = errors.New("payment arrived after registration closed and was refunded")

	// Ошибки конфликтов
	ErrEntryExists             = errors.New("user is already registered for this tournament")
	ErrTournamentNameConflict  = errors.New("tournament name already exists")
	ErrPayoutAlreadyProcessed  = errors.New("payout was already processed")
	ErrRoundAlreadyAdvanced    = errors.New("round was already advanced")
	ErrMatchAlreadyReported    = errors.New("match result was already reported")
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// Целостность: пересчитанное право на приз не совпадает с сохранённым.
	ErrEntitlementMismatch = errors.New("recomputed entitlement does not match the stored entitlement")
	ErrLedgerInconsistent  = errors.New("ledger balance does not match its entries or the prize pool")

	// Внешний платёжный провайдер
	ErrProviderFailure = errors.New("payment provider call failed")
)
