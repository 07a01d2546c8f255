package payments

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrIgnoredEvent     = errors.New("webhook event type is not handled")
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrMissingMetadata  = errors.New("payment is missing user_id or tournament_id metadata")
)

// Provider moves money on behalf of the settlement core. Every call carries an
// idempotency key so a retried call never moves money twice.
type Provider interface {
	CreateTransfer(ctx context.Context, destination string, amountMinor int64, idempotencyKey string) (string, error)
	CreateRefund(ctx context.Context, paymentReference string, idempotencyKey string) (string, error)
}

// PaymentConfirmation - подтверждённая оплата взноса, полученная из вебхука.
type PaymentConfirmation struct {
	UserID           int
	TournamentID     int
	PaymentReference string
	Amount           decimal.Decimal
	ProcessingFee    decimal.Decimal
}
