package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Dosada05/tournament-settlement/utils"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const eventPaymentIntentSucceeded = "payment_intent.succeeded"

type StripeProvider struct {
	api           *client.API
	currency      string
	webhookSecret string
	logger        *slog.Logger
}

func NewStripeProvider(secretKey, webhookSecret, currency string, logger *slog.Logger) (*StripeProvider, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key is not configured")
	}
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProvider{
		api:           api,
		currency:      currency,
		webhookSecret: webhookSecret,
		logger:        logger,
	}, nil
}

func (p *StripeProvider) CreateTransfer(ctx context.Context, destination string, amountMinor int64, idempotencyKey string) (string, error) {
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(amountMinor),
		Currency:      stripe.String(p.currency),
		Destination:   stripe.String(destination),
		TransferGroup: stripe.String(idempotencyKey),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	tr, err := p.api.Transfers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe transfer %s: %w", idempotencyKey, err)
	}
	return tr.ID, nil
}

func (p *StripeProvider) CreateRefund(ctx context.Context, paymentReference string, idempotencyKey string) (string, error) {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(paymentReference)}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	rf, err := p.api.Refunds.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe refund %s: %w", paymentReference, err)
	}
	return rf.ID, nil
}

// ParseWebhook verifies the signature and turns a payment_intent.succeeded
// event into a confirmation. Other event types return ErrIgnoredEvent.
func (p *StripeProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*PaymentConfirmation, error) {
	intent, err := verifyPaymentIntent(payload, signature, p.webhookSecret)
	if err != nil {
		return nil, err
	}
	confirmation, err := confirmationFromIntent(intent)
	if err != nil {
		return nil, err
	}
	if intent.LatestCharge != nil && intent.LatestCharge.ID != "" {
		fee, feeErr := p.processingFee(ctx, intent.LatestCharge.ID)
		if feeErr != nil {
			// Комиссия носит информационный характер, подтверждение не блокируем.
			p.logger.WarnContext(ctx, "failed to fetch stripe processing fee",
				slog.String("charge_id", intent.LatestCharge.ID), slog.Any("error", feeErr))
		} else {
			confirmation.ProcessingFee = fee
		}
	}
	return confirmation, nil
}

func (p *StripeProvider) processingFee(ctx context.Context, chargeID string) (decimal.Decimal, error) {
	params := &stripe.ChargeParams{}
	params.Context = ctx
	params.AddExpand("balance_transaction")
	ch, err := p.api.Charges.Get(chargeID, params)
	if err != nil {
		return decimal.Zero, err
	}
	if ch.BalanceTransaction == nil {
		return decimal.Zero, nil
	}
	return utils.FromMinorUnits(ch.BalanceTransaction.Fee), nil
}

func verifyPaymentIntent(payload []byte, signature, secret string) (*stripe.PaymentIntent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if string(event.Type) != eventPaymentIntentSucceeded {
		return nil, ErrIgnoredEvent
	}
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent: %w", err)
	}
	return &intent, nil
}

func confirmationFromIntent(intent *stripe.PaymentIntent) (*PaymentConfirmation, error) {
	userID, errU := strconv.Atoi(intent.Metadata["user_id"])
	tournamentID, errT := strconv.Atoi(intent.Metadata["tournament_id"])
	if errU != nil || errT != nil || userID <= 0 || tournamentID <= 0 {
		return nil, ErrMissingMetadata
	}
	return &PaymentConfirmation{
		UserID:           userID,
		TournamentID:     tournamentID,
		PaymentReference: intent.ID,
		Amount:           utils.FromMinorUnits(intent.Amount),
		ProcessingFee:    decimal.Zero,
	}, nil
}
