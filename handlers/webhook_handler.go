package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Dosada05/tournament-settlement/payments"
	"github.com/Dosada05/tournament-settlement/services"
)

// WebhookParser verifies a provider webhook and extracts the payment confirmation.
type WebhookParser interface {
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*payments.PaymentConfirmation, error)
}

type WebhookHandler struct {
	parser       WebhookParser
	entryService services.EntryService
	logger       *slog.Logger
}

// NewWebhookHandler accepts a nil parser; the endpoint then answers 503.
func NewWebhookHandler(parser WebhookParser, es services.EntryService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{parser: parser, entryService: es, logger: logger}
}

// StripeHandler обрабатывает POST /webhooks/stripe
func (h *WebhookHandler) StripeHandler(w http.ResponseWriter, r *http.Request) {
	if h.parser == nil {
		errorResponse(w, r, http.StatusServiceUnavailable, "payment provider is not configured")
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		badRequestResponse(w, r, errors.New("could not read webhook body"))
		return
	}

	conf, err := h.parser.ParseWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, payments.ErrIgnoredEvent):
		w.WriteHeader(http.StatusOK)
		return
	case errors.Is(err, payments.ErrInvalidSignature):
		h.logger.WarnContext(r.Context(), "Webhook signature rejected", slog.Any("error", err))
		badRequestResponse(w, r, err)
		return
	case errors.Is(err, payments.ErrMissingMetadata):
		// Повтор не поможет: отвечаем 200, чтобы провайдер не ретраил, и логируем.
		h.logger.ErrorContext(r.Context(), "Payment without entry metadata", slog.Any("error", err))
		w.WriteHeader(http.StatusOK)
		return
	case err != nil:
		serverErrorResponse(w, r, err)
		return
	}

	entry, err := h.entryService.ConfirmEntryPayment(r.Context(), conf)
	if errors.Is(err, services.ErrLatePaymentRefunded) {
		// Платёж уже возвращён, повторная доставка не нужна.
		h.logger.WarnContext(r.Context(), "Payment refunded instead of confirming entry",
			slog.Int("tournament_id", conf.TournamentID), slog.Int("user_id", conf.UserID))
		if err := writeJSON(w, http.StatusOK, jsonResponse{"entry": entry, "refunded": true}, nil); err != nil {
			serverErrorResponse(w, r, err)
		}
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to confirm entry payment",
			slog.Int("tournament_id", conf.TournamentID), slog.Int("user_id", conf.UserID), slog.Any("error", err))
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"entry": entry}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
