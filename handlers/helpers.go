package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Dosada05/tournament-settlement/middleware"
	"github.com/Dosada05/tournament-settlement/models"
	"github.com/Dosada05/tournament-settlement/services"
	"github.com/go-chi/chi/v5"
)

type jsonResponse map[string]interface{}

const maxBodyBytes = 1_048_576 // 1MB

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBodyBytes)
		default:
			// decimal.Decimal отдаёт свою ошибку разбора.
			return err
		}
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

func errorResponse(w http.ResponseWriter, r *http.Request, status int, message interface{}) {
	writeError(w, r, status, jsonResponse{"error": message})
}

// codedErrorResponse adds a machine-readable code next to the message.
func codedErrorResponse(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	writeError(w, r, status, jsonResponse{"error": err.Error(), "code": code})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, env jsonResponse) {
	if err := writeJSON(w, status, env, nil); err != nil {
		slog.ErrorContext(r.Context(), "Error writing error JSON response", slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "Internal server error",
		slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Any("error", err))
	message := "the server encountered a problem and could not process your request"
	errorResponse(w, r, http.StatusInternalServerError, message)
}

func badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func notFoundResponse(w http.ResponseWriter, r *http.Request) {
	errorResponse(w, r, http.StatusNotFound, "the requested resource could not be found")
}

func unauthorizedResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusUnauthorized, message)
}

func getIDFromURL(r *http.Request, param string) (int, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s parameter %q", param, raw)
	}
	return id, nil
}

// actorOrUnauthorized пишет 401 и возвращает false, если в запросе нет валидных claims.
func actorOrUnauthorized(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return models.Actor{}, false
	}
	return actor, true
}

// mapServiceErrorToHTTP преобразует ошибки сервисного слоя в HTTP-ответы.
func mapServiceErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound),
		errors.Is(err, services.ErrTournamentNotFound),
		errors.Is(err, services.ErrEntryNotFound),
		errors.Is(err, services.ErrMatchNotFound),
		errors.Is(err, services.ErrPayoutNotFound),
		errors.Is(err, services.ErrUserNotFound):
		notFoundResponse(w, r)

	// Целостность: пересчитанная сумма расходится с сохранённой.
	case errors.Is(err, services.ErrEntitlementMismatch):
		codedErrorResponse(w, r, http.StatusConflict, "entitlement_mismatch", err)
	case errors.Is(err, services.ErrLedgerInconsistent):
		codedErrorResponse(w, r, http.StatusConflict, "ledger_inconsistent", err)

	// Проигранная гонка.
	case errors.Is(err, services.ErrPayoutAlreadyProcessed),
		errors.Is(err, services.ErrRoundAlreadyAdvanced),
		errors.Is(err, services.ErrMatchAlreadyReported):
		codedErrorResponse(w, r, http.StatusConflict, "already_processed", err)

	case errors.Is(err, services.ErrEntryExists),
		errors.Is(err, services.ErrTournamentNameConflict),
		errors.Is(err, services.ErrInvalidStatusTransition),
		errors.Is(err, services.ErrTournamentFull):
		errorResponse(w, r, http.StatusConflict, err.Error())

	case errors.Is(err, services.ErrValidationFailed),
		errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidMatchResult),
		errors.Is(err, services.ErrPaymentAmountMismatch),
		errors.Is(err, services.ErrInvalidSchedule):
		badRequestResponse(w, r, err)

	case errors.Is(err, services.ErrForbiddenOperation):
		errorResponse(w, r, http.StatusForbidden, err.Error())

	// Бизнес-предусловия не выполнены.
	case errors.Is(err, services.ErrSeasonNotCash),
		errors.Is(err, services.ErrTournamentNotCompleted),
		errors.Is(err, services.ErrTournamentNotInProgress),
		errors.Is(err, services.ErrRegistrationNotOpen),
		errors.Is(err, services.ErrNotEnoughPlayers),
		errors.Is(err, services.ErrEntryNotConfirmed),
		errors.Is(err, services.ErrEntryCancelled),
		errors.Is(err, services.ErrKYCNotVerified),
		errors.Is(err, services.ErrAntiCheatHold),
		errors.Is(err, services.ErrNoEntitlement),
		errors.Is(err, services.ErrNoPaymentDestination),
		errors.Is(err, services.ErrRefundNotAllowed),
		errors.Is(err, services.ErrLatePaymentRefunded),
		errors.Is(err, services.ErrRoundNotComplete):
		errorResponse(w, r, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, services.ErrStatementsDisabled):
		errorResponse(w, r, http.StatusServiceUnavailable, err.Error())

	case errors.Is(err, services.ErrProviderFailure):
		slog.WarnContext(r.Context(), "Payment provider failure", slog.String("path", r.URL.Path), slog.Any("error", err))
		codedErrorResponse(w, r, http.StatusBadGateway, "provider_failure", err)

	default:
		serverErrorResponse(w, r, err)
	}
}
