package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/tournament-settlement/services"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type PayoutHandler struct {
	payoutService services.PayoutService
}

func NewPayoutHandler(ps services.PayoutService) *PayoutHandler {
	return &PayoutHandler{payoutService: ps}
}

func payoutIDFromURL(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "payoutID")
	if _, err := uuid.Parse(raw); err != nil {
		return "", errors.New("invalid payoutID parameter")
	}
	return raw, nil
}

// EntitlementHandler обрабатывает GET /tournaments/{tournamentID}/entitlement
func (h *PayoutHandler) EntitlementHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	ent, err := h.payoutService.GetEntitlement(r.Context(), actor, id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"entitlement": ent}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RequestHandler обрабатывает POST /tournaments/{tournamentID}/payouts
func (h *PayoutHandler) RequestHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	payout, err := h.payoutService.RequestPayout(r.Context(), actor, id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"payout": payout}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ApproveHandler обрабатывает POST /payouts/{payoutID}/approve
func (h *PayoutHandler) ApproveHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	payoutID, err := payoutIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	payout, err := h.payoutService.ApprovePayout(r.Context(), actor, payoutID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"payout": payout}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type rejectInput struct {
	Reason string `json:"reason"`
}

// RejectHandler обрабатывает POST /payouts/{payoutID}/reject
func (h *PayoutHandler) RejectHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	payoutID, err := payoutIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input rejectInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	payout, err := h.payoutService.RejectPayout(r.Context(), actor, payoutID, input.Reason)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"payout": payout}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
