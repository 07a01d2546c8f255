package handlers

import (
	"net/http"

	"github.com/Dosada05/tournament-settlement/services"
)

type EntryHandler struct {
	entryService  services.EntryService
	refundService services.RefundService
}

func NewEntryHandler(es services.EntryService, rs services.RefundService) *EntryHandler {
	return &EntryHandler{entryService: es, refundService: rs}
}

// RegisterHandler обрабатывает POST /tournaments/{tournamentID}/entries
func (h *EntryHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	entry, err := h.entryService.RegisterEntry(r.Context(), actor, id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"entry": entry}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RefundEligibilityHandler обрабатывает GET /tournaments/{tournamentID}/refund-eligibility
func (h *EntryHandler) RefundEligibilityHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	eligibility, err := h.refundService.CheckEligibility(r.Context(), actor, id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"eligibility": eligibility}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RefundHandler обрабатывает POST /tournaments/{tournamentID}/refund
func (h *EntryHandler) RefundHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	entry, err := h.refundService.Refund(r.Context(), actor, id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"entry": entry}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
