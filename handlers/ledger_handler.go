package handlers

import (
	"fmt"
	"net/http"

	"github.com/Dosada05/tournament-settlement/services"
	"github.com/shopspring/decimal"
)

type LedgerHandler struct {
	ledgerService    services.LedgerService
	statementService services.StatementService
}

func NewLedgerHandler(ls services.LedgerService, ss services.StatementService) *LedgerHandler {
	return &LedgerHandler{ledgerService: ls, statementService: ss}
}

type seedInput struct {
	Amount decimal.Decimal `json:"amount"`
}

// SeedHandler обрабатывает POST /tournaments/{tournamentID}/seed
func (h *LedgerHandler) SeedHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input seedInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	entry, err := h.ledgerService.SeedPrizePool(r.Context(), actor, id, input.Amount)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"ledger_entry": entry}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListHandler обрабатывает GET /tournaments/{tournamentID}/ledger
func (h *LedgerHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	entries, err := h.ledgerService.ListLedger(r.Context(), actor, id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"ledger": entries}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// VerifyHandler обрабатывает GET /tournaments/{tournamentID}/ledger/verify
func (h *LedgerHandler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	v, err := h.ledgerService.VerifyLedger(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if !v.Consistent {
		mapServiceErrorToHTTP(w, r, fmt.Errorf("%w: tournament %d balance %s, prize pool %s",
			services.ErrLedgerInconsistent, id, v.ComputedBalance.StringFixed(2), v.PrizePool.StringFixed(2)))
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"verification": v}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// StatementHandler обрабатывает POST /tournaments/{tournamentID}/statement
func (h *LedgerHandler) StatementHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	statement, err := h.statementService.ExportStatement(r.Context(), actor, id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"statement": statement}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
