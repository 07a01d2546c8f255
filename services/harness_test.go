package services

import (
	"context"
	"testing"
	"time"

	"github.com/Dosada05/tournament-settlement/brackets"
	"github.com/Dosada05/tournament-settlement/events"
	"github.com/Dosada05/tournament-settlement/models"
	"github.com/Dosada05/tournament-settlement/payments"
	"github.com/shopspring/decimal"
)

var admin = models.Actor{UserID: 1, Role: models.RoleAdmin}

func player(id int) models.Actor { return models.Actor{UserID: id, Role: models.RoleUser} }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMemStore()
	bus := events.NewMemoryBus()
	t.Cleanup(func() { _ = bus.Close() })
	logger := discardLogger()
	provider := &fakeProvider{}
	objects := &memObjectStore{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	tournaments, entries, matches := memTournaments{store}, memEntries{store}, memMatches{store}
	schedule, ledgerRepo, payoutRepo := memSchedule{store}, memLedger{store}, memPayouts{store}
	audit := memAudit{store}

	ledger := NewLedgerService(store, ledgerRepo, tournaments, audit, bus, logger)
	entitlements := NewEntitlementService(entries, matches, schedule, ledgerRepo)

	tournamentSvc := NewTournamentService(store, tournaments, entries, matches, schedule, audit,
		brackets.NewSwissGenerator(brackets.HigherRankedFirst{}), time.Hour, bus, logger)
	tournamentSvc.(*tournamentService).now = clock

	entrySvc := NewEntryService(store, tournaments, entries, audit, ledger, provider, bus, logger)
	entrySvc.(*entryService).now = clock

	refundSvc := NewRefundService(store, tournaments, entries, audit, ledger, provider, bus, logger)
	refundSvc.(*refundService).now = clock

	payoutSvc := NewPayoutService(store, payoutRepo, tournaments, entries, memUsers{store}, memCompliance{store}, audit,
		entitlements, ledger, provider, PayoutPolicy{ProviderTimeout: time.Second, StalePayoutAfter: 30 * time.Minute}, bus, logger)
	payoutSvc.(*payoutService).now = clock

	statementSvc := NewStatementService(ledger, objects, logger)
	statementSvc.(*statementService).now = clock

	return &harness{
		store:        store,
		bus:          bus,
		provider:     provider,
		objects:      objects,
		ledger:       ledger,
		entitlements: entitlements,
		tournaments:  tournamentSvc,
		entries:      entrySvc,
		refunds:      refundSvc,
		payouts:      payoutSvc,
		statements:   statementSvc,
		now:          now,
	}
}

func (h *harness) addSeason(prize models.PrizeMode) int {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	id := h.store.id()
	h.store.state.seasons[id] = models.Season{ID: id, Name: "season", Mode: models.SeasonModePaid, PrizeMode: prize}
	return id
}

// addUser creates a KYC-verified user with a payment destination.
func (h *harness) addUser(id int) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	acct := "acct_" + decimal.NewFromInt(int64(id)).String()
	verified := h.now.Add(-24 * time.Hour)
	h.store.state.users[id] = models.User{ID: id, Nickname: acct, Role: models.RoleUser, PaymentAccountID: &acct}
	h.store.state.kyc[id] = models.KYCRecord{UserID: id, Status: models.KYCStatusVerified, VerifiedAt: &verified}
}

func (h *harness) createTournament(t *testing.T, fee string, schedule ...ScheduleSlotInput) *models.Tournament {
	t.Helper()
	season := h.addSeason(models.PrizeModeCash)
	tour, err := h.tournaments.CreateTournament(context.Background(), admin, CreateTournamentInput{
		Name:       "Spring Swiss " + decimal.NewFromInt(int64(season)).String(),
		SeasonID:   season,
		EntryFee:   dec(fee),
		MaxPlayers: 16,
		StartDate:  h.now.Add(48 * time.Hour),
		Schedule:   schedule,
	})
	if err != nil {
		t.Fatalf("CreateTournament: %v", err)
	}
	return tour
}

// enter registers and confirms the given users through the payment webhook path.
func (h *harness) enter(t *testing.T, tournamentID int, users ...int) {
	t.Helper()
	ctx := context.Background()
	fee := h.tournament(t, tournamentID).EntryFee
	for _, u := range users {
		h.addUser(u)
		if _, err := h.entries.RegisterEntry(ctx, player(u), tournamentID); err != nil {
			t.Fatalf("RegisterEntry(%d): %v", u, err)
		}
		_, err := h.entries.ConfirmEntryPayment(ctx, &payments.PaymentConfirmation{
			UserID:           u,
			TournamentID:     tournamentID,
			PaymentReference: "pi_" + decimal.NewFromInt(int64(u)).String(),
			Amount:           fee,
			ProcessingFee:    dec("0.59"),
		})
		if err != nil {
			t.Fatalf("ConfirmEntryPayment(%d): %v", u, err)
		}
	}
}

func (h *harness) tournament(t *testing.T, id int) models.Tournament {
	t.Helper()
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return h.store.state.tournaments[id]
}

func (h *harness) setStatus(id int, status models.TournamentStatus) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	tour := h.store.state.tournaments[id]
	tour.Status = status
	h.store.state.tournaments[id] = tour
}

// playOut starts the tournament and reports every match with winner picking
// the winner, until the tournament completes.
func (h *harness) playOut(t *testing.T, tournamentID int, winner func(m *models.Match) models.MatchResult) {
	t.Helper()
	ctx := context.Background()
	if _, err := h.tournaments.StartTournament(ctx, admin, tournamentID); err != nil {
		t.Fatalf("StartTournament: %v", err)
	}
	for guard := 0; guard < 64; guard++ {
		if h.tournament(t, tournamentID).Status == models.TournamentStatusCompleted {
			return
		}
		matches, err := h.tournaments.ListPairings(ctx, tournamentID, nil)
		if err != nil {
			t.Fatalf("ListPairings: %v", err)
		}
		reported := false
		for _, m := range matches {
			if m.Status == models.MatchStatusCompleted {
				continue
			}
			if _, err := h.tournaments.ReportResult(ctx, admin, m.ID, winner(m)); err != nil {
				t.Fatalf("ReportResult(%d): %v", m.ID, err)
			}
			reported = true
		}
		if !reported {
			// Раунд из одних bye: продвигаем вручную.
			if _, err := h.tournaments.AdvanceRound(ctx, admin, tournamentID); err != nil {
				t.Fatalf("AdvanceRound: %v", err)
			}
		}
	}
	t.Fatalf("tournament %d did not complete", tournamentID)
}

// lowerIDWins makes the player with the lower id win every game.
func lowerIDWins(m *models.Match) models.MatchResult {
	if m.Player1ID < *m.Player2ID {
		return models.MatchResultPlayer1
	}
	return models.MatchResultPlayer2
}

func (h *harness) ledgerEntries(t *testing.T, tournamentID int) []*models.PrizePoolLedgerEntry {
	t.Helper()
	entries, err := h.ledger.ListLedger(context.Background(), admin, tournamentID)
	if err != nil {
		t.Fatalf("ListLedger: %v", err)
	}
	return entries
}

func (h *harness) auditCount() int {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return len(h.store.state.audits)
}
