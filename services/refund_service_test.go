package services

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/Dosada05/tournament-settlement/models"
)

func TestIsRefundable(t *testing.T) {
	lockAt := time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC)
	open := &models.Tournament{Status: models.TournamentStatusRegistration, LockAt: lockAt}
	running := &models.Tournament{Status: models.TournamentStatusInProgress, LockAt: lockAt}
	confirmed := &models.Entry{Status: models.EntryStatusConfirmed}
	cancelled := &models.Entry{Status: models.EntryStatusCancelled}

	tests := []struct {
		name       string
		entry      *models.Entry
		tournament *models.Tournament
		now        time.Time
		want       bool
	}{
		{"before lock", confirmed, open, lockAt.Add(-time.Second), true},
		{"pending entry before lock", &models.Entry{Status: models.EntryStatusPending}, open, lockAt.Add(-time.Hour), true},
		{"exactly at lock", confirmed, open, lockAt, false},
		{"after lock", confirmed, open, lockAt.Add(time.Minute), false},
		{"already cancelled", cancelled, open, lockAt.Add(-time.Hour), false},
		{"tournament started", confirmed, running, lockAt.Add(-time.Hour), false},
		{"missing entry", nil, open, lockAt.Add(-time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRefundable(tt.entry, tt.tournament, tt.now); got != tt.want {
				t.Errorf("IsRefundable = %v, want %v", got, tt.want)
			}
		})
	}
}

func (h *harness) entryOf(t *testing.T, userID, tournamentID int) models.Entry {
	t.Helper()
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	for _, e := range h.store.state.entries {
		if e.UserID == userID && e.TournamentID == tournamentID {
			return e
		}
	}
	t.Fatalf("no entry for user %d in tournament %d", userID, tournamentID)
	return models.Entry{}
}

func TestRefundPaidEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tour := h.createTournament(t, "10")
	h.enter(t, tour.ID, 10)
	before := h.auditCount()

	e, err := h.refunds.Refund(ctx, player(10), tour.ID)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if e.Status != models.EntryStatusCancelled || e.CancelledAt == nil {
		t.Errorf("entry = %+v, want CANCELLED with timestamp", e)
	}

	entries := h.ledgerEntries(t, tour.ID)
	last := entries[len(entries)-1]
	if last.Type != models.LedgerRefund || !last.Amount.Equal(dec("-7.50")) || !last.Balance.IsZero() {
		t.Errorf("last ledger entry = %s %s balance %s, want REFUND -7.50 balance 0", last.Type, last.Amount, last.Balance)
	}
	got := h.tournament(t, tour.ID)
	if !got.PrizePool.IsZero() || got.CurrentPlayers != 0 {
		t.Errorf("tournament pool=%s players=%d, want 0 and 0", got.PrizePool, got.CurrentPlayers)
	}
	wantKey := "refund-entry-" + strconv.Itoa(e.ID)
	if len(h.provider.refunds) != 1 || h.provider.refunds[0] != wantKey {
		t.Errorf("refund keys = %v, want [%s]", h.provider.refunds, wantKey)
	}
	if h.auditCount() != before+1 {
		t.Errorf("audit records = %d, want %d", h.auditCount(), before+1)
	}

	if _, err := h.refunds.Refund(ctx, player(10), tour.ID); !errors.Is(err, ErrRefundNotAllowed) {
		t.Errorf("second refund err = %v, want ErrRefundNotAllowed", err)
	}
}

func TestRefundUnpaidEntrySkipsProvider(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tour := h.createTournament(t, "10")
	h.addUser(10)
	if _, err := h.entries.RegisterEntry(ctx, player(10), tour.ID); err != nil {
		t.Fatalf("RegisterEntry: %v", err)
	}

	if _, err := h.refunds.Refund(ctx, player(10), tour.ID); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if len(h.provider.refunds) != 0 {
		t.Errorf("provider refunds = %v, want none", h.provider.refunds)
	}
	if n := len(h.ledgerEntries(t, tour.ID)); n != 0 {
		t.Errorf("ledger entries = %d, want 0", n)
	}
}

func TestRefundAtLockIsRejected(t *testing.T) {
	h := newHarness(t)
	tour := h.createTournament(t, "10")
	h.enter(t, tour.ID, 10)
	h.refunds.(*refundService).now = func() time.Time { return tour.LockAt }

	if _, err := h.refunds.Refund(context.Background(), player(10), tour.ID); !errors.Is(err, ErrRefundNotAllowed) {
		t.Fatalf("err = %v, want ErrRefundNotAllowed", err)
	}
	if got := h.entryOf(t, 10, tour.ID).Status; got != models.EntryStatusConfirmed {
		t.Errorf("entry status = %s, want CONFIRMED", got)
	}

	elig, err := h.refunds.CheckEligibility(context.Background(), player(10), tour.ID)
	if err != nil {
		t.Fatalf("CheckEligibility: %v", err)
	}
	if elig.Refundable || !elig.LockAt.Equal(tour.LockAt) {
		t.Errorf("eligibility = %+v, want not refundable at %s", elig, tour.LockAt)
	}
}

func TestRefundProviderFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	tour := h.createTournament(t, "10")
	h.enter(t, tour.ID, 10)
	ledgerBefore := len(h.ledgerEntries(t, tour.ID))
	h.provider.err = errors.New("charge_already_refunded")

	if _, err := h.refunds.Refund(context.Background(), player(10), tour.ID); !errors.Is(err, ErrProviderFailure) {
		t.Fatalf("err = %v, want ErrProviderFailure", err)
	}
	if got := h.entryOf(t, 10, tour.ID).Status; got != models.EntryStatusConfirmed {
		t.Errorf("entry status = %s, want CONFIRMED", got)
	}
	got := h.tournament(t, tour.ID)
	if got.CurrentPlayers != 1 || !got.PrizePool.Equal(dec("7.50")) {
		t.Errorf("tournament players=%d pool=%s, want 1 and 7.50", got.CurrentPlayers, got.PrizePool)
	}
	if n := len(h.ledgerEntries(t, tour.ID)); n != ledgerBefore {
		t.Errorf("ledger entries = %d, want %d", n, ledgerBefore)
	}
}

func TestRefundWithoutEntry(t *testing.T) {
	h := newHarness(t)
	tour := h.createTournament(t, "10")
	if _, err := h.refunds.Refund(context.Background(), player(10), tour.ID); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("err = %v, want ErrEntryNotFound", err)
	}
}
