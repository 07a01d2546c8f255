package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Dosada05/tournament-settlement/events"
	"github.com/Dosada05/tournament-settlement/models"
	"github.com/Dosada05/tournament-settlement/repositories"
	"github.com/Dosada05/tournament-settlement/storage"
	"github.com/shopspring/decimal"
)

// memState holds rows by value so a transaction can be rolled back by
// restoring a copy.
type memState struct {
	tournaments map[int]models.Tournament
	entries     map[int]models.Entry
	matches     map[int]models.Match
	schedule    map[int][]models.PayoutScheduleSlot
	ledger      []models.PrizePoolLedgerEntry
	payouts     map[string]models.Payout
	users       map[int]models.User
	kyc         map[int]models.KYCRecord
	cases       []models.AntiCheatCase
	seasons     map[int]models.Season
	audits      []models.AuditRecord
	nextID      int
}

func (s memState) clone() memState {
	c := s
	c.tournaments = make(map[int]models.Tournament, len(s.tournaments))
	for k, v := range s.tournaments {
		c.tournaments[k] = v
	}
	c.entries = make(map[int]models.Entry, len(s.entries))
	for k, v := range s.entries {
		c.entries[k] = v
	}
	c.matches = make(map[int]models.Match, len(s.matches))
	for k, v := range s.matches {
		c.matches[k] = v
	}
	c.schedule = make(map[int][]models.PayoutScheduleSlot, len(s.schedule))
	for k, v := range s.schedule {
		c.schedule[k] = append([]models.PayoutScheduleSlot(nil), v...)
	}
	c.ledger = append([]models.PrizePoolLedgerEntry(nil), s.ledger...)
	c.payouts = make(map[string]models.Payout, len(s.payouts))
	for k, v := range s.payouts {
		c.payouts[k] = v
	}
	c.users = make(map[int]models.User, len(s.users))
	for k, v := range s.users {
		c.users[k] = v
	}
	c.kyc = make(map[int]models.KYCRecord, len(s.kyc))
	for k, v := range s.kyc {
		c.kyc[k] = v
	}
	c.cases = append([]models.AntiCheatCase(nil), s.cases...)
	c.seasons = make(map[int]models.Season, len(s.seasons))
	for k, v := range s.seasons {
		c.seasons[k] = v
	}
	c.audits = append([]models.AuditRecord(nil), s.audits...)
	return c
}

type memStore struct {
	txMu   sync.Mutex
	mu     sync.Mutex
	state  memState
	failTx error
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		tournaments: map[int]models.Tournament{},
		entries:     map[int]models.Entry{},
		matches:     map[int]models.Match{},
		schedule:    map[int][]models.PayoutScheduleSlot{},
		payouts:     map[string]models.Payout{},
		users:       map[int]models.User{},
		kyc:         map[int]models.KYCRecord{},
		seasons:     map[int]models.Season{},
	}}
}

func (m *memStore) id() int {
	m.state.nextID++
	return m.state.nextID
}

// memExec stands in for *sql.Tx; fakes never run SQL.
type memExec struct{}

func (memExec) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errors.New("memExec: no SQL")
}
func (memExec) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errors.New("memExec: no SQL")
}
func (memExec) QueryRowContext(context.Context, string, ...interface{}) *sql.Row { return nil }

// WithinTx serialises transactions and restores the previous state on error.
func (m *memStore) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	saved := m.state.clone()
	m.mu.Unlock()

	err := fn(memExec{})
	if err == nil && m.failTx != nil {
		err = m.failTx
	}
	if err != nil {
		m.mu.Lock()
		m.state = saved
		m.mu.Unlock()
	}
	return err
}

// --- tournaments ---

type memTournaments struct{ *memStore }

func (r memTournaments) Create(_ context.Context, _ repositories.SQLExecutor, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.state.tournaments {
		if existing.Name == t.Name {
			return repositories.ErrTournamentNameConflict
		}
	}
	if _, ok := r.state.seasons[t.SeasonID]; !ok {
		return repositories.ErrTournamentInvalidSeason
	}
	t.ID = r.id()
	t.CreatedAt = time.Now()
	r.state.tournaments[t.ID] = *t
	return nil
}

func (r memTournaments) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.state.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	return &t, nil
}

func (r memTournaments) GetForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	return r.GetByID(ctx, exec, id)
}

func (r memTournaments) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id int, from, to models.TournamentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.state.tournaments[id]
	if !ok || t.Status != from {
		return repositories.ErrTournamentStatusConflict
	}
	t.Status = to
	r.state.tournaments[id] = t
	return nil
}

func (r memTournaments) SetPrizePool(_ context.Context, _ repositories.SQLExecutor, id int, pool decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.state.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.PrizePool = pool
	r.state.tournaments[id] = t
	return nil
}

func (r memTournaments) AdjustCurrentPlayers(_ context.Context, _ repositories.SQLExecutor, id int, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.state.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.CurrentPlayers += delta
	if t.CurrentPlayers < 0 {
		t.CurrentPlayers = 0
	}
	r.state.tournaments[id] = t
	return nil
}

func (r memTournaments) ListDueToStart(_ context.Context, _ repositories.SQLExecutor, now time.Time) ([]*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Tournament
	for _, t := range r.state.tournaments {
		if t.Status == models.TournamentStatusRegistration && !t.StartDate.After(now) {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- entries ---

type memEntries struct{ *memStore }

func (r memEntries) Create(_ context.Context, _ repositories.SQLExecutor, e *models.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.state.entries {
		if existing.UserID == e.UserID && existing.TournamentID == e.TournamentID {
			return repositories.ErrEntryExists
		}
	}
	e.ID = r.id()
	e.CreatedAt = time.Now()
	r.state.entries[e.ID] = *e
	return nil
}

func (r memEntries) GetByUserAndTournament(_ context.Context, _ repositories.SQLExecutor, userID, tournamentID int) (*models.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.state.entries {
		if e.UserID == userID && e.TournamentID == tournamentID {
			return &e, nil
		}
	}
	return nil, repositories.ErrEntryNotFound
}

func (r memEntries) GetForUpdate(ctx context.Context, exec repositories.SQLExecutor, userID, tournamentID int) (*models.Entry, error) {
	return r.GetByUserAndTournament(ctx, exec, userID, tournamentID)
}

func (r memEntries) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int, status *models.EntryStatus) ([]*models.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Entry, 0)
	for _, e := range r.state.entries {
		if e.TournamentID == tournamentID && (status == nil || e.Status == *status) {
			e := e
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memEntries) Confirm(_ context.Context, _ repositories.SQLExecutor, id int, ref string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.state.entries[id]
	if !ok || e.Status != models.EntryStatusPending {
		return repositories.ErrEntryStatusConflict
	}
	e.Status = models.EntryStatusConfirmed
	e.PaymentReference = &ref
	e.ConfirmedAt = &at
	r.state.entries[id] = e
	return nil
}

func (r memEntries) Cancel(_ context.Context, _ repositories.SQLExecutor, id int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.state.entries[id]
	if !ok || e.Status == models.EntryStatusCancelled {
		return repositories.ErrEntryStatusConflict
	}
	e.Status = models.EntryStatusCancelled
	e.CancelledAt = &at
	r.state.entries[id] = e
	return nil
}

// --- matches ---

type memMatches struct{ *memStore }

func (r memMatches) CreateBatch(_ context.Context, _ repositories.SQLExecutor, matches []*models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range matches {
		for _, existing := range r.state.matches {
			if existing.TournamentID == m.TournamentID && existing.Round == m.Round && existing.Board == m.Board {
				return repositories.ErrRoundAlreadyExists
			}
		}
		m.ID = r.id()
		m.CreatedAt = time.Now()
		r.state.matches[m.ID] = *m
	}
	return nil
}

func (r memMatches) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.state.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	return &m, nil
}

func (r memMatches) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int, round *int) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Match, 0)
	for _, m := range r.state.matches {
		if m.TournamentID == tournamentID && (round == nil || m.Round == *round) {
			m := m
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].Board < out[j].Board
	})
	return out, nil
}

func (r memMatches) MaxRound(_ context.Context, _ repositories.SQLExecutor, tournamentID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	max := 0
	for _, m := range r.state.matches {
		if m.TournamentID == tournamentID && m.Round > max {
			max = m.Round
		}
	}
	return max, nil
}

func (r memMatches) CountByRound(_ context.Context, _ repositories.SQLExecutor, tournamentID, round int) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total, completed := 0, 0
	for _, m := range r.state.matches {
		if m.TournamentID == tournamentID && m.Round == round {
			total++
			if m.Status == models.MatchStatusCompleted {
				completed++
			}
		}
	}
	return total, completed, nil
}

func (r memMatches) RecordResult(_ context.Context, _ repositories.SQLExecutor, id int, result models.MatchResult, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.state.matches[id]
	if !ok || m.Status != models.MatchStatusScheduled || m.Player2ID == nil {
		return repositories.ErrMatchAlreadyCompleted
	}
	m.Result = &result
	m.Status = models.MatchStatusCompleted
	m.CompletedAt = &at
	r.state.matches[id] = m
	return nil
}

// --- payout schedule ---

type memSchedule struct{ *memStore }

func (r memSchedule) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) ([]*models.PayoutScheduleSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.PayoutScheduleSlot, 0)
	for _, s := range r.state.schedule[tournamentID] {
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r memSchedule) CreateSlots(_ context.Context, _ repositories.SQLExecutor, slots []*models.PayoutScheduleSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range slots {
		dup := false
		for _, existing := range r.state.schedule[s.TournamentID] {
			if existing.Position == s.Position {
				dup = true
			}
		}
		if dup {
			continue
		}
		s.ID = r.id()
		r.state.schedule[s.TournamentID] = append(r.state.schedule[s.TournamentID], *s)
	}
	return nil
}

// --- ledger ---

type memLedger struct{ *memStore }

func (r memLedger) LastBalance(_ context.Context, _ repositories.SQLExecutor, tournamentID int) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	balance := decimal.Zero
	for _, e := range r.state.ledger {
		if e.TournamentID == tournamentID {
			balance = e.Balance
		}
	}
	return balance, nil
}

func (r memLedger) Insert(_ context.Context, _ repositories.SQLExecutor, e *models.PrizePoolLedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = int64(r.id())
	e.CreatedAt = time.Now()
	r.state.ledger = append(r.state.ledger, *e)
	return nil
}

func (r memLedger) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) ([]*models.PrizePoolLedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.PrizePoolLedgerEntry, 0)
	for _, e := range r.state.ledger {
		if e.TournamentID == tournamentID {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

func (r memLedger) DistributableBalance(_ context.Context, _ repositories.SQLExecutor, tournamentID int) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := decimal.Zero
	for _, e := range r.state.ledger {
		if e.TournamentID == tournamentID && e.AffectsBalance && e.Type != models.LedgerPayout {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

func (r memLedger) FindByUserAndType(_ context.Context, _ repositories.SQLExecutor, tournamentID, userID int, t models.LedgerEntryType) ([]*models.PrizePoolLedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.PrizePoolLedgerEntry, 0)
	for _, e := range r.state.ledger {
		if e.TournamentID == tournamentID && e.Type == t && e.RelatedUserID != nil && *e.RelatedUserID == userID {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

// --- payouts ---

type memPayouts struct{ *memStore }

func (r memPayouts) Create(_ context.Context, _ repositories.SQLExecutor, p *models.Payout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.state.payouts {
		if existing.UserID == p.UserID && existing.TournamentID == p.TournamentID {
			return repositories.ErrPayoutExists
		}
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.state.payouts[p.ID] = *p
	return nil
}

func (r memPayouts) GetByID(_ context.Context, _ repositories.SQLExecutor, id string) (*models.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.state.payouts[id]
	if !ok {
		return nil, repositories.ErrPayoutNotFound
	}
	return &p, nil
}

func (r memPayouts) GetByUserAndTournament(_ context.Context, _ repositories.SQLExecutor, userID, tournamentID int) (*models.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.state.payouts {
		if p.UserID == userID && p.TournamentID == tournamentID {
			return &p, nil
		}
	}
	return nil, repositories.ErrPayoutNotFound
}

func (r memPayouts) update(id string, from models.PayoutStatus, apply func(p *models.Payout)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.state.payouts[id]
	if !ok || p.Status != from {
		return repositories.ErrPayoutStatusConflict
	}
	apply(&p)
	p.UpdatedAt = time.Now()
	r.state.payouts[id] = p
	return nil
}

func (r memPayouts) MarkProcessing(_ context.Context, _ repositories.SQLExecutor, id string, reviewer *int) error {
	return r.update(id, models.PayoutStatusPending, func(p *models.Payout) {
		p.Status = models.PayoutStatusProcessing
		p.ReviewedBy = reviewer
	})
}

func (r memPayouts) MarkCompleted(_ context.Context, _ repositories.SQLExecutor, id string, transferID string) error {
	return r.update(id, models.PayoutStatusProcessing, func(p *models.Payout) {
		p.Status = models.PayoutStatusCompleted
		p.ProviderTransferID = &transferID
	})
}

func (r memPayouts) MarkFailed(_ context.Context, _ repositories.SQLExecutor, id string, reason string) error {
	return r.update(id, models.PayoutStatusProcessing, func(p *models.Payout) {
		p.Status = models.PayoutStatusFailed
		p.FailureReason = &reason
	})
}

func (r memPayouts) MarkRejected(_ context.Context, _ repositories.SQLExecutor, id string, reviewer *int, reason string) error {
	return r.update(id, models.PayoutStatusPending, func(p *models.Payout) {
		p.Status = models.PayoutStatusRejected
		p.ReviewedBy = reviewer
		p.FailureReason = &reason
	})
}

func (r memPayouts) BackfillEntitlement(_ context.Context, _ repositories.SQLExecutor, id string, amount decimal.Decimal, placement int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.state.payouts[id]
	if !ok || p.EntitlementAmount != nil || p.Placement != nil {
		return repositories.ErrEntitlementAlreadySet
	}
	p.EntitlementAmount = &amount
	p.Placement = &placement
	r.state.payouts[id] = p
	return nil
}

func (r memPayouts) UpdateAntiCheatHold(_ context.Context, _ repositories.SQLExecutor, id string, hold bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.state.payouts[id]
	if !ok {
		return repositories.ErrPayoutNotFound
	}
	p.AntiCheatHold = hold
	r.state.payouts[id] = p
	return nil
}

func (r memPayouts) ListStaleProcessing(_ context.Context, _ repositories.SQLExecutor, olderThan time.Time) ([]*models.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Payout, 0)
	for _, p := range r.state.payouts {
		if p.Status == models.PayoutStatusProcessing && p.UpdatedAt.Before(olderThan) {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

// --- users, compliance, audit ---

type memUsers struct{ *memStore }

func (r memUsers) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.state.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return &u, nil
}

type memCompliance struct{ *memStore }

func (r memCompliance) GetKYC(_ context.Context, _ repositories.SQLExecutor, userID int) (*models.KYCRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.state.kyc[userID]
	if !ok {
		return &models.KYCRecord{UserID: userID, Status: models.KYCStatusPending}, nil
	}
	return &rec, nil
}

func (r memCompliance) ListAntiCheatCases(_ context.Context, _ repositories.SQLExecutor, userID, tournamentID int) ([]*models.AntiCheatCase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.AntiCheatCase, 0)
	for _, c := range r.state.cases {
		if c.UserID == userID && c.TournamentID == tournamentID {
			c := c
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r memCompliance) GetSeasonByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) (*models.Season, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.state.tournaments[tournamentID]
	if !ok {
		return nil, repositories.ErrSeasonNotFound
	}
	s, ok := r.state.seasons[t.SeasonID]
	if !ok {
		return nil, repositories.ErrSeasonNotFound
	}
	return &s, nil
}

type memAudit struct{ *memStore }

func (r memAudit) Record(_ context.Context, _ repositories.SQLExecutor, rec *models.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.ID = int64(r.id())
	rec.CreatedAt = time.Now()
	r.state.audits = append(r.state.audits, *rec)
	return nil
}

// --- provider and object store ---

type fakeProvider struct {
	mu        sync.Mutex
	transfers []string
	refunds   []string
	err       error
	// block, when set, holds CreateTransfer until it is closed or ctx ends.
	block chan struct{}
}

func (p *fakeProvider) CreateTransfer(ctx context.Context, destination string, amountMinor int64, key string) (string, error) {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.transfers = append(p.transfers, key)
	return "tr_" + key, nil
}

func (p *fakeProvider) CreateRefund(_ context.Context, reference string, key string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.refunds = append(p.refunds, key)
	return "re_" + reference, nil
}

func (p *fakeProvider) transferCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.transfers)
}

type memObjectStore struct {
	objects map[string][]byte
}

func (s *memObjectStore) Put(_ context.Context, key, _ string, body io.Reader) (*storage.PutResult, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[key] = data
	return &storage.PutResult{Key: key, Location: s.PublicURL(key)}, nil
}

func (s *memObjectStore) PublicURL(key string) string { return "https://files.test/" + key }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// harness wires every service against one memStore.
type harness struct {
	store        *memStore
	bus          *events.MemoryBus
	provider     *fakeProvider
	objects      *memObjectStore
	ledger       LedgerService
	entitlements EntitlementService
	tournaments  TournamentService
	entries      EntryService
	refunds      RefundService
	payouts      PayoutService
	statements   StatementService
	now          time.Time
}
