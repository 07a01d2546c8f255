package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Dosada05/tournament-settlement/models"
	"github.com/Dosada05/tournament-settlement/storage"
)

type Statement struct {
	TournamentID int    `json:"tournament_id"`
	Key          string `json:"key"`
	URL          string `json:"url"`
	Entries      int    `json:"entries"`
}

type StatementService interface {
	ExportStatement(ctx context.Context, actor models.Actor, tournamentID int) (*Statement, error)
}

type statementService struct {
	ledger LedgerService
	store  storage.ObjectStore
	logger *slog.Logger
	now    func() time.Time
}

// NewStatementService accepts a nil store; exports then fail with ErrStatementsDisabled.
func NewStatementService(ledger LedgerService, store storage.ObjectStore, logger *slog.Logger) StatementService {
	return &statementService{ledger: ledger, store: store, logger: logger, now: time.Now}
}

func (s *statementService) ExportStatement(ctx context.Context, actor models.Actor, tournamentID int) (*Statement, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, ErrStatementsDisabled
	}
	entries, err := s.ledger.ListLedger(ctx, actor, tournamentID)
	if err != nil {
		return nil, err
	}

	body, err := ledgerCSV(entries)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("statements/tournament-%d/ledger-%d.csv", tournamentID, s.now().Unix())
	res, err := s.store.Put(ctx, key, "text/csv", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Ledger statement exported",
		slog.Int("tournament_id", tournamentID), slog.String("key", key), slog.Int("entries", len(entries)))
	return &Statement{TournamentID: tournamentID, Key: res.Key, URL: res.Location, Entries: len(entries)}, nil
}

func ledgerCSV(entries []*models.PrizePoolLedgerEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"id", "created_at", "type", "amount", "balance", "affects_balance", "related_user_id", "related_payout_id", "description"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, e := range entries {
		userID, payoutID := "", ""
		if e.RelatedUserID != nil {
			userID = strconv.Itoa(*e.RelatedUserID)
		}
		if e.RelatedPayoutID != nil {
			payoutID = *e.RelatedPayoutID
		}
		row := []string{
			strconv.FormatInt(e.ID, 10),
			e.CreatedAt.UTC().Format(time.RFC3339),
			string(e.Type),
			e.Amount.StringFixed(2),
			e.Balance.StringFixed(2),
			strconv.FormatBool(e.AffectsBalance),
			userID,
			payoutID,
			e.Description,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write ledger csv: %w", err)
	}
	return buf.Bytes(), nil
}
