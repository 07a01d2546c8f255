package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Dosada05/tournament-settlement/brackets"
	"github.com/Dosada05/tournament-settlement/events"
	"github.com/Dosada05/tournament-settlement/models"
	"github.com/Dosada05/tournament-settlement/repositories"
)

func (s *tournamentService) ReportResult(ctx context.Context, actor models.Actor, matchID int, result models.MatchResult) (*models.Match, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !result.Valid() {
		return nil, ErrInvalidMatchResult
	}

	var match *models.Match
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		m, err := s.matchRepo.GetByID(ctx, exec, matchID)
		if err != nil {
			if errors.Is(err, repositories.ErrMatchNotFound) {
				return ErrMatchNotFound
			}
			return err
		}
		t, err := s.tournamentRepo.GetForUpdate(ctx, exec, m.TournamentID)
		if err != nil {
			return mapTournamentErr(err)
		}
		if t.Status != models.TournamentStatusInProgress {
			return ErrTournamentNotInProgress
		}
		if m.IsBye() || m.Status == models.MatchStatusCompleted {
			return ErrMatchAlreadyReported
		}

		completedAt := s.now().UTC()
		if err := s.matchRepo.RecordResult(ctx, exec, matchID, result, completedAt); err != nil {
			if errors.Is(err, repositories.ErrMatchAlreadyCompleted) {
				return ErrMatchAlreadyReported
			}
			return err
		}
		before := *m
		m.Result = &result
		m.Status = models.MatchStatusCompleted
		m.CompletedAt = &completedAt
		match = m
		return recordAudit(ctx, exec, s.auditRepo, AuditMatchReported, actor, "match", strconv.Itoa(matchID), before, m)
	})
	if err != nil {
		return nil, err
	}

	s.publishStandings(ctx, match.TournamentID)

	// Последний результат тура сразу запускает следующий тур.
	if _, err := s.AdvanceRound(ctx, models.SystemActor, match.TournamentID); err != nil &&
		!errors.Is(err, ErrRoundNotComplete) && !errors.Is(err, ErrRoundAlreadyAdvanced) {
		s.logger.WarnContext(ctx, "Automatic round advancement failed",
			slog.Int("tournament_id", match.TournamentID), slog.Int("round", match.Round), slog.Any("error", err))
	}
	return match, nil
}

// AdvanceRound generates the next round once every match of the current round
// is completed, or completes the tournament after the last round. The checks
// and the insert share one transaction under the tournament row lock.
func (s *tournamentService) AdvanceRound(ctx context.Context, actor models.Actor, tournamentID int) (*RoundAdvance, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	var advance *RoundAdvance
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournamentRepo.GetForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return mapTournamentErr(err)
		}
		if t.Status != models.TournamentStatusInProgress {
			return ErrTournamentNotInProgress
		}

		current, err := s.matchRepo.MaxRound(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		total, completed, err := s.matchRepo.CountByRound(ctx, exec, tournamentID, current)
		if err != nil {
			return err
		}
		if current == 0 || completed < total {
			return ErrRoundNotComplete
		}

		snap, err := s.loader.load(ctx, exec, tournamentID, false)
		if err != nil {
			return err
		}

		if current >= brackets.TotalRounds(len(snap.Players)) {
			if err := s.tournamentRepo.UpdateStatus(ctx, exec, tournamentID, t.Status, models.TournamentStatusCompleted); err != nil {
				return err
			}
			advance = &RoundAdvance{TournamentID: tournamentID, Round: current, Completed: true}
			return recordAudit(ctx, exec, s.auditRepo, AuditTournamentCompleted, actor, "tournament", strconv.Itoa(tournamentID),
				map[string]interface{}{"status": t.Status, "round": current},
				map[string]interface{}{"status": models.TournamentStatusCompleted, "round": current})
		}

		next := current + 1
		nextTotal, _, err := s.matchRepo.CountByRound(ctx, exec, tournamentID, next)
		if err != nil {
			return err
		}
		if nextTotal > 0 {
			return ErrRoundAlreadyAdvanced
		}
		matches, err := s.insertRound(ctx, exec, tournamentID, next, snap)
		if err != nil {
			return err
		}
		advance = &RoundAdvance{TournamentID: tournamentID, Round: next, Matches: matches}
		return recordAudit(ctx, exec, s.auditRepo, AuditRoundGenerated, actor, "tournament", strconv.Itoa(tournamentID),
			map[string]interface{}{"round": current},
			map[string]interface{}{"round": next, "matches": len(matches)})
	})
	if err != nil {
		return nil, err
	}

	if advance.Completed {
		s.logger.InfoContext(ctx, "Tournament completed", slog.Int("tournament_id", tournamentID), slog.Int("round", advance.Round))
		standings, sErr := s.GetStandings(ctx, tournamentID)
		if sErr != nil {
			s.logger.WarnContext(ctx, "Failed to load final standings", slog.Int("tournament_id", tournamentID), slog.Any("error", sErr))
		}
		publish(ctx, s.bus, s.logger, events.New(events.TypeTournamentCompleted, tournamentID, standings))
		return advance, nil
	}

	s.logger.InfoContext(ctx, "Round generated", slog.Int("tournament_id", tournamentID), slog.Int("round", advance.Round))
	publish(ctx, s.bus, s.logger, events.New(events.TypeRoundStarted, tournamentID, advance))
	return advance, nil
}

func (s *tournamentService) GetStandings(ctx context.Context, tournamentID int) ([]*models.Standing, error) {
	if _, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID); err != nil {
		return nil, mapTournamentErr(err)
	}
	snap, err := s.loader.load(ctx, nil, tournamentID, false)
	if err != nil {
		return nil, err
	}
	return snap.standings(), nil
}

func (s *tournamentService) ListPairings(ctx context.Context, tournamentID int, round *int) ([]*models.Match, error) {
	if round != nil && *round < 1 {
		return nil, fmt.Errorf("%w: round must be positive", ErrValidationFailed)
	}
	if _, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID); err != nil {
		return nil, mapTournamentErr(err)
	}
	return s.matchRepo.ListByTournament(ctx, nil, tournamentID, round)
}

func (s *tournamentService) publishStandings(ctx context.Context, tournamentID int) {
	standings, err := s.GetStandings(ctx, tournamentID)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to compute standings for broadcast", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return
	}
	publish(ctx, s.bus, s.logger, events.New(events.TypeStandingsUpdated, tournamentID, standings))
}
