package brackets

import (
	"sort"

	"github.com/Dosada05/tournament-settlement/models"
)

const (
	pointsWin  = 1.0
	pointsDraw = 0.5
	pointsLoss = 0.0
)

type opponentScore struct {
	opponentID int
	score      float64 // 1 за победу, 0.5 за ничью, 0 за поражение
}

// ComputeStandings scores every resulted match for the given players and
// returns the standings in final ranking order. Matches that reference a
// player outside userIDs only count for the known side.
func ComputeStandings(userIDs []int, matches []*models.Match) []*models.Standing {
	byUser := make(map[int]*models.Standing, len(userIDs))
	opponents := make(map[int][]opponentScore, len(userIDs))
	for _, id := range userIDs {
		if _, dup := byUser[id]; dup {
			continue
		}
		byUser[id] = &models.Standing{UserID: id}
	}

	for _, m := range matches {
		if m.Result == nil {
			continue
		}
		p1 := byUser[m.Player1ID]

		if m.IsBye() {
			if p1 != nil {
				p1.Wins++
				p1.Points += pointsWin
				p1.HadBye = true
			}
			continue
		}

		p2 := byUser[*m.Player2ID]
		var s1, s2 float64
		switch *m.Result {
		case models.MatchResultPlayer1:
			s1, s2 = pointsWin, pointsLoss
		case models.MatchResultPlayer2:
			s1, s2 = pointsLoss, pointsWin
		case models.MatchResultDraw:
			s1, s2 = pointsDraw, pointsDraw
		default:
			continue
		}
		if p1 != nil {
			applyScore(p1, s1)
			opponents[p1.UserID] = append(opponents[p1.UserID], opponentScore{opponentID: *m.Player2ID, score: s1})
		}
		if p2 != nil {
			applyScore(p2, s2)
			opponents[p2.UserID] = append(opponents[p2.UserID], opponentScore{opponentID: m.Player1ID, score: s2})
		}
	}

	standings := make([]*models.Standing, 0, len(byUser))
	for id, s := range byUser {
		for _, o := range opponents[id] {
			opp, ok := byUser[o.opponentID]
			if !ok {
				continue
			}
			s.Buchholz += opp.Points
			s.Sonneborn += opp.Points * o.score
		}
		standings = append(standings, s)
	}

	SortStandings(standings)
	return standings
}

func applyScore(s *models.Standing, score float64) {
	s.MatchesPlayed++
	s.Points += score
	switch score {
	case pointsWin:
		s.Wins++
	case pointsDraw:
		s.Draws++
	default:
		s.Losses++
	}
}

// SortStandings orders by points, Buchholz, Sonneborn-Berger and wins
// descending, then losses ascending, then userId ascending.
func SortStandings(standings []*models.Standing) {
	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.Buchholz != b.Buchholz {
			return a.Buchholz > b.Buchholz
		}
		if a.Sonneborn != b.Sonneborn {
			return a.Sonneborn > b.Sonneborn
		}
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.Losses != b.Losses {
			return a.Losses < b.Losses
		}
		return a.UserID < b.UserID
	})
}

// AssignPlacements sets competition-style placements on sorted standings:
// tied players share a placement and the next distinct group takes its
// 1-based index (1, 1, 3, ...).
func AssignPlacements(sorted []*models.Standing) {
	for i, s := range sorted {
		if i > 0 && s.SameRank(sorted[i-1]) {
			s.Placement = sorted[i-1].Placement
			continue
		}
		s.Placement = i + 1
	}
}
