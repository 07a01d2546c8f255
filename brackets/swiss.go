package brackets

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"github.com/Dosada05/tournament-settlement/models"
)

// searchBudget caps the rematch-free backtracking search. When it is
// exhausted the generator falls back to pairing with tolerated repeats.
const searchBudget = 200_000

var ErrNotEnoughPlayers = errors.New("not enough players to generate pairings (minimum 2)")

// TotalRounds returns ceil(log2(playerCount)) + 1.
func TotalRounds(playerCount int) int {
	if playerCount <= 0 {
		return 0
	}
	return bits.Len(uint(playerCount-1)) + 1
}

// SideAssigner decides who plays as player1. It is the only place a
// non-deterministic choice may enter a round.
type SideAssigner interface {
	Assign(round int, higher, lower int) (player1, player2 int)
}

// HigherRankedFirst keeps the better-placed player as player1.
type HigherRankedFirst struct{}

func (HigherRankedFirst) Assign(_ int, higher, lower int) (int, int) {
	return higher, lower
}

type SwissGenerator struct {
	sides SideAssigner
}

func NewSwissGenerator(sides SideAssigner) PairingGenerator {
	if sides == nil {
		sides = HigherRankedFirst{}
	}
	return &SwissGenerator{sides: sides}
}

func (g *SwissGenerator) GetName() string {
	return "Swiss"
}

type pairKey struct{ a, b int }

func keyOf(a, b int) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// GenerateRound pairs the next round. Round 1 pairs the top half of the
// registration order against the bottom half; later rounds walk the current
// standings and avoid any pair that has already met.
func (g *SwissGenerator) GenerateRound(ctx context.Context, params GenerateRoundParams) ([]*BracketMatch, error) {
	if len(params.Players) < 2 {
		return nil, ErrNotEnoughPlayers
	}
	if params.Round < 1 {
		return nil, fmt.Errorf("SwissGenerator: invalid round %d", params.Round)
	}

	met := make(map[pairKey]int)
	byes := make(map[int]int)
	for _, m := range params.History {
		if m.IsBye() {
			byes[m.Player1ID]++
			continue
		}
		met[keyOf(m.Player1ID, *m.Player2ID)]++
	}

	order := pairingOrder(params)

	var byePlayer *int
	if len(order)%2 == 1 {
		idx := pickBye(order, byes)
		id := order[idx]
		byePlayer = &id
		order = append(append(make([]int, 0, len(order)-1), order[:idx]...), order[idx+1:]...)
	}

	var pairs [][2]int
	if params.Round == 1 && len(params.History) == 0 {
		half := len(order) / 2
		for i := 0; i < half; i++ {
			pairs = append(pairs, [2]int{order[i], order[i+half]})
		}
	} else {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		budget := searchBudget
		pairs = pairWithoutRematch(order, met, &budget)
		if pairs == nil {
			pairs = pairWithFewestRepeats(order, met)
		}
	}

	matches := make([]*BracketMatch, 0, len(pairs)+1)
	for i, p := range pairs {
		p1, p2 := g.sides.Assign(params.Round, p[0], p[1])
		matches = append(matches, &BracketMatch{
			Round:          params.Round,
			OrderInRound:   i + 1,
			Participant1ID: p1,
			Participant2ID: &p2,
		})
	}
	if byePlayer != nil {
		matches = append(matches, &BracketMatch{
			Round:          params.Round,
			OrderInRound:   len(pairs) + 1,
			Participant1ID: *byePlayer,
			IsBye:          true,
		})
	}
	return matches, nil
}

// pairingOrder is registration order for round 1 and standings order after
// that. Players missing from the standings go last, in registration order.
func pairingOrder(params GenerateRoundParams) []int {
	active := make(map[int]bool, len(params.Players))
	for _, id := range params.Players {
		active[id] = true
	}
	order := make([]int, 0, len(params.Players))
	if params.Round > 1 {
		for _, s := range params.Standings {
			if active[s.UserID] {
				order = append(order, s.UserID)
				delete(active, s.UserID)
			}
		}
	}
	for _, id := range params.Players {
		if active[id] {
			order = append(order, id)
			delete(active, id)
		}
	}
	return order
}

// pickBye returns the index of the lowest-placed player with the fewest byes.
func pickBye(order []int, byes map[int]int) int {
	best := len(order) - 1
	for i := len(order) - 1; i >= 0; i-- {
		if byes[order[i]] < byes[order[best]] {
			best = i
		}
		if byes[order[best]] == 0 {
			break
		}
	}
	return best
}

func pairWithoutRematch(order []int, met map[pairKey]int, budget *int) [][2]int {
	if len(order) == 0 {
		return [][2]int{}
	}
	top := order[0]
	for i := 1; i < len(order); i++ {
		*budget--
		if *budget <= 0 {
			return nil
		}
		if met[keyOf(top, order[i])] > 0 {
			continue
		}
		rest := make([]int, 0, len(order)-2)
		rest = append(rest, order[1:i]...)
		rest = append(rest, order[i+1:]...)
		if tail := pairWithoutRematch(rest, met, budget); tail != nil {
			return append([][2]int{{top, order[i]}}, tail...)
		}
		if *budget <= 0 {
			return nil
		}
	}
	return nil
}

// pairWithFewestRepeats pairs each top player with the nearest opponent met
// the fewest times.
func pairWithFewestRepeats(order []int, met map[pairKey]int) [][2]int {
	remaining := append([]int(nil), order...)
	pairs := make([][2]int, 0, len(order)/2)
	for len(remaining) >= 2 {
		top := remaining[0]
		best := 1
		for i := 2; i < len(remaining); i++ {
			if met[keyOf(top, remaining[i])] < met[keyOf(top, remaining[best])] {
				best = i
			}
		}
		pairs = append(pairs, [2]int{top, remaining[best]})
		next := make([]int, 0, len(remaining)-2)
		next = append(next, remaining[1:best]...)
		next = append(next, remaining[best+1:]...)
		remaining = next
	}
	return pairs
}

// RoundMatches converts generated pairings into unsaved matches. Byes are
// stored already completed with a PLAYER1 result.
func RoundMatches(tournamentID int, generated []*BracketMatch) []*models.Match {
	out := make([]*models.Match, 0, len(generated))
	for _, bm := range generated {
		m := &models.Match{
			TournamentID: tournamentID,
			Round:        bm.Round,
			Board:        bm.OrderInRound,
			Player1ID:    bm.Participant1ID,
			Player2ID:    bm.Participant2ID,
			Status:       models.MatchStatusScheduled,
		}
		if bm.IsBye {
			res := models.MatchResultPlayer1
			m.Player2ID = nil
			m.Result = &res
			m.Status = models.MatchStatusCompleted
		}
		out = append(out, m)
	}
	return out
}
