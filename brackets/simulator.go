package brackets

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/Dosada05/tournament-settlement/models"
)

// OutcomeSource produces results for simulated matches. Only demo tooling
// uses it; the ranking and pairing code never draws random numbers itself.
type OutcomeSource interface {
	Outcome(m *models.Match) models.MatchResult
}

// SeededOutcomes draws results from a seeded generator so a simulation can
// be replayed exactly.
type SeededOutcomes struct {
	rng      *rand.Rand
	drawRate float64
}

func NewSeededOutcomes(seed int64, drawRate float64) *SeededOutcomes {
	return &SeededOutcomes{rng: rand.New(rand.NewSource(seed)), drawRate: drawRate}
}

func (s *SeededOutcomes) Outcome(_ *models.Match) models.MatchResult {
	if s.rng.Float64() < s.drawRate {
		return models.MatchResultDraw
	}
	if s.rng.Intn(2) == 0 {
		return models.MatchResultPlayer1
	}
	return models.MatchResultPlayer2
}

// RandomSides swaps sides with probability 1/2 using its own seeded generator.
type RandomSides struct {
	rng *rand.Rand
}

func NewRandomSides(seed int64) *RandomSides {
	return &RandomSides{rng: rand.New(rand.NewSource(seed))}
}

func (r *RandomSides) Assign(_ int, higher, lower int) (int, int) {
	if r.rng.Intn(2) == 0 {
		return lower, higher
	}
	return higher, lower
}

type SimulationResult struct {
	Rounds    int
	Matches   []*models.Match
	Standings []*models.Standing
}

// Simulate plays a full Swiss event in memory.
func Simulate(ctx context.Context, players []int, gen PairingGenerator, outcomes OutcomeSource) (*SimulationResult, error) {
	total := TotalRounds(len(players))
	var history []*models.Match
	nextID := 1

	for round := 1; round <= total; round++ {
		standings := ComputeStandings(players, history)
		generated, err := gen.GenerateRound(ctx, GenerateRoundParams{
			Round:     round,
			Players:   players,
			Standings: standings,
			History:   history,
		})
		if err != nil {
			return nil, fmt.Errorf("simulate round %d: %w", round, err)
		}
		for _, m := range RoundMatches(0, generated) {
			m.ID = nextID
			nextID++
			if !m.IsBye() {
				res := outcomes.Outcome(m)
				m.Result = &res
				m.Status = models.MatchStatusCompleted
			}
			history = append(history, m)
		}
	}

	final := ComputeStandings(players, history)
	AssignPlacements(final)
	return &SimulationResult{Rounds: total, Matches: history, Standings: final}, nil
}
