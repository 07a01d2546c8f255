package brackets

import (
	"context"

	"github.com/Dosada05/tournament-settlement/models"
)

// BracketMatch - пара, сгенерированная для тура, ещё не сохранённая в БД.
type BracketMatch struct {
	Round          int
	OrderInRound   int
	Participant1ID int
	Participant2ID *int
	IsBye          bool
}

type GenerateRoundParams struct {
	Round int
	// Players в порядке регистрации.
	Players []int
	// Standings текущей таблицы; используется начиная со второго тура.
	Standings []*models.Standing
	History   []*models.Match
}

type PairingGenerator interface {
	GenerateRound(ctx context.Context, params GenerateRoundParams) ([]*BracketMatch, error)

	GetName() string
}
