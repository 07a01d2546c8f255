package models

// Standing is derived from entries and matches and never persisted.
// Points and tie-break sums are multiples of 0.25, which float64 represents exactly.
type Standing struct {
	UserID        int     `json:"user_id"`
	Placement     int     `json:"placement,omitempty"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	Draws         int     `json:"draws"`
	MatchesPlayed int     `json:"matches_played"`
	Points        float64 `json:"points"`
	Buchholz      float64 `json:"buchholz"`
	Sonneborn     float64 `json:"sonneborn"`
	HadBye        bool    `json:"had_bye"`
}

// SameRank reports whether two standings are indistinguishable by every tie-break.
func (s *Standing) SameRank(o *Standing) bool {
	return s.Points == o.Points &&
		s.Buchholz == o.Buchholz &&
		s.Sonneborn == o.Sonneborn &&
		s.Wins == o.Wins &&
		s.Losses == o.Losses
}
