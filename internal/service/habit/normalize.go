package habit

import (
	"strings"

	"bloomboard/internal/model"
)

// Normalize enforces the collection invariants on records that did not come
// from the store itself (stored or imported JSON). Order is preserved.
// Records with a blank title are dropped, the first record wins on duplicate
// ids, scores are clamped to [0, 100] and rounded, and a missing history
// becomes empty.
func Normalize(habits []model.Habit) []model.Habit {
	out := make([]model.Habit, 0, len(habits))
	seen := make(map[int64]struct{}, len(habits))
	for _, h := range habits {
		h = h.Clone()
		h.Title = strings.TrimSpace(h.Title)
		if h.Title == "" {
			continue
		}
		if _, dup := seen[h.ID]; dup {
			continue
		}
		seen[h.ID] = struct{}{}

		h.Desc = strings.TrimSpace(h.Desc)
		h.Score = ClampScore(h.Score)
		out = append(out, h)
	}
	return out
}

func maxID(habits []model.Habit) int64 {
	var m int64
	for _, h := range habits {
		if h.ID > m {
			m = h.ID
		}
	}
	return m
}
