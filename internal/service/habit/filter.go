package habit

import (
	"strings"

	"bloomboard/internal/model"
)

type FilterMode string

const (
	FilterAll     FilterMode = "all"
	FilterGrowing FilterMode = "growing"
	FilterBloomed FilterMode = "bloomed"
)

// ParseFilterMode is case-insensitive; unknown input means "all".
func ParseFilterMode(raw string) FilterMode {
	switch FilterMode(strings.ToLower(strings.TrimSpace(raw))) {
	case FilterGrowing:
		return FilterGrowing
	case FilterBloomed:
		return FilterBloomed
	default:
		return FilterAll
	}
}

// Filter returns the habits matching mode, keeping their relative order.
func Filter(habits []model.Habit, mode FilterMode) []model.Habit {
	out := make([]model.Habit, 0, len(habits))
	for _, h := range habits {
		switch mode {
		case FilterGrowing:
			if h.Bloomed() {
				continue
			}
		case FilterBloomed:
			if !h.Bloomed() {
				continue
			}
		}
		out = append(out, h)
	}
	return out
}
