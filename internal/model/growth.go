package model

import "time"

// Growth stages of the plant, from seed to flower.
const (
	StageSeed = iota
	StageSprout
	StageSapling
	StageBud
	StageBloom
)

// GrowthStage maps a score to the stage the presentation layer draws.
func GrowthStage(score float64) int {
	switch {
	case score >= MaxScore:
		return StageBloom
	case score >= 70:
		return StageBud
	case score >= 40:
		return StageSapling
	case score >= 10:
		return StageSprout
	default:
		return StageSeed
	}
}

// WateredToday compares UTC calendar dates of lastWatered and now.
func WateredToday(lastWatered *Timestamp, now time.Time) bool {
	if lastWatered == nil || lastWatered.IsZero() {
		return false
	}
	return lastWatered.UTC().Format("2006-01-02") == now.UTC().Format("2006-01-02")
}

// HabitView is a habit plus the derived fields a renderer needs.
type HabitView struct {
	Habit
	Stage        int  `json:"stage"`
	WateredToday bool `json:"wateredToday"`
	Bloomed      bool `json:"bloomed"`
}

func NewHabitView(h Habit, now time.Time) HabitView {
	return HabitView{
		Habit:        h,
		Stage:        GrowthStage(h.Score),
		WateredToday: WateredToday(h.LastWatered, now),
		Bloomed:      h.Bloomed(),
	}
}
