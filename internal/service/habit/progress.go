package habit

import (
	"fmt"
	"math"

	"bloomboard/internal/model"
)

// TotalSteps is the number of waterings that take a habit from 0 to full bloom.
// Changing it changes the bloom rate of every habit.
const TotalSteps = 21

// Increment is the score added by one watering (≈4.7619).
const Increment = model.MaxScore / TotalSteps

// RoundScore rounds to one decimal place, half away from zero.
func RoundScore(v float64) float64 {
	return math.Round(v*10) / 10
}

// ClampScore forces v into [0, MaxScore] and rounds it.
func ClampScore(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > model.MaxScore:
		return model.MaxScore
	}
	return RoundScore(v)
}

// NextScore is the score after one watering: capped first, then rounded.
func NextScore(current float64) float64 {
	return ClampScore(math.Min(current+Increment, model.MaxScore))
}

// IncrementLabel is the feedback text shown after a watering, e.g. "+4.8".
func IncrementLabel() string {
	return fmt.Sprintf("+%.1f", Increment)
}
