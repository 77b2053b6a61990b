package model

import (
	"bytes"
	"fmt"
	"time"
)

// MaxScore is the bloom threshold and the score cap.
const MaxScore = 100.0

// TimestampLayout matches the ISO-8601 form browsers produce with toISOString.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp is a UTC instant with millisecond precision, encoded as an ISO-8601 string.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Millisecond)}
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + ts.UTC().Format(TimestampLayout) + `"`), nil
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("timestamp must be a string, got %s", data)
	}
	t, err := time.Parse(time.RFC3339Nano, string(data[1:len(data)-1]))
	if err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	*ts = NewTimestamp(t)
	return nil
}

type Habit struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	Desc        string      `json:"desc"`
	CreatedAt   Timestamp   `json:"createdAt"`
	Score       float64     `json:"score"`
	LastWatered *Timestamp  `json:"lastWatered"`
	DaysTracked []Timestamp `json:"daysTracked"`
}

// Bloomed reports whether the habit reached the score cap.
func (h Habit) Bloomed() bool {
	return h.Score >= MaxScore
}

// Clone returns a copy that shares no slices or pointers with h.
func (h Habit) Clone() Habit {
	out := h
	if h.LastWatered != nil {
		lw := *h.LastWatered
		out.LastWatered = &lw
	}
	out.DaysTracked = make([]Timestamp, len(h.DaysTracked))
	copy(out.DaysTracked, h.DaysTracked)
	return out
}

// CloneAll deep-copies a collection, never returning nil.
func CloneAll(habits []Habit) []Habit {
	out := make([]Habit, 0, len(habits))
	for _, h := range habits {
		out = append(out, h.Clone())
	}
	return out
}
