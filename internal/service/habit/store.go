package habit

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"

	"bloomboard/internal/clock"
	"bloomboard/internal/model"
	"bloomboard/internal/service/feedback"
	"bloomboard/pkg/logger"
	"bloomboard/pkg/metrics"
	"bloomboard/pkg/mq"
	"bloomboard/pkg/trace"
)

// DefaultKey is the storage key the collection lives under.
const DefaultKey = "bb_habits"

// Storage is the durable key-value collaborator. A missing key reports found=false.
type Storage interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Put(ctx context.Context, key string, value []byte) error
}

// Store owns the habit collection. Every operation runs under one mutex and
// writes the full collection to storage before releasing it, so operations
// never interleave. Storage failures are logged, never returned. Events are
// published after the lock is released.
type Store struct {
	mu        sync.Mutex
	storage   Storage
	key       string
	clock     clock.Clock
	logger    *zap.Logger
	feedback  *feedback.Queue
	publisher mq.EventPublisher

	habits   []model.Habit // newest first
	maxID    int64
	selected int64
	hasSel   bool
}

type Option func(*Store)

func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(s *Store) {
		if strings.TrimSpace(key) != "" {
			s.key = key
		}
	}
}

func WithFeedback(q *feedback.Queue) Option {
	return func(s *Store) { s.feedback = q }
}

func WithPublisher(p mq.EventPublisher) Option {
	return func(s *Store) { s.publisher = p }
}

// NewStore builds a store and loads the collection. Missing, unreadable or
// malformed storage content yields an empty collection.
func NewStore(ctx context.Context, storage Storage, log *zap.Logger, opts ...Option) *Store {
	s := &Store{
		storage:   storage,
		key:       DefaultKey,
		clock:     clock.RealClock{},
		logger:    log,
		publisher: mq.NopPublisher{},
		habits:    []model.Habit{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.feedback == nil {
		s.feedback = feedback.NewQueue(s.clock, feedback.DefaultTTL)
	}

	s.load(ctx)
	return s
}

func (s *Store) load(ctx context.Context) {
	log := logger.WithTrace(ctx, s.logger).With(zap.String("key", s.key))

	raw, found, err := s.storage.Get(ctx, s.key)
	if err != nil {
		log.Warn("Failed to read habits, starting empty", zap.Error(err))
		return
	}
	if !found {
		log.Info("No stored habits, starting empty")
		return
	}

	var loaded []model.Habit
	if err := json.Unmarshal(raw, &loaded); err != nil {
		log.Warn("Stored habits are malformed, starting empty",
			zap.Int("bytes", len(raw)),
			zap.Error(err),
		)
		return
	}

	s.habits = Normalize(loaded)
	s.maxID = maxID(s.habits)
	log.Info("Habits loaded", zap.Int("count", len(s.habits)))
}

// Create plants a new habit at the front of the collection. A blank title is a no-op.
func (s *Store) Create(ctx context.Context, title, desc string) (model.Habit, bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		metrics.IncrementHabitOperation("create", "noop")
		return model.Habit{}, false
	}

	s.mu.Lock()
	now := model.NewTimestamp(s.clock.Now())
	h := model.Habit{
		ID:          s.nextIDLocked(now),
		Title:       title,
		Desc:        strings.TrimSpace(desc),
		CreatedAt:   now,
		Score:       0,
		LastWatered: nil,
		DaysTracked: []model.Timestamp{},
	}

	next := make([]model.Habit, 0, len(s.habits)+1)
	next = append(next, h)
	next = append(next, s.habits...)
	s.habits = next

	s.persistLocked(ctx, "create")
	s.mu.Unlock()

	metrics.IncrementHabitOperation("create", "applied")
	logger.WithTrace(ctx, s.logger).Info("Habit planted",
		zap.Int64("id", h.ID),
		zap.String("title", h.Title),
	)
	s.publish(ctx, mq.RoutingKeyHabitPlanted, habitEvent(h, now))

	return h.Clone(), true
}

// Advance waters a habit: score moves one step toward the cap and the action
// is recorded. Unknown ids are a no-op with no storage write.
func (s *Store) Advance(ctx context.Context, id int64) (model.Habit, feedback.Event, bool) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		metrics.IncrementHabitOperation("advance", "noop")
		logger.WithTrace(ctx, s.logger).Debug("Advance on unknown habit ignored", zap.Int64("id", id))
		return model.Habit{}, feedback.Event{}, false
	}

	cur := s.habits[idx]
	now := model.NewTimestamp(s.clock.Now())

	next := cur.Clone()
	next.Score = NextScore(cur.Score)
	next.LastWatered = &now
	next.DaysTracked = append(next.DaysTracked, now)
	s.habits[idx] = next

	s.persistLocked(ctx, "advance")
	ev := s.feedback.Push(id, IncrementLabel())
	s.mu.Unlock()

	metrics.IncrementHabitOperation("advance", "applied")
	logger.WithTrace(ctx, s.logger).Info("Habit watered",
		zap.Int64("id", id),
		zap.Float64("score", next.Score),
		zap.Int("days_tracked", len(next.DaysTracked)),
	)
	s.publish(ctx, mq.RoutingKeyHabitWatered, habitEvent(next, now))
	if !cur.Bloomed() && next.Bloomed() {
		metrics.IncrementBloomed()
		s.publish(ctx, mq.RoutingKeyHabitBloomed, habitEvent(next, now))
	}

	return next.Clone(), ev, true
}

// Remove deletes a habit and clears the detail selection if it pointed at it.
// Unknown ids are a no-op with no storage write.
func (s *Store) Remove(ctx context.Context, id int64) bool {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		metrics.IncrementHabitOperation("remove", "noop")
		return false
	}

	removed := s.habits[idx]
	next := make([]model.Habit, 0, len(s.habits)-1)
	next = append(next, s.habits[:idx]...)
	next = append(next, s.habits[idx+1:]...)
	s.habits = next

	if s.hasSel && s.selected == id {
		s.hasSel = false
	}
	s.feedback.DropHabit(id)

	s.persistLocked(ctx, "remove")
	now := model.NewTimestamp(s.clock.Now())
	s.mu.Unlock()

	metrics.IncrementHabitOperation("remove", "applied")
	logger.WithTrace(ctx, s.logger).Info("Habit removed", zap.Int64("id", id))
	s.publish(ctx, mq.RoutingKeyHabitRemoved, habitEvent(removed, now))

	return true
}

// Replace overwrites the whole collection, as done by a startup import.
func (s *Store) Replace(ctx context.Context, habits []model.Habit) int {
	normalized := Normalize(habits)

	s.mu.Lock()
	s.habits = normalized
	s.maxID = maxID(normalized)
	if s.hasSel && s.indexLocked(s.selected) < 0 {
		s.hasSel = false
	}
	s.persistLocked(ctx, "replace")
	now := model.NewTimestamp(s.clock.Now())
	s.mu.Unlock()

	metrics.IncrementHabitOperation("replace", "applied")
	logger.WithTrace(ctx, s.logger).Info("Habits replaced",
		zap.Int("received", len(habits)),
		zap.Int("kept", len(normalized)),
	)
	s.publish(ctx, mq.RoutingKeyHabitsImported, mq.ImportEvent{
		Count:   len(normalized),
		At:      now.Format(model.TimestampLayout),
		TraceID: trace.FromContext(ctx),
	})

	return len(normalized)
}

// List returns copies of the habits matching mode, newest first.
func (s *Store) List(mode FilterMode) []model.Habit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Filter(model.CloneAll(s.habits), mode)
}

func (s *Store) Get(id int64) (model.Habit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return model.Habit{}, false
	}
	return s.habits[idx].Clone(), true
}

// Select marks a habit for the detail view. Unknown ids leave the selection unchanged.
func (s *Store) Select(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(id) < 0 {
		return false
	}
	s.selected = id
	s.hasSel = true
	return true
}

// Selected returns the habit open in the detail view, if any.
func (s *Store) Selected() (model.Habit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasSel {
		return model.Habit{}, false
	}
	idx := s.indexLocked(s.selected)
	if idx < 0 {
		s.hasSel = false
		return model.Habit{}, false
	}
	return s.habits[idx].Clone(), true
}

func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.hasSel = false
	s.mu.Unlock()
}

// Feedback returns the unexpired watering notices of a habit.
func (s *Store) Feedback(id int64) []feedback.Event {
	return s.feedback.Active(id)
}

// Now is the store clock, used to derive "watered today" in views.
func (s *Store) Now() model.Timestamp {
	return model.NewTimestamp(s.clock.Now())
}

func (s *Store) indexLocked(id int64) int {
	for i := range s.habits {
		if s.habits[i].ID == id {
			return i
		}
	}
	return -1
}

// nextIDLocked derives ids from the creation instant in Unix milliseconds and
// bumps past the largest known id, so two creations in one millisecond never collide.
func (s *Store) nextIDLocked(now model.Timestamp) int64 {
	id := now.UnixMilli()
	if id <= s.maxID {
		id = s.maxID + 1
	}
	s.maxID = id
	return id
}

// persistLocked writes the whole collection. The in-memory change is already
// committed, so the write must not be dropped when the caller's context is
// cancelled (a disconnected HTTP client, an interrupted CLI).
func (s *Store) persistLocked(ctx context.Context, op string) {
	ctx = context.WithoutCancel(ctx)
	log := logger.WithTrace(ctx, s.logger)

	raw, err := json.Marshal(s.habits)
	if err != nil {
		log.Error("Failed to encode habits", zap.String("op", op), zap.Error(err))
		return
	}
	if err := s.storage.Put(ctx, s.key, raw); err != nil {
		log.Error("Failed to persist habits",
			zap.String("op", op),
			zap.String("key", s.key),
			zap.Int("count", len(s.habits)),
			zap.Error(err),
		)
		return
	}
	log.Debug("Habits persisted",
		zap.String("op", op),
		zap.Int("count", len(s.habits)),
		zap.Int("bytes", len(raw)),
	)
}

func habitEvent(h model.Habit, at model.Timestamp) mq.HabitEvent {
	return mq.HabitEvent{
		HabitID: h.ID,
		Title:   h.Title,
		Score:   h.Score,
		At:      at.Format(model.TimestampLayout),
	}
}

// publish runs after the store lock is released, so a slow broker never
// blocks other habit operations.
func (s *Store) publish(ctx context.Context, routingKey string, payload any) {
	if ev, ok := payload.(mq.HabitEvent); ok {
		ev.TraceID = trace.FromContext(ctx)
		payload = ev
	}
	if err := s.publisher.Publish(ctx, routingKey, payload); err != nil {
		logger.WithTrace(ctx, s.logger).Warn("Failed to publish habit event",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}
}
