package habit

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"bloomboard/internal/clock"
	"bloomboard/internal/model"
	"bloomboard/internal/repository"
	"bloomboard/internal/service/feedback"
	"bloomboard/pkg/mq"
	"bloomboard/pkg/trace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store *Store
	repo  *repository.MemoryRepo
	clock *clock.FakeClock
	pub   *recordingPublisher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureWithRepo(t, repository.NewMemoryRepo())
}

func newFixtureWithRepo(t *testing.T, repo *repository.MemoryRepo) fixture {
	t.Helper()
	clk := clock.NewFakeClock(epoch)
	pub := &recordingPublisher{}
	s := NewStore(context.Background(), repo, zap.NewNop(),
		WithClock(clk),
		WithFeedback(feedback.NewQueue(clk, feedback.DefaultTTL)),
		WithPublisher(pub),
	)
	return fixture{store: s, repo: repo, clock: clk, pub: pub}
}

func (f fixture) stored(t *testing.T) []byte {
	t.Helper()
	raw, _, err := f.repo.Get(context.Background(), DefaultKey)
	require.NoError(t, err)
	return raw
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	p.mu.Lock()
	p.keys = append(p.keys, routingKey)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) count(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, k := range p.keys {
		if k == key {
			n++
		}
	}
	return n
}

func hasOneDecimal(v float64) bool {
	return math.Abs(v*10-math.Round(v*10)) < 1e-9
}

func TestCreateTrimsAndPrependsNewest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, ok := f.store.Create(ctx, "  Meditar ", "  5 minutos  ")
	require.True(t, ok)
	f.clock.Advance(time.Second)
	second, ok := f.store.Create(ctx, "Leer", "")
	require.True(t, ok)

	assert.Equal(t, "Meditar", first.Title)
	assert.Equal(t, "5 minutos", first.Desc)
	assert.Zero(t, first.Score)
	assert.Nil(t, first.LastWatered)
	assert.NotNil(t, first.DaysTracked)
	assert.Empty(t, first.DaysTracked)
	assert.True(t, first.CreatedAt.Equal(epoch))

	all := f.store.List(FilterAll)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")
	assert.Equal(t, first.ID, all[1].ID)
	assert.Equal(t, 2, f.repo.Writes())
	assert.Equal(t, 2, f.pub.count(mq.RoutingKeyHabitPlanted))
}

func TestCreateBlankTitleIsNoop(t *testing.T) {
	f := newFixture(t)

	for _, title := range []string{"", "   ", "\t\n"} {
		_, ok := f.store.Create(context.Background(), title, "desc")
		assert.False(t, ok, "title %q", title)
	}

	assert.Empty(t, f.store.List(FilterAll))
	assert.Zero(t, f.repo.Writes())
}

func TestIDsStayUniqueWithinOneMillisecond(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seen := map[int64]bool{}
	for i := 0; i < 5; i++ {
		h, ok := f.store.Create(ctx, "same instant", "")
		require.True(t, ok)
		assert.False(t, seen[h.ID], "duplicate id %d", h.ID)
		seen[h.ID] = true
	}

	first := f.store.List(FilterAll)[4]
	assert.Equal(t, epoch.UnixMilli(), first.ID, "ids derive from the creation instant")
}

func TestMeditarExample(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, ok := f.store.Create(ctx, "Meditar", "")
	require.True(t, ok)
	assert.Equal(t, 0.0, h.Score)

	h, ev, ok := f.store.Advance(ctx, h.ID)
	require.True(t, ok)
	assert.Equal(t, 4.8, h.Score)
	assert.Len(t, h.DaysTracked, 1)
	assert.Equal(t, "+4.8", ev.Label)
	assert.Equal(t, h.ID, ev.HabitID)

	for i := 0; i < 20; i++ {
		f.clock.Advance(time.Hour)
		h, _, ok = f.store.Advance(ctx, h.ID)
		require.True(t, ok)
	}
	assert.Equal(t, 100.0, h.Score)
	assert.Len(t, h.DaysTracked, 21)

	bloomed := f.store.List(FilterBloomed)
	require.Len(t, bloomed, 1)
	assert.Equal(t, h.ID, bloomed[0].ID)
	assert.Empty(t, f.store.List(FilterGrowing))
	assert.Equal(t, 1, f.pub.count(mq.RoutingKeyHabitBloomed))
}

func TestTwentyOneWateringsReachFullBloom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h, _ := f.store.Create(ctx, "Estirar", "")

	for i := 1; i <= TotalSteps; i++ {
		h, _, _ = f.store.Advance(ctx, h.ID)
		assert.True(t, hasOneDecimal(h.Score), "step %d score %v", i, h.Score)
		if i < TotalSteps {
			assert.Less(t, h.Score, model.MaxScore, "step %d", i)
		}
	}
	assert.Equal(t, 100.0, h.Score)

	got, ok := f.store.Get(h.ID)
	require.True(t, ok)
	assert.Equal(t, 100.0, got.Score)
}

func TestAdvanceAtCapStillRecordsTheAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h, _ := f.store.Create(ctx, "Agua", "")

	const n = 30
	for i := 0; i < n; i++ {
		f.clock.Advance(time.Minute)
		h, _, _ = f.store.Advance(ctx, h.ID)
		assert.GreaterOrEqual(t, h.Score, 0.0)
		assert.LessOrEqual(t, h.Score, 100.0)
	}

	assert.Equal(t, 100.0, h.Score)
	assert.Len(t, h.DaysTracked, n)
	require.NotNil(t, h.LastWatered)
	assert.True(t, h.LastWatered.Equal(h.DaysTracked[n-1].Time))
	assert.True(t, h.DaysTracked[0].Before(h.DaysTracked[n-1].Time), "history keeps insertion order")
	assert.Equal(t, 1, f.pub.count(mq.RoutingKeyHabitBloomed), "bloom is announced once")
}

func TestAdvanceFromUnevenScoresKeepsInvariants(t *testing.T) {
	repo := repository.NewMemoryRepo()
	repo.Seed(DefaultKey, []byte(`[
		{"id": 1, "title": "a", "score": 99.96, "daysTracked": []},
		{"id": 2, "title": "b", "score": 0.25, "daysTracked": []},
		{"id": 3, "title": "c", "score": -3, "daysTracked": []}
	]`))
	f := newFixtureWithRepo(t, repo)

	for _, id := range []int64{1, 2, 3} {
		for i := 0; i < 25; i++ {
			h, _, ok := f.store.Advance(context.Background(), id)
			require.True(t, ok)
			assert.True(t, h.Score >= 0 && h.Score <= 100, "id %d score %v", id, h.Score)
			assert.True(t, hasOneDecimal(h.Score), "id %d score %v", id, h.Score)
		}
	}
}

func TestAdvanceUnknownIDLeavesStorageUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h, _ := f.store.Create(ctx, "Meditar", "")
	f.store.Advance(ctx, h.ID)

	before := f.stored(t)
	writes := f.repo.Writes()

	_, _, ok := f.store.Advance(ctx, h.ID+999)
	assert.False(t, ok)
	assert.Equal(t, writes, f.repo.Writes())
	assert.Equal(t, before, f.stored(t))
	assert.Empty(t, f.store.Feedback(h.ID+999))
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _ := f.store.Create(ctx, "a", "")
	f.clock.Advance(time.Millisecond)
	b, _ := f.store.Create(ctx, "b", "")

	require.True(t, f.store.Select(a.ID))
	writes := f.repo.Writes()

	assert.False(t, f.store.Remove(ctx, 424242))
	assert.Equal(t, writes, f.repo.Writes(), "unknown id does not write")

	assert.True(t, f.store.Remove(ctx, a.ID))
	assert.Equal(t, writes+1, f.repo.Writes())

	_, selected := f.store.Selected()
	assert.False(t, selected, "removing the selected habit clears the selection")

	all := f.store.List(FilterAll)
	require.Len(t, all, 1)
	assert.Equal(t, b.ID, all[0].ID)
	_, ok := f.store.Get(a.ID)
	assert.False(t, ok)
}

func TestSelectionSurvivesRemovalOfOtherHabits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _ := f.store.Create(ctx, "a", "")
	f.clock.Advance(time.Millisecond)
	b, _ := f.store.Create(ctx, "b", "")

	assert.False(t, f.store.Select(999))
	require.True(t, f.store.Select(a.ID))
	f.store.Remove(ctx, b.ID)

	got, ok := f.store.Selected()
	require.True(t, ok)
	assert.Equal(t, a.ID, got.ID)

	f.store.ClearSelection()
	_, ok = f.store.Selected()
	assert.False(t, ok)
}

func TestReturnedHabitsAreCopies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h, _ := f.store.Create(ctx, "a", "")
	h, _, _ = f.store.Advance(ctx, h.ID)

	h.Score = 77
	h.DaysTracked[0] = model.Timestamp{}

	got, _ := f.store.Get(h.ID)
	assert.Equal(t, 4.8, got.Score)
	assert.False(t, got.DaysTracked[0].IsZero())
}

func TestPersistedDocumentShape(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h, _ := f.store.Create(ctx, "Meditar", "")
	f.store.Advance(ctx, h.ID)

	var docs []map[string]any
	require.NoError(t, json.Unmarshal(f.stored(t), &docs))
	require.Len(t, docs, 1)

	doc := docs[0]
	assert.Equal(t, float64(h.ID), doc["id"])
	assert.Equal(t, "Meditar", doc["title"])
	assert.Equal(t, "", doc["desc"])
	assert.Equal(t, "2026-10-19T09:30:00.000Z", doc["createdAt"])
	assert.Equal(t, 4.8, doc["score"])
	assert.Equal(t, "2026-10-19T09:30:00.000Z", doc["lastWatered"])
	assert.Len(t, doc["daysTracked"], 1)
}

func TestStoreReloadsPersistedCollection(t *testing.T) {
	repo := repository.NewMemoryRepo()
	f := newFixtureWithRepo(t, repo)
	ctx := context.Background()
	h, _ := f.store.Create(ctx, "Meditar", "nota")
	f.store.Advance(ctx, h.ID)

	reloaded := newFixtureWithRepo(t, repo)
	all := reloaded.store.List(FilterAll)
	require.Len(t, all, 1)
	assert.Equal(t, h.ID, all[0].ID)
	assert.Equal(t, 4.8, all[0].Score)
	assert.Len(t, all[0].DaysTracked, 1)

	next, ok := reloaded.store.Create(ctx, "Nuevo", "")
	require.True(t, ok)
	assert.Greater(t, next.ID, h.ID, "ids continue past loaded ones")
}

type failingRepo struct {
	*repository.MemoryRepo
}

func (failingRepo) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk on fire")
}

func (failingRepo) Put(context.Context, string, []byte) error {
	return errors.New("disk on fire")
}

func TestLoadToleratesBadStorage(t *testing.T) {
	cases := map[string][]byte{
		"malformed": []byte(`[{"id": 1,`),
		"object":    []byte(`{"id": 1, "title": "x"}`),
		"number":    []byte(`42`),
		"null":      []byte(`null`),
		"empty":     []byte(``),
		"bad field": []byte(`[{"id": "one", "title": "x"}]`),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			repo := repository.NewMemoryRepo()
			repo.Seed(DefaultKey, raw)
			s := NewStore(context.Background(), repo, zap.NewNop())
			assert.Empty(t, s.List(FilterAll))
			assert.Zero(t, repo.Writes(), "loading never writes")
		})
	}

	t.Run("missing key", func(t *testing.T) {
		s := NewStore(context.Background(), repository.NewMemoryRepo(), zap.NewNop())
		assert.Empty(t, s.List(FilterAll))
	})

	t.Run("read error", func(t *testing.T) {
		s := NewStore(context.Background(), failingRepo{repository.NewMemoryRepo()}, zap.NewNop())
		assert.Empty(t, s.List(FilterAll))
	})
}

func TestStorageWriteFailureIsNotFatal(t *testing.T) {
	s := NewStore(context.Background(), failingRepo{repository.NewMemoryRepo()}, zap.NewNop())
	ctx := context.Background()

	h, ok := s.Create(ctx, "Meditar", "")
	require.True(t, ok)
	h, _, ok = s.Advance(ctx, h.ID)
	require.True(t, ok)
	assert.Equal(t, 4.8, h.Score)
	assert.True(t, s.Remove(ctx, h.ID))
}

func TestReplaceOverwritesAndNormalizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old, _ := f.store.Create(ctx, "old", "")
	require.True(t, f.store.Select(old.ID))

	n := f.store.Replace(ctx, []model.Habit{
		{ID: 10, Title: " Leer ", Score: 120},
		{ID: 10, Title: "duplicate id"},
		{ID: 11, Title: "   "},
		{ID: 12, Title: "Correr", Score: 4.75},
	})
	assert.Equal(t, 2, n)

	all := f.store.List(FilterAll)
	require.Len(t, all, 2)
	assert.Equal(t, "Leer", all[0].Title)
	assert.Equal(t, 100.0, all[0].Score)
	assert.NotNil(t, all[0].DaysTracked)
	assert.Equal(t, 4.8, all[1].Score)

	_, selected := f.store.Selected()
	assert.False(t, selected, "selection pointing outside the new collection is cleared")

	var stored []model.Habit
	require.NoError(t, json.Unmarshal(f.stored(t), &stored))
	assert.Len(t, stored, 2)
}

func TestFeedbackEventsExpire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h, _ := f.store.Create(ctx, "a", "")

	f.store.Advance(ctx, h.ID)
	require.Len(t, f.store.Feedback(h.ID), 1)

	f.clock.Advance(feedback.DefaultTTL)
	assert.Empty(t, f.store.Feedback(h.ID))
}

func TestCancelledContextStillPersists(t *testing.T) {
	dir := t.TempDir()
	repo, err := repository.NewFileRepo(dir, zap.NewNop())
	require.NoError(t, err)

	clk := clock.NewFakeClock(epoch)
	s := NewStore(context.Background(), repo, zap.NewNop(), WithClock(clk))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a, ok := s.Create(ctx, "Meditar", "")
	require.True(t, ok)
	clk.Advance(time.Millisecond)
	b, ok := s.Create(ctx, "Leer", "")
	require.True(t, ok)
	_, _, ok = s.Advance(ctx, a.ID)
	require.True(t, ok)
	require.True(t, s.Remove(ctx, b.ID))

	reloaded := NewStore(context.Background(), repo, zap.NewNop(), WithClock(clk))
	all := reloaded.List(FilterAll)
	require.Len(t, all, 1)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, 4.8, all[0].Score)
	assert.Len(t, all[0].DaysTracked, 1)
}

type blockingPublisher struct {
	entered chan struct{}
	release chan struct{}
}

func (p *blockingPublisher) Publish(context.Context, string, any) error {
	p.entered <- struct{}{}
	<-p.release
	return nil
}

func (p *blockingPublisher) Close() {}

func TestSlowPublisherDoesNotBlockReads(t *testing.T) {
	pub := &blockingPublisher{entered: make(chan struct{}, 1), release: make(chan struct{})}
	s := NewStore(context.Background(), repository.NewMemoryRepo(), zap.NewNop(),
		WithClock(clock.NewFakeClock(epoch)),
		WithPublisher(pub),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Create(context.Background(), "Meditar", "")
	}()

	select {
	case <-pub.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher was never called")
	}

	listed := make(chan []model.Habit, 1)
	go func() { listed <- s.List(FilterAll) }()

	select {
	case all := <-listed:
		assert.Len(t, all, 1, "the habit is visible while its event is in flight")
		close(pub.release)
	case <-time.After(2 * time.Second):
		t.Error("List blocked behind a pending publish")
		close(pub.release)
		<-listed
	}
	<-done
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) error {
	return errors.New("broker unreachable")
}

func (failingPublisher) Close() {}

func TestPublishFailureLogsCarryTraceID(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	s := NewStore(context.Background(), repository.NewMemoryRepo(), zap.New(core),
		WithClock(clock.NewFakeClock(epoch)),
		WithPublisher(failingPublisher{}),
	)
	ctx := trace.WithContext(context.Background(), "trace-abc")

	h, ok := s.Create(ctx, "Meditar", "")
	require.True(t, ok)
	s.Replace(ctx, []model.Habit{h})

	warns := logs.FilterMessage("Failed to publish habit event").All()
	require.Len(t, warns, 2)
	for _, entry := range warns {
		assert.Equal(t, "trace-abc", entry.ContextMap()["trace_id"])
	}
}
