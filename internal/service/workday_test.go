package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"corpchat-backend/internal/calendar"
	"corpchat-backend/internal/model"
	"corpchat-backend/internal/store"
)

// T0 is 09:00 in São Paulo.
var T0 = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestService(t *testing.T, st WorkdayStore) (*WorkdayService, *testClock) {
	t.Helper()
	clock := &testClock{now: T0}
	days, err := calendar.NewDayKeyer("America/Sao_Paulo", clock.Now)
	if err != nil {
		t.Fatal(err)
	}
	return NewWorkdayService(st, days, zap.NewNop().Sugar()), clock
}

func mins(n int) time.Time { return T0.Add(time.Duration(n) * time.Minute) }

func mustDTO(t *testing.T) func(dto *model.WorkdayDTO, err error) *model.WorkdayDTO {
	return func(dto *model.WorkdayDTO, err error) *model.WorkdayDTO {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return dto
	}
}

// ============================================================
// Scenarios
// ============================================================

func TestGetTodayFreshUserDoesNotPersist(t *testing.T) {
	st := store.NewMemoryWorkdayStore()
	svc, _ := newTestService(t, st)

	dto := mustDTO(t)(svc.GetToday(context.Background(), "u1"))
	if dto.Status != model.WorkdayStatusNotStarted || len(dto.Events) != 0 {
		t.Fatalf("unexpected dto: %+v", dto)
	}
	if dto.DateKey != "2026-03-02" {
		t.Fatalf("unexpected date key %s", dto.DateKey)
	}
	if st.Len() != 0 {
		t.Fatal("read must not create a record")
	}
}

func TestStartSetsStartedAt(t *testing.T) {
	svc, _ := newTestService(t, store.NewMemoryWorkdayStore())

	dto := mustDTO(t)(svc.Start(context.Background(), "u1"))
	if dto.Status != model.WorkdayStatusActive {
		t.Fatalf("expected ACTIVE, got %s", dto.Status)
	}
	if dto.StartedAt == nil || !dto.StartedAt.Equal(T0) {
		t.Fatalf("expected startedAt T0, got %v", dto.StartedAt)
	}
	if len(dto.Events) != 1 || dto.Events[0].Type != model.EventStart || !dto.Events[0].At.Equal(T0) {
		t.Fatalf("unexpected events: %+v", dto.Events)
	}
}

func TestPauseThenResumeCreditsPause(t *testing.T) {
	svc, clock := newTestService(t, store.NewMemoryWorkdayStore())
	ctx := context.Background()

	mustDTO(t)(svc.Start(ctx, "u1"))
	clock.Set(mins(10))
	mustDTO(t)(svc.Pause(ctx, "u1"))
	clock.Set(mins(25))
	dto := mustDTO(t)(svc.SetActive(ctx, "u1"))

	if dto.TotalPauseMinutes != 15 {
		t.Fatalf("expected 15 pause minutes, got %d", dto.TotalPauseMinutes)
	}
	if dto.PauseStartedAt != nil {
		t.Fatal("pause should be closed")
	}
}

func TestPauseToLunchSwitchesInterval(t *testing.T) {
	svc, clock := newTestService(t, store.NewMemoryWorkdayStore())
	ctx := context.Background()

	mustDTO(t)(svc.Start(ctx, "u1"))
	clock.Set(mins(5))
	mustDTO(t)(svc.Pause(ctx, "u1"))
	clock.Set(mins(20))
	dto := mustDTO(t)(svc.Lunch(ctx, "u1"))

	if dto.TotalPauseMinutes != 15 {
		t.Fatalf("expected 15 pause minutes, got %d", dto.TotalPauseMinutes)
	}
	if dto.PauseStartedAt != nil {
		t.Fatal("pause should be closed")
	}
	if dto.LunchStartedAt == nil || !dto.LunchStartedAt.Equal(mins(20)) {
		t.Fatalf("expected lunch open at T0+20, got %v", dto.LunchStartedAt)
	}
}

func TestStartAfterEndReconnects(t *testing.T) {
	st := store.NewMemoryWorkdayStore()
	svc, clock := newTestService(t, st)
	ctx := context.Background()

	mustDTO(t)(svc.Start(ctx, "u1"))
	clock.Set(mins(240))
	mustDTO(t)(svc.End(ctx, "u1"))
	clock.Set(mins(300))
	dto := mustDTO(t)(svc.Start(ctx, "u1"))

	if dto.Status != model.WorkdayStatusActive {
		t.Fatalf("expected ACTIVE, got %s", dto.Status)
	}
	if !dto.StartedAt.Equal(T0) {
		t.Fatalf("startedAt changed to %v", dto.StartedAt)
	}
	last := dto.Events[len(dto.Events)-1]
	if last.Type != model.EventReconnect || !last.At.Equal(mins(300)) {
		t.Fatalf("expected RECONNECT at T0+300, got %+v", last)
	}
	if st.Len() != 1 {
		t.Fatalf("expected one record, got %d", st.Len())
	}
}

func TestPauseBeforeStartIsRejected(t *testing.T) {
	st := store.NewMemoryWorkdayStore()
	svc, _ := newTestService(t, st)

	_, err := svc.Pause(context.Background(), "u1")
	var te *model.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if te.Action != model.ActionPause || te.Status != model.WorkdayStatusNotStarted {
		t.Fatalf("unexpected error details: %+v", te)
	}
	if st.Len() != 0 {
		t.Fatal("rejected transition must not persist")
	}
}

func TestRejectedTransitionLeavesRecordUntouched(t *testing.T) {
	st := store.NewMemoryWorkdayStore()
	svc, clock := newTestService(t, st)
	ctx := context.Background()

	mustDTO(t)(svc.Start(ctx, "u1"))
	clock.Set(mins(60))
	mustDTO(t)(svc.End(ctx, "u1"))
	before := mustDTO(t)(svc.GetToday(ctx, "u1"))

	clock.Set(mins(70))
	if _, err := svc.Lunch(ctx, "u1"); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	after := mustDTO(t)(svc.GetToday(ctx, "u1"))
	if len(after.Events) != len(before.Events) || after.Status != before.Status {
		t.Fatal("record changed after a rejected transition")
	}
}

func TestMissingUser(t *testing.T) {
	svc, _ := newTestService(t, store.NewMemoryWorkdayStore())
	if _, err := svc.Start(context.Background(), ""); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("expected ErrMissingUser, got %v", err)
	}
	if _, err := svc.GetToday(context.Background(), ""); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("expected ErrMissingUser, got %v", err)
	}
}

// ============================================================
// Idempotence and round trip
// ============================================================

func TestRepeatedActionIsNoOp(t *testing.T) {
	svc, clock := newTestService(t, store.NewMemoryWorkdayStore())
	ctx := context.Background()

	mustDTO(t)(svc.Start(ctx, "u1"))
	clock.Set(mins(1))
	first := mustDTO(t)(svc.Pause(ctx, "u1"))
	clock.Set(mins(2))
	second := mustDTO(t)(svc.Pause(ctx, "u1"))

	if len(second.Events) != len(first.Events) {
		t.Fatalf("repeat appended an event: %d -> %d", len(first.Events), len(second.Events))
	}
	if !second.PauseStartedAt.Equal(*first.PauseStartedAt) {
		t.Fatal("repeat moved the pause start")
	}

	again := mustDTO(t)(svc.Start(ctx, "u1"))
	if len(again.Events) != len(first.Events) || again.Status != model.WorkdayStatusPaused {
		t.Fatal("start while paused should be a no-op")
	}
}

func TestRoundTripSameDay(t *testing.T) {
	st := store.NewMemoryWorkdayStore()
	svc, clock := newTestService(t, st)
	ctx := context.Background()

	steps := []func(context.Context, string) (*model.WorkdayDTO, error){
		svc.Start, svc.Pause, svc.SetActive, svc.Lunch, svc.End, svc.Start,
	}
	var dto *model.WorkdayDTO
	for i, step := range steps {
		clock.Set(mins(i * 30))
		dto = mustDTO(t)(step(ctx, "u1"))
	}
	if st.Len() != 1 {
		t.Fatalf("expected a single record, got %d", st.Len())
	}
	want := []model.EventType{
		model.EventStart, model.EventPause, model.EventResume,
		model.EventLunch, model.EventEnd, model.EventReconnect,
	}
	if len(dto.Events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(dto.Events))
	}
	for i, ev := range want {
		if dto.Events[i].Type != ev {
			t.Fatalf("event %d: expected %s, got %s", i, ev, dto.Events[i].Type)
		}
	}
	if dto.TotalPauseMinutes != 30 || dto.TotalLunchMinutes != 30 {
		t.Fatalf("unexpected totals pause=%d lunch=%d", dto.TotalPauseMinutes, dto.TotalLunchMinutes)
	}
}

func TestResetAlwaysSucceeds(t *testing.T) {
	svc, clock := newTestService(t, store.NewMemoryWorkdayStore())
	ctx := context.Background()

	dto := mustDTO(t)(svc.Reset(ctx, "fresh"))
	if dto.Status != model.WorkdayStatusActive || dto.StartedAt == nil {
		t.Fatalf("reset on a fresh day: %+v", dto)
	}

	mustDTO(t)(svc.Start(ctx, "u1"))
	clock.Set(mins(10))
	mustDTO(t)(svc.Lunch(ctx, "u1"))
	clock.Set(mins(70))
	dto = mustDTO(t)(svc.Reset(ctx, "u1"))
	if dto.LunchStartedAt != nil || dto.TotalLunchMinutes != 60 {
		t.Fatalf("reset should close lunch: %+v", dto)
	}
	if last := dto.Events[len(dto.Events)-1]; last.Type != model.EventReset {
		t.Fatalf("expected RESET event, got %s", last.Type)
	}
}

func TestNewDayGetsFreshRecord(t *testing.T) {
	st := store.NewMemoryWorkdayStore()
	svc, clock := newTestService(t, st)
	ctx := context.Background()

	mustDTO(t)(svc.Start(ctx, "u1"))
	// 00:01 next day in São Paulo.
	clock.Set(time.Date(2026, 3, 3, 3, 1, 0, 0, time.UTC))
	dto := mustDTO(t)(svc.GetToday(ctx, "u1"))
	if dto.Status != model.WorkdayStatusNotStarted || dto.DateKey != "2026-03-03" {
		t.Fatalf("expected a fresh day, got %+v", dto)
	}
	mustDTO(t)(svc.Start(ctx, "u1"))
	if st.Len() != 2 {
		t.Fatalf("expected two daily records, got %d", st.Len())
	}
}

// ============================================================
// Invariants over random action sequences
// ============================================================

func TestRandomSequencesKeepInvariants(t *testing.T) {
	actions := []model.Action{
		model.ActionStart, model.ActionSetActive, model.ActionPause,
		model.ActionLunch, model.ActionEnd, model.ActionReset,
	}
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		st := store.NewMemoryWorkdayStore()
		svc, clock := newTestService(t, st)
		ctx := context.Background()
		now := T0
		prevPause, prevLunch := 0, 0

		for i := 0; i < 25; i++ {
			now = now.Add(time.Duration(rng.Intn(20*60)) * time.Second)
			clock.Set(now)
			a := actions[rng.Intn(len(actions))]
			if _, err := svc.Apply(ctx, "u1", a); err != nil && !errors.Is(err, model.ErrInvalidTransition) {
				t.Fatalf("run %d step %d %s: %v", run, i, a, err)
			}

			rec, _ := st.Get(ctx, "u1", "2026-03-02")
			if rec == nil {
				continue
			}
			if rec.PauseStartedAt != nil && rec.LunchStartedAt != nil {
				t.Fatalf("run %d step %d: both intervals open", run, i)
			}
			if rec.TotalPauseMinutes < prevPause || rec.TotalLunchMinutes < prevLunch {
				t.Fatalf("run %d step %d: totals decreased", run, i)
			}
			prevPause, prevLunch = rec.TotalPauseMinutes, rec.TotalLunchMinutes
			if !rec.StoredProjection().Equal(model.Replay(rec.Events)) {
				t.Fatalf("run %d step %d: stored fields diverge from replay", run, i)
			}
			for j := 1; j < len(rec.Events); j++ {
				if rec.Events[j].At.Before(rec.Events[j-1].At) {
					t.Fatalf("run %d: events out of order", run)
				}
			}
		}
	}
}

// ============================================================
// Concurrency and storage failures
// ============================================================

func TestConcurrentFirstActionsCreateOneRecord(t *testing.T) {
	st := store.NewMemoryWorkdayStore()
	svc, _ := newTestService(t, st)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Start(ctx, "u1"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent start failed: %v", err)
	}

	dto := mustDTO(t)(svc.GetToday(ctx, "u1"))
	if st.Len() != 1 || len(dto.Events) != 1 {
		t.Fatalf("expected one record with one event, got %d records, %d events", st.Len(), len(dto.Events))
	}
}

func TestConcurrentPausesAppendOnce(t *testing.T) {
	svc, _ := newTestService(t, store.NewMemoryWorkdayStore())
	ctx := context.Background()
	mustDTO(t)(svc.Start(ctx, "u1"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Pause(ctx, "u1")
		}()
	}
	wg.Wait()

	dto := mustDTO(t)(svc.GetToday(ctx, "u1"))
	if len(dto.Events) != 2 || dto.Status != model.WorkdayStatusPaused {
		t.Fatalf("expected START+PAUSE, got %+v", dto.Events)
	}
}

// racingStore lets a competing writer slip in before the first Insert.
type racingStore struct {
	*store.MemoryWorkdayStore
	once sync.Once
}

func (s *racingStore) Insert(ctx context.Context, r *model.WorkdayRecord) error {
	s.once.Do(func() {
		rival := model.NewWorkdayRecord(r.UserID, r.Date)
		rival.Apply(model.ActionStart, r.Events[0].At.Add(-time.Minute))
		s.MemoryWorkdayStore.Insert(ctx, rival)
	})
	return s.MemoryWorkdayStore.Insert(ctx, r)
}

func TestInsertConflictRetriesAsUpdate(t *testing.T) {
	st := &racingStore{MemoryWorkdayStore: store.NewMemoryWorkdayStore()}
	svc, _ := newTestService(t, st)

	dto := mustDTO(t)(svc.Reset(context.Background(), "u1"))
	if dto.Status != model.WorkdayStatusActive {
		t.Fatalf("expected ACTIVE after retry, got %s", dto.Status)
	}
	if len(dto.Events) != 2 || dto.Events[0].Type != model.EventStart || dto.Events[1].Type != model.EventReset {
		t.Fatalf("expected rival START then RESET, got %+v", dto.Events)
	}
	if st.Len() != 1 {
		t.Fatalf("expected one record, got %d", st.Len())
	}
}

type staleStore struct{ *store.MemoryWorkdayStore }

func (staleStore) Update(context.Context, *model.WorkdayRecord, int) error { return store.ErrStale }

func TestPersistentConflictSurfaces(t *testing.T) {
	st := staleStore{store.NewMemoryWorkdayStore()}
	svc, clock := newTestService(t, st)
	ctx := context.Background()
	mustDTO(t)(svc.Start(ctx, "u1"))
	clock.Set(mins(1))
	if _, err := svc.Pause(ctx, "u1"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

type downStore struct{ store.MemoryWorkdayStore }

var errDown = errors.New("connection refused")

func (*downStore) Get(context.Context, string, string) (*model.WorkdayRecord, error) {
	return nil, errDown
}

func (*downStore) GetMany(context.Context, string, []string) ([]*model.WorkdayRecord, error) {
	return nil, errDown
}

func TestStorageUnavailable(t *testing.T) {
	svc, _ := newTestService(t, &downStore{})
	ctx := context.Background()

	if _, err := svc.Start(ctx, "u1"); !errors.Is(err, ErrStorageUnavailable) || !errors.Is(err, errDown) {
		t.Fatalf("expected wrapped ErrStorageUnavailable, got %v", err)
	}
	if _, err := svc.GetManyToday(ctx, []string{"u1"}); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

// ============================================================
// Batch
// ============================================================

type countingStore struct {
	*store.MemoryWorkdayStore
	getMany int
	get     int
}

func (s *countingStore) Get(ctx context.Context, userID, date string) (*model.WorkdayRecord, error) {
	s.get++
	return s.MemoryWorkdayStore.Get(ctx, userID, date)
}

func (s *countingStore) GetMany(ctx context.Context, date string, ids []string) ([]*model.WorkdayRecord, error) {
	s.getMany++
	return s.MemoryWorkdayStore.GetMany(ctx, date, ids)
}

func TestGetManyTodayUsesOneQuery(t *testing.T) {
	mem := store.NewMemoryWorkdayStore()
	svc, clock := newTestService(t, mem)
	ctx := context.Background()
	mustDTO(t)(svc.Start(ctx, "a"))
	clock.Set(mins(5))
	mustDTO(t)(svc.Pause(ctx, "a"))
	mustDTO(t)(svc.Start(ctx, "b"))

	cs := &countingStore{MemoryWorkdayStore: mem}
	svc.store = cs
	got, err := svc.GetManyToday(ctx, []string{"a", "b", "c", "a", ""})
	if err != nil {
		t.Fatal(err)
	}
	if cs.getMany != 1 || cs.get != 0 {
		t.Fatalf("expected one batched query, got getMany=%d get=%d", cs.getMany, cs.get)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got["a"].Status != model.WorkdayStatusPaused || got["b"].Status != model.WorkdayStatusActive {
		t.Fatalf("unexpected statuses a=%s b=%s", got["a"].Status, got["b"].Status)
	}
	if got["c"].Status != model.WorkdayStatusNotStarted || got["c"].UserID != "c" {
		t.Fatalf("expected synthetic NOT_STARTED for c, got %+v", got["c"])
	}
	if mem.Len() != 2 {
		t.Fatal("synthetic projections must not be persisted")
	}
}

func TestGetManyTodayEmpty(t *testing.T) {
	svc, _ := newTestService(t, store.NewMemoryWorkdayStore())
	got, err := svc.GetManyToday(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty map, got %v %v", got, err)
	}
}
