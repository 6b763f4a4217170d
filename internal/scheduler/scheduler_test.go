package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/gridcrawl/internal/ctxlog"
	"github.com/vk/gridcrawl/internal/dag"
	"github.com/vk/gridcrawl/internal/inmemorystore"
	"github.com/vk/gridcrawl/internal/task"
	"github.com/vk/gridcrawl/internal/testutil"
)

func testContext(t *testing.T) context.Context {
	logger, _ := testutil.NewLogger(t)
	return ctxlog.WithLogger(context.Background(), logger)
}

func newScheduler(t *testing.T, limit int, work task.Executor, opts ...Option) *Scheduler {
	t.Helper()
	s, err := New(limit, work, opts...)
	require.NoError(t, err)
	return s
}

func mustAdd(t *testing.T, s *Scheduler, key task.Key, deps ...task.Key) {
	t.Helper()
	require.NoError(t, s.Add(key, deps...))
}

func TestNew(t *testing.T) {
	t.Run("rejects non-positive concurrency", func(t *testing.T) {
		for _, limit := range []int{0, -1} {
			s, err := New(limit, testutil.NewRecorder(0))
			assert.Nil(t, s)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		}
	})

	t.Run("rejects a nil executor", func(t *testing.T) {
		_, err := New(1, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("accepts a positive limit", func(t *testing.T) {
		s := newScheduler(t, 5, testutil.NewRecorder(0))
		assert.Equal(t, 5, s.MaxConcurrent())
		assert.Equal(t, 0, s.Len())
	})
}

func TestRun_NoDependencies(t *testing.T) {
	rec := testutil.NewRecorder(0)
	s := newScheduler(t, 5, rec)
	mustAdd(t, s, "https://example.com/page1")
	mustAdd(t, s, "https://example.com/page2")

	results, err := s.Run(testContext(t))
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "Content of https://example.com/page1", results["https://example.com/page1"].Content)
	assert.Equal(t, "Content of https://example.com/page2", results["https://example.com/page2"].Content)
}

func TestRun_ChainRunsInOrder(t *testing.T) {
	rec := testutil.NewRecorder(5 * time.Millisecond)
	s := newScheduler(t, 1, rec)
	mustAdd(t, s, "page1")
	mustAdd(t, s, "page2", "page1")
	mustAdd(t, s, "page3", "page2")

	results, err := s.Run(testContext(t))
	require.NoError(t, err)

	assert.Len(t, results, 3)
	assert.Equal(t, []task.Key{"page1", "page2", "page3"}, rec.Order())
}

func TestRun_RespectsConcurrencyLimit(t *testing.T) {
	const (
		limit = 2
		tasks = 5
		delay = 40 * time.Millisecond
	)
	rec := testutil.NewRecorder(delay)
	s := newScheduler(t, limit, rec)
	for i := 0; i < tasks; i++ {
		mustAdd(t, s, task.Key(fmt.Sprintf("page%d", i)))
	}

	start := time.Now()
	results, err := s.Run(testContext(t))
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Len(t, results, tasks)
	assert.LessOrEqual(t, rec.Peak(), limit)
	// ceil(5/2) rounds of 40ms.
	assert.GreaterOrEqual(t, elapsed, 3*delay)
}

func TestRun_Cycles(t *testing.T) {
	t.Run("cycle introduced by re-registration", func(t *testing.T) {
		rec := testutil.NewRecorder(0)
		s := newScheduler(t, 2, rec)
		mustAdd(t, s, "page1")
		mustAdd(t, s, "page2", "page1")
		mustAdd(t, s, "page3", "page2")
		mustAdd(t, s, "page1", "page3")

		results, err := s.Run(testContext(t))
		assert.ErrorIs(t, err, ErrCycle)
		assert.Nil(t, results)
		assert.Zero(t, rec.Calls(), "no task may run when the graph is cyclic")
	})

	t.Run("self dependency", func(t *testing.T) {
		rec := testutil.NewRecorder(0)
		s := newScheduler(t, 2, rec)
		mustAdd(t, s, "x", "x")

		results, err := s.Run(testContext(t))
		assert.ErrorIs(t, err, ErrCycle)
		assert.Nil(t, results)
		assert.Zero(t, rec.Calls())
	})

	t.Run("longer cycle next to a valid component", func(t *testing.T) {
		rec := testutil.NewRecorder(0)
		s := newScheduler(t, 2, rec)
		mustAdd(t, s, "ok")
		mustAdd(t, s, "b", "a")
		mustAdd(t, s, "c", "b")
		mustAdd(t, s, "a", "c")

		_, err := s.Run(testContext(t))
		assert.ErrorIs(t, err, ErrCycle)
		assert.Zero(t, rec.Calls())
	})
}

func TestRun_FailureIsolation(t *testing.T) {
	t.Run("failed task gets the failure marker", func(t *testing.T) {
		boom := errors.New("connection refused")
		rec := testutil.NewRecorder(0).FailOn("page2", boom)
		s := newScheduler(t, 3, rec)
		mustAdd(t, s, "page1")
		mustAdd(t, s, "page2")
		mustAdd(t, s, "page3")

		results, err := s.Run(testContext(t))
		require.NoError(t, err)

		require.Len(t, results, 3)
		assert.Equal(t, task.FailureMarker, results["page2"].String())
		assert.ErrorIs(t, results["page2"].Err, boom)
		assert.Equal(t, "Content of page1", results["page1"].String())
		assert.Equal(t, "Content of page3", results["page3"].String())
	})

	t.Run("dependents of a failed task still run", func(t *testing.T) {
		rec := testutil.NewRecorder(0).FailOn("page1", errors.New("boom"))
		s := newScheduler(t, 2, rec)
		mustAdd(t, s, "page1")
		mustAdd(t, s, "page2", "page1")
		mustAdd(t, s, "page3", "page2")

		results, err := s.Run(testContext(t))
		require.NoError(t, err)

		require.Len(t, results, 3)
		assert.True(t, results["page1"].Failed())
		assert.Equal(t, "Content of page2", results["page2"].Content)
		assert.Equal(t, "Content of page3", results["page3"].Content)
		assert.Equal(t, []task.Key{"page1", "page2", "page3"}, rec.Order())
	})

	t.Run("panicking collaborator is contained", func(t *testing.T) {
		rec := testutil.NewRecorder(0).PanicOn("bad")
		s := newScheduler(t, 2, rec)
		mustAdd(t, s, "bad")
		mustAdd(t, s, "after", "bad")

		results, err := s.Run(testContext(t))
		require.NoError(t, err)
		assert.True(t, results["bad"].Failed())
		assert.False(t, results["after"].Failed())
	})
}

func TestRun_SkipDependentsPolicy(t *testing.T) {
	rec := testutil.NewRecorder(0).FailOn("a", errors.New("boom"))
	s := newScheduler(t, 2, rec, WithFailurePolicy(SkipDependents))
	mustAdd(t, s, "b", "a")
	mustAdd(t, s, "c", "b")
	mustAdd(t, s, "d", "c", "ok")
	mustAdd(t, s, "ok")
	mustAdd(t, s, "independent", "ok")

	results, err := s.Run(testContext(t))
	require.NoError(t, err)

	require.Len(t, results, 6)
	assert.True(t, results["a"].Failed())
	assert.False(t, results["a"].Skipped())
	for _, key := range []task.Key{"b", "c", "d"} {
		assert.True(t, results[key].Skipped(), "%s should be skipped", key)
		assert.Equal(t, task.FailureMarker, results[key].String())
	}
	assert.Equal(t, "Content of ok", results["ok"].Content)
	assert.Equal(t, "Content of independent", results["independent"].Content)
	assert.ElementsMatch(t, []task.Key{"a", "ok", "independent"}, rec.Order())
}

func TestRun_Diamond(t *testing.T) {
	rec := testutil.NewRecorder(10 * time.Millisecond)
	s := newScheduler(t, 3, rec)
	mustAdd(t, s, "A")
	mustAdd(t, s, "B", "A")
	mustAdd(t, s, "C", "A")
	mustAdd(t, s, "D", "B", "C")

	results, err := s.Run(testContext(t))
	require.NoError(t, err)
	assert.Len(t, results, 4)

	order := rec.Order()
	require.Len(t, order, 4)
	assert.Equal(t, task.Key("A"), order[0])
	assert.ElementsMatch(t, []task.Key{"B", "C"}, order[1:3])
	assert.Equal(t, task.Key("D"), order[3])

	records := rec.Records()
	assert.False(t, records["D"].Start.Before(records["B"].End))
	assert.False(t, records["D"].Start.Before(records["C"].End))
}

func TestRun_DependenciesFinishBeforeDependentsStart(t *testing.T) {
	rec := testutil.NewRecorder(2 * time.Millisecond)
	s := newScheduler(t, 4, rec)

	// Five layers of four tasks; every task depends on two tasks of the previous layer.
	edges := map[task.Key][]task.Key{}
	for layer := 0; layer < 5; layer++ {
		for i := 0; i < 4; i++ {
			key := task.Key(fmt.Sprintf("L%d-%d", layer, i))
			var deps []task.Key
			if layer > 0 {
				deps = []task.Key{
					task.Key(fmt.Sprintf("L%d-%d", layer-1, i)),
					task.Key(fmt.Sprintf("L%d-%d", layer-1, (i+1)%4)),
				}
			}
			edges[key] = deps
			mustAdd(t, s, key, deps...)
		}
	}

	results, err := s.Run(testContext(t))
	require.NoError(t, err)
	require.Len(t, results, 20)

	records := rec.Records()
	for key, deps := range edges {
		for _, dep := range deps {
			assert.False(t, records[key].Start.Before(records[dep].End),
				"%s started before its dependency %s finished", key, dep)
		}
	}
}

func TestRun_EmptyGraph(t *testing.T) {
	rec := testutil.NewRecorder(0)
	s := newScheduler(t, 3, rec)

	results, err := s.Run(testContext(t))
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Zero(t, rec.Calls())
}

func TestRun_ManyTasks(t *testing.T) {
	rec := testutil.NewRecorder(time.Millisecond)
	s := newScheduler(t, 3, rec)
	for i := 0; i < 10; i++ {
		mustAdd(t, s, task.Key(fmt.Sprintf("https://example.com/page%d", i)))
	}

	results, err := s.Run(testContext(t))
	require.NoError(t, err)
	assert.Len(t, results, 10)
	assert.LessOrEqual(t, rec.Peak(), 3)
}

func TestRun_DependencyOnlyKeysGetResults(t *testing.T) {
	rec := testutil.NewRecorder(0)
	s := newScheduler(t, 2, rec)
	mustAdd(t, s, "child", "parent", "other")

	results, err := s.Run(testContext(t))
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Contains(t, results, task.Key("parent"))
	assert.Contains(t, results, task.Key("other"))
}

func TestRun_RedeclaredEdgesDoNotStarveDependents(t *testing.T) {
	rec := testutil.NewRecorder(0)
	s := newScheduler(t, 2, rec)
	mustAdd(t, s, "b", "a")
	mustAdd(t, s, "b", "a")
	mustAdd(t, s, "b", "a", "a")

	results, err := s.Run(testContext(t))
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, []task.Key{"a", "b"}, rec.Order())
}

func TestRun_IsRepeatable(t *testing.T) {
	rec := testutil.NewRecorder(0)
	s := newScheduler(t, 2, rec)
	mustAdd(t, s, "b", "a")

	first, err := s.Run(testContext(t))
	require.NoError(t, err)
	assert.Len(t, first, 2)

	mustAdd(t, s, "c", "b")
	second, err := s.Run(testContext(t))
	require.NoError(t, err)
	assert.Len(t, second, 3)
	assert.Equal(t, 5, rec.Calls())
}

// gate blocks every Execute call until released.
type gate struct {
	entered chan task.Key
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan task.Key, 16), release: make(chan struct{})}
}

func (g *gate) Execute(ctx context.Context, key task.Key) (string, error) {
	g.entered <- key
	select {
	case <-g.release:
		return "released " + string(key), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestRun_RejectsConcurrentUse(t *testing.T) {
	g := newGate()
	s := newScheduler(t, 1, g)
	mustAdd(t, s, "a")

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(testContext(t))
		done <- err
	}()

	select {
	case <-g.entered:
	case <-time.After(time.Second):
		t.Fatal("run never started")
	}

	assert.ErrorIs(t, s.Add("late"), ErrRunInProgress)
	_, err := s.Run(testContext(t))
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(g.release)
	require.NoError(t, <-done)

	assert.NoError(t, s.Add("late"), "registration is allowed again after the run")
}

func TestRun_Cancellation(t *testing.T) {
	g := newGate()
	s := newScheduler(t, 2, g)
	mustAdd(t, s, "a")
	mustAdd(t, s, "b")
	mustAdd(t, s, "c", "a", "b")

	ctx, cancel := context.WithCancel(testContext(t))
	done := make(chan error, 1)
	var results map[task.Key]task.Result
	go func() {
		var err error
		results, err = s.Run(ctx)
		done <- err
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-g.entered:
		case <-time.After(time.Second):
			t.Fatal("workers never picked up the seeds")
		}
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, results)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}

	// The scheduler is usable again after a cancelled run.
	close(g.release)
	results, err := s.Run(testContext(t))
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

// recordingObserver counts notifications.
type recordingObserver struct {
	mu       sync.Mutex
	started  []task.Key
	finished map[task.Key]task.Result
}

func (o *recordingObserver) TaskStarted(_ context.Context, key task.Key) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, key)
}

func (o *recordingObserver) TaskFinished(_ context.Context, key task.Key, res task.Result, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.finished == nil {
		o.finished = make(map[task.Key]task.Result)
	}
	o.finished[key] = res
}

func TestRun_NotifiesObserversAndStore(t *testing.T) {
	obsA := &recordingObserver{}
	obsB := &recordingObserver{}
	store := inmemorystore.New()
	rec := testutil.NewRecorder(0).FailOn("b", errors.New("boom"))
	s := newScheduler(t, 2, rec, WithObserver(obsA, nil, obsB), WithStore(store))
	mustAdd(t, s, "b", "a")
	mustAdd(t, s, "c")

	results, err := s.Run(testContext(t))
	require.NoError(t, err)

	for _, obs := range []*recordingObserver{obsA, obsB} {
		assert.ElementsMatch(t, []task.Key{"a", "b", "c"}, obs.started)
		assert.Equal(t, results, obs.finished)
	}

	assert.Equal(t, map[task.Key]task.Status{
		"a": task.Done,
		"b": task.Failed,
		"c": task.Done,
	}, store.Statuses())
	res, ok := store.Result("a")
	require.True(t, ok)
	assert.Equal(t, "Content of a", res.Content)
}

func TestRun_SkippedKeysAreNeverStarted(t *testing.T) {
	obs := &recordingObserver{}
	store := inmemorystore.New()
	rec := testutil.NewRecorder(0).FailOn("a", errors.New("boom"))
	s := newScheduler(t, 2, rec, WithFailurePolicy(SkipDependents), WithObserver(obs), WithStore(store))
	mustAdd(t, s, "b", "a")
	mustAdd(t, s, "c", "b")
	mustAdd(t, s, "ok")

	results, err := s.Run(testContext(t))
	require.NoError(t, err)

	assert.ElementsMatch(t, []task.Key{"a", "ok"}, obs.started)
	assert.Equal(t, results, obs.finished)
	assert.True(t, obs.finished["b"].Skipped())
	assert.True(t, obs.finished["c"].Skipped())
	assert.Equal(t, map[task.Key]task.Status{
		"a":  task.Failed,
		"b":  task.Failed,
		"c":  task.Failed,
		"ok": task.Done,
	}, store.Statuses())
}

func TestRun_CycleResetsStore(t *testing.T) {
	store := inmemorystore.New()
	s := newScheduler(t, 2, testutil.NewRecorder(0), WithStore(store))
	mustAdd(t, s, "a")
	mustAdd(t, s, "b", "a")

	_, err := s.Run(testContext(t))
	require.NoError(t, err)
	require.Equal(t, task.Done, store.Status("b"))

	mustAdd(t, s, "a", "b")
	_, err = s.Run(testContext(t))
	require.ErrorIs(t, err, dag.ErrCycle)

	assert.Equal(t, map[task.Key]task.Status{
		"a": task.Pending,
		"b": task.Pending,
	}, store.Statuses())
	_, ok := store.Result("a")
	assert.False(t, ok)
}

func TestFailurePolicyString(t *testing.T) {
	assert.Equal(t, "continue", BestEffort.String())
	assert.Equal(t, "skip", SkipDependents.String())
	assert.Equal(t, "unknown", FailurePolicy(9).String())
}
