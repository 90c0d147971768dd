package compute

import (
	"errors"
	"testing"
	"time"

	"github.com/gekko3d/planets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	name      string
	remaining int
	cost      time.Duration
	clock     *planets.ManualClock
	calls     []int
}

func (c *fakeClient) Name() string { return c.name }

func (c *fakeClient) RunAllComputeItems() int {
	n, _ := c.RunSomeComputeItems(c.remaining)
	return n
}

func (c *fakeClient) RunSomeComputeItems(maxBatches int) (int, bool) {
	c.calls = append(c.calls, maxBatches)
	n := min(maxBatches, c.remaining)
	c.remaining -= n
	if c.clock != nil {
		c.clock.Advance(time.Duration(n) * c.cost)
	}
	return n, c.remaining == 0
}

type fakeRecorder struct {
	runs map[string]int
}

func (r *fakeRecorder) ComputeRun(client string, batches int, d time.Duration) {
	if r.runs == nil {
		r.runs = map[string]int{}
	}
	r.runs[client] += batches
}

type countingSyncer struct {
	calls int
	err   error
}

func (s *countingSyncer) Finish() error {
	s.calls++
	return s.err
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestAddClientIsIdempotent(t *testing.T) {
	q := NewQueue(Options{})
	a := &fakeClient{name: "a", remaining: 3}
	q.AddClient(a)
	q.AddClient(a)
	assert.Equal(t, 1, q.Pending())

	assert.Equal(t, 3, q.RunAll())
	assert.Equal(t, 0, q.Pending())

	q.AddClient(a)
	assert.Equal(t, 1, q.Pending())
}

func TestRunAllBracketsWithFinish(t *testing.T) {
	syncer := &countingSyncer{}
	rec := &fakeRecorder{}
	q := NewQueue(Options{Syncer: syncer, Recorder: rec})
	a := &fakeClient{name: "a", remaining: 4}
	b := &fakeClient{name: "b", remaining: 2}
	q.AddClient(a)
	q.AddClient(b)

	assert.Equal(t, 6, q.RunAll())
	assert.Equal(t, 4, syncer.calls)
	assert.Equal(t, map[string]int{"a": 4, "b": 2}, rec.runs)
	assert.Equal(t, 0, q.Pending())

	timing, ok := q.Timing(a)
	require.True(t, ok)
	assert.Equal(t, 4, timing.Count)
}

func TestRunSomeRequeuesUnfinishedClient(t *testing.T) {
	q := NewQueue(Options{})
	a := &fakeClient{name: "a", remaining: 100}
	b := &fakeClient{name: "b", remaining: 5}
	q.AddClient(a)
	q.AddClient(b)

	assert.Equal(t, 10, q.RunSome(10))
	assert.Equal(t, 90, a.remaining)
	assert.Equal(t, 2, q.Pending())

	// b is now at the head and finishes.
	assert.Equal(t, 5, q.RunSome(10))
	assert.Equal(t, 0, b.remaining)
	assert.Equal(t, 1, q.Pending())

	assert.Equal(t, 10, q.RunSome(10))
	assert.Equal(t, 80, a.remaining)
	assert.Equal(t, 1, q.Pending())
}

func TestRunSomeOnEmptyQueue(t *testing.T) {
	q := NewQueue(Options{})
	assert.Equal(t, 0, q.RunSome(5))
	assert.Equal(t, 0, q.RunUntil(epoch.Add(time.Second)))
	assert.Equal(t, 0, q.RunAll())
}

func TestRunUntilWithoutHistoryPastDeadline(t *testing.T) {
	clock := planets.NewManualClock(epoch)
	q := NewQueue(Options{Clock: clock})
	a := &fakeClient{name: "a", remaining: 10, cost: time.Millisecond, clock: clock}
	q.AddClient(a)

	assert.Equal(t, 1, q.RunUntil(epoch.Add(-time.Second)))
	assert.Equal(t, []int{1}, a.calls)
	assert.Equal(t, 1, q.Pending())

	avg, ok := q.AverageBatchTime(a)
	require.True(t, ok)
	assert.Equal(t, time.Millisecond, avg)
}

func TestRunUntilUsesAverage(t *testing.T) {
	clock := planets.NewManualClock(epoch)
	q := NewQueue(Options{Clock: clock})
	a := &fakeClient{name: "a", remaining: 100, cost: 2 * time.Millisecond, clock: clock}
	q.AddClient(a)

	// First call measures one batch, then fills the rest of the 10ms window
	// measured from the start of the call.
	n := q.RunUntil(epoch.Add(10 * time.Millisecond))
	assert.Equal(t, []int{1, 5}, a.calls)
	assert.Equal(t, 6, n)

	start := clock.Now()
	n = q.RunUntil(start.Add(7 * time.Millisecond))
	assert.Equal(t, 3, n)
	assert.Equal(t, 91, a.remaining)

	// Always at least one batch, even with no time left.
	assert.Equal(t, 1, q.RunUntil(clock.Now()))
}

func TestRunUntilFinishedClientLeavesQueue(t *testing.T) {
	clock := planets.NewManualClock(epoch)
	q := NewQueue(Options{Clock: clock})
	a := &fakeClient{name: "a", remaining: 1, cost: time.Millisecond, clock: clock}
	b := &fakeClient{name: "b", remaining: 1, cost: time.Millisecond, clock: clock}
	q.AddClient(a)
	q.AddClient(b)

	// Only the head is serviced per call.
	assert.Equal(t, 1, q.RunUntil(epoch.Add(time.Second)))
	assert.Equal(t, 0, a.remaining)
	assert.Equal(t, 1, b.remaining)
	assert.Equal(t, 1, q.Pending())
}

func TestSyncErrorsAreNotFatal(t *testing.T) {
	q := NewQueue(Options{Syncer: &countingSyncer{err: errors.New("lost device")}})
	a := &fakeClient{name: "a", remaining: 2}
	q.AddClient(a)
	assert.Equal(t, 2, q.RunSome(5))
}

func TestTimingAverage(t *testing.T) {
	assert.Equal(t, time.Duration(0), Timing{}.Average())
	assert.Equal(t, 3*time.Millisecond, Timing{Count: 2, Total: 6 * time.Millisecond}.Average())
	assert.Equal(t, "a", ClientName(&fakeClient{name: "a"}))
}
