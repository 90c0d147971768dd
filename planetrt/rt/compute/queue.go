package compute

import (
	"fmt"
	"math"
	"time"

	"github.com/gekko3d/planets"
)

// Client owns a backlog of compute batches.
type Client interface {
	// RunAllComputeItems runs the whole backlog and returns the batches run.
	RunAllComputeItems() int
	// RunSomeComputeItems runs at most maxBatches and reports whether the
	// backlog is now empty.
	RunSomeComputeItems(maxBatches int) (int, bool)
}

// Syncer blocks until previously submitted GPU work has completed, so that
// timings cover the work itself rather than its submission.
type Syncer interface {
	Finish() error
}

// Recorder receives one call per client run.
type Recorder interface {
	ComputeRun(client string, batches int, d time.Duration)
}

type Timing struct {
	Count int
	Total time.Duration
}

func (t Timing) Average() time.Duration {
	if t.Count == 0 {
		return 0
	}
	return t.Total / time.Duration(t.Count)
}

type Options struct {
	Clock    planets.Clock
	Syncer   Syncer
	Recorder Recorder
	Logger   planets.Logger
}

// Queue schedules compute clients in FIFO order within a frame budget. It is
// not safe for concurrent use; the main thread owns it.
type Queue struct {
	clock    planets.Clock
	syncer   Syncer
	recorder Recorder
	logger   planets.Logger

	clients []Client
	pending map[Client]struct{}
	timings map[Client]*Timing
}

func NewQueue(opts Options) *Queue {
	return &Queue{
		clock:    planets.ClockOrSystem(opts.Clock),
		syncer:   opts.Syncer,
		recorder: opts.Recorder,
		logger:   planets.LoggerOrNop(opts.Logger),
		pending:  make(map[Client]struct{}),
		timings:  make(map[Client]*Timing),
	}
}

// AddClient appends c unless it is already waiting.
func (q *Queue) AddClient(c Client) {
	if _, ok := q.pending[c]; ok {
		return
	}
	q.push(c)
}

func (q *Queue) push(c Client) {
	q.pending[c] = struct{}{}
	q.clients = append(q.clients, c)
}

func (q *Queue) pop() (Client, bool) {
	if len(q.clients) == 0 {
		return nil, false
	}
	c := q.clients[0]
	q.clients[0] = nil
	q.clients = q.clients[1:]
	delete(q.pending, c)
	return c, true
}

func (q *Queue) Pending() int { return len(q.clients) }

// RunAll runs every waiting client to completion and empties the queue.
func (q *Queue) RunAll() int {
	clients := q.clients
	q.clients = nil
	clear(q.pending)

	total := 0
	for _, c := range clients {
		start := q.clock.Now()
		q.finish()
		n := c.RunAllComputeItems()
		q.finish()
		q.record(c, n, q.clock.Now().Sub(start))
		total += n
	}
	return total
}

// RunSome runs up to count batches of the head client. A client with work
// left goes to the back of the queue.
func (q *Queue) RunSome(count int) int {
	c, ok := q.pop()
	if !ok {
		return 0
	}
	n, allRun := q.run(c, count)
	if !allRun {
		q.push(c)
	}
	return n
}

// RunUntil runs as many batches of the head client as its average batch time
// says fit before deadline, and at least one. Only the head client is
// serviced, even if it finishes early.
func (q *Queue) RunUntil(deadline time.Time) int {
	c, ok := q.pop()
	if !ok {
		return 0
	}
	start := q.clock.Now()
	total := 0

	avg, ok := q.AverageBatchTime(c)
	if !ok {
		n, allRun := q.run(c, 1)
		total += n
		if allRun {
			return total
		}
		avg, ok = q.AverageBatchTime(c)
		if !ok || !deadline.After(start) {
			q.push(c)
			return total
		}
	}

	count := 1
	if remaining := deadline.Sub(start); avg <= 0 {
		count = math.MaxInt32
	} else if remaining > avg {
		count = int(remaining / avg)
	}
	n, allRun := q.run(c, count)
	total += n
	if !allRun {
		q.push(c)
	}
	return total
}

func (q *Queue) run(c Client, count int) (int, bool) {
	start := q.clock.Now()
	q.finish()
	n, allRun := c.RunSomeComputeItems(count)
	q.finish()
	elapsed := q.clock.Now().Sub(start)
	q.record(c, n, elapsed)
	q.logger.Debugf("ran %d batches for %s in %v", n, ClientName(c), elapsed)
	return n, allRun
}

func (q *Queue) finish() {
	if q.syncer == nil {
		return
	}
	if err := q.syncer.Finish(); err != nil {
		q.logger.Warnf("compute sync failed: %v", err)
	}
}

func (q *Queue) record(c Client, batches int, d time.Duration) {
	if q.recorder != nil {
		q.recorder.ComputeRun(ClientName(c), batches, d)
	}
	if batches == 0 {
		return
	}
	t, ok := q.timings[c]
	if !ok {
		t = &Timing{}
		q.timings[c] = t
	}
	t.Count += batches
	t.Total += d
}

func (q *Queue) Timing(c Client) (Timing, bool) {
	t, ok := q.timings[c]
	if !ok {
		return Timing{}, false
	}
	return *t, true
}

// AverageBatchTime is false until c has run at least one batch.
func (q *Queue) AverageBatchTime(c Client) (time.Duration, bool) {
	t, ok := q.timings[c]
	if !ok || t.Count == 0 {
		return 0, false
	}
	return t.Average(), true
}

// ClientName labels c in logs and metrics.
func ClientName(c Client) string {
	if n, ok := c.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", c)
}
