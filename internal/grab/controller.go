// Package grab drives enrollment attempts: a Controller owning the run
// state and at most one background worker that hammers the enrollment
// endpoint until every watched course is confirmed or the run is stopped.
package grab

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/L-L777/classGrabber/internal/jwxt"
	"github.com/L-L777/classGrabber/internal/logbook"
	"github.com/L-L777/classGrabber/internal/store"
)

type RunState int

const (
	Idle RunState = iota
	Running
)

func (s RunState) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

var (
	ErrNoCourses = errors.New("no courses to grab")
	ErrBadDelay  = errors.New("delay must be positive")
	ErrBadWindow = errors.New("window start time missing")
)

// AttemptClient issues one enrollment request. The credential travels by
// value with every call.
type AttemptClient interface {
	AttemptEnroll(ctx context.Context, courseID int64, name, cookie string) (string, error)
}

// AttemptRecorder optionally keeps attempt history; the postgres store
// implements it. A nil recorder is fine.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, a store.Attempt) error
}

// Window delays the first attempt: the gate opens Lead before StartAt.
type Window struct {
	StartAt time.Time
	Lead    time.Duration
}

// Params configures one run.
type Params struct {
	Courses []store.Course
	Cookie  string
	Delay   time.Duration // inter-attempt throttle
	Window  *Window
}

// Options are fixed at construction. Tests shrink the intervals.
type Options struct {
	GatePoll        time.Duration      // wall-clock poll while waiting for the window
	CompletionGrace time.Duration      // pause between stopping and the completion record
	Classify        func(string) bool  // success oracle; defaults to jwxt.Enrolled
}

func (o Options) withDefaults() Options {
	if o.GatePoll <= 0 {
		o.GatePoll = 100 * time.Millisecond
	}
	if o.CompletionGrace < 0 {
		o.CompletionGrace = 0
	} else if o.CompletionGrace == 0 {
		o.CompletionGrace = 3 * time.Second
	}
	if o.Classify == nil {
		o.Classify = jwxt.Enrolled
	}
	return o
}

type Controller struct {
	client   AttemptClient
	recorder AttemptRecorder
	book     *logbook.Book
	opts     Options

	mu       sync.Mutex
	state    RunState
	gen      uint64 // bumped on every fresh start; stale workers carry the old value
	cancel   context.CancelFunc
	done     chan struct{}
	acquired map[int64]bool
}

func New(client AttemptClient, recorder AttemptRecorder, book *logbook.Book, opts Options) *Controller {
	return &Controller{
		client:   client,
		recorder: recorder,
		book:     book,
		opts:     opts.withDefaults(),
	}
}

// Start validates params and spawns the worker. Calling Start while a run
// is active is a successful no-op; at most one worker ever exists.
func (c *Controller) Start(p Params) error {
	if len(p.Courses) == 0 {
		return ErrNoCourses
	}
	if p.Delay <= 0 {
		return ErrBadDelay
	}
	if p.Window != nil && p.Window.StartAt.IsZero() {
		return ErrBadWindow
	}

	c.mu.Lock()
	if c.state == Running {
		c.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.state = Running
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.done = done
	c.acquired = make(map[int64]bool, len(p.Courses))
	c.mu.Unlock()

	c.book.Transition("running")

	w := newWorker(c, p, gen)
	go func() {
		defer close(done)
		w.run(ctx)
	}()
	return nil
}

// Stop flips the state to Idle and signals the worker. The worker observes
// the signal at its next suspension point; an in-flight enrollment request
// is allowed to finish. Stopping while Idle is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state != Running {
		c.mu.Unlock()
		return
	}
	c.state = Idle
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	cancel()
	c.book.Transition("idle")
}

func (c *Controller) Status() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Acquired returns the ids confirmed during the current (or last) run,
// sorted for stable output.
func (c *Controller) Acquired() []int64 {
	c.mu.Lock()
	ids := make([]int64, 0, len(c.acquired))
	for id := range c.acquired {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Done exposes the current run's completion channel, nil when no run has
// ever started. Used by tests and graceful shutdown.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// markAcquired records a confirmation. A stopped run's worker can outlive
// its run by one in-flight request; a confirmation from such a worker
// belongs to the old run and must not leak into the fresh acquired set.
func (c *Controller) markAcquired(gen uint64, id int64) {
	c.mu.Lock()
	if gen == c.gen {
		c.acquired[id] = true
	}
	c.mu.Unlock()
}

func (c *Controller) isAcquired(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquired[id]
}

func (c *Controller) acquiredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.acquired)
}

// live reports whether gen still identifies the active run.
func (c *Controller) live(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Running && gen == c.gen
}

// finish stops the run gen identifies, but only if it is still the active
// one and every course is confirmed. Both checks happen under one lock so
// an external Stop+Start cannot slip in between. Reports whether it
// stopped the run.
func (c *Controller) finish(gen uint64, total int) bool {
	c.mu.Lock()
	if gen != c.gen || c.state != Running || len(c.acquired) != total {
		c.mu.Unlock()
		return false
	}
	c.state = Idle
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	cancel()
	c.book.Transition("idle")
	return true
}
