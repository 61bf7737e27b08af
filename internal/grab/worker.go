package grab

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/L-L777/classGrabber/internal/store"
)

// worker runs one grab session. It is cancelled cooperatively: the gate
// poll, the throttle wait and the pass boundary all observe ctx, but a
// request already on the wire always completes (the client's own timeout
// bounds how long that can take).
type worker struct {
	ctrl    *Controller
	gen     uint64
	courses []store.Course
	cookie  string
	window  *Window
	limiter *rate.Limiter
}

func newWorker(c *Controller, p Params, gen uint64) *worker {
	return &worker{
		ctrl:    c,
		gen:     gen,
		courses: p.Courses,
		cookie:  p.Cookie,
		window:  p.Window,
		limiter: rate.NewLimiter(rate.Every(p.Delay), 1),
	}
}

func (w *worker) run(ctx context.Context) {
	if !w.awaitGate(ctx) {
		return
	}

	for w.ctrl.live(w.gen) && w.ctrl.acquiredCount() < len(w.courses) {
		// Completion is only re-checked up here, once per full pass.
		for _, course := range w.courses {
			if w.ctrl.isAcquired(course.ID) {
				continue
			}
			if err := w.limiter.Wait(ctx); err != nil {
				return // stopped between attempts
			}
			w.attempt(course)
		}
	}

	if w.ctrl.finish(w.gen, len(w.courses)) {
		time.Sleep(w.ctrl.opts.CompletionGrace)
		w.ctrl.book.Completion(len(w.courses))
	}
}

// awaitGate polls the wall clock until the window opens. Reports false when
// cancelled first. No window means the gate is already open.
func (w *worker) awaitGate(ctx context.Context) bool {
	if w.window == nil {
		return true
	}
	open := w.window.StartAt.Add(-w.window.Lead)
	for time.Now().Before(open) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(w.ctrl.opts.GatePoll):
		}
	}
	return true
}

func (w *worker) attempt(course store.Course) {
	// Deliberately not ctx: a stop must not sever an in-flight request.
	raw, err := w.ctrl.client.AttemptEnroll(context.Background(), course.ID, course.Name, w.cookie)
	if err != nil {
		w.ctrl.book.Attempt(course.ID, course.Name, false, "", err)
		w.record(course.ID, false, "", err)
		return
	}

	acquired := w.ctrl.opts.Classify(raw)
	w.ctrl.book.Attempt(course.ID, course.Name, acquired, raw, nil)
	w.record(course.ID, acquired, raw, nil)
	if acquired {
		w.ctrl.markAcquired(w.gen, course.ID)
	}
}

func (w *worker) record(courseID int64, acquired bool, raw string, attemptErr error) {
	if w.ctrl.recorder == nil {
		return
	}
	a := store.Attempt{CourseID: courseID, Acquired: acquired, Response: raw}
	if attemptErr != nil {
		msg := attemptErr.Error()
		a.Error = &msg
	}
	rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.ctrl.recorder.RecordAttempt(rctx, a); err != nil {
		w.ctrl.book.Logger().Warn().Err(err).Int64("course", courseID).Msg("attempt history write failed")
	}
}
