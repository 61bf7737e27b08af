// Package web is the local HTTP surface: course watch-list editing, config
// updates, run control and the activity-log tail as a small JSON API, plus
// a read-only HTML index, all behind an optional session gate.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/L-L777/classGrabber/internal/config"
	"github.com/L-L777/classGrabber/internal/grab"
	"github.com/L-L777/classGrabber/internal/jwxt"
	"github.com/L-L777/classGrabber/internal/store"
	"github.com/L-L777/classGrabber/internal/timetable"
)

// CourseStore is the slice of the postgres repo the handlers need.
type CourseStore interface {
	Add(ctx context.Context, c store.Course) error
	List(ctx context.Context) ([]store.Course, error)
	Get(ctx context.Context, id int64) (store.Course, error)
	Update(ctx context.Context, c store.Course) error
	Remove(ctx context.Context, id int64) error
}

// Remote is the slice of the jwxt client the handlers need.
type Remote interface {
	FetchCourses(ctx context.Context, cookie string) ([]jwxt.ListedCourse, error)
	FetchClassTimes(ctx context.Context, courseID int64, cookie string) ([]timetable.RawSession, error)
}

// Runner is the grab controller's contract.
type Runner interface {
	Start(p grab.Params) error
	Stop()
	Status() grab.RunState
	Acquired() []int64
}

// LogTailer serves the activity-log view.
type LogTailer interface {
	Tail(n int) []string
}

//go:embed templates/*.html
var templatesFS embed.FS

type Server struct {
	Sessions *Sessions
	Courses  CourseStore
	Remote   Remote
	Runner   Runner
	Config   *config.Manager
	Logs     LogTailer
	Log      zerolog.Logger
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)

	mux.Handle("GET /{$}", s.Sessions.Require(http.HandlerFunc(s.handleIndex)))

	api := http.NewServeMux()
	api.HandleFunc("GET /api/status", s.handleStatus)
	api.HandleFunc("POST /api/start", s.handleStart)
	api.HandleFunc("POST /api/stop", s.handleStop)
	api.HandleFunc("GET /api/courses", s.handleCoursesList)
	api.HandleFunc("POST /api/courses", s.handleCourseAdd)
	api.HandleFunc("PUT /api/courses/{id}", s.handleCourseUpdate)
	api.HandleFunc("DELETE /api/courses/{id}", s.handleCourseRemove)
	api.HandleFunc("GET /api/courses/{id}/schedule", s.handleCourseSchedule)
	api.HandleFunc("POST /api/config", s.handleConfigUpdate)
	api.HandleFunc("POST /api/remote/courses", s.handleRemoteCourses)
	api.HandleFunc("GET /api/logs", s.handleLogs)
	mux.Handle("/api/", s.Sessions.Require(api))

	return mux
}

type indexData struct {
	Title     string
	State     string
	Acquired  []int64
	Delay     float64
	HasCookie bool
	Window    *config.Window
	Courses   []courseBody
	Logs      []string
}

// handleIndex is the one human-readable page: current config, the watch
// list and the last hundred log lines.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	cfg := s.Config.Get()
	courses, err := s.Courses.List(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]courseBody, 0, len(courses))
	for _, c := range courses {
		out = append(out, courseBody{ID: c.ID, Name: c.Name, Teacher: c.Teacher, Note: c.Note})
	}
	s.render(w, "templates/index.html", indexData{
		Title:     "classGrabber",
		State:     s.Runner.Status().String(),
		Acquired:  s.Runner.Acquired(),
		Delay:     cfg.DelaySeconds,
		HasCookie: cfg.Cookie != "",
		Window:    cfg.Window,
		Courses:   out,
		Logs:      s.Logs.Tail(100),
	})
}

func (s *Server) render(w http.ResponseWriter, name string, data indexData) {
	t, err := template.ParseFS(templatesFS, "templates/base.html", name)
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		s.Log.Error().Err(err).Msg("template render failed")
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if !s.Sessions.Login(w, r, req.Password) {
		s.fail(w, http.StatusUnauthorized, errors.New("wrong password"))
		return
	}
	s.respond(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Sessions.Logout(w)
	s.respond(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]any{
		"state":    s.Runner.Status().String(),
		"acquired": s.Runner.Acquired(),
	})
}

// handleStart snapshots the current config and watch list into run params.
// Config problems surface here, synchronously, before any worker exists.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	cfg := s.Config.Get()

	courses, err := s.Courses.List(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}

	params := grab.Params{
		Courses: courses,
		Cookie:  cfg.Cookie,
		Delay:   cfg.Delay(),
	}
	if cfg.Window != nil {
		at, lead, err := cfg.Window.Parse()
		if err != nil {
			s.fail(w, http.StatusBadRequest, err)
			return
		}
		params.Window = &grab.Window{StartAt: at, Lead: lead}
	}

	if err := s.Runner.Start(params); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"state": s.Runner.Status().String()})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.Runner.Stop()
	s.respond(w, http.StatusOK, map[string]string{"state": s.Runner.Status().String()})
}

type courseBody struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Teacher string `json:"teacher"`
	Note    string `json:"note"`
}

func (s *Server) handleCoursesList(w http.ResponseWriter, r *http.Request) {
	courses, err := s.Courses.List(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]courseBody, 0, len(courses))
	for _, c := range courses {
		out = append(out, courseBody{ID: c.ID, Name: c.Name, Teacher: c.Teacher, Note: c.Note})
	}
	s.respond(w, http.StatusOK, map[string]any{"courses": out})
}

func (s *Server) handleCourseAdd(w http.ResponseWriter, r *http.Request) {
	var req courseBody
	if !s.decode(w, r, &req) {
		return
	}
	c := store.Course{ID: req.ID, Name: req.Name, Teacher: req.Teacher, Note: req.Note}
	if err := s.Courses.Add(r.Context(), c); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrDuplicate) || c.Validate() != nil {
			status = http.StatusBadRequest
		}
		s.fail(w, status, err)
		return
	}
	s.respond(w, http.StatusOK, req)
}

func (s *Server) handleCourseUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req courseBody
	if !s.decode(w, r, &req) {
		return
	}
	// The id in the path wins; course ids are immutable.
	c := store.Course{ID: id, Name: req.Name, Teacher: req.Teacher, Note: req.Note}
	if err := c.Validate(); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Courses.Update(r.Context(), c); err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleCourseRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.Courses.Remove(r.Context(), id); err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleCourseSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	rows, err := s.Remote.FetchClassTimes(r.Context(), id, s.Config.Get().Cookie)
	if err != nil {
		s.fail(w, http.StatusBadGateway, err)
		return
	}
	sched := timetable.Consolidate(rows)
	s.respond(w, http.StatusOK, map[string]any{
		"course":        sched.Course,
		"term":          sched.Term,
		"style":         sched.Style,
		"teachers":      sched.Teachers,
		"location_kind": sched.LocationKind,
		"location":      sched.Location,
		"times":         sched.Times,
		"diagnostic":    sched.Diagnostic,
	})
}

func (s *Server) handleConfigUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cookie       *string        `json:"cookie"`
		DelaySeconds *float64       `json:"delay_seconds"`
		Window       *config.Window `json:"window"`
		ClearWindow  bool           `json:"clear_window"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	err := s.Config.Update(func(c *config.Config) {
		if req.Cookie != nil {
			c.Cookie = *req.Cookie
		}
		if req.DelaySeconds != nil {
			c.DelaySeconds = *req.DelaySeconds
		}
		if req.Window != nil {
			c.Window = req.Window
		}
		if req.ClearWindow {
			c.Window = nil
		}
	})
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	s.Log.Info().Msg("config updated via web")
	s.respond(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleRemoteCourses saves a freshly pasted cookie (if any) and pulls the
// selectable-course listing from the enrollment service.
func (s *Server) handleRemoteCourses(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cookie string `json:"cookie"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Cookie != "" {
		if err := s.Config.Update(func(c *config.Config) { c.Cookie = req.Cookie }); err != nil {
			s.fail(w, http.StatusInternalServerError, err)
			return
		}
	}
	rows, err := s.Remote.FetchCourses(r.Context(), s.Config.Get().Cookie)
	if err != nil {
		s.fail(w, http.StatusBadGateway, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"available_courses": rows})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]any{"logs": s.Logs.Tail(100)})
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.fail(w, http.StatusBadRequest, errors.New("bad course id"))
		return 0, false
	}
	return id, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.Error().Err(err).Msg("response encode failed")
	}
}

func (s *Server) fail(w http.ResponseWriter, status int, err error) {
	s.respond(w, status, map[string]string{"error": err.Error()})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, addr string, h http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", addr).Msg("web server listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
