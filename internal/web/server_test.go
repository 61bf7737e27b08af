package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/L-L777/classGrabber/internal/config"
	"github.com/L-L777/classGrabber/internal/grab"
	"github.com/L-L777/classGrabber/internal/jwxt"
	"github.com/L-L777/classGrabber/internal/store"
	"github.com/L-L777/classGrabber/internal/timetable"
)

type fakeStore struct {
	courses []store.Course
}

func (f *fakeStore) Add(_ context.Context, c store.Course) error {
	for _, existing := range f.courses {
		if existing.ID == c.ID {
			return store.ErrDuplicate
		}
	}
	if err := c.Validate(); err != nil {
		return err
	}
	f.courses = append(f.courses, c)
	return nil
}

func (f *fakeStore) List(context.Context) ([]store.Course, error) { return f.courses, nil }

func (f *fakeStore) Get(_ context.Context, id int64) (store.Course, error) {
	for _, c := range f.courses {
		if c.ID == id {
			return c, nil
		}
	}
	return store.Course{}, fmt.Errorf("not found")
}

func (f *fakeStore) Update(_ context.Context, c store.Course) error {
	for i := range f.courses {
		if f.courses[i].ID == c.ID {
			f.courses[i] = c
			return nil
		}
	}
	return fmt.Errorf("not found")
}

func (f *fakeStore) Remove(_ context.Context, id int64) error {
	for i, c := range f.courses {
		if c.ID == id {
			f.courses = append(f.courses[:i], f.courses[i+1:]...)
			return nil
		}
	}
	return nil
}

type fakeRemote struct {
	rows []timetable.RawSession
}

func (f *fakeRemote) FetchCourses(context.Context, string) ([]jwxt.ListedCourse, error) {
	return []jwxt.ListedCourse{{ID: "161545", Name: "算法设计", Teacher: "王老师"}}, nil
}

func (f *fakeRemote) FetchClassTimes(context.Context, int64, string) ([]timetable.RawSession, error) {
	return f.rows, nil
}

type fakeRunner struct {
	state  grab.RunState
	params *grab.Params
}

func (f *fakeRunner) Start(p grab.Params) error {
	if len(p.Courses) == 0 {
		return grab.ErrNoCourses
	}
	f.state = grab.Running
	f.params = &p
	return nil
}

func (f *fakeRunner) Stop()                 { f.state = grab.Idle }
func (f *fakeRunner) Status() grab.RunState { return f.state }
func (f *fakeRunner) Acquired() []int64     { return nil }

type fakeTailer struct{ lines []string }

func (f *fakeTailer) Tail(int) []string { return f.lines }

func newTestServer(t *testing.T, passwordHash string) (*Server, *fakeStore, *fakeRunner) {
	t.Helper()
	mgr, err := config.Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	st := &fakeStore{}
	rn := &fakeRunner{}
	srv := &Server{
		Sessions: NewSessions(bytes.Repeat([]byte{1}, 32), bytes.Repeat([]byte{2}, 32), passwordHash),
		Courses:  st,
		Remote:   &fakeRemote{},
		Runner:   rn,
		Config:   mgr,
		Logs:     &fakeTailer{lines: []string{"a", "b"}},
		Log:      zerolog.New(io.Discard),
	}
	return srv, st, rn
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	} else {
		buf.WriteString("{}")
	}
	req := httptest.NewRequest(method, path, &buf)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPIRejectsUnauthenticated(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)
	srv, _, _ := newTestServer(t, hash)
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodGet, "/api/status", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginThenAccess(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)
	srv, _, _ := newTestServer(t, hash)
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodPost, "/login", map[string]string{"password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/login", map[string]string{"password": "secret"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	rec = doJSON(t, h, http.MethodGet, "/api/status", nil, cookies)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"idle"`)
}

func TestEmptyHashDisablesGate(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	h := srv.Routes()
	rec := doJSON(t, h, http.MethodGet, "/api/status", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIndexPageRendersWatchListAndLogs(t *testing.T) {
	srv, st, _ := newTestServer(t, "")
	require.NoError(t, st.Add(context.Background(), store.Course{ID: 161545, Name: "算法设计", Teacher: "王老师"}))
	srv.Logs = &fakeTailer{lines: []string{`{"event":"attempt","course":161545}`}}
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, "算法设计")
	assert.Contains(t, body, "161545")
	assert.Contains(t, body, "attempt")
	assert.Contains(t, body, "idle")
}

func TestIndexPageRequiresSession(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)
	srv, _, _ := newTestServer(t, hash)
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCourseAddListRemove(t *testing.T) {
	srv, st, _ := newTestServer(t, "")
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/courses",
		courseBody{ID: 161545, Name: "算法设计", Teacher: "王老师"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/courses",
		courseBody{ID: 161545, Name: "算法设计"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/courses", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "161545")

	rec = doJSON(t, h, http.MethodDelete, "/api/courses/161545", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, st.courses)
}

func TestStartUsesConfigSnapshot(t *testing.T) {
	srv, st, rn := newTestServer(t, "")
	st.courses = []store.Course{{ID: 1, Name: "x"}}
	require.NoError(t, srv.Config.Update(func(c *config.Config) {
		c.Cookie = "JSESSIONID=abc"
		c.DelaySeconds = 2
	}))
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/start", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, rn.params)
	assert.Equal(t, "JSESSIONID=abc", rn.params.Cookie)
	assert.Len(t, rn.params.Courses, 1)

	rec = doJSON(t, h, http.MethodPost, "/api/stop", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, grab.Idle, rn.Status())
}

func TestStartRejectsBadWindow(t *testing.T) {
	// A garbled window can only enter through a hand-edited file; Update
	// would refuse it. Load is lenient so the error surfaces at start time.
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
window:
  start_at: "whenever"
`), 0o600))
	mgr, err := config.Load(path)
	require.NoError(t, err)

	srv, st, rn := newTestServer(t, "")
	srv.Config = mgr
	st.courses = []store.Course{{ID: 1, Name: "x"}}
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/start", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, grab.Idle, rn.Status())
}

func TestConfigUpdateRejectsBadWindow(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	h := srv.Routes()
	rec := doJSON(t, h, http.MethodPost, "/api/config",
		map[string]any{"window": map[string]any{"start_at": "garbled"}}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartWithNoCoursesFails(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	h := srv.Routes()
	rec := doJSON(t, h, http.MethodPost, "/api/start", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCourseScheduleConsolidates(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	srv.Remote = &fakeRemote{rows: []timetable.RawSession{
		{Week: "3", Weekday: "1", Sessions: []string{"1", "2"}, Location: "教4-305", Teacher: "王老师", Course: "算法设计"},
		{Week: "3", Weekday: "1", Sessions: []string{"3", "4"}, Location: "教4-305", Teacher: "王老师", Course: "算法设计"},
	}}
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodGet, "/api/courses/161545/schedule", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "第3周 周一 1~4节")
}

func TestConfigUpdatePersistsCookieAndDelay(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/config",
		map[string]any{"cookie": "JSESSIONID=zzz", "delay_seconds": 1.5}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cfg := srv.Config.Get()
	assert.Equal(t, "JSESSIONID=zzz", cfg.Cookie)
	assert.Equal(t, 1.5, cfg.DelaySeconds)
}

func TestRemoteCoursesSavesPastedCookie(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/remote/courses",
		map[string]string{"cookie": "JSESSIONID=pasted"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "算法设计")
	assert.Equal(t, "JSESSIONID=pasted", srv.Config.Get().Cookie)
}

func TestLogsTail(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	h := srv.Routes()
	rec := doJSON(t, h, http.MethodGet, "/api/logs", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"a"`)
}
