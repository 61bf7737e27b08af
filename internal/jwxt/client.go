// Package jwxt talks to the university enrollment service. It relies on a
// session cookie captured from an authenticated browser and on the exact
// wording of the service's responses; see Enrolled.
package jwxt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/L-L777/classGrabber/internal/timetable"
)

const (
	enrollPath     = "/xsxklist!getAdd.action"
	listPath       = "/xsxklist!getDataList.action"
	classTimesPath = "/xsxklist!getXskbList.action"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0"
)

// enrolledSentinel is the substring meaning "already enrolled in this
// course", the only success oracle the service offers. If the service
// rewords its responses, enrollment detection breaks with it.
const enrolledSentinel = "您已经选了该门课程"

// Enrolled classifies a raw enrollment response.
func Enrolled(raw string) bool {
	return strings.Contains(raw, enrolledSentinel)
}

type Client struct {
	hc   *http.Client
	base string
}

func New(baseURL string) *Client {
	return &Client{
		hc:   &http.Client{Timeout: 10 * time.Second},
		base: strings.TrimRight(baseURL, "/"),
	}
}

// TransportError covers network failures, non-2xx statuses and unreadable
// bodies. The worker treats it as "not acquired yet", never as fatal.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("jwxt %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("jwxt %s: status %d", e.Op, e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AttemptEnroll issues one enrollment request and returns the raw response
// body. Success classification is the caller's job (Enrolled).
func (c *Client) AttemptEnroll(ctx context.Context, courseID int64, name, cookie string) (string, error) {
	form := url.Values{
		"kcrwdm": {strconv.FormatInt(courseID, 10)},
		"kcmc":   {name},
	}
	body, err := c.do(ctx, "enroll", enrollPath, cookie, form)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ListedCourse is one row of the service's selectable-course listing. The
// service is inconsistent about numeric encoding, hence json.Number.
type ListedCourse struct {
	ID      json.Number `json:"kcrwdm"`
	Name    string      `json:"kcmc"`
	Teacher string      `json:"teaxms"`
}

func (c *Client) FetchCourses(ctx context.Context, cookie string) ([]ListedCourse, error) {
	form := url.Values{
		"sort":  {"kcrwdm"},
		"order": {"asc"},
	}
	body, err := c.do(ctx, "list", listPath, cookie, form)
	if err != nil {
		return nil, err
	}
	var res struct {
		Rows []ListedCourse `json:"rows"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, &TransportError{Op: "list", Err: err}
	}
	return res.Rows, nil
}

// classTimeRow is the wire form of one per-week class-time record.
type classTimeRow struct {
	Week     string `json:"zc"`
	Weekday  string `json:"xq"`
	Sessions string `json:"jcdm2"` // comma-separated period codes, e.g. "01,02"
	Location string `json:"jxcdmc"`
	Teacher  string `json:"teaxms"`
	Term     string `json:"xnxqmc"`
	Style    string `json:"kcdlmc"`
	Course   string `json:"kcmc"`
}

// FetchClassTimes returns the raw per-week records for one course, ready
// for timetable.Consolidate.
func (c *Client) FetchClassTimes(ctx context.Context, courseID int64, cookie string) ([]timetable.RawSession, error) {
	form := url.Values{
		"kcrwdm": {strconv.FormatInt(courseID, 10)},
	}
	body, err := c.do(ctx, "classtimes", classTimesPath, cookie, form)
	if err != nil {
		return nil, err
	}
	var rows []classTimeRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &TransportError{Op: "classtimes", Err: err}
	}

	out := make([]timetable.RawSession, 0, len(rows))
	for _, r := range rows {
		var sessions []string
		for _, s := range strings.Split(r.Sessions, ",") {
			if s = strings.TrimSpace(s); s != "" {
				sessions = append(sessions, s)
			}
		}
		out = append(out, timetable.RawSession{
			Week:     r.Week,
			Weekday:  r.Weekday,
			Sessions: sessions,
			Location: r.Location,
			Teacher:  r.Teacher,
			Term:     r.Term,
			Style:    r.Style,
			Course:   r.Course,
		})
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, op, path, cookie string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Origin", c.base)
	req.Header.Set("Referer", c.base+"/xsxklist!xsmhxsxk.action")
	req.Header.Set("Cookie", cookie)

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &TransportError{Op: op, Status: res.StatusCode}
	}
	return body, nil
}
