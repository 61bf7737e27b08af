package jwxt

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrolledSentinel(t *testing.T) {
	assert.True(t, Enrolled(`{"code":-1,"message":"您已经选了该门课程，不能再选!"}`))
	assert.False(t, Enrolled(`{"code":-1,"message":"课程容量已满"}`))
	assert.False(t, Enrolled(""))
}

func TestAttemptEnrollSendsFormAndCookie(t *testing.T) {
	var gotCookie, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, enrollPath, r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotCookie = r.Header.Get("Cookie")
		gotBody = r.PostForm.Encode()
		_, _ = w.Write([]byte("您已经选了该门课程"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	raw, err := c.AttemptEnroll(context.Background(), 161545, "算法设计", "JSESSIONID=abc")
	require.NoError(t, err)
	assert.True(t, Enrolled(raw))
	assert.Equal(t, "JSESSIONID=abc", gotCookie)
	assert.Contains(t, gotBody, "kcrwdm=161545")
}

func TestAttemptEnrollNon2xxIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "redirected to login", http.StatusFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.AttemptEnroll(context.Background(), 1, "x", "")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusFound, te.Status)
}

func TestAttemptEnrollNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := New(srv.URL)
	_, err := c.AttemptEnroll(context.Background(), 1, "x", "")
	var te *TransportError
	assert.True(t, errors.As(err, &te))
}

func TestFetchCoursesParsesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, listPath, r.URL.Path)
		_, _ = w.Write([]byte(`{"total":2,"rows":[
			{"kcrwdm":161545,"kcmc":"算法设计","teaxms":"王老师"},
			{"kcrwdm":"161546","kcmc":"操作系统","teaxms":"李老师,张老师"}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	rows, err := c.FetchCourses(context.Background(), "JSESSIONID=abc")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "161545", rows[0].ID.String())
	assert.Equal(t, "161546", rows[1].ID.String())
	assert.Equal(t, "操作系统", rows[1].Name)
}

func TestFetchClassTimesSplitsSessionCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, classTimesPath, r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"zc":"3","xq":"1","jcdm2":"01,02","jxcdmc":"教4-305","teaxms":"王老师","xnxqmc":"2024-2025-1","kcdlmc":"理论课","kcmc":"算法设计"}
		]`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	rows, err := c.FetchClassTimes(context.Background(), 161545, "JSESSIONID=abc")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"01", "02"}, rows[0].Sessions)
	assert.Equal(t, "3", rows[0].Week)
	assert.Equal(t, "教4-305", rows[0].Location)
}

func TestFetchCoursesMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>session expired</html>`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.FetchCourses(context.Background(), "")
	var te *TransportError
	assert.True(t, errors.As(err, &te))
}
