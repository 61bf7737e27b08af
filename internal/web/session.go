package web

import (
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/bcrypt"
)

const sessionCookie = "classgrab_session"

// Sessions gates the local web surface behind a single access password.
// An empty password hash disables the gate entirely, matching how the tool
// behaves when run on a trusted machine.
type Sessions struct {
	sc           *securecookie.SecureCookie
	passwordHash string
}

func NewSessions(hashKey, blockKey []byte, passwordHash string) *Sessions {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int((24 * time.Hour).Seconds()))
	return &Sessions{sc: sc, passwordHash: passwordHash}
}

func (s *Sessions) open() bool { return s.passwordHash == "" }

// Login checks the access password and, on success, sets the session cookie.
func (s *Sessions) Login(w http.ResponseWriter, r *http.Request, password string) bool {
	if s.open() {
		return true
	}
	if bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)) != nil {
		return false
	}
	encoded, err := s.sc.Encode(sessionCookie, map[string]any{"ok": true})
	if err != nil {
		return false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int((24 * time.Hour).Seconds()),
	})
	return true
}

func (s *Sessions) Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (s *Sessions) authenticated(r *http.Request) bool {
	if s.open() {
		return true
	}
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return false
	}
	val := map[string]any{}
	if err := s.sc.Decode(sessionCookie, c.Value, &val); err != nil {
		return false
	}
	ok, _ := val["ok"].(bool)
	return ok
}

// Require wraps a handler behind the session check.
func (s *Sessions) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticated(r) {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HashPassword is used by the CLI to produce the config value.
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}
