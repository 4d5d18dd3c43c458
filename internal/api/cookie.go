package api

import (
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
)

// DefaultCookieName is the browser session cookie.
const DefaultCookieName = "console_session"

// readSessionCookie returns the session id carried by r. Values that are not
// UUIDs are ignored.
func (s *Server) readSessionCookie(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return "", false
	}
	return parseSessionID(cookie.Value)
}

// sessionID returns the request's session id, issuing a new cookie when the
// browser has none.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if id, ok := s.readSessionCookie(r); ok {
		return id
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// humaSessionID reads the session cookie from a huma request. JSON endpoints
// never issue cookies.
func (s *Server) humaSessionID(ctx huma.Context) (string, bool) {
	cookies, err := http.ParseCookie(ctx.Header("Cookie"))
	if err != nil {
		return "", false
	}
	for _, c := range cookies {
		if c.Name == s.cookieName {
			return parseSessionID(c.Value)
		}
	}
	return "", false
}

func parseSessionID(value string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return "", false
	}
	return id.String(), true
}
