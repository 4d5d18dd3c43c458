package api

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hatemosphere/admin-console/internal/auth"
	"github.com/hatemosphere/admin-console/internal/session"
)

// redirector is the per-request Navigator: the last navigation wins and is
// turned into an HTTP redirect.
type redirector struct {
	target string
}

func (r *redirector) Navigate(target string) { r.target = target }

// registerPages registers browser routes on the raw mux. These serve HTML,
// not JSON, so they're registered directly instead of via huma.
func (s *Server) registerPages(mux *http.ServeMux) {
	routes := s.registry.Routes()
	slog.Info("registering console pages", "routes", []string{routes.Login, "/login/start", routes.Callback, "/logout", routes.Home})
	mux.HandleFunc("GET "+routes.Login, s.handleLoginPage)
	mux.HandleFunc("GET /login/start", s.handleLoginStart)
	mux.HandleFunc("GET "+routes.Callback, s.handleCallback)
	mux.HandleFunc("GET /logout", s.handleLogout)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /", s.handleShell)
}

// openPage resolves the browser session and records the page it is on. It
// writes an error page and returns ok=false when storage is unavailable.
func (s *Server) openPage(w http.ResponseWriter, r *http.Request, route string) (*session.Handle, *redirector, bool) {
	nav := &redirector{}
	h, err := s.registry.Open(r.Context(), s.sessionID(w, r), nav)
	if err != nil {
		slog.Error("open session failed", "error", err)
		renderError(w, http.StatusInternalServerError, "Session storage is unavailable. Please try again.")
		return nil, nil, false
	}
	if route != "" {
		h.Auth.SetRoute(route)
	}
	return h, nav, true
}

// handleLoginPage serves the sign-in page, or sends an already signed-in
// user home.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	routes := s.registry.Routes()
	h, _, ok := s.openPage(w, r, routes.Login)
	if !ok {
		return
	}
	if h.Auth.State().IsAuthenticated {
		http.Redirect(w, r, routes.Home, http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := loginPageTmpl.Execute(w, map[string]string{"StartURL": "/login/start"}); err != nil {
		slog.Error("render login page", "error", err)
	}
}

// handleLoginStart stores a fresh CSRF nonce and redirects to the provider.
func (s *Server) handleLoginStart(w http.ResponseWriter, r *http.Request) {
	h, nav, ok := s.openPage(w, r, s.registry.Routes().Login)
	if !ok {
		return
	}
	if err := h.Auth.Login(r.Context()); err != nil {
		slog.Error("build authorization url", "error", err)
		renderError(w, http.StatusInternalServerError, "Could not start sign-in. Please try again.")
		return
	}
	http.Redirect(w, r, nav.target, http.StatusFound)
}

// handleCallback resolves the provider redirect. Success sends the user home;
// any failure renders an error page linking back to the login page.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	h, nav, ok := s.openPage(w, r, s.registry.Routes().Callback)
	if !ok {
		return
	}

	q := r.URL.Query()
	_, err := h.Auth.CompleteLogin(r.Context(), auth.CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})
	loginCallbacksTotal.WithLabelValues(callbackOutcome(err)).Inc()
	if err != nil {
		status, msg := callbackErrorPage(err)
		renderError(w, status, msg)
		return
	}
	http.Redirect(w, r, nav.target, http.StatusFound)
}

// handleLogout removes the credential and sends the browser to the login page.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	h, nav, ok := s.openPage(w, r, "")
	if !ok {
		return
	}
	if err := h.Auth.Logout(r.Context()); err != nil {
		slog.Warn("logout did not remove credential", "error", err)
	}
	http.Redirect(w, r, nav.target, http.StatusFound)
}

// handleShell serves the route-guarded console shell for every console page.
// Unknown JSON API paths stay plain 404s.
func (s *Server) handleShell(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		http.NotFound(w, r)
		return
	}
	h, nav, ok := s.openPage(w, r, r.URL.Path)
	if !ok {
		return
	}
	if nav.target != "" {
		http.Redirect(w, r, nav.target, http.StatusFound)
		return
	}

	state := h.Auth.State()
	if state.User == nil {
		http.Redirect(w, r, s.registry.Routes().Login, http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := shellPageTmpl.Execute(w, map[string]any{
		"User":            state.User,
		"Role":            state.User.Role.String(),
		"Access":          h.Access(),
		"Tenant":          h.Tenant.Snapshot(),
		"InTenantContext": h.Tenant.IsInTenantContext(),
	}); err != nil {
		slog.Error("render shell page", "error", err)
	}
}

func callbackOutcome(err error) string {
	var pe *auth.ProviderError
	var xe *auth.ExchangeError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &pe):
		return "provider_error"
	case errors.Is(err, auth.ErrMissingCode):
		return "missing_code"
	case errors.Is(err, auth.ErrInvalidState):
		return "invalid_state"
	case errors.As(err, &xe):
		return "exchange_failed"
	default:
		return "error"
	}
}

// callbackErrorPage maps a callback failure to a status and user-facing
// message. Exchange failures are logged in full but shown generically.
func callbackErrorPage(err error) (int, string) {
	var pe *auth.ProviderError
	var xe *auth.ExchangeError
	switch {
	case errors.As(err, &pe):
		return http.StatusUnauthorized, pe.Error()
	case errors.Is(err, auth.ErrMissingCode), errors.Is(err, auth.ErrInvalidState):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &xe):
		slog.Error("code exchange failed", "error", err)
		return http.StatusBadGateway, "failed to obtain access token"
	default:
		slog.Error("callback failed", "error", err)
		return http.StatusInternalServerError, "Sign-in failed. Please try again."
	}
}

func renderError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := errorPageTmpl.Execute(w, map[string]string{"Error": msg}); err != nil {
		slog.Error("render error page", "error", err)
	}
}

// --- HTML Templates ---

const pageStyle = `
  * { box-sizing: border-box; margin: 0; padding: 0; }
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #f5f5f5; color: #333; display: flex; justify-content: center; align-items: center; min-height: 100vh; }
  .card { background: #fff; border-radius: 12px; box-shadow: 0 2px 12px rgba(0,0,0,0.1); padding: 48px 40px; max-width: 480px; width: 100%; text-align: center; }
  h1 { font-size: 24px; margin-bottom: 8px; color: #1a1a2e; }
  .subtitle, .msg { color: #666; margin-bottom: 24px; font-size: 14px; }
  .btn { display: inline-block; padding: 10px 24px; background: #4285f4; color: #fff; border: none; border-radius: 6px; text-decoration: none; font-size: 14px; cursor: pointer; }
  .btn:hover { background: #3367d6; }
`

var loginPageTmpl = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Admin Console - Sign In</title>
<style>` + pageStyle + `</style>
</head>
<body>
<div class="card">
  <h1>Admin Console</h1>
  <p class="subtitle">Sign in with your organization account</p>
  <a href="{{.StartURL}}" class="btn">Sign in</a>
</div>
</body>
</html>`))

var shellPageTmpl = template.Must(template.New("shell").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Admin Console</title>
<style>` + pageStyle + `
  .card { text-align: left; }
  dl { margin-bottom: 24px; font-size: 14px; }
  dt { font-size: 12px; font-weight: 600; color: #888; text-transform: uppercase; letter-spacing: 0.5px; margin-top: 12px; }
  ul { list-style: none; font-size: 14px; }
</style>
</head>
<body>
<div class="card">
  <h1>Admin Console</h1>
  <dl>
    <dt>User</dt><dd>{{with .User.Name}}{{.}}{{else}}{{.User.ID}}{{end}}</dd>
    <dt>Role</dt><dd>{{.Role}}</dd>
    {{if .Access.IsUberAdmin}}
    <dt>Tenant context</dt><dd>{{if .InTenantContext}}{{with .Tenant.CurrentTenantName}}{{.}}{{else}}{{$.Tenant.CurrentTenantID}}{{end}}{{else}}Platform{{end}}</dd>
    {{else if .Tenant.CurrentTenantID}}
    <dt>Tenant</dt><dd>{{.Tenant.CurrentTenantID}}</dd>
    {{end}}
  </dl>
  <form method="post" action="/logout"><button class="btn" type="submit">Sign out</button></form>
</div>
</body>
</html>`))

var errorPageTmpl = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Admin Console - Error</title>
<style>` + pageStyle + `
  h1 { color: #d93025; }
</style>
</head>
<body>
<div class="card">
  <h1>Sign-in Failed</h1>
  <p class="msg">{{.Error}}</p>
  <a href="/login" class="btn">Back to login</a>
</div>
</body>
</html>`))
