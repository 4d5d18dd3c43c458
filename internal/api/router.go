package api

import (
	"context"
	stdjson "encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/klauspost/compress/gzip"

	"github.com/hatemosphere/admin-console/internal/audit"
	"github.com/hatemosphere/admin-console/internal/auth"
	"github.com/hatemosphere/admin-console/internal/session"
)

// Pinger reports whether a storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the console HTTP server: HTML login pages plus the JSON API.
type Server struct {
	registry      *session.Registry
	health        Pinger // nil = always healthy
	cookieName    string
	secureCookies bool
	humaAPI       huma.API
}

// NewServer creates a new console server.
func NewServer(registry *session.Registry, opts ...ServerOption) *Server {
	s := &Server{
		registry:   registry,
		cookieName: DefaultCookieName,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServerOption configures the console server.
type ServerOption func(*Server)

// WithHealthCheck sets the storage backend checked by /healthz.
func WithHealthCheck(p Pinger) ServerOption {
	return func(s *Server) { s.health = p }
}

// WithCookieName overrides the session cookie name.
func WithCookieName(name string) ServerOption {
	return func(s *Server) {
		if name != "" {
			s.cookieName = name
		}
	}
}

// WithSecureCookies marks the session cookie Secure even on plain-HTTP
// requests, for deployments behind a TLS-terminating proxy.
func WithSecureCookies(secure bool) ServerOption {
	return func(s *Server) { s.secureCookies = secure }
}

// humaJSONFormat uses stdlib encoding/json for huma request/response serialization.
var humaJSONFormat = huma.Format{
	Marshal: func(w io.Writer, v any) error {
		return stdjson.NewEncoder(w).Encode(v)
	},
	Unmarshal: stdjson.Unmarshal,
}

// newHumaConfig creates the huma configuration for the API.
func newHumaConfig() huma.Config {
	registry := huma.NewMapRegistry("#/components/schemas/", huma.DefaultSchemaNamer)
	config := huma.Config{
		OpenAPI: &huma.OpenAPI{
			OpenAPI: "3.1.0",
			Info: &huma.Info{
				Title:   "Admin Console API",
				Version: "0.1.0",
			},
			Components: &huma.Components{
				Schemas: registry,
			},
		},
		OpenAPIPath:   "", // served by getOpenAPISpec
		DocsPath:      "",
		SchemasPath:   "",
		Formats:       map[string]huma.Format{"application/json": humaJSONFormat, "json": humaJSONFormat},
		DefaultFormat: "application/json",
	}
	config.FieldsOptionalByDefault = true
	return config
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Router returns the configured HTTP handler with all endpoints.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Browser pages (HTML, cookie-issuing).
	s.registerPages(mux)
	mux.Handle("GET /metrics", MetricsHandler())

	// Public huma routes: usable without an authenticated session.
	publicAPI := humago.New(mux, newHumaConfig())
	publicAPI.UseMiddleware(metricsHumaMiddleware)
	publicAPI.UseMiddleware(s.sessionHumaMiddleware(publicAPI))
	s.registerPublicRoutes(publicAPI)
	s.registerSession(publicAPI)

	// Routes that require an authenticated session.
	api := humago.New(mux, newHumaConfig())
	api.UseMiddleware(metricsHumaMiddleware)
	api.UseMiddleware(s.sessionHumaMiddleware(api))
	api.UseMiddleware(s.authHumaMiddleware(api))
	api.UseMiddleware(s.capabilityMiddleware(api))
	api.UseMiddleware(auditHumaMiddleware)
	s.humaAPI = api

	s.registerAccess(api)
	s.registerTenant(api)

	// HTTP-level middleware (outermost applied last).
	var handler http.Handler = mux
	handler = gzipDecompressor(handler)
	handler = requestLogger(handler)
	handler = recoverer(handler)
	handler = realIP(handler)
	return handler
}

// registerPublicRoutes registers health and meta operations.
func (s *Server) registerPublicRoutes(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/healthz",
		Tags:        []string{"Health"},
	}, func(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
		if s.health != nil {
			if err := s.health.Ping(ctx); err != nil {
				slog.Error("health check failed", "error", err)
				return nil, huma.NewError(http.StatusServiceUnavailable, "storage unavailable")
			}
		}
		out := &HealthCheckOutput{}
		out.Body.Status = "ok"
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "getOpenAPISpec",
		Method:      http.MethodGet,
		Path:        "/api/openapi",
		Tags:        []string{"Meta"},
	}, func(ctx context.Context, input *struct{}) (*huma.StreamResponse, error) {
		return &huma.StreamResponse{
			Body: func(ctx huma.Context) {
				ctx.SetHeader("Content-Type", "application/json")
				if s.humaAPI != nil {
					data, _ := stdjson.Marshal(s.humaAPI.OpenAPI())
					_, _ = ctx.BodyWriter().Write(data)
				} else {
					_, _ = ctx.BodyWriter().Write([]byte(`{}`))
				}
			},
		}, nil
	})
}

type handleKey struct{}

func withHandle(ctx context.Context, h *session.Handle) context.Context {
	return context.WithValue(ctx, handleKey{}, h)
}

// handleFromContext returns the session handle resolved for the request, or
// nil when the request carried no session cookie.
func handleFromContext(ctx context.Context) *session.Handle {
	h, _ := ctx.Value(handleKey{}).(*session.Handle)
	return h
}

// sessionHumaMiddleware opens the session named by the cookie and puts its
// handle, and the identity when authenticated, on the request context.
func (s *Server) sessionHumaMiddleware(api huma.API) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		id, ok := s.humaSessionID(ctx)
		if !ok {
			next(ctx)
			return
		}
		h, err := s.registry.Open(ctx.Context(), id, nil)
		if err != nil {
			slog.Error("open session failed", "error", err)
			_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "session storage unavailable", reasonSessionUnavailable)
			return
		}
		c := withHandle(ctx.Context(), h)
		if user := h.Auth.State().User; user != nil {
			c = auth.WithIdentity(c, user)
		}
		next(huma.WithContext(ctx, c))
	}
}

// authHumaMiddleware rejects requests without an authenticated session.
func (s *Server) authHumaMiddleware(api huma.API) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		h := handleFromContext(ctx.Context())
		if h == nil || !h.Auth.State().IsAuthenticated {
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "not authenticated", reasonNotAuthenticated)
			return
		}
		next(ctx)
	}
}

// capabilityKey is the operation metadata key naming the capability an
// operation requires.
const capabilityKey = "capability"

// capabilityMiddleware enforces the capability declared in the operation's
// metadata. It runs after authHumaMiddleware, so a handle is always present.
func (s *Server) capabilityMiddleware(api huma.API) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		required, ok := ctx.Operation().Metadata[capabilityKey].(auth.Capability)
		if !ok {
			next(ctx)
			return
		}
		h := handleFromContext(ctx.Context())
		access := h.Access()
		if !access.Permissions.Has(required) {
			audit.Event{
				Actor:  actorOf(h),
				Role:   access.Role.String(),
				Action: ctx.Operation().OperationID,
				Status: "denied",
				Reason: "missing_capability:" + required.String(),
				IP:     ctx.RemoteAddr(),
			}.Warn("Audit Log: Access Denied")
			_ = huma.WriteErr(api, ctx, http.StatusForbidden, "permission denied: "+required.String(), reasonMissingCapability)
			return
		}
		next(ctx)
	}
}

func actorOf(h *session.Handle) string {
	if h != nil {
		if user := h.Auth.State().User; user != nil {
			return user.ID
		}
	}
	return "anonymous"
}

// metricsHumaMiddleware records Prometheus metrics for each huma request using
// the operation path as the route label for clean, low-cardinality metrics.
func metricsHumaMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	next(ctx)
	elapsed := time.Since(start)

	route := ctx.Operation().Path
	status := ctx.Status()
	if status == 0 {
		status = 200
	}

	httpRequestsTotal.WithLabelValues(ctx.Method(), route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(ctx.Method(), route).Observe(elapsed.Seconds())
}

// auditHumaMiddleware logs structured audit entries for state-mutating API
// operations.
func auditHumaMiddleware(ctx huma.Context, next func(huma.Context)) {
	next(ctx)

	method := ctx.Method()
	if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
		return
	}

	actor := "unknown"
	role := ""
	if identity := auth.IdentityFromContext(ctx.Context()); identity != nil {
		actor = identity.ID
		role = identity.Role.String()
	}

	status := ctx.Status()
	if status == 0 {
		status = 200
	}

	e := audit.Event{
		Actor:      actor,
		Role:       role,
		Action:     ctx.Operation().OperationID,
		HTTPStatus: status,
		IP:         ctx.RemoteAddr(),
	}
	if h := handleFromContext(ctx.Context()); h != nil {
		e.Tenant = h.Tenant.Snapshot().CurrentTenantID
	}
	if status >= 400 {
		e.Warn("Audit Log: API Request")
	} else {
		e.Info("Audit Log: API Request")
	}
}

// requestLogger logs each HTTP request with method, path, status, and latency.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)
		slog.Info("request", //nolint:gosec // structured logger, not format string
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"latency", time.Since(start),
		)
	})
}

// realIP extracts the real client IP from X-Real-Ip or X-Forwarded-For headers.
func realIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rip := r.Header.Get("X-Real-Ip"); rip != "" {
			r.RemoteAddr = rip
		} else if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if i := strings.IndexByte(xff, ','); i > 0 {
				r.RemoteAddr = strings.TrimSpace(xff[:i])
			} else {
				r.RemoteAddr = xff
			}
		}
		next.ServeHTTP(w, r)
	})
}

// recoverer recovers from panics and returns a 500 Internal Server Error.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				slog.Error("panic recovered", "error", rvr, "method", r.Method, "path", r.URL.Path) //nolint:gosec // structured logger, not format string
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// gzipDecompressor transparently decompresses gzip request bodies.
func gzipDecompressor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Encoding") == "gzip" {
			gz, err := gzip.NewReader(r.Body)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_ = stdjson.NewEncoder(w).Encode(map[string]any{
					"code":    http.StatusBadRequest,
					"message": "invalid gzip body",
				})
				return
			}
			r.Body = io.NopCloser(gz)
			r.Header.Del("Content-Encoding")
		}
		next.ServeHTTP(w, r)
	})
}
