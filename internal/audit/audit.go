package audit

import "log/slog"

// Enabled controls whether audit log entries are emitted. Tests that do not
// look at audit output may switch it off.
var Enabled = true

// Event is a structured audit log entry. Zero-valued fields are omitted.
type Event struct {
	Actor      string // subject id of the console user, or "anonymous"
	Role       string // console role of the actor
	Action     string // e.g. "login_callback", "switch_tenant", "logout"
	Status     string // "granted", "denied", "failed"
	Tenant     string // tenant the action targeted
	Reason     string // why the action was denied or failed
	Session    string // short browser session fingerprint
	IP         string
	AuthMethod string
	HTTPStatus int
	Extra      []any // additional slog attrs for one-off fields
}

// Info emits the event at INFO level.
func (e Event) Info(msg string) {
	if !Enabled {
		return
	}
	slog.Info(msg, slog.Group("audit", e.attrs()...)) //nolint:gosec // structured logger safely escapes taint
}

// Warn emits the event at WARN level.
func (e Event) Warn(msg string) {
	if !Enabled {
		return
	}
	slog.Warn(msg, slog.Group("audit", e.attrs()...)) //nolint:gosec // structured logger safely escapes taint
}

func (e Event) attrs() []any {
	var attrs []any
	add := func(key, value string) {
		if value != "" {
			attrs = append(attrs, slog.String(key, value))
		}
	}
	add("actor", e.Actor)
	add("role", e.Role)
	add("action", e.Action)
	add("status", e.Status)
	add("tenant", e.Tenant)
	add("reason", e.Reason)
	add("session", e.Session)
	add("ip_address", e.IP)
	add("auth_method", e.AuthMethod)
	if e.HTTPStatus != 0 {
		attrs = append(attrs, slog.Int("http_status", e.HTTPStatus))
	}
	attrs = append(attrs, e.Extra...)
	return attrs
}
