package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"
)

// ConsoleError is the JSON error body of every console API failure. Reason
// is a stable machine-readable cause the UI can branch on, for example to
// send the browser back to /login on "not_authenticated".
type ConsoleError struct {
	status  int
	Code    int    `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

func (e *ConsoleError) Error() string {
	return e.Message
}

func (e *ConsoleError) GetStatus() int {
	return e.status
}

// reason tags an error response with a ConsoleError.Reason when passed as one
// of huma.NewError's errs.
type reason string

func (r reason) Error() string { return string(r) }

const (
	reasonNotAuthenticated   reason = "not_authenticated"
	reasonMissingCapability  reason = "missing_capability"
	reasonTenantDenied       reason = "tenant_denied"
	reasonTenantRequired     reason = "tenant_required"
	reasonSessionUnavailable reason = "session_unavailable"
)

func init() {
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		ce := &ConsoleError{status: status, Code: status, Message: msg}
		for _, err := range errs {
			var r reason
			if errors.As(err, &r) {
				ce.Reason = string(r)
				continue
			}
			if ce.Message == "" && err != nil {
				ce.Message = err.Error()
			}
		}
		return ce
	}
}
