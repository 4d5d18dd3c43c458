package auth

import "errors"

var (
	// ErrMissingCode is returned when the callback carries no authorization code.
	ErrMissingCode = errors.New("no authorization code received")
	// ErrInvalidState is returned when the callback state does not match the
	// stored CSRF nonce. The code exchange is never attempted in that case.
	ErrInvalidState = errors.New("invalid state parameter")
	// ErrNoToken is returned when the backend answers without a token.
	ErrNoToken = errors.New("no token in exchange response")
)

// ProviderError is an error reported by the OAuth provider on the callback.
type ProviderError struct {
	Param       string // value of the "error" query parameter
	Description string // optional "error_description"
}

func (e *ProviderError) Error() string {
	msg := "Authentication failed: " + e.Param
	if e.Description != "" {
		msg += " - " + e.Description
	}
	return msg
}

// ExchangeError wraps any failure of the backend code exchange.
type ExchangeError struct {
	Err error
}

func (e *ExchangeError) Error() string {
	if e.Err == nil {
		return "failed to obtain access token"
	}
	return "failed to obtain access token: " + e.Err.Error()
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}
