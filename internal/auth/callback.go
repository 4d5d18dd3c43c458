package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hatemosphere/admin-console/internal/audit"
	"github.com/hatemosphere/admin-console/internal/storage"
)

// CallbackParams are the query parameters the provider redirects back with.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CallbackStatus is the state of a callback attempt.
type CallbackStatus int

const (
	CallbackPending CallbackStatus = iota
	CallbackError
	CallbackSuccess
)

func (s CallbackStatus) String() string {
	switch s {
	case CallbackError:
		return "error"
	case CallbackSuccess:
		return "success"
	default:
		return "pending"
	}
}

// Callback is a single-shot callback attempt. It starts pending and moves
// exactly once to error or success; later Resolve calls return the same
// outcome without touching storage or the backend again.
type Callback struct {
	coord  *Coordinator
	params CallbackParams

	once   sync.Once
	mu     sync.Mutex
	status CallbackStatus
	err    error
}

// NewCallback creates a pending callback attempt.
func (c *Coordinator) NewCallback(p CallbackParams) *Callback {
	return &Callback{coord: c, params: p}
}

// Status returns the current state.
func (cb *Callback) Status() CallbackStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.status
}

// Err returns the failure reason once the attempt is in the error state.
func (cb *Callback) Err() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.err
}

// Resolve runs the attempt. The checks run in order: provider error, missing
// code, CSRF state, then a single backend exchange. A nil return means the
// credential has been stored.
func (cb *Callback) Resolve(ctx context.Context) error {
	cb.once.Do(func() {
		err := cb.coord.resolve(ctx, cb.params)
		cb.mu.Lock()
		if err != nil {
			cb.status, cb.err = CallbackError, err
		} else {
			cb.status = CallbackSuccess
		}
		cb.mu.Unlock()
	})
	return cb.Err()
}

func (c *Coordinator) resolve(ctx context.Context, p CallbackParams) error {
	if p.Error != "" {
		err := &ProviderError{Param: p.Error, Description: p.ErrorDescription}
		loginFailed("provider_error", err)
		return err
	}
	if p.Code == "" {
		loginFailed("missing_code", ErrMissingCode)
		return ErrMissingCode
	}
	if !c.config.isTestState(p.State) {
		if err := c.checkState(ctx, p.State); err != nil {
			loginFailed("csrf_state_mismatch", err)
			return err
		}
	}

	token, err := c.exchanger.Exchange(ctx, p.Code, p.State)
	if err != nil {
		xerr := &ExchangeError{Err: err}
		loginFailed("code_exchange_failed", xerr)
		return xerr
	}
	if err := c.tokens.Store(ctx, token); err != nil {
		xerr := &ExchangeError{Err: fmt.Errorf("store token: %w", err)}
		loginFailed("token_store_failed", xerr)
		return xerr
	}

	slog.Debug("credential stored from callback", "fingerprint", TokenFingerprint(token))
	audit.Event{
		Actor:      "anonymous",
		Action:     "login_callback",
		Status:     "granted",
		AuthMethod: "oauth-code",
	}.Info("Audit Log: Login Success")
	return nil
}

// checkState compares the callback state to the stored nonce. Any storage
// failure or an empty state fails closed.
func (c *Coordinator) checkState(ctx context.Context, state string) error {
	stored, ok, err := c.nonces.Get(ctx, storage.KeyOAuthState)
	if err != nil {
		slog.Warn("oauth state lookup failed", "error", err)
		return ErrInvalidState
	}
	if c.config.ConsumeState && ok {
		if err := c.nonces.Delete(ctx, storage.KeyOAuthState); err != nil {
			slog.Warn("oauth state cleanup failed", "error", err)
		}
	}
	if state == "" || !ok || subtle.ConstantTimeCompare([]byte(stored), []byte(state)) != 1 {
		return ErrInvalidState
	}
	return nil
}

func loginFailed(reason string, err error) {
	e := audit.Event{
		Actor:      "anonymous",
		Action:     "login_callback",
		Status:     "failed",
		Reason:     reason,
		AuthMethod: "oauth-code",
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		e.Extra = append(e.Extra, slog.String("provider_error", pe.Param))
	}
	e.Warn("Audit Log: Login Failed")
}
