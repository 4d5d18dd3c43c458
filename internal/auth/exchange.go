package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/singleflight"
)

// Exchanger trades an authorization code for a console credential.
type Exchanger interface {
	Exchange(ctx context.Context, code, state string) (token string, err error)
}

// maxExchangeBody caps how much of a backend response is read.
const maxExchangeBody = 1 << 20

// HTTPExchanger calls the console backend's POST /auth/callback endpoint.
// Concurrent submissions of the same code and state share one request.
type HTTPExchanger struct {
	endpoint string
	client   *http.Client
	sf       singleflight.Group
}

// NewHTTPExchanger creates an exchanger for the backend at baseURL. A nil
// client means http.DefaultClient, which has no timeout.
func NewHTTPExchanger(baseURL string, client *http.Client) *HTTPExchanger {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPExchanger{
		endpoint: strings.TrimRight(baseURL, "/") + "/auth/callback",
		client:   client,
	}
}

// Exchange posts {code, state} and returns the token from the response. Once
// issued the request is not cancelled with ctx and it is never retried.
func (e *HTTPExchanger) Exchange(ctx context.Context, code, state string) (string, error) {
	key := code + "\x00" + state
	v, err, shared := e.sf.Do(key, func() (any, error) {
		return e.post(context.WithoutCancel(ctx), code, state)
	})
	if shared {
		slog.Debug("code exchange shared with a concurrent callback")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (e *HTTPExchanger) post(ctx context.Context, code, state string) (string, error) {
	body, err := json.Marshal(map[string]string{"code": code, "state": state})
	if err != nil {
		return "", fmt.Errorf("encode exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("exchange request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxExchangeBody))
	if err != nil {
		return "", fmt.Errorf("read exchange response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("backend returned %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}

	var tokenResp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(respBody, &tokenResp); err != nil {
		return "", fmt.Errorf("parse exchange response: %w", err)
	}
	if tokenResp.Token == "" {
		return "", ErrNoToken
	}
	return tokenResp.Token, nil
}
