package storage

import "context"

// TokenStore is the single bearer-credential slot of a browser session.
// It does no validation; only the session manager and the OAuth callback
// are expected to write it.
type TokenStore struct {
	kv KV
}

// NewTokenStore wraps a durable KV scope.
func NewTokenStore(kv KV) *TokenStore {
	return &TokenStore{kv: kv}
}

// Get returns the stored credential. ok is false when the slot is empty.
func (t *TokenStore) Get(ctx context.Context) (token string, ok bool, err error) {
	token, ok, err = t.kv.Get(ctx, KeyAuthToken)
	if err != nil || token == "" {
		return "", false, err
	}
	return token, ok, nil
}

// Store overwrites the credential.
func (t *TokenStore) Store(ctx context.Context, token string) error {
	return t.kv.Set(ctx, KeyAuthToken, token)
}

// Remove empties the slot. Removing an empty slot is not an error.
func (t *TokenStore) Remove(ctx context.Context) error {
	return t.kv.Delete(ctx, KeyAuthToken)
}
