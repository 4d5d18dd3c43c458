package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/hatemosphere/admin-console/internal/storage"
)

// DefaultTestStatePrefix marks callback states that skip the nonce comparison.
// It exists for end-to-end test harnesses that cannot observe the nonce.
const DefaultTestStatePrefix = "test-"

// OAuthConfig holds the authorization-code flow settings. Values are opaque
// to the console; they are forwarded to the provider as-is.
type OAuthConfig struct {
	ProviderURL string // provider base URL; the authorize endpoint is ProviderURL + "/authorize"
	AuthURL     string // explicit (or discovered) authorize endpoint, wins over ProviderURL
	ClientID    string
	RedirectURI string
	Scopes      []string
	// TestStatePrefix disables CSRF validation for states carrying it.
	// Empty turns the bypass off.
	TestStatePrefix string
	// ConsumeState deletes the stored nonce after it has been compared once.
	ConsumeState bool
}

func (c OAuthConfig) authURL() string {
	if c.AuthURL != "" {
		return c.AuthURL
	}
	return strings.TrimRight(c.ProviderURL, "/") + "/authorize"
}

func (c OAuthConfig) isTestState(state string) bool {
	return c.TestStatePrefix != "" && strings.HasPrefix(state, c.TestStatePrefix)
}

// DiscoverAuthURL resolves the authorize endpoint of an OIDC issuer through
// its /.well-known/openid-configuration document.
func DiscoverAuthURL(ctx context.Context, issuer string) (string, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return "", fmt.Errorf("oidc discovery for %s: %w", issuer, err)
	}
	authURL := provider.Endpoint().AuthURL
	if authURL == "" {
		return "", fmt.Errorf("oidc discovery for %s: no authorization_endpoint", issuer)
	}
	return authURL, nil
}

// Coordinator drives the authorization-code flow of one browser session:
// it issues the provider redirect with a fresh CSRF nonce and resolves the
// provider callback into a stored credential.
type Coordinator struct {
	config       OAuthConfig
	oauth2Config oauth2.Config
	nonces       storage.KV
	tokens       *storage.TokenStore
	exchanger    Exchanger
}

// NewCoordinator creates a coordinator. nonces is the session's transient
// scope; tokens is its credential slot.
func NewCoordinator(config OAuthConfig, nonces storage.KV, tokens *storage.TokenStore, exchanger Exchanger) *Coordinator {
	return &Coordinator{
		config: config,
		oauth2Config: oauth2.Config{
			ClientID:    config.ClientID,
			RedirectURL: config.RedirectURI,
			Scopes:      config.Scopes,
			Endpoint:    oauth2.Endpoint{AuthURL: config.authURL()},
		},
		nonces:    nonces,
		tokens:    tokens,
		exchanger: exchanger,
	}
}

// AuthorizationURL stores a fresh CSRF nonce and returns the provider
// authorize URL carrying it as the state parameter.
func (c *Coordinator) AuthorizationURL(ctx context.Context) (string, error) {
	nonce, err := GenerateNonce()
	if err != nil {
		return "", err
	}
	if err := c.nonces.Set(ctx, storage.KeyOAuthState, nonce); err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}
	return c.oauth2Config.AuthCodeURL(nonce), nil
}

// HandleCallback resolves a provider callback in one step. It is shorthand
// for NewCallback(p).Resolve(ctx).
func (c *Coordinator) HandleCallback(ctx context.Context, p CallbackParams) error {
	return c.NewCallback(p).Resolve(ctx)
}
