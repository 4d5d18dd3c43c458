package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all server configuration.
type Config struct {
	Addr       string // listen address, e.g. ":8080"
	DBPath     string // path to SQLite database file holding credentials
	ConfigPath string // optional YAML file with the oauth/claims blocks

	// OAuth authorization-code flow. Values are forwarded to the provider as-is.
	ProviderURL     string // provider base URL; authorize endpoint is <url>/authorize
	Issuer          string // OIDC issuer; when set the authorize endpoint is discovered
	ClientID        string
	RedirectURI     string
	Scope           string // space-separated scopes
	BackendURL      string // console backend base URL serving POST /auth/callback
	TestStatePrefix string // callback states with this prefix skip CSRF checks (default empty = off)
	ConsumeState    bool   // delete the CSRF nonce after one comparison

	// Credential claims.
	RoleClaim   string
	TenantClaim string

	// Sessions.
	SessionIdleTTL   time.Duration // idle lifetime of session-scoped state and stored credentials
	SessionCacheSize int           // max in-memory sessions (0 = unbounded)
	NonceTTL         time.Duration // lifetime of a pending CSRF nonce
	CookieName       string
	SecureCookies    bool
	PurgeInterval    time.Duration // how often idle credentials are purged (0 = never)

	// Logging.
	LogFormat string // "json" (default) or "text"
	AuditLogs bool   // enable audit logging (default true)

	// Tracing.
	OTelServiceName string // enables OTLP tracing when set
}

// FileConfig is the YAML layout accepted by --config.
type FileConfig struct {
	OAuth struct {
		ProviderURL     string  `yaml:"providerUrl"`
		Issuer          string  `yaml:"issuer"`
		ClientID        string  `yaml:"clientId"`
		RedirectURI     string  `yaml:"redirectUri"`
		Scope           string  `yaml:"scope"`
		BackendURL      string  `yaml:"backendUrl"`
		TestStatePrefix *string `yaml:"testStatePrefix"`
		ConsumeState    *bool   `yaml:"consumeState"`
	} `yaml:"oauth"`
	Claims struct {
		Role   string `yaml:"role"`
		Tenant string `yaml:"tenant"`
	} `yaml:"claims"`
}

// LoadFile reads and parses a YAML configuration file.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &fc, nil
}

// Parse reads configuration from the command line, the optional YAML file
// and ADMIN_CONSOLE_* environment variables. Configuration errors are fatal.
func Parse() *Config {
	c, err := ParseArgs(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	return c
}

// ParseArgs is Parse over explicit arguments and environment. Precedence,
// lowest first: flag defaults, YAML file, explicitly set flags, environment.
func ParseArgs(args []string, getenv func(string) string) (*Config, error) {
	c := &Config{}
	fs := flag.NewFlagSet("admin-console", flag.ContinueOnError)
	fs.StringVar(&c.Addr, "addr", ":8080", "listen address")
	fs.StringVar(&c.DBPath, "db", "admin-console.db", "SQLite database path")
	fs.StringVar(&c.ConfigPath, "config", "", "path to YAML config file (optional)")

	// OAuth flags.
	fs.StringVar(&c.ProviderURL, "oauth-provider-url", "", "OAuth provider base URL")
	fs.StringVar(&c.Issuer, "oauth-issuer", "", "OIDC issuer for authorize endpoint discovery (optional)")
	fs.StringVar(&c.ClientID, "oauth-client-id", "", "OAuth client ID")
	fs.StringVar(&c.RedirectURI, "oauth-redirect-uri", "", "OAuth redirect URI (the console's /callback)")
	fs.StringVar(&c.Scope, "oauth-scope", "openid profile email", "space-separated OAuth scopes")
	fs.StringVar(&c.BackendURL, "backend-url", "", "console backend base URL for the code exchange")
	fs.StringVar(&c.TestStatePrefix, "test-state-prefix", "", "callback state prefix that skips CSRF validation, for e2e harnesses only (empty = disabled)")
	fs.BoolVar(&c.ConsumeState, "consume-state", false, "delete the CSRF nonce after one validation attempt")

	// Claim flags.
	fs.StringVar(&c.RoleClaim, "role-claim", "role", "credential claim holding the console role")
	fs.StringVar(&c.TenantClaim, "tenant-claim", "tenant_id", "credential claim holding the tenant binding")

	// Session flags.
	fs.DurationVar(&c.SessionIdleTTL, "session-idle-ttl", 12*time.Hour, "idle lifetime of a browser session")
	fs.IntVar(&c.SessionCacheSize, "session-cache-size", 10000, "max in-memory sessions (0 = unbounded)")
	fs.DurationVar(&c.NonceTTL, "nonce-ttl", 5*time.Minute, "lifetime of a pending login nonce")
	fs.StringVar(&c.CookieName, "cookie-name", "console_session", "session cookie name")
	fs.BoolVar(&c.SecureCookies, "secure-cookies", false, "always mark the session cookie Secure")
	fs.DurationVar(&c.PurgeInterval, "purge-interval", time.Hour, "idle credential purge interval (0 = disabled)")

	// Logging flags.
	fs.StringVar(&c.LogFormat, "log-format", "json", "log format: json or text")
	fs.BoolVar(&c.AuditLogs, "audit-logs", true, "enable structured audit logging")

	// Tracing flags.
	fs.StringVar(&c.OTelServiceName, "otel-service-name", "", "OpenTelemetry service name; enables OTLP tracing (endpoint via OTEL_EXPORTER_OTLP_ENDPOINT)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	configPath := c.ConfigPath
	if v := getenv("ADMIN_CONSOLE_CONFIG"); v != "" {
		configPath = v
	}
	if configPath != "" {
		fc, err := LoadFile(configPath)
		if err != nil {
			return nil, err
		}
		c.applyFile(fc, set)
	}

	// Allow env overrides.
	if v := getenv("ADMIN_CONSOLE_ADDR"); v != "" {
		c.Addr = v
	}
	if v := getenv("ADMIN_CONSOLE_DB"); v != "" {
		c.DBPath = v
	}
	if v := getenv("ADMIN_CONSOLE_OAUTH_PROVIDER_URL"); v != "" {
		c.ProviderURL = v
	}
	if v := getenv("ADMIN_CONSOLE_OAUTH_ISSUER"); v != "" {
		c.Issuer = v
	}
	if v := getenv("ADMIN_CONSOLE_OAUTH_CLIENT_ID"); v != "" {
		c.ClientID = v
	}
	if v := getenv("ADMIN_CONSOLE_OAUTH_REDIRECT_URI"); v != "" {
		c.RedirectURI = v
	}
	if v := getenv("ADMIN_CONSOLE_OAUTH_SCOPE"); v != "" {
		c.Scope = v
	}
	if v := getenv("ADMIN_CONSOLE_BACKEND_URL"); v != "" {
		c.BackendURL = v
	}
	if v := getenv("ADMIN_CONSOLE_TEST_STATE_PREFIX"); v != "" {
		c.TestStatePrefix = v
	}
	if v := getenv("ADMIN_CONSOLE_CONSUME_STATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.ConsumeState = b
		}
	}
	if v := getenv("ADMIN_CONSOLE_ROLE_CLAIM"); v != "" {
		c.RoleClaim = v
	}
	if v := getenv("ADMIN_CONSOLE_TENANT_CLAIM"); v != "" {
		c.TenantClaim = v
	}
	if v := getenv("ADMIN_CONSOLE_SESSION_IDLE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SessionIdleTTL = d
		}
	}
	if v := getenv("ADMIN_CONSOLE_SESSION_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SessionCacheSize = n
		}
	}
	if v := getenv("ADMIN_CONSOLE_NONCE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.NonceTTL = d
		}
	}
	if v := getenv("ADMIN_CONSOLE_COOKIE_NAME"); v != "" {
		c.CookieName = v
	}
	if v := getenv("ADMIN_CONSOLE_SECURE_COOKIES"); v == "true" {
		c.SecureCookies = true
	}
	if v := getenv("ADMIN_CONSOLE_PURGE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PurgeInterval = d
		}
	}
	if v := getenv("ADMIN_CONSOLE_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := getenv("ADMIN_CONSOLE_AUDIT_LOGS"); v == "false" {
		c.AuditLogs = false
	}
	if v := getenv("ADMIN_CONSOLE_OTEL_SERVICE_NAME"); v != "" {
		c.OTelServiceName = v
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// applyFile copies YAML values into fields whose flag was not set explicitly.
func (c *Config) applyFile(fc *FileConfig, set map[string]bool) {
	str := func(flagName string, dst *string, v string) {
		if v != "" && !set[flagName] {
			*dst = v
		}
	}
	str("oauth-provider-url", &c.ProviderURL, fc.OAuth.ProviderURL)
	str("oauth-issuer", &c.Issuer, fc.OAuth.Issuer)
	str("oauth-client-id", &c.ClientID, fc.OAuth.ClientID)
	str("oauth-redirect-uri", &c.RedirectURI, fc.OAuth.RedirectURI)
	str("oauth-scope", &c.Scope, fc.OAuth.Scope)
	str("backend-url", &c.BackendURL, fc.OAuth.BackendURL)
	str("role-claim", &c.RoleClaim, fc.Claims.Role)
	str("tenant-claim", &c.TenantClaim, fc.Claims.Tenant)
	if fc.OAuth.TestStatePrefix != nil && !set["test-state-prefix"] {
		c.TestStatePrefix = *fc.OAuth.TestStatePrefix
	}
	if fc.OAuth.ConsumeState != nil && !set["consume-state"] {
		c.ConsumeState = *fc.OAuth.ConsumeState
	}
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	var errs []error
	if c.ProviderURL == "" && c.Issuer == "" {
		errs = append(errs, errors.New("one of -oauth-provider-url or -oauth-issuer is required"))
	}
	if c.ClientID == "" {
		errs = append(errs, errors.New("-oauth-client-id is required"))
	}
	if c.RedirectURI == "" {
		errs = append(errs, errors.New("-oauth-redirect-uri is required"))
	}
	if c.BackendURL == "" {
		errs = append(errs, errors.New("-backend-url is required"))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("unknown -log-format %q", c.LogFormat))
	}
	if c.SessionIdleTTL <= 0 {
		errs = append(errs, errors.New("-session-idle-ttl must be positive"))
	}
	if c.NonceTTL <= 0 {
		errs = append(errs, errors.New("-nonce-ttl must be positive"))
	}
	return errors.Join(errs...)
}

// Scopes splits Scope into its space-separated entries.
func (c *Config) Scopes() []string {
	return strings.Fields(c.Scope)
}
