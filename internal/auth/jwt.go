package auth

import (
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CodecConfig names the claims the console reads from a credential.
type CodecConfig struct {
	RoleClaim   string // claim holding the console role (default: "role")
	TenantClaim string // claim holding the tenant binding (default: "tenant_id")
}

// Claims are the decoded, unverified fields of a credential.
type Claims struct {
	Subject   string
	Role      Role
	RawRole   string
	TenantID  string
	Email     string
	Name      string
	ExpiresAt time.Time // zero when the exp claim is absent or malformed
}

// Codec decodes credential claims without checking the signature. The
// backend that issued the credential is the trust boundary; the console only
// needs the claims to render and to decide when to drop a credential.
type Codec struct {
	config CodecConfig
	parser *jwt.Parser
}

// NewCodec creates a codec, filling claim-name defaults.
func NewCodec(config CodecConfig) *Codec {
	if config.RoleClaim == "" {
		config.RoleClaim = "role"
	}
	if config.TenantClaim == "" {
		config.TenantClaim = "tenant_id"
	}
	return &Codec{
		config: config,
		parser: jwt.NewParser(jwt.WithoutClaimsValidation()),
	}
}

// Decode returns the claims of token. ok is false for any input that does not
// parse or lacks a subject; it never panics or returns an error.
func (c *Codec) Decode(token string) (claims *Claims, ok bool) {
	if token == "" {
		return nil, false
	}
	mc := jwt.MapClaims{}
	if _, _, err := c.parser.ParseUnverified(token, mc); err != nil {
		slog.Debug("credential decode failed", "error", err)
		return nil, false
	}

	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		slog.Debug("credential has no subject")
		return nil, false
	}

	out := &Claims{Subject: sub}
	out.RawRole = stringClaim(mc, c.config.RoleClaim)
	out.Role, _ = ParseRole(out.RawRole)
	out.TenantID = stringClaim(mc, c.config.TenantClaim)
	out.Email = stringClaim(mc, "email")
	out.Name = stringClaim(mc, "name")
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, true
}

// IsExpired reports whether token is unusable at now. A token whose expiry
// cannot be read counts as expired.
func (c *Codec) IsExpired(token string, now time.Time) bool {
	claims, ok := c.Decode(token)
	if !ok || claims.ExpiresAt.IsZero() {
		return true
	}
	return !now.Before(claims.ExpiresAt)
}

// stringClaim returns a string claim value, or "" if missing or not a string.
func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}
