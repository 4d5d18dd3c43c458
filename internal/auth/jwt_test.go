package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signToken mints an HS256 credential. The codec never checks the
// signature, so the key is arbitrary.
func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("unused-signing-key"))
	require.NoError(t, err)
	return s
}

func TestCodec_Decode(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := signToken(t, jwt.MapClaims{
		"sub":       "u-1",
		"role":      "tenant_admin",
		"tenant_id": "t-9",
		"email":     "a@example.com",
		"name":      "Alice",
		"exp":       exp.Unix(),
	})

	claims, ok := NewCodec(CodecConfig{}).Decode(tok)
	require.True(t, ok)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, RoleTenantAdmin, claims.Role)
	assert.Equal(t, "tenant_admin", claims.RawRole)
	assert.Equal(t, "t-9", claims.TenantID)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.Equal(t, "Alice", claims.Name)
	assert.True(t, exp.Equal(claims.ExpiresAt))
}

func TestCodec_CustomClaimNames(t *testing.T) {
	tok := signToken(t, jwt.MapClaims{
		"sub":          "u-2",
		"console_role": "uber_admin",
		"org":          "ignored-for-uber",
		"role":         "tenant_admin",
		"exp":          time.Now().Add(time.Hour).Unix(),
	})

	claims, ok := NewCodec(CodecConfig{RoleClaim: "console_role", TenantClaim: "org"}).Decode(tok)
	require.True(t, ok)
	assert.Equal(t, RoleUberAdmin, claims.Role)
	assert.Equal(t, "ignored-for-uber", claims.TenantID)
}

func TestCodec_UnknownRole(t *testing.T) {
	tok := signToken(t, jwt.MapClaims{"sub": "u-3", "role": "superuser"})

	claims, ok := NewCodec(CodecConfig{}).Decode(tok)
	require.True(t, ok)
	assert.Equal(t, RoleNone, claims.Role)
	assert.Equal(t, "superuser", claims.RawRole)
	assert.True(t, claims.ExpiresAt.IsZero())
}

func TestCodec_DecodeRejectsMalformed(t *testing.T) {
	codec := NewCodec(CodecConfig{})
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"two segments", "abc.def"},
		{"bad base64 payload", "eyJhbGciOiJIUzI1NiJ9.%%%.sig"},
		{"no subject", signToken(t, jwt.MapClaims{"role": "uber_admin"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, ok := codec.Decode(tt.token)
			assert.False(t, ok)
			assert.Nil(t, claims)
		})
	}
}

func TestCodec_IsExpired(t *testing.T) {
	codec := NewCodec(CodecConfig{})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		token   string
		expired bool
	}{
		{"future exp", signToken(t, jwt.MapClaims{"sub": "u", "exp": now.Add(time.Minute).Unix()}), false},
		{"past exp", signToken(t, jwt.MapClaims{"sub": "u", "exp": now.Add(-time.Minute).Unix()}), true},
		{"exp equals now", signToken(t, jwt.MapClaims{"sub": "u", "exp": now.Unix()}), true},
		{"missing exp", signToken(t, jwt.MapClaims{"sub": "u"}), true},
		{"exp not a number", signToken(t, jwt.MapClaims{"sub": "u", "exp": "tomorrow"}), true},
		{"malformed", "garbage", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expired, codec.IsExpired(tt.token, now))
		})
	}
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole("uber_admin")
	assert.True(t, ok)
	assert.Equal(t, RoleUberAdmin, r)

	r, ok = ParseRole("tenant_admin")
	assert.True(t, ok)
	assert.Equal(t, RoleTenantAdmin, r)

	for _, s := range []string{"", "UBER_ADMIN", "admin", "none"} {
		r, ok = ParseRole(s)
		assert.False(t, ok, s)
		assert.Equal(t, RoleNone, r, s)
	}

	assert.Equal(t, "uber_admin", RoleUberAdmin.String())
	assert.Equal(t, "tenant_admin", RoleTenantAdmin.String())
	assert.Equal(t, "none", Role(42).String())
}
