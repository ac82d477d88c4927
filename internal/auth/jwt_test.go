package auth

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret-that-is-32-chars-!"

// resetJWTSecret resets the package-level sync.Once so tests can set a fresh secret.
func resetJWTSecret() {
	jwtSecret = ""
	jwtSecretOnce = sync.Once{}
	jwtSecretErr = nil
}

func TestMain(m *testing.M) {
	os.Setenv(SecretEnv, testSecret)
	os.Exit(m.Run())
}

func TestValidateJWTSecret(t *testing.T) {
	t.Run("valid secret from env", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv(SecretEnv, "exactly-32-char-secret-for-test!!")
		if err := ValidateJWTSecret(); err != nil {
			t.Errorf("ValidateJWTSecret() unexpected error: %v", err)
		}
	})

	t.Run("production mode requires secret", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv(SecretEnv, "")
		t.Setenv("DEV_MODE", "")
		t.Setenv("GIN_MODE", "release")
		if err := ValidateJWTSecret(); err == nil {
			t.Error("ValidateJWTSecret() expected error in production mode without secret, got nil")
		}
	})

	t.Run("dev mode generates random secret", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv(SecretEnv, "")
		t.Setenv("DEV_MODE", "true")
		if err := ValidateJWTSecret(); err != nil {
			t.Errorf("ValidateJWTSecret() unexpected error in dev mode: %v", err)
		}
		if GetJWTSecret() == "" {
			t.Error("GetJWTSecret() returned empty string after dev mode init")
		}
	})
}

// ---------------------------------------------------------------------------
// GenerateJWT / ValidateJWT
// ---------------------------------------------------------------------------

func signWith(t *testing.T, claims *Claims, method jwt.SigningMethod, key any) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestGenerateJWT_RoundTrip(t *testing.T) {
	resetJWTSecret()
	t.Setenv(SecretEnv, testSecret)

	token, err := GenerateJWT("user-123", "STAFF", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "STAFF", claims.Role)
	assert.Equal(t, "pwd-registry", claims.Issuer)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestGenerateJWT_DefaultTTL(t *testing.T) {
	resetJWTSecret()
	t.Setenv(SecretEnv, testSecret)

	token, err := GenerateJWT("uid", "USER", 0)
	require.NoError(t, err)
	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultTokenTTL), claims.ExpiresAt.Time, 5*time.Second)
}

func TestValidateJWT_Expired(t *testing.T) {
	resetJWTSecret()
	t.Setenv(SecretEnv, testSecret)

	token, err := GenerateJWT("uid", "USER", -time.Hour)
	require.NoError(t, err)

	_, err = ValidateJWT(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateJWT_WithinClockSkew(t *testing.T) {
	resetJWTSecret()
	t.Setenv(SecretEnv, testSecret)

	token, err := GenerateJWT("uid", "USER", -5*time.Second)
	require.NoError(t, err)

	_, err = ValidateJWT(token)
	assert.NoError(t, err)
}

func TestValidateJWT_Garbage(t *testing.T) {
	resetJWTSecret()
	t.Setenv(SecretEnv, testSecret)

	for _, tok := range []string{"", "not.a.valid.token", "abc"} {
		_, err := ValidateJWT(tok)
		assert.ErrorIs(t, err, ErrTokenInvalid, "token %q", tok)
	}
}

func TestValidateJWT_WrongSecret(t *testing.T) {
	resetJWTSecret()
	t.Setenv(SecretEnv, testSecret)
	token, err := GenerateJWT("uid", "USER", time.Hour)
	require.NoError(t, err)

	resetJWTSecret()
	t.Setenv(SecretEnv, "completely-different-secret-32ch!")
	_, err = ValidateJWT(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateJWT_RejectsForeignTokens(t *testing.T) {
	resetJWTSecret()
	t.Setenv(SecretEnv, testSecret)
	now := time.Now()

	base := func(issuer, sub string) *Claims {
		return &Claims{Role: "ADMIN", RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}}
	}

	tests := []struct {
		name  string
		token string
	}{
		{"other issuer", signWith(t, base("someone-else", "u-1"), jwt.SigningMethodHS256, []byte(testSecret))},
		{"HS512", signWith(t, base("pwd-registry", "u-1"), jwt.SigningMethodHS512, []byte(testSecret))},
		{"no account", signWith(t, base("pwd-registry", ""), jwt.SigningMethodHS256, []byte(testSecret))},
		{"alg none", signWith(t, base("pwd-registry", "u-1"), jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateJWT(tt.token)
			assert.ErrorIs(t, err, ErrTokenInvalid)
		})
	}
}

func TestValidateJWT_SubjectOnlyToken(t *testing.T) {
	resetJWTSecret()
	t.Setenv(SecretEnv, testSecret)
	now := time.Now()

	token := signWith(t, &Claims{Role: "STAFF", RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "pwd-registry",
		Subject:   "u-7",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}}, jwt.SigningMethodHS256, []byte(testSecret))

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "u-7", claims.UserID)
}
