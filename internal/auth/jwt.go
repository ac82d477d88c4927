package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SecretEnv names the environment variable holding the signing secret.
const SecretEnv = "PWDR_JWT_SECRET"

// DefaultTokenTTL is the session length when auth.token_ttl is unset
const DefaultTokenTTL = 8 * time.Hour

const (
	tokenIssuer = "pwd-registry"
	clockSkew   = 30 * time.Second
)

var (
	// ErrTokenExpired is returned for a well-formed token past its expiry
	ErrTokenExpired = errors.New("session token expired")
	// ErrTokenInvalid is returned for a token that is malformed, mis-signed or foreign
	ErrTokenInvalid = errors.New("invalid session token")
)

var (
	// jwtSecret holds the validated JWT secret
	jwtSecret     string
	jwtSecretOnce sync.Once
	jwtSecretErr  error
)

// Claims are the session token claims. Role is informational; scopes are
// derived from the account's current role on every request.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// isDevMode checks if we're in development mode (duplicated here to avoid import cycle)
func isDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	ginMode := os.Getenv("GIN_MODE")
	return devMode == "true" || devMode == "1" || ginMode == "debug"
}

func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// ValidateJWTSecret checks that the signing secret is configured. Outside dev
// mode a missing PWDR_JWT_SECRET is an error; in dev mode a random secret is
// generated. Call this at application startup.
func ValidateJWTSecret() error {
	jwtSecretOnce.Do(func() {
		secret := os.Getenv(SecretEnv)

		if secret == "" {
			if isDevMode() {
				jwtSecret = generateRandomSecret()
				slog.Warn(SecretEnv + " not set; using an auto-generated secret, sessions will not survive a restart")
			} else {
				jwtSecretErr = errors.New(SecretEnv + " environment variable is required in production. " +
					"Generate a secure secret with: openssl rand -hex 32")
			}
			return
		}

		if len(secret) < 32 {
			slog.Warn(SecretEnv + " is shorter than the recommended 32 characters")
		}
		jwtSecret = secret
	})

	return jwtSecretErr
}

// GetJWTSecret retrieves the validated JWT secret.
// Panics if the secret cannot be validated.
func GetJWTSecret() string {
	if jwtSecret == "" {
		if err := ValidateJWTSecret(); err != nil {
			panic(err)
		}
	}
	return jwtSecret
}

// GenerateJWT signs a session token naming the account and its role. A zero
// expiresIn uses DefaultTokenTTL.
func GenerateJWT(userID, role string, expiresIn time.Duration) (string, error) {
	if expiresIn == 0 {
		expiresIn = DefaultTokenTTL
	}

	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   userID,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(GetJWTSecret()))
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// ValidateJWT parses a session token. Expired tokens return ErrTokenExpired;
// every other failure returns ErrTokenInvalid.
func ValidateJWT(tokenString string) (*Claims, error) {
	secret := []byte(GetJWTSecret())
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithLeeway(clockSkew),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	// tokens minted before Subject was set carry only user_id
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: no account in token", ErrTokenInvalid)
	}
	return claims, nil
}
