package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failure kinds. All of them mean "authentication failed" to a
// client; the distinction exists for logging and for the expiry-specific
// error message.
var (
	ErrMalformed    = errors.New("token is malformed")
	ErrBadSignature = errors.New("token signature is invalid")
	ErrExpired      = errors.New("token is expired")
	ErrMissingClaim = errors.New("token is missing the user_id claim")
)

// Claims is the verified content of a token. Ephemeral: produced by Verify,
// never persisted.
type Claims struct {
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// tokenClaims is the JWT payload. The subject travels as "user_id" rather
// than "sub" for compatibility with tokens already in circulation.
type tokenClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 bearer tokens against a shared secret. Stateless;
// safe for concurrent use.
type Verifier struct {
	secret []byte
	ttl    time.Duration
}

// NewVerifier creates a verifier with the signing secret and the TTL applied
// to tokens it issues.
func NewVerifier(secret string, ttl time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), ttl: ttl}
}

// Verify checks structure, signature, expiry and the subject claim, in that
// order, and returns the claim set on success.
func (v *Verifier) Verify(token string) (*Claims, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, fmt.Errorf("parsing token: %w", err)
		}
	}

	if claims.UserID == "" {
		return nil, ErrMissingClaim
	}

	result := &Claims{UserID: claims.UserID}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	return result, nil
}

// Issue signs a token for the given user, valid for the configured TTL.
// Used by the token CLI and tests; the server itself only verifies.
func (v *Verifier) Issue(userID string) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
