package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key"

func TestIssueAndVerify(t *testing.T) {
	v := NewVerifier(testSecret, time.Hour)

	token, err := v.Issue("123456789012345678")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678", claims.UserID)
	assert.WithinDuration(t, time.Now(), claims.IssuedAt, 5*time.Second)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 5*time.Second)
}

func TestVerifyFailures(t *testing.T) {
	v := NewVerifier(testSecret, time.Hour)

	t.Run("malformed", func(t *testing.T) {
		_, err := v.Verify("not-a-token")
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := v.Verify("")
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("bad signature", func(t *testing.T) {
		other := NewVerifier("a-different-secret", time.Hour)
		token, err := other.Issue("user-1")
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("expired", func(t *testing.T) {
		stale := NewVerifier(testSecret, -time.Hour)
		token, err := stale.Issue("user-1")
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("missing user_id claim", func(t *testing.T) {
		raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		token, err := raw.SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrMissingClaim)
	})

	t.Run("wrong signing method", func(t *testing.T) {
		raw := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": "user-1"})
		token, err := raw.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.Error(t, err)
	})
}

func TestExpiryCheckedBeforeSubject(t *testing.T) {
	// A token that is both expired and missing its subject reports expiry,
	// so clients get the actionable message.
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	token, err := raw.SignedString([]byte(testSecret))
	require.NoError(t, err)

	v := NewVerifier(testSecret, time.Hour)
	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpired)
}
