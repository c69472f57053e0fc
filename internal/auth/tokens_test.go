package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerify(t *testing.T) {
	tokens := NewTokens("s3cret")
	tok, err := tokens.Issue("reader-1", time.Hour)
	require.NoError(t, err)

	c, err := tokens.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "reader-1", c.Subject)
	assert.WithinDuration(t, time.Now().Add(time.Hour), c.ExpiresAt, 2*time.Second)
}

func TestVerify_Rejects(t *testing.T) {
	tokens := NewTokens("s3cret")

	other, err := NewTokens("different").Issue("x", time.Hour)
	require.NoError(t, err)
	_, err = tokens.Verify(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	past := NewTokens("s3cret")
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := past.Issue("x", time.Hour)
	require.NoError(t, err)
	_, err = tokens.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// No expiry.
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Issuer: issuer, Subject: "x"}).
		SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = tokens.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Unsigned.
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Issuer: issuer}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tokens.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNilTokens(t *testing.T) {
	tokens := NewTokens("")
	assert.Nil(t, tokens)

	_, err := tokens.Issue("x", time.Hour)
	assert.True(t, errors.Is(err, ErrNoSecret))
	_, err = tokens.Verify("anything")
	assert.True(t, errors.Is(err, ErrNoSecret))

	_, err = NewTokens("k").Issue("", time.Hour)
	assert.Error(t, err)
}
