package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuerRequiresSecret(t *testing.T) {
	_, err := NewTokenIssuer("")
	assert.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret")
	require.NoError(t, err)

	token, err := issuer.Issue(42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), userID)
}

func TestTokenRejectedAcrossSecrets(t *testing.T) {
	issuerA, err := NewTokenIssuer("secret-a")
	require.NoError(t, err)
	issuerB, err := NewTokenIssuer("secret-b")
	require.NoError(t, err)

	token, err := issuerA.Issue(7)
	require.NoError(t, err)

	_, err = issuerB.Verify(token)
	assert.Error(t, err)
}

func TestGarbageTokenRejected(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret")
	require.NoError(t, err)

	_, err = issuer.Verify("not.a.token")
	assert.Error(t, err)
}
