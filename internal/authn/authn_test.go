package authn

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify_NilVerifierAlwaysSucceeds(t *testing.T) {
	var v *Verifier
	assert.NoError(t, v.Verify("anything", "agent-1"))
}

func TestVerify_EmptyTokenSucceeds(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewVerifier(&key.PublicKey)
	assert.NoError(t, v.Verify("   ", "agent-1"))
}

func TestVerify_ValidTokenMatchingSubject(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "agent-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	v := NewVerifier(&key.PublicKey)
	assert.NoError(t, v.Verify(signed, "agent-1"))
}

func TestVerify_SubjectMismatchFails(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "agent-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	v := NewVerifier(&key.PublicKey)
	assert.Error(t, v.Verify(signed, "agent-2"))
}

func TestVerify_WrongSigningKeyFails(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "agent-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	v := NewVerifier(&otherKey.PublicKey)
	assert.Error(t, v.Verify(signed, "agent-1"))
}

func TestAgentID_PrefersXAgentID(t *testing.T) {
	headers := map[string]string{"X-Agent-Id": "agent-7", "x-clawshield-agent-id": "agent-8"}
	assert.Equal(t, "agent-7", AgentID(headers))
}

func TestAgentID_FallsBackToClawshieldHeader(t *testing.T) {
	headers := map[string]string{"X-Clawshield-Agent-Id": "agent-9"}
	assert.Equal(t, "agent-9", AgentID(headers))
}

func TestAgentID_AbsentReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", AgentID(map[string]string{"Content-Type": "application/json"}))
}
