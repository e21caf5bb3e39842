package auth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"meta-pixel-relay/internal/auth"
)

func TestHMACVerify(t *testing.T) {
	secret := "super-secret"
	body := []byte(`{"visitor":{"session_id":"abc"}}`)

	sig := auth.ComputeSignature(secret, body)
	require.True(t, auth.VerifySignature(secret, body, sig))
	require.False(t, auth.VerifySignature(secret, body, "deadbeef"))
	require.False(t, auth.VerifySignature("wrong-secret", body, sig))
	require.False(t, auth.VerifySignature(secret, []byte("tampered"), sig))
}

func TestVerifySignatureRejectsNonHex(t *testing.T) {
	require.False(t, auth.VerifySignature("s", []byte("body"), "not-hex!"))
}
