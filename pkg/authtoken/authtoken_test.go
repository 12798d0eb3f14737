package authtoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"adbarter/pkg/config"
)

func newVerifier(secret string) *Verifier {
	cfg := &config.Config{}
	cfg.Auth.TokenSecret = secret
	return NewVerifier(cfg)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	v := newVerifier("secret")

	token, err := v.Sign("user-1", time.Hour)
	require.NoError(t, err)

	subject, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", subject)
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := newVerifier("secret")

	// Outlive the validator's default leeway.
	token, err := v.Sign("user-1", -time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	token, err := newVerifier("secret-a").Sign("user-1", time.Hour)
	require.NoError(t, err)

	_, err = newVerifier("secret-b").Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := newVerifier("secret").Verify("not.a.token")
	require.Error(t, err)
}
