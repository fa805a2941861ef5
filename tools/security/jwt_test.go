package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerify(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))
	tok, exp, err := Generate(opts, "alice")
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	sub, err := Verify(opts, tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)
}

func TestVerifyWrongSecret(t *testing.T) {
	tok, _, err := Generate(DefaultOptions([]byte("a")), "alice")
	require.NoError(t, err)
	_, err = Verify(DefaultOptions([]byte("b")), tok)
	assert.Error(t, err)
}

func TestVerifyExpired(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))
	opts.TTL = time.Millisecond
	tok, _, err := Generate(opts, "alice")
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	_, err = Verify(opts, tok)
	assert.Error(t, err)
}

func TestUnsupportedAlg(t *testing.T) {
	_, _, err := Generate(Options{Secret: []byte("x"), Alg: "RS256"}, "alice")
	assert.Error(t, err)
}

func TestIssuerMismatch(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))
	opts.Issuer = "chatcore"
	tok, _, err := Generate(opts, "alice")
	require.NoError(t, err)
	opts.Issuer = "other"
	_, err = Verify(opts, tok)
	assert.Error(t, err)
}
