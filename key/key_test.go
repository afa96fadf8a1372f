package key

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	k, err := Generate()
	require.NoError(t, err)

	msg := []byte("producer elected")
	sig, err := k.Sign(msg)
	require.NoError(t, err)

	assert.True(t, k.Verify(msg, k.Public(), sig))
	assert.False(t, k.Verify([]byte("tampered"), k.Public(), sig))
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)

	msg := []byte("hello")
	sig, err := a.Sign(msg)
	require.NoError(t, err)

	assert.False(t, b.Verify(msg, b.Public(), sig))
	assert.True(t, a.Verify(msg, a.Public(), sig))
}

func TestSharedSecretIsSymmetric(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)

	sa, err := a.SharedSecret(b.Public())
	require.NoError(t, err)
	sb, err := b.SharedSecret(a.Public())
	require.NoError(t, err)

	assert.Equal(t, sa, sb)
}

func TestLoadOrCreatePersists(t *testing.T) {
	dir, err := ioutil.TempDir("", "mccloud-key")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "node.key")

	first, err := LoadOrCreate(path)
	require.NoError(t, err)

	second, err := LoadOrCreate(path)
	require.NoError(t, err)

	assert.True(t, first.Equal(second))
	assert.Equal(t, first.Public(), second.Public())
}
