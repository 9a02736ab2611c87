package secretstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	s, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.GetString("token")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetString("token", ""))
	v, ok, err := s.GetString("token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, v)

	type profile struct {
		Username string `json:"username"`
	}
	require.NoError(t, s.SetJSON("profile", profile{Username: "demo"}))
	var p profile
	ok, err = s.GetJSON("profile", &p)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "demo", p.Username)

	require.NoError(t, s.Delete("token", "profile", "missing"))
	_, ok, _ = s.GetString("token")
	assert.False(t, ok)
	ok, _ = s.GetJSON("profile", &p)
	assert.False(t, ok)
}

func TestStoreErrors(t *testing.T) {
	_, err := Open(OpenOptions{})
	assert.Error(t, err)

	s, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	assert.Error(t, s.SetString("  ", "x"))
	require.NoError(t, s.Close())
	_, _, err = s.GetString("token")
	assert.ErrorIs(t, err, ErrNotOpened)
}

func TestStoreEncryptedOnDisk(t *testing.T) {
	key, err := ParseKey(strings.Repeat("ab", 32))
	require.NoError(t, err)
	dir := t.TempDir()

	s, err := Open(OpenOptions{Path: dir, EncryptionKey: key})
	require.NoError(t, err)
	require.NoError(t, s.SetString("token", "secret"))
	require.NoError(t, s.Close())

	s, err = Open(OpenOptions{Path: dir, EncryptionKey: key})
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.GetString("token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "secret", v)
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("")
	assert.NoError(t, err)
	assert.Nil(t, k)

	k, err = ParseKey("0x" + strings.Repeat("01", 32))
	require.NoError(t, err)
	assert.Len(t, k, 32)

	_, err = ParseKey("abcd")
	assert.Error(t, err)

	_, err = ParseKey("not a key!")
	assert.Error(t, err)
}
