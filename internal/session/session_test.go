package session

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memestreet/marketsync/pkg/secretstore"
)

func TestSessionLifecycle(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Init(context.Background()))
	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.Identity())

	bal := decimal.NewFromInt(1000)
	require.NoError(t, s.SetCredential(" demo-token ", Profile{Username: "demo", WalletBalance: &bal}))
	assert.Equal(t, "demo-token", s.CurrentCredential())
	first := s.Identity()
	assert.NotEmpty(t, first)

	v, ok := s.CachedWalletBalance()
	assert.True(t, ok)
	assert.True(t, bal.Equal(v))

	require.NoError(t, s.SetCredential("demo-token", Profile{Username: "demo"}))
	assert.NotEqual(t, first, s.Identity())

	require.NoError(t, s.Clear())
	assert.False(t, s.IsAuthenticated())
	assert.Equal(t, Profile{}, s.Profile())

	assert.ErrorIs(t, s.SetCredential("  ", Profile{}), ErrEmptyCredential)
}

func TestProfileIsCopied(t *testing.T) {
	s := New(nil)
	bal := decimal.NewFromInt(5)
	require.NoError(t, s.SetCredential("t", Profile{WalletBalance: &bal}))

	p := s.Profile()
	*p.WalletBalance = decimal.NewFromInt(99)
	v, _ := s.CachedWalletBalance()
	assert.True(t, decimal.NewFromInt(5).Equal(v))
}

func TestUpdatePatchesOnlyGivenFields(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.SetCredential("t", Profile{Username: "demo", Email: "d@example.com"}))

	name := "renamed"
	require.NoError(t, s.Update(ProfilePatch{Username: &name}))
	p := s.Profile()
	assert.Equal(t, "renamed", p.Username)
	assert.Equal(t, "d@example.com", p.Email)

	s.UpdateWalletBalance(decimal.RequireFromString("12.5"))
	v, ok := s.CachedWalletBalance()
	assert.True(t, ok)
	assert.True(t, decimal.RequireFromString("12.5").Equal(v))
}

func TestInvalidateNotifiesOncePerLogin(t *testing.T) {
	s := New(nil)
	var reasons []string
	s.OnInvalidated(func(r string) { reasons = append(reasons, r) })

	s.Invalidate("not logged in")
	assert.Empty(t, reasons)

	require.NoError(t, s.SetCredential("t", Profile{}))
	s.Invalidate("Could not validate credentials")
	s.Invalidate("Could not validate credentials")
	assert.Equal(t, []string{"Could not validate credentials"}, reasons)
	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.Identity())
}

func TestSecretStorePersistsAcrossSessions(t *testing.T) {
	kv, err := secretstore.Open(secretstore.OpenOptions{InMemory: true})
	require.NoError(t, err)
	defer kv.Close()
	store := NewSecretStore(kv)

	bal := decimal.RequireFromString("995.8")
	s := New(store)
	require.NoError(t, s.SetCredential("demo-token", Profile{UserID: "u1", Username: "demo", WalletBalance: &bal}))

	restored := New(store)
	require.NoError(t, restored.Init(context.Background()))
	assert.Equal(t, "demo-token", restored.CurrentCredential())
	assert.Equal(t, "demo", restored.Profile().Username)
	v, ok := restored.CachedWalletBalance()
	assert.True(t, ok)
	assert.True(t, bal.Equal(v))
	assert.NotEmpty(t, restored.Identity())

	restored.Invalidate("expired")
	again := New(store)
	require.NoError(t, again.Init(context.Background()))
	assert.False(t, again.IsAuthenticated())
}
