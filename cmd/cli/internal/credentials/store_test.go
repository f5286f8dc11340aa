package credentials

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStore_SaveGet(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, store.Save(Token{Server: "https://certs.example.com/", Token: "tok-1", ExpiresAt: expires}))

	got, err := store.Get("https://certs.example.com")
	require.NoError(t, err)
	require.Equal(t, "tok-1", got.Token)
	require.Equal(t, "https://certs.example.com", got.Server)
	require.True(t, got.ExpiresAt.Equal(expires))
	require.False(t, got.SavedAt.IsZero())

	info, err := os.Stat(filepath.Join(dir, "credentials.json"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	t.Run("replace", func(t *testing.T) {
		require.NoError(t, store.Save(Token{Server: "https://certs.example.com", Token: "tok-2"}))

		got, err := store.Get("https://certs.example.com/")
		require.NoError(t, err)
		require.Equal(t, "tok-2", got.Token)
	})

	t.Run("reopen", func(t *testing.T) {
		again, err := NewStore(dir)
		require.NoError(t, err)

		got, err := again.Get("https://certs.example.com")
		require.NoError(t, err)
		require.Equal(t, "tok-2", got.Token)
	})
}

func TestStore_Get_errors(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get("https://nowhere.example.com")
	require.ErrorIs(t, err, ErrTokenNotFound)

	require.NoError(t, store.Save(Token{
		Server:    "https://certs.example.com",
		Token:     "old",
		ExpiresAt: time.Now().Add(-time.Minute),
	}))
	_, err = store.Get("https://certs.example.com")
	require.ErrorIs(t, err, ErrTokenExpired)

	require.Error(t, store.Save(Token{Server: "https://certs.example.com"}))
}

func TestStore_Delete(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(Token{Server: "https://a.example.com", Token: "a"}))
	require.NoError(t, store.Save(Token{Server: "https://b.example.com", Token: "b"}))

	require.NoError(t, store.Delete("https://a.example.com"))
	require.NoError(t, store.Delete("https://a.example.com"))

	_, err = store.Get("https://a.example.com")
	require.ErrorIs(t, err, ErrTokenNotFound)

	got, err := store.Get("https://b.example.com")
	require.NoError(t, err)
	require.Equal(t, "b", got.Token)
}

func TestStore_corruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credentials.json"), []byte("{not json"), 0o600))

	store, err := NewStore(dir)
	require.NoError(t, err)

	_, err = store.Get("https://certs.example.com")
	require.ErrorContains(t, err, "failed to parse credentials")
}
