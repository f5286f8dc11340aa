package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/coursecert/internal/models"
	"github.com/wolfeidau/coursecert/internal/store"
)

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	live := &models.Session{
		SessionID:   uuid.Must(uuid.NewV7()),
		PrincipalID: uuid.Must(uuid.NewV7()),
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
		LastUsedAt:  now,
	}
	expired := &models.Session{
		SessionID:   uuid.Must(uuid.NewV7()),
		PrincipalID: live.PrincipalID,
		CreatedAt:   now.Add(-2 * time.Hour),
		ExpiresAt:   now.Add(-time.Hour),
		LastUsedAt:  now.Add(-2 * time.Hour),
	}

	st := NewSessionStore()
	require.NoError(t, st.Create(ctx, live))
	require.NoError(t, st.Create(ctx, expired))

	got, err := st.Get(ctx, live.SessionID)
	require.NoError(t, err)
	require.Equal(t, live.PrincipalID, got.PrincipalID)

	_, err = st.Get(ctx, expired.SessionID)
	require.ErrorIs(t, err, store.ErrSessionExpired)

	_, err = st.Get(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrSessionNotFound)

	count, err := st.DeleteExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.NoError(t, st.Delete(ctx, live.SessionID))
	require.ErrorIs(t, st.Delete(ctx, live.SessionID), store.ErrSessionNotFound)
}
