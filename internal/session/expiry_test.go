package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driftcode/agentcore/internal/store"
	"github.com/driftcode/agentcore/pkg/models"
)

func TestExpirySweeper_ArchivesSessionsPastTTL(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	stale, _, err := s.CreateSession(ctx, "m", "/wd", "stale")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	fresh, _, err := s.CreateSession(ctx, "m", "/wd", "fresh")
	require.NoError(t, err)
	_, err = s.Append(ctx, fresh.ID, models.EventMessageUser, []byte(`{}`), "")
	require.NoError(t, err)
	fresh, err = s.GetSession(ctx, fresh.ID)
	require.NoError(t, err)

	freshHead, err := s.GetEvent(ctx, fresh.HeadEventID)
	require.NoError(t, err)

	sweeper := NewExpirySweeper(s, nil, 50*time.Millisecond, nil)
	sweeper.nowFunc = func() time.Time { return freshHead.Timestamp.Add(time.Millisecond) }

	archived, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, archived)

	sessions, err := s.ListSessions(ctx, true, 0)
	require.NoError(t, err)

	var staleArchived, freshArchived bool
	for _, se := range sessions {
		if se.ID == stale.ID {
			staleArchived = se.Archived
		}
		if se.ID == fresh.ID {
			freshArchived = se.Archived
		}
	}
	require.True(t, staleArchived)
	require.False(t, freshArchived)
}
