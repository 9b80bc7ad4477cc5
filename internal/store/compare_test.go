package store

import (
	"context"
	"testing"

	"github.com/driftcode/agentcore/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestCompareBranches_FindsCommonAncestorAndDivergence(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	sess, root, err := s.CreateSession(ctx, "m", "/wd", "t")
	require.NoError(t, err)

	shared, err := s.Append(ctx, sess.ID, models.EventMessageUser, []byte(`{}`), root.ID)
	require.NoError(t, err)

	a1, err := s.Append(ctx, sess.ID, models.EventMessageAssist, []byte(`{}`), shared.ID)
	require.NoError(t, err)
	a2, err := s.Append(ctx, sess.ID, models.EventMessageUser, []byte(`{}`), a1.ID)
	require.NoError(t, err)

	b1, err := s.Append(ctx, sess.ID, models.EventMessageAssist, []byte(`{}`), shared.ID)
	require.NoError(t, err)

	diff, err := CompareBranches(ctx, s, a2.ID, b1.ID)
	require.NoError(t, err)
	require.Equal(t, shared.ID, diff.CommonAncestorID)
	require.Len(t, diff.OnlyInA, 2)
	require.Equal(t, a1.ID, diff.OnlyInA[0].ID)
	require.Equal(t, a2.ID, diff.OnlyInA[1].ID)
	require.Len(t, diff.OnlyInB, 1)
	require.Equal(t, b1.ID, diff.OnlyInB[0].ID)
}

func TestCompareBranches_NoSharedHistoryReturnsFullChains(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	sessA, rootA, err := s.CreateSession(ctx, "m", "/wd", "a")
	require.NoError(t, err)
	sessB, rootB, err := s.CreateSession(ctx, "m", "/wd", "b")
	require.NoError(t, err)

	diff, err := CompareBranches(ctx, s, rootA.ID, rootB.ID)
	require.NoError(t, err)
	require.Empty(t, diff.CommonAncestorID)
	require.Len(t, diff.OnlyInA, 1)
	require.Len(t, diff.OnlyInB, 1)
	_ = sessA
	_ = sessB
}
