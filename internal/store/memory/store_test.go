package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/snapshill/internal/snapshot"
)

func TestStore(t *testing.T) {
	s := New()
	ctx := context.Background()

	ok, err := s.Contains(ctx, "t3_a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Insert(ctx, "t3_a", "t1_a"))
	require.ErrorIs(t, s.Insert(ctx, "t3_a", "t1_b"), snapshot.ErrAlreadyRecorded)

	ok, err = s.Contains(ctx, "t3_a")
	require.NoError(t, err)
	assert.True(t, ok)

	reply, err := s.Reply(ctx, "t3_a")
	require.NoError(t, err)
	assert.Equal(t, "t1_a", reply)
	assert.Equal(t, 1, s.Len())

	_, err = s.Reply(ctx, "t3_b")
	require.ErrorIs(t, err, snapshot.ErrNotFound)
}
