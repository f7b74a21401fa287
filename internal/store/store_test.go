package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	return s
}

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	s := setupTestStore(t)

	msg, err := s.Append(context.Background(), "general", "alice", "hello")
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())
	assert.Equal(t, "general", msg.Room)
	assert.Equal(t, "alice", msg.Username)
	assert.Equal(t, "hello", msg.Content)
}

func TestAppendRegistersRoomInDirectory(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, "general", "alice", "hello")
	require.NoError(t, err)
	_, err = s.Append(ctx, "general", "bob", "hi")
	require.NoError(t, err)

	rooms, err := s.Rooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "general", rooms[0].Name)
}

func TestRecentNewestFirstWithLimit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three", "four"} {
		_, err := s.Append(ctx, "general", "alice", content)
		require.NoError(t, err)
	}

	messages, err := s.Recent(ctx, "general", 3)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "four", messages[0].Content)
	assert.Equal(t, "three", messages[1].Content)
	assert.Equal(t, "two", messages[2].Content)
}

func TestRecentScopedToRoom(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, "general", "alice", "hello")
	require.NoError(t, err)
	_, err = s.Append(ctx, "random", "carol", "elsewhere")
	require.NoError(t, err)

	messages, err := s.Recent(ctx, "general", 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Content)
}

func TestRecentEmptyRoom(t *testing.T) {
	s := setupTestStore(t)

	messages, err := s.Recent(context.Background(), "ghost", 10)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestCreateRoomDuplicate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.CreateRoom(ctx, "general")
	require.NoError(t, err)

	_, err = s.CreateRoom(ctx, "general")
	assert.ErrorIs(t, err, ErrRoomExists)
}

func TestPing(t *testing.T) {
	s := setupTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
