package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemotes_UpsertKeepsCursors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	r, err := s.UpsertRemote(ctx, RemoteRecord{
		ID:           "peer",
		CollectionID: "collection.main.drive",
		Channel:      `{"type":"internal"}`,
		Filter:       `{}`,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.OutboxCursor)
	assert.NotZero(t, r.CreatedAt)

	require.NoError(t, s.AdvanceOutboxCursor(ctx, "peer", 10))
	require.NoError(t, s.AdvanceInboxCursor(ctx, "peer", 4))

	r, err = s.UpsertRemote(ctx, RemoteRecord{
		ID:           "peer",
		CollectionID: "collection.main.drive",
		Channel:      `{"type":"websocket","url":"ws://example"}`,
		Filter:       `{}`,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), r.OutboxCursor)
	assert.Equal(t, int64(4), r.InboxCursor)
	assert.Contains(t, r.Channel, "websocket")
}

func TestRemotes_CursorsNeverMoveBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertRemote(ctx, RemoteRecord{ID: "peer", CollectionID: "c", Channel: "{}", Filter: "{}"})
	require.NoError(t, err)

	require.NoError(t, s.AdvanceOutboxCursor(ctx, "peer", 7))
	require.NoError(t, s.AdvanceOutboxCursor(ctx, "peer", 3))

	r, err := s.GetRemote(ctx, "peer")
	require.NoError(t, err)
	assert.Equal(t, int64(7), r.OutboxCursor)
}

func TestRemotes_ListAndDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"b", "a"} {
		_, err := s.UpsertRemote(ctx, RemoteRecord{ID: id, CollectionID: "c", Channel: "{}", Filter: "{}"})
		require.NoError(t, err)
	}

	list, err := s.ListRemotes(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)

	require.NoError(t, s.DeleteRemote(ctx, "a"))
	_, err = s.GetRemote(ctx, "a")
	assert.ErrorIs(t, err, ErrRemoteNotFound)

	assert.ErrorIs(t, s.DeleteRemote(ctx, "a"), ErrRemoteNotFound)
	assert.ErrorIs(t, s.AdvanceInboxCursor(ctx, "a", 1), ErrRemoteNotFound)
}

func TestRemotes_SinceTimestampRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertRemote(ctx, RemoteRecord{ID: "peer", CollectionID: "c", Channel: "{}", Filter: "{}", SinceTimestamp: 25})
	require.NoError(t, err)

	remotes, err := s.ListRemotes(ctx)
	require.NoError(t, err)
	require.Len(t, remotes, 1)
	assert.Equal(t, int64(25), remotes[0].SinceTimestamp)
}
