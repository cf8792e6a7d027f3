package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miles0sage/agentgate/core"
	"github.com/Miles0sage/agentgate/session"
)

func TestAppend_PersistsAcrossLoad(t *testing.T) {
	store, err := session.New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Append("sess-1", core.Message{Role: "user", Content: "hi"})
	require.NoError(t, err)

	snap, err := store.Load("sess-1")
	require.NoError(t, err)
	assert.Len(t, snap.Messages, 1)
	assert.Equal(t, "hi", snap.Messages[0].Content)
}

func TestContextWindow_TrimsToLastTen(t *testing.T) {
	store, err := session.New(t.TempDir())
	require.NoError(t, err)

	for i := 0; i < 15; i++ {
		_, err := store.Append("sess-1", core.Message{Role: "user", Content: "msg"})
		require.NoError(t, err)
	}

	window, err := store.ContextWindow("sess-1")
	require.NoError(t, err)
	assert.Len(t, window, 10)
}

func TestLoad_MissingSessionReturnsEmpty(t *testing.T) {
	store, err := session.New(t.TempDir())
	require.NoError(t, err)

	snap, err := store.Load("never-seen")
	require.NoError(t, err)
	assert.Empty(t, snap.Messages)
}
