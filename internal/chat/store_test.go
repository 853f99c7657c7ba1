package chat

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/llm"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "chats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPrepareAndFinalize(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	p, err := s.PrepareMessages(ctx, "u1", "c1", "I run a bakery")
	require.NoError(t, err)
	assert.Equal(t, StatusFinal, p.User.Status)
	assert.Equal(t, StatusStreaming, p.AI.Status)

	c, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, ChatGoing, c.Status)
	assert.Equal(t, "I run a bakery", c.Title)

	hist, err := s.History(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []llm.Message{{Role: llm.RoleUser, Content: "I run a bakery"}}, hist, "empty placeholder is not history")

	require.NoError(t, s.Finalize(ctx, p.AI.ID, "Tell me about waste", StatusFinal))
	hist, err = s.History(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, llm.RoleAssistant, hist[1].Role)

	msgs, err := s.Messages(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, StatusFinal, msgs[1].Status)
}

func TestFinalize_Unknown(t *testing.T) {
	err := newStore(t).Finalize(context.Background(), "msg_nope", "x", StatusFailed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnsure_ForeignChat(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.Ensure(ctx, "u1", "c1")
	require.NoError(t, err)

	_, err = s.Ensure(ctx, "u2", "c1")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.PrepareMessages(ctx, "u2", "c1", "hi")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestListByUser(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.Ensure(ctx, "u1", "c1")
	require.NoError(t, err)
	_, err = s.Ensure(ctx, "u1", "c2")
	require.NoError(t, err)
	_, err = s.Ensure(ctx, "u2", "c3")
	require.NoError(t, err)

	chats, err := s.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, chats, 2)
}
