package notify

import (
	"context"
	"testing"

	"github.com/parley-labs/parley/pkg/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryChannelPublish(t *testing.T) {
	c := NewMemoryChannel()
	ctx := context.Background()

	ev := NewEvent(EventSummaryReady, "s1", contracts.Participant2, map[string]string{"summary": "x"})
	require.NoError(t, c.Publish(ctx, ev))
	require.NoError(t, c.Publish(ctx, NewEvent(EventJudgmentReady, "s2", contracts.Participant1, nil)))

	events := c.Events("s1")
	require.Len(t, events, 1)
	assert.Equal(t, EventSummaryReady, events[0].Type)
	assert.Equal(t, contracts.Participant2, events[0].Recipient)
	assert.NotEmpty(t, events[0].ID)
}

func TestMemoryChannelMembership(t *testing.T) {
	c := NewMemoryChannel()
	ctx := context.Background()

	require.NoError(t, c.Join(ctx, "s1", contracts.Participant2))
	require.NoError(t, c.Join(ctx, "s1", contracts.Participant1))

	members, err := c.Connected(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []contracts.ParticipantNumber{contracts.Participant1, contracts.Participant2}, members)

	require.NoError(t, c.Leave(ctx, "s1", contracts.Participant1))
	members, err = c.Connected(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []contracts.ParticipantNumber{contracts.Participant2}, members)
}

func TestMemoryChannelSubscribe(t *testing.T) {
	c := NewMemoryChannel()
	ctx := context.Background()

	sub, cancel, err := c.Subscribe(ctx, "s1")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, c.Publish(ctx, NewEvent(EventFactListReady, "s1", contracts.Participant1, nil)))
	ev := <-sub
	assert.Equal(t, EventFactListReady, ev.Type)

	cancel()
	_, open := <-sub
	assert.False(t, open, "subscription closed after cancel")
}
