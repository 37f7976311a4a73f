package inject

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/blekbd/internal/conn"
)

func TestLocalLinkConnectsOnAdvertise(t *testing.T) {
	got := make(chan conn.Event, 8)
	l := NewLocalLink(func(ev conn.Event) { got <- ev })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	require.NoError(t, l.StartAdvertising(conn.AdvParams{Discoverable: true}))
	require.NoError(t, l.Disconnect())

	want := []conn.Kind{conn.ConnectionRequested, conn.ConnectionComplete, conn.Disconnected}
	for _, k := range want {
		select {
		case ev := <-got:
			assert.Equal(t, k, ev.Kind)
			if k == conn.ConnectionComplete {
				assert.Equal(t, LoopbackPeer, ev.Peer)
				assert.True(t, ev.Durable)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %v", k)
		}
	}
}

func TestLocalLinkDropsWhenBacklogFull(t *testing.T) {
	l := NewLocalLink(func(conn.Event) {})
	for range linkBacklog + 3 {
		require.NoError(t, l.StartAdvertising(conn.AdvParams{}))
	}
	assert.Len(t, l.events, linkBacklog)
}

func TestLocalLinkMisc(t *testing.T) {
	assert.Panics(t, func() { NewLocalLink(nil) })
	l := NewLocalLink(func(conn.Event) {})
	assert.NoError(t, l.StopAdvertising())
	assert.NoError(t, l.SubmitPasskey(123456))
}
