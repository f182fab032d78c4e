package wake

import (
	"context"
	"testing"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPingWakesWaiter(t *testing.T) {
	l := NewLocal()
	w := l.Waiter(models.QueueOrders)
	ctx := context.Background()

	require.NoError(t, l.Ping(ctx, models.QueueOrders))
	require.NoError(t, l.Ping(ctx, models.QueueOrders))

	pinged, err := w.Wait(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, pinged)

	// the two pings above coalesced into one
	pinged, err = w.Wait(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, pinged)
}

func TestLocalQueuesAreSeparate(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()
	require.NoError(t, l.Ping(ctx, models.QueuePayments))

	pinged, err := l.Waiter(models.QueueOrders).Wait(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, pinged)
}

func TestWaitHonoursContext(t *testing.T) {
	l := NewLocal()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Waiter(models.QueueOrders).Wait(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
