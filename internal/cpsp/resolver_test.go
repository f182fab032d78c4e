package cpsp

import (
	"context"
	"testing"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverCredentials(t *testing.T) {
	st := memstore.New()
	st.PutReceiver(models.ReceiverSettings{ReceiverID: 1, APIKey: "live_own"})
	st.PutReceiver(models.ReceiverSettings{ReceiverID: 2, ViaUmbrella: true})
	st.PutReceiver(models.ReceiverSettings{ReceiverID: 3})
	r := &Resolver{Umbrella: Credentials{APIKey: "live_umbrella"}}
	ctx := context.Background()

	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		c, err := r.Credentials(ctx, tx, 1)
		require.NoError(t, err)
		assert.Equal(t, "live_own", c.APIKey)

		c, err = r.Credentials(ctx, tx, 2)
		require.NoError(t, err)
		assert.Equal(t, "live_umbrella", c.APIKey)
		assert.Equal(t, int64(2), c.ReceiverID)

		_, err = r.Credentials(ctx, tx, 3)
		assert.ErrorIs(t, err, ErrNoCredentials)
		_, err = r.Credentials(ctx, tx, 4)
		assert.ErrorIs(t, err, ErrNoCredentials)
		return nil
	}))

	// cached until forgotten
	st.PutReceiver(models.ReceiverSettings{ReceiverID: 1, APIKey: "live_rotated"})
	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		c, _ := r.Credentials(ctx, tx, 1)
		assert.Equal(t, "live_own", c.APIKey)
		r.Forget(1)
		c, _ = r.Credentials(ctx, tx, 1)
		assert.Equal(t, "live_rotated", c.APIKey)
		return nil
	}))
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusPaid, StatusCanceled, StatusExpired, StatusFailed} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []Status{StatusOpen, StatusPending, "authorized"} {
		assert.False(t, s.Terminal(), s)
	}
}
