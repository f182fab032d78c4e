package cpsp

import (
	"context"
	"sync"

	"github.com/RamonvdW/nhb-apps-sub010/internal/store"

	"github.com/pkg/errors"
)

// Resolver maps receivers to the credentials used for their payments.
// Receivers that delegate to the umbrella organisation use Umbrella.
type Resolver struct {
	Umbrella Credentials

	mu    sync.Mutex
	cache map[int64]Credentials
}

func (r *Resolver) Credentials(ctx context.Context, tx store.PaymentTx, receiverID int64) (Credentials, error) {
	r.mu.Lock()
	c, ok := r.cache[receiverID]
	r.mu.Unlock()
	if ok {
		return c, nil
	}

	rs, err := tx.GetReceiverSettings(ctx, receiverID)
	if errors.Is(err, store.ErrNotFound) {
		return Credentials{}, errors.Wrapf(ErrNoCredentials, "receiver %d", receiverID)
	}
	if err != nil {
		return Credentials{}, errors.Wrap(err, "receiver settings")
	}

	c = Credentials{ReceiverID: receiverID, APIKey: rs.APIKey}
	if rs.ViaUmbrella {
		c.APIKey = r.Umbrella.APIKey
	}
	if c.APIKey == "" {
		return Credentials{}, errors.Wrapf(ErrNoCredentials, "receiver %d", receiverID)
	}

	r.mu.Lock()
	if r.cache == nil {
		r.cache = map[int64]Credentials{}
	}
	r.cache[receiverID] = c
	r.mu.Unlock()
	return c, nil
}

// Forget drops a cached entry, for example after its key was rejected.
func (r *Resolver) Forget(receiverID int64) {
	r.mu.Lock()
	delete(r.cache, receiverID)
	r.mu.Unlock()
}
