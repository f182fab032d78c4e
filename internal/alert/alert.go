// Package alert reports unexpected failures to operators, at most once per
// distinct message per day.
package alert

import (
	"context"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"

	"github.com/sirupsen/logrus"
)

const maxKeyLen = 200

type Reporter struct {
	Store     store.Store
	Recipient string
	Log       logrus.FieldLogger
	Now       func() time.Time
}

// Report logs msg and queues an operator notification unless the same
// message was already reported today. It returns whether a notification was
// queued.
func (r *Reporter) Report(ctx context.Context, msg string) bool {
	r.Log.WithField("alert", true).Error(msg)
	if r.Recipient == "" {
		return false
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	day := now().UTC().Truncate(24 * time.Hour)
	key := msg
	if len(key) > maxKeyLen {
		key = key[:maxKeyLen]
	}

	var queued bool
	err := r.Store.InTx(ctx, func(tx store.Tx) error {
		first, err := tx.RecordAlert(ctx, key, day)
		if err != nil || !first {
			return err
		}
		queued = true
		return tx.QueueNotification(ctx, &models.Notification{
			Kind:      models.NotifyOperatorAlert,
			Recipient: r.Recipient,
			Payload:   map[string]string{"message": msg},
		})
	})
	if err != nil {
		r.Log.WithError(err).Warn("storing alert failed")
		return false
	}
	return queued
}
