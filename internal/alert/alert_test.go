package alert

import (
	"context"
	"testing"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store/memstore"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportOncePerDay(t *testing.T) {
	logger, hook := test.NewNullLogger()
	st := memstore.New()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := &Reporter{Store: st, Recipient: "ops@example.org", Log: logger, Now: func() time.Time { return now }}
	ctx := context.Background()

	assert.True(t, r.Report(ctx, "payment worker: boom"))
	assert.False(t, r.Report(ctx, "payment worker: boom"))
	assert.True(t, r.Report(ctx, "order worker: other"))

	now = now.Add(24 * time.Hour)
	assert.True(t, r.Report(ctx, "payment worker: boom"))

	notes := st.Notifications()
	require.Len(t, notes, 3)
	assert.Equal(t, models.NotifyOperatorAlert, notes[0].Kind)
	assert.Equal(t, "payment worker: boom", notes[0].Payload["message"])
	assert.Len(t, hook.AllEntries(), 4)
}

func TestReportWithoutRecipientOnlyLogs(t *testing.T) {
	logger, hook := test.NewNullLogger()
	st := memstore.New()
	r := &Reporter{Store: st, Log: logger}

	assert.False(t, r.Report(context.Background(), "boom"))
	assert.Empty(t, st.Notifications())
	assert.Len(t, hook.AllEntries(), 1)
}
