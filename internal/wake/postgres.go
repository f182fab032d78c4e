package wake

import (
	"context"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Channel is the LISTEN/NOTIFY channel name used for a queue.
func Channel(q models.Queue) string {
	return "mutations_" + string(q)
}

// Notifier pings workers in other processes through NOTIFY.
type Notifier struct {
	Pool *pgxpool.Pool
}

func (n Notifier) Ping(ctx context.Context, q models.Queue) error {
	_, err := n.Pool.Exec(ctx, `SELECT pg_notify($1, '')`, Channel(q))
	return errors.Wrap(err, "notify")
}

// Listener holds one pooled connection that LISTENs on a queue's channel.
type Listener struct {
	conn *pgxpool.Conn
}

func Listen(ctx context.Context, pool *pgxpool.Pool, q models.Queue) (*Listener, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquire listen conn")
	}
	if _, err := conn.Exec(ctx, `LISTEN `+Channel(q)); err != nil {
		conn.Release()
		return nil, errors.Wrap(err, "listen")
	}
	return &Listener{conn: conn}, nil
}

func (l *Listener) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := l.conn.Conn().WaitForNotification(wctx)
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if wctx.Err() != nil {
		return false, nil
	}
	return false, errors.Wrap(err, "wait for notification")
}

// Close drops the connection rather than returning it to the pool, since
// it is still subscribed.
func (l *Listener) Close() {
	_ = l.conn.Conn().Close(context.Background())
	l.conn.Release()
}
