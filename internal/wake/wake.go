// Package wake lets producers nudge a worker that new mutations exist.
// Pings carry no data; a worker that misses one still finds the work on its
// next timed poll.
package wake

import (
	"context"
	"sync"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
)

type Pinger interface {
	Ping(ctx context.Context, q models.Queue) error
}

type Waiter interface {
	// Wait blocks until a ping arrives or timeout passes. It reports
	// whether it was pinged.
	Wait(ctx context.Context, timeout time.Duration) (bool, error)
}

// Local is an in-process channel per queue. Pings coalesce while nobody is
// waiting.
type Local struct {
	mu  sync.Mutex
	chs map[models.Queue]chan struct{}
}

func NewLocal() *Local {
	return &Local{chs: map[models.Queue]chan struct{}{}}
}

func (l *Local) ch(q models.Queue) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.chs[q]
	if !ok {
		c = make(chan struct{}, 1)
		l.chs[q] = c
	}
	return c
}

func (l *Local) Ping(_ context.Context, q models.Queue) error {
	select {
	case l.ch(q) <- struct{}{}:
	default:
	}
	return nil
}

func (l *Local) Waiter(q models.Queue) Waiter {
	return localWaiter{c: l.ch(q)}
}

type localWaiter struct {
	c chan struct{}
}

func (w localWaiter) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-w.c:
		return true, nil
	case <-t.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
