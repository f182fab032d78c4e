// Package memstore is an in-memory store.Store. Units of work are
// serialized and copy-on-write, so a failed unit leaves no trace.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"
)

type productKey struct {
	kind models.ProductKind
	ref  int64
}

type storedMutation struct {
	m   models.Mutation
	raw []byte
}

type storedLine struct {
	line    models.LineItem
	cartID  int64
	orderID int64
}

type state struct {
	seq           int64
	ids           map[string]int64
	mutations     map[int64]storedMutation
	carts         map[int64]models.Cart
	cartByUser    map[int64]int64
	lines         map[int64]storedLine
	orders        map[int64]models.Order
	sessions      map[int64]models.PaymentSession
	transactions  map[int64]models.Transaction
	txByExternal  map[string]int64
	orderTx       map[[2]int64]bool
	receivers     map[int64]models.ReceiverSettings
	products      map[productKey]models.Product
	notifications []models.Notification
	workers       map[string]models.WorkerState
	alerts        map[string]bool
}

func newState() *state {
	return &state{
		seq:          1000000,
		ids:          map[string]int64{},
		mutations:    map[int64]storedMutation{},
		carts:        map[int64]models.Cart{},
		cartByUser:   map[int64]int64{},
		lines:        map[int64]storedLine{},
		orders:       map[int64]models.Order{},
		sessions:     map[int64]models.PaymentSession{},
		transactions: map[int64]models.Transaction{},
		txByExternal: map[string]int64{},
		orderTx:      map[[2]int64]bool{},
		receivers:    map[int64]models.ReceiverSettings{},
		products:     map[productKey]models.Product{},
		workers:      map[string]models.WorkerState{},
		alerts:       map[string]bool{},
	}
}

// clone copies every table. Stored values are never modified in place, so
// copying the maps is enough.
func (s *state) clone() *state {
	c := &state{
		seq:           s.seq,
		ids:           copyMap(s.ids),
		mutations:     copyMap(s.mutations),
		carts:         copyMap(s.carts),
		cartByUser:    copyMap(s.cartByUser),
		lines:         copyMap(s.lines),
		orders:        copyMap(s.orders),
		sessions:      copyMap(s.sessions),
		transactions:  copyMap(s.transactions),
		txByExternal:  copyMap(s.txByExternal),
		orderTx:       copyMap(s.orderTx),
		receivers:     copyMap(s.receivers),
		products:      copyMap(s.products),
		notifications: append([]models.Notification(nil), s.notifications...),
		workers:       copyMap(s.workers),
		alerts:        copyMap(s.alerts),
	}
	return c
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *state) nextID(table string) int64 {
	s.ids[table]++
	return s.ids[table]
}

type Store struct {
	mu  sync.Mutex
	st  *state
	Now func() time.Time
}

func New() *Store {
	return &Store{st: newState(), Now: time.Now}
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&memTx{st: work, now: s.now()}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Store) PutProduct(p models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[productKey{p.Kind, p.Ref}] = p
}

func (s *Store) Product(kind models.ProductKind, ref int64) (models.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[productKey{kind, ref}]
	return p, ok
}

func (s *Store) PutReceiver(rs models.ReceiverSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.receivers[rs.ReceiverID] = rs
}

func (s *Store) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.st.notifications...)
}

// Mutations returns all stored mutations ordered by id, payload decoded.
func (s *Store) Mutations() []*models.Mutation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Mutation, 0, len(s.st.mutations))
	for _, sm := range s.st.mutations {
		out = append(out, decode(sm))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Sequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.seq
}
