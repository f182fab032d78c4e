package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"

	"github.com/pkg/errors"
)

type memTx struct {
	st  *state
	now time.Time
}

func decode(sm storedMutation) *models.Mutation {
	m := sm.m
	p, err := models.DecodePayload(m.Kind, sm.raw)
	if err != nil {
		m.LastError = err.Error()
	} else {
		m.Payload = p
	}
	if m.ProcessedAt != nil {
		at := *m.ProcessedAt
		m.ProcessedAt = &at
	}
	return &m
}

func (t *memTx) EnqueueMutation(_ context.Context, m *models.Mutation) (bool, error) {
	for _, sm := range t.st.mutations {
		if !sm.m.Processed && sm.m.DedupKey == m.DedupKey {
			m.ID = sm.m.ID
			m.CreatedAt = sm.m.CreatedAt
			m.Attempts = sm.m.Attempts
			return false, nil
		}
	}
	raw, err := models.EncodePayload(m.Payload)
	if err != nil {
		return false, err
	}
	m.ID = t.st.nextID("mutations")
	m.CreatedAt = t.now
	stored := *m
	stored.Payload = nil
	t.st.mutations[m.ID] = storedMutation{m: stored, raw: raw}
	return true, nil
}

func (t *memTx) GetMutation(_ context.Context, id int64) (*models.Mutation, error) {
	sm, ok := t.st.mutations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return decode(sm), nil
}

func (t *memTx) PendingMutations(_ context.Context, queue models.Queue, afterID int64, limit int) ([]*models.Mutation, error) {
	var out []*models.Mutation
	for _, sm := range t.st.mutations {
		if sm.m.Queue == queue && !sm.m.Processed && sm.m.ID > afterID {
			out = append(out, decode(sm))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) SaveMutationState(_ context.Context, m *models.Mutation) error {
	sm, ok := t.st.mutations[m.ID]
	if !ok {
		return store.ErrNotFound
	}
	sm.m.Processed = m.Processed
	sm.m.Attempts = m.Attempts
	sm.m.LastError = m.LastError
	sm.m.ProcessedAt = nil
	if m.ProcessedAt != nil {
		at := *m.ProcessedAt
		sm.m.ProcessedAt = &at
	}
	t.st.mutations[m.ID] = sm
	return nil
}

func (t *memTx) PurgeMutations(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for id, sm := range t.st.mutations {
		if sm.m.Processed && sm.m.ProcessedAt != nil && sm.m.ProcessedAt.Before(before) {
			delete(t.st.mutations, id)
			n++
		}
	}
	return n, nil
}

func (t *memTx) GetCart(_ context.Context, userID int64) (*models.Cart, error) {
	id, ok := t.st.cartByUser[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := t.st.carts[id]
	c.Tax = append([]models.TaxBucket(nil), c.Tax...)
	c.Lines = t.linesWhere(func(sl storedLine) bool { return sl.cartID == id })
	return &c, nil
}

func (t *memTx) CreateCart(_ context.Context, cart *models.Cart) error {
	if _, ok := t.st.cartByUser[cart.UserID]; ok {
		return errors.Wrapf(store.ErrConflict, "cart of user %d", cart.UserID)
	}
	if cart.Transport == "" {
		cart.Transport = models.TransportNone
	}
	cart.ID = t.st.nextID("carts")
	cart.CreatedAt = t.now
	cart.UpdatedAt = t.now
	stored := *cart
	stored.Lines = nil
	t.st.carts[cart.ID] = stored
	t.st.cartByUser[cart.UserID] = cart.ID
	return nil
}

func (t *memTx) SaveCart(_ context.Context, cart *models.Cart) error {
	if _, ok := t.st.carts[cart.ID]; !ok {
		return store.ErrNotFound
	}
	stored := *cart
	stored.Lines = nil
	stored.Tax = append([]models.TaxBucket(nil), cart.Tax...)
	stored.UpdatedAt = t.now
	cart.UpdatedAt = t.now
	t.st.carts[cart.ID] = stored
	for _, l := range cart.Lines {
		sl, ok := t.st.lines[l.ID]
		if !ok || sl.cartID != cart.ID {
			continue
		}
		sl.line.Discount = l.Discount
		t.st.lines[l.ID] = sl
	}
	return nil
}

func (t *memTx) AddCartLine(_ context.Context, cartID int64, l *models.LineItem) error {
	if _, ok := t.st.carts[cartID]; !ok {
		return store.ErrNotFound
	}
	l.ID = t.st.nextID("lines")
	l.CreatedAt = t.now
	t.st.lines[l.ID] = storedLine{line: *l, cartID: cartID}
	return nil
}

func (t *memTx) DeleteCartLine(_ context.Context, cartID, lineID int64) error {
	sl, ok := t.st.lines[lineID]
	if !ok || sl.cartID != cartID {
		return store.ErrNotFound
	}
	delete(t.st.lines, lineID)
	return nil
}

func (t *memTx) MoveLinesToOrder(_ context.Context, orderID int64, lineIDs []int64) error {
	for _, id := range lineIDs {
		sl, ok := t.st.lines[id]
		if !ok || sl.cartID == 0 {
			continue
		}
		sl.cartID = 0
		sl.orderID = orderID
		t.st.lines[id] = sl
	}
	return nil
}

func (t *memTx) PurgeEmptyCarts(_ context.Context, untouchedSince time.Time) (int64, error) {
	used := map[int64]bool{}
	for _, sl := range t.st.lines {
		if sl.cartID != 0 {
			used[sl.cartID] = true
		}
	}
	var n int64
	for id, c := range t.st.carts {
		if !used[id] && c.UpdatedAt.Before(untouchedSince) {
			delete(t.st.carts, id)
			delete(t.st.cartByUser, c.UserID)
			n++
		}
	}
	return n, nil
}

func (t *memTx) linesWhere(match func(storedLine) bool) []*models.LineItem {
	var out []*models.LineItem
	for _, sl := range t.st.lines {
		if match(sl) {
			l := sl.line
			out = append(out, &l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func copyOrder(o models.Order) models.Order {
	o.Lines = nil
	o.Tax = append([]models.TaxBucket(nil), o.Tax...)
	if o.PaymentSessionID != nil {
		id := *o.PaymentSessionID
		o.PaymentSessionID = &id
	}
	return o
}

func (t *memTx) CreateOrder(_ context.Context, o *models.Order) error {
	for _, existing := range t.st.orders {
		if existing.Number == o.Number {
			return errors.Wrapf(store.ErrConflict, "order number %d", o.Number)
		}
	}
	o.ID = t.st.nextID("orders")
	o.CreatedAt = t.now
	o.UpdatedAt = t.now
	t.st.orders[o.ID] = copyOrder(*o)
	return nil
}

func (t *memTx) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t.loadOrder(o), nil
}

func (t *memTx) GetOrderByNumber(_ context.Context, number int64) (*models.Order, error) {
	for _, o := range t.st.orders {
		if o.Number == number {
			return t.loadOrder(o), nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) ListOrdersByBuyer(_ context.Context, buyerID int64) ([]*models.Order, error) {
	var out []*models.Order
	for _, o := range t.st.orders {
		if o.BuyerID == buyerID {
			out = append(out, t.loadOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	return out, nil
}

func (t *memTx) loadOrder(o models.Order) *models.Order {
	c := copyOrder(o)
	c.Lines = t.linesWhere(func(sl storedLine) bool { return sl.orderID == o.ID })
	return &c
}

func (t *memTx) SaveOrder(_ context.Context, o *models.Order) error {
	if _, ok := t.st.orders[o.ID]; !ok {
		return store.ErrNotFound
	}
	o.UpdatedAt = t.now
	t.st.orders[o.ID] = copyOrder(*o)
	return nil
}

func (t *memTx) CreatePaymentSession(_ context.Context, s *models.PaymentSession) error {
	s.ID = t.st.nextID("sessions")
	s.CreatedAt = t.now
	s.UpdatedAt = t.now
	t.st.sessions[s.ID] = *s
	return nil
}

func (t *memTx) GetPaymentSession(_ context.Context, id int64) (*models.PaymentSession, error) {
	s, ok := t.st.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (t *memTx) GetPaymentSessionByExternalID(_ context.Context, externalID string) (*models.PaymentSession, error) {
	var found *models.PaymentSession
	for _, s := range t.st.sessions {
		if s.ExternalID == externalID && (found == nil || s.ID > found.ID) {
			s := s
			found = &s
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (t *memTx) ActiveSessionByExternalID(_ context.Context, externalID string) (*models.PaymentSession, error) {
	for _, o := range t.st.orders {
		if o.PaymentSessionID == nil {
			continue
		}
		s, ok := t.st.sessions[*o.PaymentSessionID]
		if ok && s.ExternalID == externalID {
			return &s, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) SavePaymentSession(_ context.Context, s *models.PaymentSession) error {
	if _, ok := t.st.sessions[s.ID]; !ok {
		return store.ErrNotFound
	}
	s.UpdatedAt = t.now
	t.st.sessions[s.ID] = *s
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, tr *models.Transaction) (bool, error) {
	if id, ok := t.st.txByExternal[tr.ExternalID]; ok {
		tr.ID = id
		tr.CreatedAt = t.st.transactions[id].CreatedAt
		return false, nil
	}
	tr.ID = t.st.nextID("transactions")
	tr.CreatedAt = t.now
	t.st.transactions[tr.ID] = *tr
	t.st.txByExternal[tr.ExternalID] = tr.ID
	return true, nil
}

func (t *memTx) TransactionsForPayment(_ context.Context, paymentID string) ([]*models.Transaction, error) {
	return t.transactionsWhere(func(tr models.Transaction) bool { return tr.PaymentID == paymentID }), nil
}

func (t *memTx) AttachTransaction(_ context.Context, orderID, transactionID int64) (bool, error) {
	if _, ok := t.st.orders[orderID]; !ok {
		return false, store.ErrNotFound
	}
	if _, ok := t.st.transactions[transactionID]; !ok {
		return false, store.ErrNotFound
	}
	key := [2]int64{orderID, transactionID}
	if t.st.orderTx[key] {
		return false, nil
	}
	t.st.orderTx[key] = true
	return true, nil
}

func (t *memTx) OrderTransactions(_ context.Context, orderID int64) ([]*models.Transaction, error) {
	return t.transactionsWhere(func(tr models.Transaction) bool {
		return t.st.orderTx[[2]int64{orderID, tr.ID}]
	}), nil
}

func (t *memTx) transactionsWhere(match func(models.Transaction) bool) []*models.Transaction {
	var out []*models.Transaction
	for _, tr := range t.st.transactions {
		if match(tr) {
			tr := tr
			out = append(out, &tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *memTx) GetReceiverSettings(_ context.Context, receiverID int64) (*models.ReceiverSettings, error) {
	rs, ok := t.st.receivers[receiverID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rs, nil
}

func (t *memTx) LockOrderSequence(context.Context) (int64, error) {
	return t.st.seq, nil
}

func (t *memTx) SetOrderSequence(_ context.Context, value int64) error {
	t.st.seq = value
	return nil
}

func (t *memTx) GetProduct(_ context.Context, kind models.ProductKind, ref int64) (*models.Product, error) {
	p, ok := t.st.products[productKey{kind, ref}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (t *memTx) AdjustStock(_ context.Context, kind models.ProductKind, ref int64, delta int64) (int64, error) {
	key := productKey{kind, ref}
	p, ok := t.st.products[key]
	if !ok {
		return 0, store.ErrNotFound
	}
	if p.Stock+delta < 0 {
		return 0, store.ErrNoStock
	}
	p.Stock += delta
	t.st.products[key] = p
	return p.Stock, nil
}

func (t *memTx) MarkDelivered(_ context.Context, kind models.ProductKind, ref int64) error {
	key := productKey{kind, ref}
	p, ok := t.st.products[key]
	if !ok {
		return store.ErrNotFound
	}
	p.Delivered++
	t.st.products[key] = p
	return nil
}

func (t *memTx) QueueNotification(_ context.Context, n *models.Notification) error {
	n.ID = t.st.nextID("notifications")
	n.CreatedAt = t.now
	stored := *n
	stored.Payload = copyMap(n.Payload)
	t.st.notifications = append(t.st.notifications, stored)
	return nil
}

func (t *memTx) RecordAlert(_ context.Context, key string, day time.Time) (bool, error) {
	k := day.UTC().Format("2006-01-02") + "|" + key
	if t.st.alerts[k] {
		return false, nil
	}
	t.st.alerts[k] = true
	return true, nil
}

func (t *memTx) GetWorkerState(_ context.Context, name string) (*models.WorkerState, error) {
	st, ok := t.st.workers[name]
	if !ok {
		st = models.WorkerState{Name: name}
	}
	return &st, nil
}

func (t *memTx) SaveWorkerState(_ context.Context, st *models.WorkerState) error {
	st.UpdatedAt = t.now
	t.st.workers[st.Name] = *st
	return nil
}
