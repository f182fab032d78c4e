package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/mutations"
	"github.com/RamonvdW/nhb-apps-sub010/internal/services"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store/memstore"
	"github.com/RamonvdW/nhb-apps-sub010/internal/wake"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminToken = "s3cret"

type fixture struct {
	st    *memstore.Store
	srv   *Server
	order *models.Order
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	st := memstore.New()
	log := &mutations.Log{Store: st, Wake: wake.NewLocal(), Log: logger}

	ctx := context.Background()
	o := &models.Order{Number: 1000001, BuyerID: 5, ReceiverID: 1, Status: models.OrderNew}
	o.Total = decimal.RequireFromString("17.50")
	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}
		s := &models.PaymentSession{OrderID: o.ID, ReceiverID: 1, ExternalID: "tr_active", CheckoutURL: "https://pay.example.org/tr_active"}
		if err := tx.CreatePaymentSession(ctx, s); err != nil {
			return err
		}
		o.PaymentSessionID = &s.ID
		o.Status = models.OrderAwaitingPayment
		return tx.SaveOrder(ctx, o)
	}))

	h := NewHandler(
		services.OrderService{Store: st, Mutations: log, Log: logger},
		services.CartService{Store: st, Mutations: log},
		logger,
	)
	h.StatusPoll = 10 * time.Millisecond
	return &fixture{st: st, srv: NewServer(h, adminToken), order: o}
}

func (f *fixture) do(method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.srv.Router.ServeHTTP(rec, req)
	return rec
}

func buyer(id string) map[string]string {
	return map[string]string{"X-User-Id": id, "Content-Type": "application/json"}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestWebhookUnknownIDIsAcceptedButIgnored(t *testing.T) {
	f := newFixture(t)
	form := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}

	for _, id := range []string{"tr_unknown", "tr_bad;id", ""} {
		rec := f.do(http.MethodPost, "/payments/webhook", url.Values{"id": {id}}.Encode(), form)
		assert.Equal(t, http.StatusOK, rec.Code, id)
		assert.Empty(t, rec.Body.String())
	}
	assert.Empty(t, f.st.Mutations())
}

func TestWebhookQueuesRefresh(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/payments/webhook", "id=tr_active",
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	assert.Equal(t, http.StatusOK, rec.Code)

	muts := f.st.Mutations()
	require.Len(t, muts, 1)
	assert.Equal(t, &models.PaymentRefresh{ExternalID: "tr_active"}, muts[0].Payload)
}

func TestWebhookJSONNotification(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/payments/webhook",
		`{"order_id":"tr_active","transaction_status":"settlement"}`,
		map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.st.Mutations(), 1)
}

func TestCartEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/cart/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/cart/", "", buyer("9"))
	require.Equal(t, http.StatusOK, rec.Code)
	var c cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Empty(t, c.Lines)
	assert.Equal(t, "none", c.Transport)

	rec = f.do(http.MethodPost, "/cart/lines?fast=1", `{"kind":"webshop","productRef":3}`, buyer("9"))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	rec = f.do(http.MethodPost, "/cart/lines?fast=1", `{"kind":"webshop"}`, buyer("9"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(http.MethodPut, "/cart/transport?fast=1", `{"transport":"drone"}`, buyer("9"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(http.MethodDelete, "/cart/lines/12?fast=1", "", buyer("9"))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var kinds []models.MutationKind
	for _, m := range f.st.Mutations() {
		kinds = append(kinds, m.Kind)
	}
	assert.Equal(t, []models.MutationKind{models.KindCartAdd, models.KindCartRemove}, kinds)
}

func TestOrderEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/orders/1000001", "", buyer("5"))
	require.Equal(t, http.StatusOK, rec.Code)
	var o orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, "awaiting_payment", o.Status)
	assert.Equal(t, "https://pay.example.org/tr_active", o.CheckoutURL)
	assert.True(t, o.Due.Equal(decimal.RequireFromString("17.50")))

	rec = f.do(http.MethodGet, "/orders/1000001", "", buyer("6"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(http.MethodGet, "/orders/abc", "", buyer("5"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/orders/", "", buyer("5"))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []orderSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, int64(1000001), list[0].Number)

	rec = f.do(http.MethodPost, "/orders/1000001/cancel?fast=1", `{"reason":"duplicate"}`, buyer("5"))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	muts := f.st.Mutations()
	require.Len(t, muts, 1)
	assert.Equal(t, &models.CancelOrder{OrderID: f.order.ID, Reason: "duplicate"}, muts[0].Payload)
}

func TestAdminRoutesNeedToken(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/admin/workers", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	auth := map[string]string{"Authorization": "Bearer " + adminToken}
	rec = f.do(http.MethodGet, "/admin/workers", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"orders"`)

	rec = f.do(http.MethodPost, "/admin/orders/1000001/manual-payment?fast=1",
		`{"reference":"bank-1","amount":"17.50","note":"wire"}`, auth)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	rec = f.do(http.MethodPost, "/admin/orders/1000001/manual-payment?fast=1",
		`{"reference":"bank-2","amount":"0"}`, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, f.st.Mutations(), 1)
}

func TestStatusStream(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Router)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/orders/1000001/status/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"X-User-Id": {"5"}})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg statusMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "awaiting_payment", msg.Status)

	ctx := context.Background()
	require.NoError(t, f.st.InTx(ctx, func(tx store.Tx) error {
		f.order.Status = models.OrderPaid
		return tx.SaveOrder(ctx, f.order)
	}))

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "paid", msg.Status)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
}

func TestStatusStreamRejectsOtherBuyer(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Router)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/orders/1000001/status/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"X-User-Id": {"6"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
