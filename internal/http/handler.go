package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/services"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	Orders services.OrderService
	Carts  services.CartService
	Log    logrus.FieldLogger
	// StatusPoll is how often the status stream re-reads the order.
	StatusPoll time.Duration
}

type lineResponse struct {
	ID          int64           `json:"id"`
	Kind        string          `json:"kind"`
	ProductRef  int64           `json:"productRef"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Discount    decimal.Decimal `json:"discount"`
}

type totalsResponse struct {
	Subtotal     decimal.Decimal    `json:"subtotal"`
	ShippingCost decimal.Decimal    `json:"shippingCost"`
	Tax          []models.TaxBucket `json:"tax"`
	Total        decimal.Decimal    `json:"total"`
}

type cartResponse struct {
	Transport string         `json:"transport"`
	Lines     []lineResponse `json:"lines"`
	totalsResponse
}

type orderResponse struct {
	Number      int64           `json:"number"`
	Status      string          `json:"status"`
	Transport   string          `json:"transport"`
	Lines       []lineResponse  `json:"lines"`
	Received    decimal.Decimal `json:"received"`
	Due         decimal.Decimal `json:"due"`
	FullyPaid   bool            `json:"fullyPaid"`
	CheckoutURL string          `json:"checkoutUrl,omitempty"`
	CreatedAt   string          `json:"createdAt"`
	totalsResponse
}

type orderSummary struct {
	Number    int64           `json:"number"`
	Status    string          `json:"status"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt string          `json:"createdAt"`
}

type addLineRequest struct {
	Kind       models.ProductKind `json:"kind"`
	ProductRef int64              `json:"productRef"`
}

type transportRequest struct {
	Transport models.Transport `json:"transport"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type manualPaymentRequest struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Refund    bool            `json:"refund"`
	Note      string          `json:"note"`
}

func NewHandler(orders services.OrderService, carts services.CartService, log logrus.FieldLogger) *Handler {
	return &Handler{Orders: orders, Carts: carts, Log: log, StatusPoll: time.Second}
}

func lines(in []*models.LineItem) []lineResponse {
	out := make([]lineResponse, 0, len(in))
	for _, l := range in {
		out = append(out, lineResponse{
			ID:          l.ID,
			Kind:        string(l.Kind),
			ProductRef:  l.ProductRef,
			Description: l.Description,
			Price:       l.Price,
			Discount:    l.Discount,
		})
	}
	return out
}

func totals(t models.Totals) totalsResponse {
	tax := t.Tax
	if tax == nil {
		tax = []models.TaxBucket{}
	}
	return totalsResponse{Subtotal: t.Subtotal, ShippingCost: t.ShippingCost, Tax: tax, Total: t.Total}
}

func toCart(c *models.Cart) cartResponse {
	return cartResponse{Transport: string(c.Transport), Lines: lines(c.Lines), totalsResponse: totals(c.Totals)}
}

func toOrder(v *services.OrderView) orderResponse {
	o := v.Order
	resp := orderResponse{
		Number:         o.Number,
		Status:         string(o.Status),
		Transport:      string(o.Transport),
		Lines:          lines(o.Lines),
		Received:       v.Payment.Received,
		Due:            v.Payment.Due,
		FullyPaid:      v.Payment.FullyPaid,
		CreatedAt:      o.CreatedAt.Format(time.RFC3339),
		totalsResponse: totals(o.Totals),
	}
	if v.Session != nil && o.Status == models.OrderAwaitingPayment {
		resp.CheckoutURL = v.Session.CheckoutURL
	}
	return resp
}

// fail maps service errors to responses; anything unexpected is logged and
// answered with a generic message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, services.ErrMissingUserID):
		writeError(w, http.StatusUnauthorized, "missing user id")
	case errors.Is(err, store.ErrNotFound), errors.Is(err, services.ErrNotOwner):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrInvalidAmount), errors.Is(err, services.ErrInvalidTransport):
		writeError(w, http.StatusBadRequest, errors.Cause(err).Error())
	default:
		h.Log.WithError(err).WithField("path", r.URL.Path).Error(what + " failed")
		writeError(w, http.StatusInternalServerError, what+" failed")
	}
}

func orderNumber(r *http.Request) (int64, bool) {
	n, err := strconv.ParseInt(chi.URLParam(r, "number"), 10, 64)
	return n, err == nil && n > 0
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.GetCart(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, err, "get cart")
		return
	}
	writeJSON(w, http.StatusOK, toCart(c))
}

func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	var req addLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductRef <= 0 {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	c, err := h.Carts.Add(r.Context(), userID(r), req.Kind, req.ProductRef, fast(r))
	if err != nil {
		h.fail(w, r, err, "add to cart")
		return
	}
	writeJSON(w, http.StatusAccepted, toCart(c))
}

func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	lineID, err := strconv.ParseInt(chi.URLParam(r, "lineId"), 10, 64)
	if err != nil || lineID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid line id")
		return
	}
	c, err := h.Carts.Remove(r.Context(), userID(r), lineID, fast(r))
	if err != nil {
		h.fail(w, r, err, "remove from cart")
		return
	}
	writeJSON(w, http.StatusAccepted, toCart(c))
}

func (h *Handler) ChooseTransport(w http.ResponseWriter, r *http.Request) {
	var req transportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	c, err := h.Carts.ChooseTransport(r.Context(), userID(r), req.Transport, fast(r))
	if err != nil {
		h.fail(w, r, err, "choose transport")
		return
	}
	writeJSON(w, http.StatusAccepted, toCart(c))
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if err := h.Carts.Checkout(r.Context(), uid, fast(r)); err != nil {
		h.fail(w, r, err, "checkout")
		return
	}
	h.listOrders(w, r, uid, http.StatusAccepted)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, userID(r), http.StatusOK)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request, uid int64, status int) {
	orders, err := h.Orders.ListOrders(r.Context(), uid)
	if err != nil {
		h.fail(w, r, err, "list orders")
		return
	}
	out := make([]orderSummary, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderSummary{
			Number:    o.Number,
			Status:    string(o.Status),
			Total:     o.Total,
			CreatedAt: o.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, status, out)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	number, ok := orderNumber(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order number")
		return
	}
	uid := userID(r)
	if uid == 0 {
		h.fail(w, r, services.ErrMissingUserID, "get order")
		return
	}
	v, err := h.Orders.GetOrder(r.Context(), number)
	if err == nil && v.Order.BuyerID != uid {
		err = services.ErrNotOwner
	}
	if err != nil {
		h.fail(w, r, err, "get order")
		return
	}
	writeJSON(w, http.StatusOK, toOrder(v))
}

func (h *Handler) StartPayment(w http.ResponseWriter, r *http.Request) {
	number, ok := orderNumber(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order number")
		return
	}
	v, err := h.Orders.StartPayment(r.Context(), userID(r), number, fast(r))
	if err != nil {
		h.fail(w, r, err, "start payment")
		return
	}
	writeJSON(w, http.StatusAccepted, toOrder(v))
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	number, ok := orderNumber(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order number")
		return
	}
	var req cancelRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}
	v, err := h.Orders.Cancel(r.Context(), userID(r), number, req.Reason, fast(r))
	if err != nil {
		h.fail(w, r, err, "cancel order")
		return
	}
	writeJSON(w, http.StatusAccepted, toOrder(v))
}

func (h *Handler) ManualPayment(w http.ResponseWriter, r *http.Request) {
	number, ok := orderNumber(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order number")
		return
	}
	var req manualPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	v, err := h.Orders.RecordManualPayment(r.Context(), number, req.Reference, req.Amount, req.Refund, req.Note, fast(r))
	if err != nil {
		h.fail(w, r, err, "manual payment")
		return
	}
	writeJSON(w, http.StatusAccepted, toOrder(v))
}

func (h *Handler) Workers(w http.ResponseWriter, r *http.Request) {
	states, err := h.Orders.WorkerStates(r.Context())
	if err != nil {
		h.fail(w, r, err, "worker states")
		return
	}
	type workerResponse struct {
		Name       string `json:"name"`
		Pings      int64  `json:"pings"`
		Processed  int64  `json:"processed"`
		LastSeenID int64  `json:"lastSeenId"`
		UpdatedAt  string `json:"updatedAt,omitempty"`
	}
	out := make([]workerResponse, 0, len(states))
	for _, st := range states {
		wr := workerResponse{Name: st.Name, Pings: st.Pings, Processed: st.Processed, LastSeenID: st.LastSeenID}
		if !st.UpdatedAt.IsZero() {
			wr.UpdatedAt = st.UpdatedAt.Format(time.RFC3339)
		}
		out = append(out, wr)
	}
	writeJSON(w, http.StatusOK, out)
}
