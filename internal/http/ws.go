package http

import (
	"context"
	"net/http"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/services"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type statusMessage struct {
	Number   int64           `json:"number"`
	Status   string          `json:"status"`
	Total    decimal.Decimal `json:"total"`
	Received decimal.Decimal `json:"received"`
}

// StatusStream pushes the order status every time it changes and closes
// once the order reached PAID or CANCELLED.
func (h *Handler) StatusStream(w http.ResponseWriter, r *http.Request) {
	number, ok := orderNumber(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order number")
		return
	}
	uid := userID(r)
	v, err := h.Orders.GetOrder(r.Context(), number)
	if err == nil && v.Order.BuyerID != uid {
		err = services.ErrNotOwner
	}
	if uid == 0 {
		err = services.ErrMissingUserID
	}
	if err != nil {
		h.fail(w, r, err, "status stream")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the request
		h.Log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		// the client never sends anything; a read error means it left
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log := h.Log.WithField("order", number)
	h.stream(ctx, conn, log, number, v)
}

func (h *Handler) stream(ctx context.Context, conn *websocket.Conn, log logrus.FieldLogger, number int64, v *services.OrderView) {
	poll := h.StatusPoll
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	last := ""
	for {
		if status := string(v.Order.Status); status != last {
			msg := statusMessage{Number: number, Status: status, Total: v.Order.Total, Received: v.Payment.Received}
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("status stream write failed")
				return
			}
			last = status
		}
		if v.Order.Status.Terminal() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "final"), time.Now().Add(time.Second))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		next, err := h.Orders.GetOrder(ctx, number)
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Warn("status stream read failed")
			}
			return
		}
		v = next
	}
}
