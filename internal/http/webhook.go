package http

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
)

// webhookBodyLimit caps what a caller may make us read.
const webhookBodyLimit = 16 << 10

type webhookPayload struct {
	ID            string `json:"id"`
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
}

// PaymentWebhook accepts the notification a CPSP sends when a payment
// changes. The answer is always 200 so unknown ids reveal nothing and the
// provider does not retry.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	id := webhookPaymentID(r)
	queued, err := h.Orders.PaymentWebhook(r.Context(), id)
	if err != nil {
		h.Log.WithError(err).Error("payment webhook failed")
	} else if queued {
		h.Log.WithField("payment", id).Debug("payment refresh queued")
	}
	w.WriteHeader(http.StatusOK)
}

// webhookPaymentID reads the payment id from a form post (id=...) or from
// a JSON notification body.
func webhookPaymentID(r *http.Request) string {
	body, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		return ""
	}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var p webhookPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return ""
		}
		switch {
		case p.ID != "":
			return p.ID
		case p.OrderID != "":
			return p.OrderID
		}
		return p.TransactionID
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return ""
	}
	return form.Get("id")
}
