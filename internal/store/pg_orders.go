package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"

	"github.com/jackc/pgx/v5"
)

const lineColumns = `id, kind, product_ref, receiver_id, description, price,
	discount, tax_rate, fulfillment, created_at`

const orderColumns = `id, number, buyer_id, receiver_id, transport, subtotal,
	shipping_cost, tax, total, status, log, payment_session_id, created_at, updated_at`

func (t *pgTx) GetCart(ctx context.Context, userID int64) (*models.Cart, error) {
	var c models.Cart
	var tax []byte
	err := t.tx.QueryRow(ctx, `
		SELECT id, user_id, transport, subtotal, shipping_cost, tax, total,
			created_at, updated_at
		FROM carts WHERE user_id=$1
	`, userID).Scan(
		&c.ID,
		&c.UserID,
		&c.Transport,
		&c.Subtotal,
		&c.ShippingCost,
		&tax,
		&c.Total,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(tax, &c.Tax); err != nil {
		return nil, err
	}
	c.Lines, err = t.lines(ctx, `cart_id`, c.ID)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *pgTx) CreateCart(ctx context.Context, cart *models.Cart) error {
	if cart.Transport == "" {
		cart.Transport = models.TransportNone
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO carts (user_id, transport) VALUES ($1,$2)
		RETURNING id, created_at, updated_at
	`, cart.UserID, cart.Transport).Scan(&cart.ID, &cart.CreatedAt, &cart.UpdatedAt)
	return conflict(err, fmt.Sprintf("cart of user %d", cart.UserID))
}

func (t *pgTx) SaveCart(ctx context.Context, cart *models.Cart) error {
	tax, err := json.Marshal(cart.Tax)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE carts
		SET transport=$2, subtotal=$3, shipping_cost=$4, tax=$5, total=$6, updated_at=now()
		WHERE id=$1
	`, cart.ID, cart.Transport, cart.Subtotal, cart.ShippingCost, tax, cart.Total)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	for _, l := range cart.Lines {
		if _, err := t.tx.Exec(ctx, `
			UPDATE line_items SET discount=$3 WHERE id=$1 AND cart_id=$2
		`, l.ID, cart.ID, l.Discount); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) AddCartLine(ctx context.Context, cartID int64, l *models.LineItem) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO line_items (
			cart_id, kind, product_ref, receiver_id, description,
			price, discount, tax_rate, fulfillment
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id, created_at
	`,
		cartID,
		l.Kind,
		l.ProductRef,
		l.ReceiverID,
		l.Description,
		l.Price,
		l.Discount,
		l.TaxRate,
		l.Fulfillment,
	).Scan(&l.ID, &l.CreatedAt)
}

func (t *pgTx) DeleteCartLine(ctx context.Context, cartID, lineID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM line_items WHERE id=$1 AND cart_id=$2`, lineID, cartID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) MoveLinesToOrder(ctx context.Context, orderID int64, lineIDs []int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE line_items SET cart_id=NULL, order_id=$1
		WHERE id = ANY($2) AND cart_id IS NOT NULL
	`, orderID, lineIDs)
	return err
}

func (t *pgTx) PurgeEmptyCarts(ctx context.Context, untouchedSince time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM carts c
		WHERE c.updated_at < $1
		  AND NOT EXISTS (SELECT 1 FROM line_items l WHERE l.cart_id = c.id)
	`, untouchedSince)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) CreateOrder(ctx context.Context, o *models.Order) error {
	tax, err := json.Marshal(o.Tax)
	if err != nil {
		return err
	}
	err = t.tx.QueryRow(ctx, `
		INSERT INTO orders (
			number, buyer_id, receiver_id, transport, subtotal,
			shipping_cost, tax, total, status, log, payment_session_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, created_at, updated_at
	`,
		o.Number,
		o.BuyerID,
		o.ReceiverID,
		o.Transport,
		o.Subtotal,
		o.ShippingCost,
		tax,
		o.Total,
		o.Status,
		o.Log,
		o.PaymentSessionID,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	return conflict(err, fmt.Sprintf("order number %d", o.Number))
}

func (t *pgTx) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return t.getOrder(ctx, `id`, id)
}

func (t *pgTx) GetOrderByNumber(ctx context.Context, number int64) (*models.Order, error) {
	return t.getOrder(ctx, `number`, number)
}

func (t *pgTx) getOrder(ctx context.Context, column string, v int64) (*models.Order, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+column+`=$1`, v)
	o, err := scanOrder(row)
	if err != nil {
		return nil, notFound(err)
	}
	o.Lines, err = t.lines(ctx, `order_id`, o.ID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (t *pgTx) ListOrdersByBuyer(ctx context.Context, buyerID int64) ([]*models.Order, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE buyer_id=$1 ORDER BY number DESC
	`, buyerID)
	if err != nil {
		return nil, err
	}
	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range orders {
		if o.Lines, err = t.lines(ctx, `order_id`, o.ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (t *pgTx) SaveOrder(ctx context.Context, o *models.Order) error {
	tax, err := json.Marshal(o.Tax)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET transport=$2, subtotal=$3, shipping_cost=$4, tax=$5, total=$6,
			status=$7, log=$8, payment_session_id=$9, updated_at=now()
		WHERE id=$1
	`,
		o.ID,
		o.Transport,
		o.Subtotal,
		o.ShippingCost,
		tax,
		o.Total,
		o.Status,
		o.Log,
		o.PaymentSessionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) lines(ctx context.Context, column string, id int64) ([]*models.LineItem, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+lineColumns+` FROM line_items WHERE `+column+`=$1 ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.LineItem
	for rows.Next() {
		var l models.LineItem
		if err := rows.Scan(
			&l.ID,
			&l.Kind,
			&l.ProductRef,
			&l.ReceiverID,
			&l.Description,
			&l.Price,
			&l.Discount,
			&l.TaxRate,
			&l.Fulfillment,
			&l.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	var tax []byte
	if err := row.Scan(
		&o.ID,
		&o.Number,
		&o.BuyerID,
		&o.ReceiverID,
		&o.Transport,
		&o.Subtotal,
		&o.ShippingCost,
		&tax,
		&o.Total,
		&o.Status,
		&o.Log,
		&o.PaymentSessionID,
		&o.CreatedAt,
		&o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tax, &o.Tax); err != nil {
		return nil, err
	}
	return &o, nil
}
