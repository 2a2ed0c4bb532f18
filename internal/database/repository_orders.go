package database

import (
	"context"
	"time"

	"signal-trading-engine/internal/exchange"
)

// OrderRecord is a persisted exchange-confirmed order
type OrderRecord struct {
	ID              int64     `json:"id"`
	ExchangeOrderID int64     `json:"exchange_order_id"`
	ClientOrderID   string    `json:"client_order_id"`
	Symbol          string    `json:"symbol"`
	Side            string    `json:"side"`
	Status          string    `json:"status"`
	Quantity        float64   `json:"quantity"`
	Price           float64   `json:"price"`
	PlacedAt        time.Time `json:"placed_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// OrderRepository persists confirmed orders. It satisfies the trade
// engine's order store.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository creates an order repository
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// SaveOrder inserts an exchange-confirmed order
func (r *OrderRepository) SaveOrder(ctx context.Context, order *exchange.OrderResult) error {
	query := `
		INSERT INTO orders (exchange_order_id, client_order_id, symbol, side, status, quantity, price, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	var id int64
	return r.db.Pool.QueryRow(
		ctx, query,
		order.OrderID, order.ClientOrderID, order.Symbol, string(order.Side),
		string(order.Status), order.Quantity, order.Price, order.Timestamp,
	).Scan(&id)
}

// GetOrdersBySymbol retrieves recent orders for a symbol
func (r *OrderRepository) GetOrdersBySymbol(ctx context.Context, symbol string, limit int) ([]OrderRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, exchange_order_id, client_order_id, symbol, side, status, quantity, price, placed_at, created_at
		FROM orders
		WHERE symbol = $1
		ORDER BY placed_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []OrderRecord
	for rows.Next() {
		var rec OrderRecord
		if err := rows.Scan(
			&rec.ID, &rec.ExchangeOrderID, &rec.ClientOrderID, &rec.Symbol, &rec.Side,
			&rec.Status, &rec.Quantity, &rec.Price, &rec.PlacedAt, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
