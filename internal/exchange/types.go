package exchange

import "time"

// Side is the order direction
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is the order execution type
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus mirrors the exchange-side order state
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// Bar is one OHLCV candle
type Bar struct {
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderParams describes an order to be placed
type OrderParams struct {
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Type          OrderType `json:"type"`
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price,omitempty"` // limit orders only
	Leverage      int       `json:"leverage,omitempty"`
	ReduceOnly    bool      `json:"reduce_only,omitempty"`
	ClientOrderID string    `json:"client_order_id,omitempty"`
}

// OrderResult is the exchange's answer to a placement. Status REJECTED
// comes back as a result, not an error, so the raw rejection survives
// for audit.
type OrderResult struct {
	OrderID       int64       `json:"order_id"`
	ClientOrderID string      `json:"client_order_id,omitempty"`
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	Status        OrderStatus `json:"status"`
	Quantity      float64     `json:"quantity"`
	Price         float64     `json:"price,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
	Error         string      `json:"error,omitempty"`
}
