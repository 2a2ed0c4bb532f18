package exchange

import "context"

// MarketDataSource supplies recent market bars. A nil bar with a nil
// error means no data exists for the symbol.
type MarketDataSource interface {
	GetLatestBar(ctx context.Context, symbol, timeframe string) (*Bar, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Bar, error)
}

// OrderPlacer places orders on the exchange. PlaceOrder is single-shot
// and honors the context deadline; it is never retried internally.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, params OrderParams) (*OrderResult, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}

// Client is the full exchange surface consumed by the system
type Client interface {
	MarketDataSource
	OrderPlacer
	GetPrice(ctx context.Context, symbol string) (float64, error)
}
