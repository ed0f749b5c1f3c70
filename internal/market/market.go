package market

import (
	"context"

	"theta_watcher/internal/models"
)

// DataSource is where the engine reads quotes from.
// Implementations should honour ctx deadlines; callers treat any error as
// "data unavailable" and fall back to simulated or neutral values.
type DataSource interface {
	// Price returns the latest underlying price.
	Price(ctx context.Context, symbol string) (float64, error)
	// Chain returns the option chain for an underlying, already normalized.
	Chain(ctx context.Context, symbol string) ([]models.OptionQuote, error)
	// IVRank returns the IV rank (0-100), or nil when the source has none.
	IVRank(ctx context.Context, symbol string) (*float64, error)
}

// Broker accepts an already decided short put order.
type Broker interface {
	SubmitShortPut(ctx context.Context, req models.OrderRequest) (models.OrderReceipt, error)
}

// OrderTracker is implemented by brokers that can look up and cancel
// orders they accepted.
type OrderTracker interface {
	OrderStatus(orderID string) (string, error)
	CancelOrder(orderID string) error
}
