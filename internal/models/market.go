package models

import "time"

// OptionQuote is the canonical option record every chain source is
// normalized into. Optional values are nil when the source lacks them.
type OptionQuote struct {
	Symbol     string   // contract symbol, may be empty
	Underlying string   // underlying ticker, may be empty
	Type       string   // "put" or "call"
	Strike     *float64 //
	DTE        *float64 // explicit days to expiration, when the source has it
	Expiration string   // YYYY-MM-DD
	Delta      *float64
	Bid        *float64
	Ask        *float64
	Mark       *float64 // mark/last/theoretical fallback price
}

// Candidate is an ephemeral trade proposal produced by a scan.
type Candidate struct {
	ID           string  `json:"id"`
	Strategy     string  `json:"strategy_type"`
	Symbol       string  `json:"symbol"`
	Price        float64 `json:"price"`
	Strike       float64 `json:"strike"`
	DTE          int     `json:"dte"`
	Delta        float64 `json:"delta"`
	IVRank       float64 `json:"iv_rank"`
	Credit       float64 `json:"credit"`
	Expiration   string  `json:"expiration,omitempty"`
	OptionSymbol string  `json:"option_symbol,omitempty"`
	Live         bool    `json:"live"`
}

// OrderRequest is a decided short-put order handed to the broker.
type OrderRequest struct {
	Position   Position
	Quantity   int
	LimitPrice float64
	DryRun     bool
}

// OrderReceipt is what a broker returns once it has accepted an order.
type OrderReceipt struct {
	ID          string
	Symbol      string
	Status      string
	SubmittedAt time.Time
}
