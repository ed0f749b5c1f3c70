package selector

import "theta_watcher/internal/models"

// ConservativeFill prices a SELL at mid minus slippage, clipped into
// [bid, ask] when those exist. Without a mid it falls back to the bid.
// ok is false when no price can be derived or the result is not positive.
func ConservativeFill(bid, ask, mid *float64, slippage float64) (float64, bool) {
	if mid == nil && bid != nil && ask != nil {
		m := (*bid + *ask) / 2
		mid = &m
	}

	var px float64
	switch {
	case mid != nil:
		px = *mid - slippage
		if ask != nil && px > *ask {
			px = *ask
		}
		if bid != nil && px < *bid {
			px = *bid
		}
	case bid != nil:
		px = *bid
	default:
		return 0, false
	}

	px = models.Round(px, 2)
	if px <= 0 {
		return 0, false
	}
	return px, true
}

// Fill prices the credit for a Pick.
func (p Pick) Fill(slippage float64) (float64, bool) {
	mid := p.Mid
	return ConservativeFill(p.Bid, p.Ask, &mid, slippage)
}
