package watcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"theta_watcher/internal/lifecycle"
	"theta_watcher/internal/market"
	"theta_watcher/internal/metrics"
	"theta_watcher/internal/models"
	"theta_watcher/internal/portfolio"
)

const defaultLimitPrice = 0.50

// CloseTrade closes the position with the given id (or unique id prefix),
// fully or by half.
func (w *Watcher) CloseTrade(id string, full bool) (models.Position, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, err := w.findLocked(id)
	if err != nil {
		return models.Position{}, err
	}
	if p.Closed {
		return *p, fmt.Errorf("%s: %w", p.Symbol, models.ErrPositionClosed)
	}

	if full {
		lifecycle.CloseFull(p, w.now())
		w.logLocked(models.LevelInfo, "Closed "+p.Symbol, false)
		metrics.ManualCloses.WithLabelValues("full").Inc()
	} else {
		lifecycle.ClosePartial(p)
		w.logLocked(models.LevelInfo, "Partially closed "+p.Symbol, false)
		metrics.ManualCloses.WithLabelValues("partial").Inc()
	}
	lifecycle.Normalize(p, w.params)
	w.state.Risk = portfolio.Risk(w.state.Positions, w.config.Engine.StartingBalance)

	out := *p
	w.saveLocked()
	return out, nil
}

// SubmitOrder sends a one-contract short put limit order for the position
// to the broker. The returned status is also written to the action log.
// Only a confirmed live order stamps the broker order id on the position.
func (w *Watcher) SubmitOrder(ctx context.Context, id string) (string, error) {
	w.mu.Lock()
	p, err := w.findLocked(id)
	if err != nil {
		w.mu.Unlock()
		return "", err
	}
	pos := *p
	w.mu.Unlock()

	req := models.OrderRequest{
		Position:   pos,
		Quantity:   1,
		LimitPrice: limitPrice(pos),
		DryRun:     w.config.DryRunDefault(),
	}

	var receipt models.OrderReceipt
	switch {
	case pos.Closed:
		err = fmt.Errorf("%s: %w", pos.Symbol, models.ErrPositionClosed)
	case w.broker == nil:
		err = errors.New("broker not configured")
	case strings.TrimSpace(pos.OptionSymbol) == "":
		err = fmt.Errorf("%s: %w", pos.Symbol, models.ErrMissingContract)
	default:
		cctx, cancel := w.timeout(ctx)
		receipt, err = w.broker.SubmitShortPut(cctx, req)
		cancel()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		msg := fmt.Sprintf("Broker error: %v", err)
		w.logLocked(models.LevelError, msg, true)
		metrics.Orders.WithLabelValues("error").Inc()
		w.saveLocked()
		return msg, err
	}

	var msg string
	if req.DryRun {
		msg = fmt.Sprintf("Order DRY-RUN: STO 1 %s @ %.2f — validated (Sandbox/Paper)", pos.OptionSymbol, req.LimitPrice)
		metrics.Orders.WithLabelValues("dry_run").Inc()
	} else {
		msg = fmt.Sprintf("Sent STO 1 %s @ %.2f (Paper/Live). Check Orders.", pos.OptionSymbol, req.LimitPrice)
		metrics.Orders.WithLabelValues("sent").Inc()
		if cur := w.state.Find(pos.ID); cur != nil && receipt.ID != "" {
			cur.BrokerOrderID = receipt.ID
		}
	}
	w.logLocked(models.LevelSuccess, msg, true)
	w.saveLocked()
	return msg, nil
}

// OrderStatus asks the broker for the state of the position's live order.
func (w *Watcher) OrderStatus(id string) (string, error) {
	orderID, tracker, err := w.trackedOrder(id)
	if err != nil {
		return "", err
	}
	return tracker.OrderStatus(orderID)
}

// CancelOrder cancels the position's live order and clears its order id.
// The position itself stays open.
func (w *Watcher) CancelOrder(id string) (string, error) {
	orderID, tracker, err := w.trackedOrder(id)
	if err != nil {
		return "", err
	}

	cancelErr := tracker.CancelOrder(orderID)

	w.mu.Lock()
	defer w.mu.Unlock()
	if cancelErr != nil {
		msg := fmt.Sprintf("Cancel failed for order %s: %v", orderID, cancelErr)
		w.logLocked(models.LevelError, msg, true)
		metrics.Orders.WithLabelValues("cancel_error").Inc()
		w.saveLocked()
		return msg, cancelErr
	}

	symbol := ""
	for i := range w.state.Positions {
		if w.state.Positions[i].BrokerOrderID == orderID {
			w.state.Positions[i].BrokerOrderID = ""
			symbol = w.state.Positions[i].Symbol
		}
	}
	msg := fmt.Sprintf("Cancelled order %s for %s", orderID, symbol)
	w.logLocked(models.LevelInfo, msg, true)
	metrics.Orders.WithLabelValues("cancelled").Inc()
	w.saveLocked()
	return msg, nil
}

func (w *Watcher) trackedOrder(id string) (string, market.OrderTracker, error) {
	w.mu.Lock()
	p, err := w.findLocked(id)
	if err != nil {
		w.mu.Unlock()
		return "", nil, err
	}
	orderID, symbol := p.BrokerOrderID, p.Symbol
	w.mu.Unlock()

	if orderID == "" {
		return "", nil, fmt.Errorf("%w: %s has no broker order", models.ErrInvalidInput, symbol)
	}
	tracker, ok := w.broker.(market.OrderTracker)
	if !ok {
		return "", nil, errors.New("broker cannot track orders")
	}
	return orderID, tracker, nil
}

// limitPrice is the current mark, else the entry credit, else 0.50.
func limitPrice(p models.Position) float64 {
	switch {
	case p.CurrentMark > 0:
		return p.CurrentMark
	case p.InitialCredit > 0:
		return p.InitialCredit
	default:
		return defaultLimitPrice
	}
}

// findLocked resolves an exact id or a unique id prefix.
func (w *Watcher) findLocked(id string) (*models.Position, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty position id", models.ErrInvalidInput)
	}
	if p := w.state.Find(id); p != nil {
		return p, nil
	}

	var found *models.Position
	for i := range w.state.Positions {
		if strings.HasPrefix(w.state.Positions[i].ID, id) {
			if found != nil {
				return nil, fmt.Errorf("%w: id prefix %s is ambiguous", models.ErrInvalidInput, id)
			}
			found = &w.state.Positions[i]
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%s: %w", id, models.ErrPositionNotFound)
	}
	return found, nil
}
