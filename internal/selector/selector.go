// Package selector picks the short put that best fits a delta band and a
// days-to-expiration window, and prices a conservative credit for it.
package selector

import (
	"math"
	"time"

	"theta_watcher/internal/models"
)

// Window is the acceptable delta band (absolute delta) and DTE range.
type Window struct {
	DeltaMin float64
	DeltaMax float64
	DTEMin   int
	DTEMax   int
}

// Pick is the chosen contract.
type Pick struct {
	Strike     float64
	DTE        int
	Delta      float64 // as quoted, usually negative for puts
	Bid        *float64
	Ask        *float64
	Mid        float64
	Expiration string
	Symbol     string
	Score      float64
}

// Result is either Found with a Pick or not found.
type Result struct {
	Found bool
	Pick  Pick
}

// Select scans quotes for puts inside w and keeps the lowest score:
//
//	100*|delta - targetDelta| + 0.5*|dte - targetDTE|
//
// where targets are the window midpoints. Ties keep the first match.
func Select(quotes []models.OptionQuote, w Window, today time.Time) Result {
	targetDelta := (w.DeltaMin + w.DeltaMax) / 2
	targetDTE := (w.DTEMin + w.DTEMax) / 2

	var best Result
	bestScore := math.Inf(1)

	for _, q := range quotes {
		if q.Type != "put" {
			continue
		}

		dte, ok := daysToExpiration(q, today)
		if !ok || dte < w.DTEMin || dte > w.DTEMax {
			continue
		}

		if q.Delta == nil {
			continue
		}
		absDelta := math.Abs(*q.Delta)
		if absDelta < w.DeltaMin || absDelta > w.DeltaMax {
			continue
		}

		mid, ok := midPrice(q)
		if !ok || q.Strike == nil {
			continue
		}

		score := math.Abs(absDelta-targetDelta)*100 + math.Abs(float64(dte-targetDTE))*0.5
		if score < bestScore {
			bestScore = score
			best = Result{
				Found: true,
				Pick: Pick{
					Strike:     models.Round(*q.Strike, 2),
					DTE:        dte,
					Delta:      *q.Delta,
					Bid:        q.Bid,
					Ask:        q.Ask,
					Mid:        mid,
					Expiration: q.Expiration,
					Symbol:     q.Symbol,
					Score:      score,
				},
			}
		}
	}
	return best
}

// daysToExpiration prefers an explicit DTE, else counts whole days from
// today to the expiration date.
func daysToExpiration(q models.OptionQuote, today time.Time) (int, bool) {
	if q.DTE != nil {
		return int(*q.DTE), true
	}
	if q.Expiration == "" {
		return 0, false
	}
	exp, err := time.Parse("2006-01-02", q.Expiration)
	if err != nil {
		return 0, false
	}
	y, m, d := today.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(math.Round(exp.Sub(start).Hours() / 24)), true
}

// midPrice averages bid and ask, falling back to the mark/last price.
func midPrice(q models.OptionQuote) (float64, bool) {
	if q.Bid != nil && q.Ask != nil {
		return models.Round((*q.Bid+*q.Ask)/2, 2), true
	}
	if q.Mark != nil {
		return *q.Mark, true
	}
	return 0, false
}
