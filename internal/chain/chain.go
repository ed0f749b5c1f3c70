// Package chain turns option chains of any shape into models.OptionQuote.
//
// Different sources nest contracts differently and name the same field in
// different ways. Normalize walks a decoded JSON value recursively and picks
// up every object that looks like an option contract; nothing outside this
// package needs to know about those shapes.
package chain

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"theta_watcher/internal/models"
)

var (
	strikeKeys     = []string{"strike", "strike_price", "strike-price"}
	typeKeys       = []string{"option_type", "put_call", "putCall", "call_or_put", "option-type"}
	deltaKeys      = []string{"delta", "theoretical_delta", "option_delta"}
	bidKeys        = []string{"bid", "bid_price", "bidPrice"}
	askKeys        = []string{"ask", "ask_price", "askPrice"}
	markKeys       = []string{"mark", "last", "theoretical_price", "mark_price"}
	expirationKeys = []string{"expiration", "expiration_date", "expiration-date"}
	symbolKeys     = []string{"put", "symbol"}
)

// Normalize yields every put or call contract found anywhere in nested.
// Order follows a depth-first walk. Object keys are visited in document
// order when nested came from Decode, and in sorted order for plain maps.
func Normalize(nested any) []models.OptionQuote {
	var out []models.OptionQuote
	walk(nested, &out)
	return out
}

// Decode parses raw JSON keeping object key order, then normalizes it.
func Decode(raw []byte) ([]models.OptionQuote, error) {
	v, err := decodeOrdered(raw)
	if err != nil {
		return nil, err
	}
	return Normalize(v), nil
}

func walk(v any, out *[]models.OptionQuote) {
	switch node := v.(type) {
	case Object:
		row := node.Map()
		if q, ok := toQuote(row); ok {
			*out = append(*out, q)
		}
		for _, kv := range node {
			walk(kv.Value, out)
		}
	case map[string]any:
		if q, ok := toQuote(node); ok {
			*out = append(*out, q)
		}
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(node[k], out)
		}
	case []any:
		for _, child := range node {
			walk(child, out)
		}
	}
}

func toQuote(row map[string]any) (models.OptionQuote, bool) {
	if !hasAny(row, strikeKeys) {
		return models.OptionQuote{}, false
	}
	kind := optionType(row)
	if kind == "" {
		return models.OptionQuote{}, false
	}

	q := models.OptionQuote{
		Type:       kind,
		Strike:     firstFloat(row, strikeKeys),
		Delta:      firstFloat(row, deltaKeys),
		Bid:        firstFloat(row, bidKeys),
		Ask:        firstFloat(row, askKeys),
		Mark:       firstFloat(row, markKeys),
		Expiration: firstString(row, expirationKeys),
		Symbol:     firstString(row, symbolKeys),
	}
	if dte, ok := row["dte"]; ok && dte != nil {
		q.DTE = asFloat(dte)
	}
	return q, true
}

func optionType(row map[string]any) string {
	for _, k := range typeKeys {
		s, ok := row[k].(string)
		if !ok {
			continue
		}
		switch strings.ToLower(s) {
		case "put", "p":
			return "put"
		case "call", "c":
			return "call"
		}
	}
	return ""
}

func hasAny(row map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := row[k]; ok {
			return true
		}
	}
	return false
}

// firstFloat returns the first key that holds a usable number.
func firstFloat(row map[string]any, keys []string) *float64 {
	for _, k := range keys {
		v, ok := row[k]
		if !ok || v == nil {
			continue
		}
		if f := asFloat(v); f != nil {
			return f
		}
	}
	return nil
}

func firstString(row map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := row[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func asFloat(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case float32:
		f := float64(n)
		return &f
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return &f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return &f
		}
	}
	return nil
}
