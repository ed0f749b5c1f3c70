package chain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Contract is the decoded form of an OCC option symbol.
type Contract struct {
	Root       string
	Expiration time.Time
	Type       string // "put" or "call"
	Strike     float64
}

// ParseOCC decodes symbols like "AAPL241220P00150000":
// root, YYMMDD expiration, P/C, strike x1000 in 8 digits.
func ParseOCC(symbol string) (Contract, error) {
	s := strings.ReplaceAll(strings.TrimSpace(symbol), " ", "")
	if len(s) < 16 {
		return Contract{}, fmt.Errorf("occ symbol %q too short", symbol)
	}

	tail := s[len(s)-15:]
	root := s[:len(s)-15]
	if root == "" {
		return Contract{}, fmt.Errorf("occ symbol %q has no root", symbol)
	}

	exp, err := time.Parse("060102", tail[:6])
	if err != nil {
		return Contract{}, fmt.Errorf("occ symbol %q: bad expiration: %w", symbol, err)
	}

	var kind string
	switch tail[6] {
	case 'P', 'p':
		kind = "put"
	case 'C', 'c':
		kind = "call"
	default:
		return Contract{}, fmt.Errorf("occ symbol %q: bad type %q", symbol, tail[6])
	}

	milli, err := strconv.ParseInt(tail[7:], 10, 64)
	if err != nil {
		return Contract{}, fmt.Errorf("occ symbol %q: bad strike: %w", symbol, err)
	}

	return Contract{
		Root:       root,
		Expiration: exp,
		Type:       kind,
		Strike:     float64(milli) / 1000,
	}, nil
}
