package market

import (
	"fmt"
	"strings"
)

// Instrument is a normalized security key: exchange market plus numeric code.
type Instrument struct {
	Market string `json:"market"` // "sh", "sz" or "bj"
	Code   string `json:"code"`
}

// Key is the canonical lowercase identifier, e.g. "sh600519".
func (i Instrument) Key() string { return i.Market + i.Code }

func (i Instrument) String() string { return i.Key() }

// ParseInstrument resolves a user-supplied symbol into exactly one market.
// An explicit "sh"/"sz"/"bj" prefix always wins. Bare six-digit codes are
// classified by first digit with a fixed precedence, never by probing
// providers, so the same input always maps to the same market:
//
//	6, 9, 5 -> sh    0, 2, 3 -> sz    4, 8 -> bj
func ParseInstrument(symbol string) (Instrument, error) {
	s := strings.ToLower(strings.TrimSpace(symbol))
	if s == "" {
		return Instrument{}, fmt.Errorf("empty symbol")
	}
	for _, m := range []string{"sh", "sz", "bj"} {
		if strings.HasPrefix(s, m) {
			code := strings.TrimPrefix(s, m)
			if !isNumeric(code) || len(code) != 6 {
				return Instrument{}, fmt.Errorf("invalid symbol: %s", symbol)
			}
			return Instrument{Market: m, Code: code}, nil
		}
	}
	if !isNumeric(s) || len(s) != 6 {
		return Instrument{}, fmt.Errorf("invalid symbol: %s", symbol)
	}
	switch s[0] {
	case '6', '9', '5':
		return Instrument{Market: "sh", Code: s}, nil
	case '0', '2', '3':
		return Instrument{Market: "sz", Code: s}, nil
	case '4', '8':
		return Instrument{Market: "bj", Code: s}, nil
	}
	return Instrument{}, fmt.Errorf("unclassifiable symbol: %s", symbol)
}

// ParseInstruments resolves a list, rejecting the whole batch on the first
// bad symbol so a typo surfaces before any provider is called.
func ParseInstruments(symbols []string) ([]Instrument, error) {
	out := make([]Instrument, 0, len(symbols))
	for _, s := range symbols {
		inst, err := ParseInstrument(s)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
