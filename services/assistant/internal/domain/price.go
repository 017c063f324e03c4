package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Price is a currency amount. The backend sends prices as display text
// ("$19.99") or as bare numbers; both decode to the same value.
type Price struct {
	amount decimal.Decimal
}

// NewPrice wraps a decimal amount.
func NewPrice(amount decimal.Decimal) Price {
	return Price{amount: amount}
}

// ParsePrice parses "$1,299.00", "19.99" or " $5 ". An empty string is zero.
func ParsePrice(s string) (Price, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return Price{}, nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, fmt.Errorf("parse price %q: %w", s, err)
	}
	return Price{amount: d}, nil
}

// MustParsePrice is ParsePrice for literals known to be valid.
func MustParsePrice(s string) Price {
	p, err := ParsePrice(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Amount returns the underlying decimal.
func (p Price) Amount() decimal.Decimal { return p.amount }

// IsZero reports whether the price is zero.
func (p Price) IsZero() bool { return p.amount.IsZero() }

// Add returns p + o.
func (p Price) Add(o Price) Price { return Price{amount: p.amount.Add(o.amount)} }

// Times returns the price of n units.
func (p Price) Times(n int) Price {
	return Price{amount: p.amount.Mul(decimal.NewFromInt(int64(n)))}
}

// Equal compares amounts, ignoring scale.
func (p Price) Equal(o Price) bool { return p.amount.Equal(o.amount) }

// String renders the price as display text, e.g. "$19.99".
func (p Price) String() string {
	return "$" + p.amount.StringFixed(2)
}

// MarshalJSON encodes the price as its display text.
func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts a display string, a number, or null.
func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = Price{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParsePrice(s)
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	}

	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("parse price %s: %w", data, err)
	}
	*p = Price{amount: d}
	return nil
}
