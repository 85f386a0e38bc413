package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var ErrInvalidAmount = errors.New("invalid monetary amount")

// Money is a fixed-point monetary value held as cents. Summation over cents
// cannot drift the way binary floating point does, so running totals stay
// exact to the two decimals the UI displays.
type Money struct {
	Cents int64
}

func FromCents(cents int64) Money {
	return Money{Cents: cents}
}

// ParseDecimal converts a decimal string to Money with half-up rounding on
// the third decimal place. Both "12.34" and "12,34" are accepted. Negative
// amounts are rejected.
func ParseDecimal(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Money{}, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return Money{}, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return Money{}, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return Money{}, ErrInvalidAmount
	}
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	return Money{Cents: iv*100 + fracCents}, nil
}

// ParseNumber converts a JSON number to Money. Remote rows carry amounts
// as plain JSON numbers; decoding them through json.Number keeps the
// original decimal digits available.
func ParseNumber(n json.Number) (Money, error) {
	return ParseDecimal(n.String())
}

func (m Money) Add(other Money) Money {
	return Money{Cents: m.Cents + other.Cents}
}

// Div returns m divided by n with half-up rounding, used for averages.
// Division by zero yields zero.
func (m Money) Div(n int64) Money {
	if n == 0 {
		return Money{}
	}
	half := n / 2
	return Money{Cents: (m.Cents + half) / n}
}

func (m Money) IsZero() bool {
	return m.Cents == 0
}

// String renders the amount with exactly two decimals, e.g. "15.75".
func (m Money) String() string {
	sign := ""
	cents := m.Cents
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// MarshalJSON emits a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts both a JSON number and a quoted decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		m.Cents = 0
		return nil
	}
	parsed, err := ParseDecimal(s)
	if err != nil {
		return err
	}
	m.Cents = parsed.Cents
	return nil
}

// FromColumn converts a decoded row column into Money. Remote amount columns
// arrive as JSON numbers (json.Number under UseNumber decoding) but older
// rows may carry strings; both are accepted. Absent columns are zero.
func FromColumn(v any) (Money, error) {
	switch val := v.(type) {
	case nil:
		return Money{}, nil
	case Money:
		return val, nil
	case json.Number:
		return ParseNumber(val)
	case string:
		return ParseDecimal(val)
	case float64:
		return ParseDecimal(strconv.FormatFloat(val, 'f', -1, 64))
	default:
		return Money{}, ErrInvalidAmount
	}
}

// Sum totals a sequence of amounts in integer cents.
func Sum(amounts []Money) Money {
	var total int64
	for _, a := range amounts {
		total += a.Cents
	}
	return Money{Cents: total}
}
