package valueobject

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// separatorRun matches thousands separators and whitespace inside formatted amounts
var separatorRun = regexp.MustCompile(`[,\s]+`)

var (
	cent = decimal.New(1, -2)
	one  = decimal.NewFromInt(1)
)

// Normalize converts a loosely typed monetary value into a decimal.
// The boolean is false when the input carries no value: nil, non-finite
// floats, and strings that are empty or unparseable once separators are removed.
// Absence is distinct from zero.
func Normalize(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return x, true
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, false
		}
		return *x, true
	case json.Number:
		return parseNumeric(string(x))
	case string:
		return parseNumeric(x)
	case float64:
		return fromFloat(x)
	case float32:
		return fromFloat(float64(x))
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int8:
		return decimal.NewFromInt(int64(x)), true
	case int16:
		return decimal.NewFromInt(int64(x)), true
	case int32:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case uint:
		return decimal.NewFromUint64(uint64(x)), true
	case uint8:
		return decimal.NewFromUint64(uint64(x)), true
	case uint16:
		return decimal.NewFromUint64(uint64(x)), true
	case uint32:
		return decimal.NewFromUint64(uint64(x)), true
	case uint64:
		return decimal.NewFromUint64(x), true
	default:
		return decimal.Zero, false
	}
}

func fromFloat(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

func parseNumeric(s string) (decimal.Decimal, bool) {
	cleaned := strings.TrimSpace(separatorRun.ReplaceAllString(s, ""))
	if cleaned == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// PickFirst returns the first operand that normalizes to a value
func PickFirst(values ...any) (decimal.Decimal, bool) {
	for _, v := range values {
		if d, ok := Normalize(v); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}

// OrZero normalizes v and maps absence to zero
func OrZero(v any) decimal.Decimal {
	d, _ := Normalize(v)
	return d
}

// ParseAmount parses clerk-entered text. Commas are ignored and anything
// that does not parse counts as zero.
func ParseAmount(s string) decimal.Decimal {
	cleaned := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if cleaned == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Round2 rounds to cents
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// RoundWhole rounds to the nearest whole unit
func RoundWhole(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}

// CeilWhole renders a minimum-owed figure: negatives clamp to zero and
// fractions round up.
func CeilWhole(d decimal.Decimal) decimal.Decimal {
	return NonNegative(d).Ceil()
}

// NonNegative clamps d at zero
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Material reports whether a remainder is large enough to show as debt:
// whole-unit remainders of 1 or less are rounding dust.
func Material(d decimal.Decimal) bool {
	return RoundWhole(d).GreaterThan(one)
}

// Exceeds reports whether a is greater than b by more than eps
func Exceeds(a, b, eps decimal.Decimal) bool {
	return a.Sub(b).GreaterThan(eps)
}

// Cent is the smallest currency unit the service tracks
func Cent() decimal.Decimal {
	return cent
}
