package sales

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/erp/salesrecon/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Record is one JSON object as delivered by the jewelry backend.
// Field names are kept verbatim; the backend mixes casings and aliases
// for the same quantity, so typed access goes through accessors.
type Record map[string]any

// Clone returns a shallow copy of the record
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Get returns the raw value stored under key
func (r Record) Get(key string) any {
	if r == nil {
		return nil
	}
	return r[key]
}

// Has reports whether key holds a usable value (not nil, not NaN)
func (r Record) Has(key string) bool {
	return present(r.Get(key))
}

// Decimal normalizes the value under key
func (r Record) Decimal(key string) (decimal.Decimal, bool) {
	return valueobject.Normalize(r.Get(key))
}

// DecimalOrZero normalizes the value under key, mapping absence to zero
func (r Record) DecimalOrZero(key string) decimal.Decimal {
	return valueobject.OrZero(r.Get(key))
}

// String returns the value under key rendered as text, "" when absent
func (r Record) String(key string) string {
	return stringify(r.Get(key))
}

// FirstString returns the first non-empty text among keys
func (r Record) FirstString(keys ...string) string {
	for _, k := range keys {
		if s := r.String(k); s != "" {
			return s
		}
	}
	return ""
}

// Bool interprets the value under key as a flag (true, 1, "1", "true")
func (r Record) Bool(key string) bool {
	switch v := r.Get(key).(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "true" || s == "1"
	default:
		d, ok := valueobject.Normalize(v)
		return ok && d.Equal(decimal.NewFromInt(1))
	}
}

// Record returns the nested object under key
func (r Record) Record(key string) Record {
	return asRecord(r.Get(key))
}

// Records returns the nested list of objects under key; non-object entries are dropped
func (r Record) Records(key string) []Record {
	list, ok := r.Get(key).([]any)
	if !ok {
		if typed, ok := r.Get(key).([]Record); ok {
			return typed
		}
		if typed, ok := r.Get(key).([]map[string]any); ok {
			out := make([]Record, 0, len(typed))
			for _, m := range typed {
				out = append(out, Record(m))
			}
			return out
		}
		return nil
	}
	out := make([]Record, 0, len(list))
	for _, item := range list {
		if rec := asRecord(item); rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

func asRecord(v any) Record {
	switch m := v.(type) {
	case Record:
		return m
	case map[string]any:
		return Record(m)
	default:
		return nil
	}
}

// present mirrors the backend's notion of "has a value": nil and NaN are absent
func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case float64:
		return !math.IsNaN(x)
	case float32:
		return !math.IsNaN(float64(x))
	default:
		return true
	}
}

// truthy follows the loose truthiness the backend payloads rely on for || chains
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	case float64:
		return x != 0 && !math.IsNaN(x)
	case int:
		return x != 0
	case int64:
		return x != 0
	default:
		d, ok := valueobject.Normalize(v)
		if ok {
			return !d.IsZero()
		}
		return true
	}
}

// firstTruthy returns the first truthy operand, or nil
func firstTruthy(values ...any) any {
	for _, v := range values {
		if truthy(v) {
			return v
		}
	}
	return nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case decimal.Decimal:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
