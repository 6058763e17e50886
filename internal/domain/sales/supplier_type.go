package sales

import (
	"strings"

	"github.com/erp/salesrecon/internal/domain/shared/valueobject"
)

// SupplierType classifies an invoice by the kind of goods sold
type SupplierType string

const (
	SupplierGold    SupplierType = "gold"
	SupplierDiamond SupplierType = "diamond"
	SupplierWatch   SupplierType = "watch"
	SupplierUnknown SupplierType = ""
)

// TypeFilterAll is the type filter entry that selects every supplier type
const TypeFilterAll = "all"

// SupplierTypes lists the types fetched when no single type is selected
var SupplierTypes = []SupplierType{SupplierGold, SupplierDiamond, SupplierWatch}

// ParseSupplierType matches the free-text TYPE_SUPPLIER tag. The backend
// stores labels like "Gold Supplier", so matching is by substring.
func ParseSupplierType(raw string) SupplierType {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, string(SupplierGold)):
		return SupplierGold
	case strings.Contains(s, string(SupplierDiamond)):
		return SupplierDiamond
	case strings.Contains(s, string(SupplierWatch)):
		return SupplierWatch
	default:
		return SupplierUnknown
	}
}

// IsValid returns true for the three known types
func (t SupplierType) IsValid() bool {
	return t == SupplierGold || t == SupplierDiamond || t == SupplierWatch
}

// String returns the string representation
func (t SupplierType) String() string {
	return string(t)
}

// HomeCurrency is the currency an invoice total is denominated in. Gold is
// priced in dinars; diamonds and watches are priced in dollars and take LYD
// only as a payment method.
func HomeCurrency(t SupplierType) valueobject.Currency {
	if t == SupplierGold {
		return valueobject.LYD
	}
	return valueobject.USD
}

// TracksWeight reports whether line quantities are weights in grams
func TracksWeight(t SupplierType) bool {
	return HomeCurrency(t) == valueobject.LYD
}
