package sales

import (
	"regexp"
	"strings"
)

// PointOfSale is a shop as listed by the backend
type PointOfSale struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// OriginalGold is the code of the original gold shop
const OriginalGold = "OG"

var pointOfSaleCodes = map[string]string{
	"0": "P0", "1": "P1", "2": "P2", "3": "P3", "4": "P4",
	"P0": "P0", "P1": "P1", "P2": "P2", "P3": "P3", "P4": "P4",
	"OG":            OriginalGold,
	"O.G":           OriginalGold,
	"ORIG":          OriginalGold,
	"ORIGINAL":      OriginalGold,
	"ORIGINAL GOLD": OriginalGold,
}

var (
	nonDigits    = regexp.MustCompile(`\D`)
	shortPosCode = regexp.MustCompile(`^P\d$`)
)

// NormalizePointOfSaleCode maps the spellings used across shops to the
// short P0..P4 / OG codes. Unrecognized values are returned trimmed.
func NormalizePointOfSaleCode(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	upper := strings.ToUpper(raw)
	if code, ok := pointOfSaleCodes[upper]; ok {
		return code
	}
	if digits := nonDigits.ReplaceAllString(upper, ""); digits != "" {
		if code, ok := pointOfSaleCodes[digits]; ok {
			return code
		}
	}
	if strings.Contains(upper, OriginalGold) {
		return OriginalGold
	}
	if shortPosCode.MatchString(upper) {
		return upper
	}
	return raw
}

// PointOfSaleFromRecord reads a /ps/all entry. The code comes from the name
// when the name spells a known shop, otherwise from the numeric ID.
func PointOfSaleFromRecord(r Record) PointOfSale {
	ps := PointOfSale{
		ID:   r.FirstString("Id_point", "id_point", "id"),
		Name: r.FirstString("name_point", "name"),
	}
	code := NormalizePointOfSaleCode(ps.Name)
	if code != OriginalGold && !shortPosCode.MatchString(code) {
		code = NormalizePointOfSaleCode(ps.ID)
	}
	ps.Code = code
	return ps
}
