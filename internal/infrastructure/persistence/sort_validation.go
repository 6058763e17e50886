package persistence

import (
	"strings"
)

// ValidateSortOrder normalizes a sort direction to ASC or DESC, DESC when unrecognized
func ValidateSortOrder(orderDir string) string {
	if strings.ToUpper(strings.TrimSpace(orderDir)) == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns sortField when it is whitelisted, defaultField otherwise.
// Field names reach ORDER BY verbatim, so only whitelisted columns pass.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed != "" && allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// OrderClause builds "<field> <dir>" from unvalidated input
func OrderClause(sortField, orderDir string, allowedFields map[string]bool, defaultField string) string {
	return ValidateSortField(sortField, allowedFields, defaultField) + " " + ValidateSortOrder(orderDir)
}

// CloseAttemptSortFields contains allowed sort fields for the close audit journal
var CloseAttemptSortFields = map[string]bool{
	"created_at":     true,
	"invoice_number": true,
	"point_of_sale":  true,
	"status":         true,
	"amount_lyd":     true,
}
