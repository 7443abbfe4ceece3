package domain

import (
	"crypto/sha256"
	"fmt"
)

// MaskType represents a column masking strategy applied to result rows
// before they leave the service.
type MaskType string

const (
	MaskRedact  MaskType = "redact"
	MaskHash    MaskType = "hash"
	MaskPartial MaskType = "partial"
	MaskNull    MaskType = "null"
)

// Valid returns true for recognised strategies, including the zero value ""
// meaning "no mask".
func (m MaskType) Valid() bool {
	switch m {
	case MaskRedact, MaskHash, MaskPartial, MaskNull, "":
		return true
	}
	return false
}

// ApplyMask transforms a value according to the mask type. Masked values may
// change type (int -> string for hash/partial). MaskNull returns nil, which
// is indistinguishable from SQL NULL.
func ApplyMask(value any, maskType MaskType) any {
	if value == nil {
		return nil
	}

	switch maskType {
	case MaskRedact:
		return "***"
	case MaskHash:
		h := sha256.Sum256([]byte(fmt.Sprintf("%v", value)))
		return fmt.Sprintf("%x", h)
	case MaskPartial:
		return maskPartial(value)
	case MaskNull:
		return nil
	default:
		return value
	}
}

// maskPartial reveals only the last 4 characters. Safe on multi-byte strings.
func maskPartial(value any) string {
	runes := []rune(fmt.Sprintf("%v", value))
	if len(runes) <= 4 {
		return "***" + string(runes)
	}
	masked := make([]rune, len(runes))
	for i := range masked {
		if i < len(runes)-4 {
			masked[i] = '*'
		} else {
			masked[i] = runes[i]
		}
	}
	return string(masked)
}

// MaskOutcome applies column masks to a successful outcome's rows in place.
// Matching is by column name only, no table qualification.
func MaskOutcome(outcome *ExecutionOutcome, masks map[string]MaskType) {
	if outcome == nil || !outcome.Succeeded || len(masks) == 0 {
		return
	}
	for _, row := range outcome.Rows {
		for col, maskType := range masks {
			if val, exists := row[col]; exists {
				row[col] = ApplyMask(val, maskType)
			}
		}
	}
}
