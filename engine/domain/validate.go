package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Provider ids are path segments, so only a conservative alphabet is accepted.
var adIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateQuery rejects queries that are empty after trimming. The query
// itself is never rewritten.
func ValidateQuery(q string) error {
	if strings.TrimSpace(q) == "" {
		return NewValidationError("query", q, ErrInvalidQuery)
	}
	if !utf8.ValidString(q) {
		return NewValidationError("query", q, ErrInvalidQuery)
	}
	return nil
}

// ValidateAdID checks that id is usable as a provider path segment and primary key.
func ValidateAdID(id string) error {
	if !adIDRegex.MatchString(id) {
		return NewValidationError("id", id, ErrInvalidAdID)
	}
	return nil
}
