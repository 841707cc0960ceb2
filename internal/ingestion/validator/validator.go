// Package validator checks incoming books before they are stored and
// returns per-field error details.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
)

const (
	maxTitleLength    = 1024
	maxMetadataLength = 512
	maxContentLength  = 64 << 20
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateBook checks id, title and field lengths. Content may be empty: a
// book without text is still indexed and recorded in the ledger.
func ValidateBook(d *document.Document) error {
	errs := make(map[string]string)

	if d.ID == 0 {
		errs["id"] = "id is required and must be positive"
	}
	title := strings.TrimSpace(d.Title)
	if title == "" {
		errs["title"] = "title is required"
	} else if len(title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	for field, v := range map[string]string{"author": d.Author, "language": d.Language, "release_date": d.ReleaseDate} {
		if len(v) > maxMetadataLength {
			errs[field] = fmt.Sprintf("%s must be at most %d characters", field, maxMetadataLength)
		}
	}
	if len(d.Content) > maxContentLength {
		errs["content"] = fmt.Sprintf("content must be at most %d bytes", maxContentLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
