package validator

import (
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBook(t *testing.T) {
	tests := []struct {
		name       string
		book       document.Document
		wantFields []string
	}{
		{"valid", document.Document{ID: 11, Title: "Alice's Adventures in Wonderland", Content: "Alice was beginning"}, nil},
		{"empty content allowed", document.Document{ID: 7, Title: "Untitled"}, nil},
		{"missing id", document.Document{Title: "No id"}, []string{"id"}},
		{"blank title", document.Document{ID: 3, Title: "   "}, []string{"title"}},
		{"long author", document.Document{ID: 4, Title: "T", Author: strings.Repeat("a", maxMetadataLength+1)}, []string{"author"}},
		{"several", document.Document{Language: strings.Repeat("x", maxMetadataLength+1)}, []string{"id", "title", "language"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBook(&tt.book)
			if tt.wantFields == nil {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			for _, f := range tt.wantFields {
				assert.Contains(t, verr.Fields, f)
			}
			assert.Len(t, verr.Fields, len(tt.wantFields))
		})
	}
}

func TestValidationErrorIsStable(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"title": "t", "id": "i"}}
	assert.Equal(t, "id:i; title:t", err.Error())
}
