package tokenizer

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty string", "", []string{}},
		{"sentence", "The cat sat on a mat.", []string{"cat", "mat", "on", "sat", "the"}},
		{"duplicates collapse", "tired Tired TIRED tired", []string{"tired"}},
		{"digits split words", "chapter12section", []string{"chapter", "section"}},
		{"digits only", "1984 2001", []string{}},
		{"punctuation", "well-known, self_made!", []string{"known", "made", "self", "well"}},
		{"apostrophes", "Alice's don't", []string{"alice", "don"}},
		{"single letters dropped", "a b c de", []string{"de"}},
		{"non ascii separates", "café naïve", []string{"caf", "na", "ve"}},
		{"invalid utf8", "ok\xff\xfeword", []string{"ok", "word"}},
		{"trailing term", "  beginning", []string{"beginning"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.input).Sorted())
		})
	}
}

func TestTokenizeContains(t *testing.T) {
	terms := Tokenize("Alice was beginning to get very tired")
	assert.True(t, terms.Contains("tired"))
	assert.True(t, terms.Contains("to"))
	assert.False(t, terms.Contains("a"))
	assert.Len(t, terms, 7)
}

func TestTokenizeConcurrent(t *testing.T) {
	text := strings.Repeat("Down the Rabbit-Hole ", 200)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, []string{"down", "hole", "rabbit", "the"}, Tokenize(text).Sorted())
		}()
	}
	wg.Wait()
}

func TestSplitQuery(t *testing.T) {
	assert.Equal(t, []string{"cat", "a", "mat"}, SplitQuery("  Cat a\tMAT \n"))
	assert.Empty(t, SplitQuery("   "))
}

func BenchmarkTokenize(b *testing.B) {
	text := strings.Repeat("It is a truth universally acknowledged, that a single man in possession of a good fortune, must be in want of a wife. ", 500)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Tokenize(text)
	}
}
