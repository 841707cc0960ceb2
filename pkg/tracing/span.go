// Package tracing times the stages of a request as a tree of spans carried
// in the context. A finished tree is written to the request's logger, one
// record per span, so slow searches can be broken down by stage.
package tracing

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/logger"
)

type contextKey struct{}

// Span is one timed stage. All methods are safe on a nil *Span so code
// can be traced whether or not a caller started a trace.
type Span struct {
	name    string
	traceID string
	start   time.Time

	mu       sync.Mutex
	end      time.Time
	attrs    map[string]any
	children []*Span
}

// Start begins a root span and stores it in the returned context.
func Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := newSpan(name, traceID)
	return context.WithValue(ctx, contextKey{}, s), s
}

// StartChild begins a span under the one in ctx. Without a parent the span
// is still timed but belongs to no tree.
func StartChild(ctx context.Context, name string) (context.Context, *Span) {
	parent := FromContext(ctx)
	if parent == nil {
		s := newSpan(name, "")
		return context.WithValue(ctx, contextKey{}, s), s
	}
	s := newSpan(name, parent.traceID)
	parent.mu.Lock()
	parent.children = append(parent.children, s)
	parent.mu.Unlock()
	return context.WithValue(ctx, contextKey{}, s), s
}

func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(contextKey{}).(*Span)
	return s
}

func newSpan(name, traceID string) *Span {
	return &Span{name: name, traceID: traceID, start: time.Now(), attrs: make(map[string]any)}
}

// End stops the clock. Only the first call counts.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.end.IsZero() {
		s.end = time.Now()
	}
}

// Duration is the elapsed time so far for a span that has not ended.
func (s *Span) Duration() time.Duration {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.end.IsZero() {
		return time.Since(s.start)
	}
	return s.end.Sub(s.start)
}

func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.attrs[key] = value
	s.mu.Unlock()
}

func (s *Span) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// Children returns the direct children in start order.
func (s *Span) Children() []*Span {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// Log writes the tree to the context's logger. The root is logged at info
// and its descendants at debug, each tagged with its path from the root.
func (s *Span) Log(ctx context.Context) {
	if s == nil {
		return
	}
	s.log(ctx, logger.FromContext(ctx), s.name, slog.LevelInfo)
}

func (s *Span) log(ctx context.Context, l *slog.Logger, path string, level slog.Level) {
	s.mu.Lock()
	keys := make([]string, 0, len(s.attrs))
	for k := range s.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := []any{"trace_id", s.traceID, "path", path}
	for _, k := range keys {
		args = append(args, k, s.attrs[k])
	}
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	args = append(args, "duration_ms", float64(s.Duration().Microseconds())/1000)
	l.Log(ctx, level, "span", args...)
	for _, c := range children {
		c.log(ctx, l, path+"/"+c.name, slog.LevelDebug)
	}
}
