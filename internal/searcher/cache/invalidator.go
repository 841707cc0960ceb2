package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/events"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/kafka"
)

// InvalidateOnIndexChange returns a kafka.MessageHandler that drops the
// cache for every IndexCompleted event. Undecodable events still invalidate:
// a stale cache is worse than a cold one.
func InvalidateOnIndexChange(c *QueryCache) kafka.MessageHandler {
	logger := slog.Default().With("component", "cache-invalidator")
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[events.IndexCompleted](value)
		if err != nil {
			logger.Warn("undecodable index event", "key", string(key), "error", err)
		} else {
			logger.Debug("index changed", "kind", ev.Kind, "book_id", ev.BookID, "generation", ev.GenerationID)
		}
		if err := c.Invalidate(ctx); err != nil {
			return fmt.Errorf("%w: %w", apperrors.ErrStore, err)
		}
		return nil
	}
}
