package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/errors"
	redisclient "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/redis"
)

const redisKey = "ledger:indexed"

// RedisLedger stores the indexed set as a single Redis set.
type RedisLedger struct {
	client *redisclient.Client
}

func NewRedisLedger(client *redisclient.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func (l *RedisLedger) Contains(ctx context.Context, id document.ID) (bool, error) {
	ok, err := l.client.SIsMember(ctx, redisKey, uint32(id))
	if err != nil {
		return false, fmt.Errorf("ledger sismember: %w: %w", apperrors.ErrStore, err)
	}
	return ok, nil
}

func (l *RedisLedger) Mark(ctx context.Context, id document.ID) error {
	if err := l.client.SAdd(ctx, redisKey, uint32(id)); err != nil {
		return fmt.Errorf("ledger sadd: %w: %w", apperrors.ErrStore, err)
	}
	return nil
}

func (l *RedisLedger) Reset(ctx context.Context) error {
	if err := l.client.Del(ctx, redisKey); err != nil {
		return fmt.Errorf("ledger reset: %w: %w", apperrors.ErrStore, err)
	}
	return nil
}

func (l *RedisLedger) Count(ctx context.Context) (int64, error) {
	n, err := l.client.SCard(ctx, redisKey)
	if err != nil {
		return 0, fmt.Errorf("ledger scard: %w: %w", apperrors.ErrStore, err)
	}
	return n, nil
}

func (l *RedisLedger) List(ctx context.Context) ([]document.ID, error) {
	members, err := l.client.SMembers(ctx, redisKey)
	if err != nil {
		return nil, fmt.Errorf("ledger smembers: %w: %w", apperrors.ErrStore, err)
	}
	out := make([]document.ID, 0, len(members))
	for _, m := range members {
		id, err := document.ParseID(m)
		if err != nil {
			return nil, fmt.Errorf("decoding ledger member %q: %w", m, err)
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (l *RedisLedger) Name() string { return "redis" }
