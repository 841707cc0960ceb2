package postings

import (
	"context"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	redisclient "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/redis"
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "postings:"

// RedisStore keeps each term's postings as a Redis set under
// postings:<bucket>:<term>. A bulk write sends one MULTI/EXEC pipeline per
// bucket.
type RedisStore struct {
	client *redisclient.Client
	// limit caps concurrent bucket pipelines.
	limit int
}

func NewRedisStore(client *redisclient.Client) *RedisStore {
	return &RedisStore{client: client, limit: 8}
}

func redisKey(term string) string {
	return redisKeyPrefix + Bucket(term) + ":" + term
}

func (s *RedisStore) Union(ctx context.Context, term string, id document.ID) error {
	if err := s.client.SAdd(ctx, redisKey(term), uint32(id)); err != nil {
		return storeErr("sadd "+term, err)
	}
	return nil
}

func (s *RedisStore) BulkUnion(ctx context.Context, writes []Write) error {
	return writeBuckets(ctx, writes, s.limit, func(ctx context.Context, bucket string, ws []Write) error {
		err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
			for _, w := range ws {
				p.SAdd(ctx, redisKey(w.Term), uint32(w.DocID))
			}
			return nil
		})
		if err != nil {
			return storeErr("pipeline bucket "+bucket, err)
		}
		return nil
	})
}

func (s *RedisStore) Get(ctx context.Context, term string) (*roaring.Bitmap, error) {
	members, err := s.client.SMembers(ctx, redisKey(term))
	if err != nil {
		return nil, storeErr("smembers "+term, err)
	}
	bm := roaring.New()
	for _, m := range members {
		n, err := strconv.ParseUint(m, 10, 32)
		if err != nil {
			return nil, storeErr("decoding member of "+term, err)
		}
		bm.Add(uint32(n))
	}
	return bm, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if _, err := s.client.FlushByPattern(ctx, redisKeyPrefix+"*"); err != nil {
		return storeErr("clear", err)
	}
	return nil
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	keys, err := s.client.ScanKeys(ctx, redisKeyPrefix+"*")
	if err != nil {
		return Stats{}, storeErr("stats", err)
	}
	st := Stats{Terms: int64(len(keys))}
	if len(keys) == 0 {
		return st, nil
	}
	cmds := make([]*redis.IntCmd, 0, len(keys))
	err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range keys {
			cmds = append(cmds, p.MemoryUsage(ctx, k))
		}
		return nil
	})
	if err != nil {
		return Stats{}, storeErr("memory usage", err)
	}
	for _, c := range cmds {
		st.Bytes += c.Val()
	}
	return st, nil
}

func (s *RedisStore) Name() string { return "redis" }
