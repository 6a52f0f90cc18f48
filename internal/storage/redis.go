package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"dai-trader/internal/errs"
)

// JournalLimit caps the trades kept in the Redis journal list.
const JournalLimit = 1000

// Redis stores blobs as plain keys under "<prefix>:state:" and the journal
// as a capped list.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedisStore uses an existing client; Close leaves it open.
func NewRedisStore(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "dai"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) stateKey(key string) string {
	return fmt.Sprintf("%s:state:%s", r.prefix, key)
}

func (r *Redis) journalKey() string {
	return r.prefix + ":trades"
}

func (r *Redis) Load(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.stateKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errs.NotFound("storage.Load", key)
	}
	return v, err
}

func (r *Redis) Save(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.stateKey(key), value, 0).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.stateKey(key)).Err()
}

func (r *Redis) List(ctx context.Context) ([]string, error) {
	base := r.stateKey("")
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, base+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, base))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *Redis) RecordTrade(ctx context.Context, t TradeRecord) error {
	id, err := r.client.Incr(ctx, r.journalKey()+":seq").Result()
	if err != nil {
		return err
	}
	t.ID = id
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.journalKey(), b)
	pipe.LTrim(ctx, r.journalKey(), 0, JournalLimit-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Redis) RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	raw, err := r.client.LRange(ctx, r.journalKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]TradeRecord, 0, len(raw))
	for _, s := range raw {
		var t TradeRecord
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			return nil, fmt.Errorf("decode journal entry: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *Redis) Close() error { return nil }
