// Package events publishes render records to a capped redis list.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"htmlpng/internal/ports"
)

const (
	DefaultKey    = "htmlpng:renders"
	DefaultMaxLen = 1000
)

// RedisPublisher LPUSHes each record as JSON and trims the list so it holds
// at most maxLen entries, newest first.
type RedisPublisher struct {
	rdb    redis.Cmdable
	key    string
	maxLen int64
}

var _ ports.RenderRecorder = (*RedisPublisher)(nil)

func NewRedisPublisher(rdb redis.Cmdable, key string, maxLen int) *RedisPublisher {
	if key == "" {
		key = DefaultKey
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &RedisPublisher{rdb: rdb, key: key, maxLen: int64(maxLen)}
}

func (p *RedisPublisher) Key() string { return p.key }

func (p *RedisPublisher) RecordRender(ctx context.Context, rec ports.RenderRecord) error {
	payload, err := Encode(rec)
	if err != nil {
		return err
	}

	pipe := p.rdb.TxPipeline()
	pipe.LPush(ctx, p.key, payload)
	pipe.LTrim(ctx, p.key, 0, p.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish render event: %w", err)
	}
	return nil
}

// Recent reads back up to limit events, newest first. Entries that no longer
// decode are skipped.
func (p *RedisPublisher) Recent(ctx context.Context, limit int) ([]ports.RenderRecord, error) {
	if limit <= 0 || int64(limit) > p.maxLen {
		limit = int(p.maxLen)
	}
	raw, err := p.rdb.LRange(ctx, p.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read render events: %w", err)
	}

	out := make([]ports.RenderRecord, 0, len(raw))
	for _, s := range raw {
		rec, err := Decode(s)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func Encode(rec ports.RenderRecord) (string, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode render event: %w", err)
	}
	return string(b), nil
}

func Decode(s string) (ports.RenderRecord, error) {
	var rec ports.RenderRecord
	if err := json.Unmarshal([]byte(s), &rec); err != nil {
		return ports.RenderRecord{}, fmt.Errorf("decode render event: %w", err)
	}
	return rec, nil
}
