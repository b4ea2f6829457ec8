package persistence

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTombstoneStore is a TombstoneStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>tombstones        => ZSET of tickets scored by sweep time (unix ms)
//	<prefix>tombstones:flow   => HASH ticket -> flow name
type RedisTombstoneStore struct {
	client *redis.Client
	prefix string
}

var _ TombstoneStore = (*RedisTombstoneStore)(nil)

// NewRedisTombstoneStore creates a RedisTombstoneStore.
// prefix is optional but recommended (e.g. "pageflow:").
func NewRedisTombstoneStore(client *redis.Client, prefix string) *RedisTombstoneStore {
	if prefix == "" {
		prefix = "pageflow:"
	}
	return &RedisTombstoneStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisTombstoneStore) keyIndex() string {
	return s.prefix + "tombstones"
}

func (s *RedisTombstoneStore) keyFlows() string {
	return s.prefix + "tombstones:flow"
}

func (s *RedisTombstoneStore) Bury(ctx context.Context, t Tombstone) error {
	pipe := s.client.TxPipeline()
	pipe.ZAddNX(ctx, s.keyIndex(), redis.Z{
		Score:  float64(t.SweptAt.UnixMilli()),
		Member: t.Ticket,
	})
	pipe.HSetNX(ctx, s.keyFlows(), t.Ticket, t.Flow)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisTombstoneStore) IsBuried(ctx context.Context, ticket string) (bool, error) {
	_, err := s.client.ZScore(ctx, s.keyIndex(), ticket).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *RedisTombstoneStore) Purge(ctx context.Context, before time.Time) (int, error) {
	// Scores are inclusive unless prefixed with "(".
	max := "(" + strconv.FormatInt(before.UnixMilli(), 10)

	tickets, err := s.client.ZRangeByScore(ctx, s.keyIndex(), &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, err
	}
	if len(tickets) == 0 {
		return 0, nil
	}

	members := make([]any, len(tickets))
	for i, t := range tickets {
		members[i] = t
	}

	pipe := s.client.TxPipeline()
	removed := pipe.ZRem(ctx, s.keyIndex(), members...)
	pipe.HDel(ctx, s.keyFlows(), tickets...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(removed.Val()), nil
}
