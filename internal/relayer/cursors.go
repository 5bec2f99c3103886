package relayer

import (
	"context"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// CursorStore persists each chain's poll position so a restarted relayer
// resumes instead of replaying history.
type CursorStore interface {
	Load(ctx context.Context, chain string) uint64
	Save(ctx context.Context, chain string, cursor uint64)
}

const redisCursorPrefix = "relayer:cursor:"

type RedisCursorStore struct {
	client *redis.Client
}

func NewRedisCursorStore(client *redis.Client) *RedisCursorStore {
	return &RedisCursorStore{client: client}
}

func (s *RedisCursorStore) Load(ctx context.Context, chain string) uint64 {
	val, err := s.client.Get(ctx, redisCursorPrefix+chain).Result()
	if err != nil || val == "" {
		return 0
	}
	cursor, _ := strconv.ParseUint(val, 10, 64)
	return cursor
}

func (s *RedisCursorStore) Save(ctx context.Context, chain string, cursor uint64) {
	s.client.Set(ctx, redisCursorPrefix+chain, strconv.FormatUint(cursor, 10), 0)
}

type MemoryCursorStore struct {
	mu      sync.Mutex
	cursors map[string]uint64
}

func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{cursors: make(map[string]uint64)}
}

func (s *MemoryCursorStore) Load(ctx context.Context, chain string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[chain]
}

func (s *MemoryCursorStore) Save(ctx context.Context, chain string, cursor uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[chain] = cursor
}
