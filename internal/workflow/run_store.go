package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// pendingRun is the value held under a key while its trigger is in flight.
const pendingRun = "\x00pending"

// RunStore remembers which workflow run was started for a key. Claims let
// several processes agree on a single trigger per key.
type RunStore interface {
	// Get returns the recorded value, or ok=false when none exists. A
	// claimed key reads as pendingRun.
	Get(ctx context.Context, key string) (runID string, ok bool, err error)
	// Claim reserves key for ttl. It reports false when key is already
	// claimed or recorded.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Put records runID for key, replacing a claim. A recorded run is kept.
	Put(ctx context.Context, key, runID string) error
	// Release drops a claim that did not produce a run.
	Release(ctx context.Context, key string) error
}

const redisRunKeyPrefix = "subtrack:reminder-run:"

// recordRun sets the run id unless another run is already recorded.
var recordRun = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current and current ~= ARGV[2] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

// releaseClaim deletes the key only while it still holds the claim.
var releaseClaim = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunStore keeps run ids in Redis with a TTL.
type RedisRunStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRunStore creates a Redis-backed store. ttl 0 means no expiry.
func NewRedisRunStore(client *redis.Client, ttl time.Duration) *RedisRunStore {
	return &RedisRunStore{client: client, ttl: ttl}
}

func (s *RedisRunStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, redisRunKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisRunStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, redisRunKeyPrefix+key, pendingRun, ttl).Result()
}

func (s *RedisRunStore) Put(ctx context.Context, key, runID string) error {
	return recordRun.Run(ctx, s.client, []string{redisRunKeyPrefix + key},
		runID, pendingRun, s.ttl.Milliseconds()).Err()
}

func (s *RedisRunStore) Release(ctx context.Context, key string) error {
	return releaseClaim.Run(ctx, s.client, []string{redisRunKeyPrefix + key}, pendingRun).Err()
}

type memoryRun struct {
	runID     string
	expiresAt time.Time
}

// MemoryRunStore is the in-process fallback used when Redis is not configured.
type MemoryRunStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	runs map[string]memoryRun
}

// NewMemoryRunStore creates an in-memory store. ttl 0 means no expiry.
func NewMemoryRunStore(ttl time.Duration) *MemoryRunStore {
	return &MemoryRunStore{ttl: ttl, now: time.Now, runs: make(map[string]memoryRun)}
}

func (s *MemoryRunStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.liveLocked(key)
	return run.runID, ok, nil
}

func (s *MemoryRunStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liveLocked(key); ok {
		return false, nil
	}
	s.runs[key] = s.entry(pendingRun, ttl)
	return true, nil
}

func (s *MemoryRunStore) Put(_ context.Context, key, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.liveLocked(key); ok && run.runID != pendingRun {
		return nil
	}
	s.runs[key] = s.entry(runID, s.ttl)
	return nil
}

func (s *MemoryRunStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.liveLocked(key); ok && run.runID == pendingRun {
		delete(s.runs, key)
	}
	return nil
}

// liveLocked returns the unexpired entry for key, dropping an expired one.
func (s *MemoryRunStore) liveLocked(key string) (memoryRun, bool) {
	run, ok := s.runs[key]
	if !ok {
		return memoryRun{}, false
	}
	if !run.expiresAt.IsZero() && s.now().After(run.expiresAt) {
		delete(s.runs, key)
		return memoryRun{}, false
	}
	return run, true
}

func (s *MemoryRunStore) entry(runID string, ttl time.Duration) memoryRun {
	run := memoryRun{runID: runID}
	if ttl > 0 {
		run.expiresAt = s.now().Add(ttl)
	}
	return run
}
