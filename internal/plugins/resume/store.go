package resume

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.etcd.io/bbolt"
)

// Store keeps the last known position, in whole seconds, per video id.
type Store interface {
	Get(ctx context.Context, videoID string) (seconds int, ok bool, err error)
	Set(ctx context.Context, videoID string, seconds int) error
	Delete(ctx context.Context, videoID string) error
	Close() error
}

// MemoryStore is a Store for a single process.
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{positions: make(map[string]int)}
}

func (s *MemoryStore) Get(_ context.Context, videoID string) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seconds, ok := s.positions[videoID]
	return seconds, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, videoID string, seconds int) error {
	s.mu.Lock()
	s.positions[videoID] = seconds
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, videoID string) error {
	s.mu.Lock()
	delete(s.positions, videoID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

var positionsBucket = []byte("positions")

// BoltStore keeps positions in a bbolt file.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("resume: open bolt database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(positionsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("resume: create positions bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(_ context.Context, videoID string) (int, bool, error) {
	var (
		seconds int
		ok      bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(positionsBucket).Get([]byte(videoID))
		if raw == nil {
			return nil
		}
		n, err := strconv.Atoi(string(raw))
		if err != nil {
			return fmt.Errorf("resume: corrupt position for %q: %w", videoID, err)
		}
		seconds, ok = n, true
		return nil
	})
	return seconds, ok, err
}

func (s *BoltStore) Set(_ context.Context, videoID string, seconds int) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(positionsBucket).Put([]byte(videoID), []byte(strconv.Itoa(seconds)))
	})
}

func (s *BoltStore) Delete(_ context.Context, videoID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(positionsBucket).Delete([]byte(videoID))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

const redisKeyPrefix = "resume:"

// RedisStore shares positions between service instances. Entries expire
// after ttl when it is positive.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(addr string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

// Ping checks the server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Get(ctx context.Context, videoID string) (int, bool, error) {
	seconds, err := s.client.Get(ctx, redisKeyPrefix+videoID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("resume: redis get %q: %w", videoID, err)
	}
	return seconds, true, nil
}

func (s *RedisStore) Set(ctx context.Context, videoID string, seconds int) error {
	if err := s.client.Set(ctx, redisKeyPrefix+videoID, seconds, s.ttl).Err(); err != nil {
		return fmt.Errorf("resume: redis set %q: %w", videoID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, videoID string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+videoID).Err(); err != nil {
		return fmt.Errorf("resume: redis delete %q: %w", videoID, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
