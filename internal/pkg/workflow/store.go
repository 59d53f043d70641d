package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	redisstorage "github.com/gofiber/storage/redis"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store persists workflow snapshots and guards them with a per-workflow lock.
type Store interface {
	// Load returns ErrNotFound for unknown or expired workflows.
	Load(ctx context.Context, id string) (*Snapshot, error)
	Save(ctx context.Context, s Snapshot, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	// Lock returns a token for Unlock, or ErrBusy when the lock is held.
	Lock(ctx context.Context, id string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, id, token string) error
}

const (
	snapshotPrefix = "workflow:"
	lockPrefix     = "workflow:lock:"
)

// RedisStore keeps snapshots in a fiber redis storage and locks in go-redis.
type RedisStore struct {
	storage *redisstorage.Storage
	locks   *redis.Client
}

// NewRedisStore uses the address and credentials of client and a separate
// database for snapshots.
func NewRedisStore(client *redis.Client, database int) *RedisStore {
	host := "localhost"
	port := 6379
	opts := client.Options()
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	storage := redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Username: opts.Username,
		Password: opts.Password,
		Database: database,
		Reset:    false,
	})
	return &RedisStore{storage: storage, locks: client}
}

func (s *RedisStore) Load(_ context.Context, id string) (*Snapshot, error) {
	raw, err := s.storage.Get(snapshotPrefix + id)
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", id, err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode workflow %s: %w", id, err)
	}
	return &snap, nil
}

func (s *RedisStore) Save(_ context.Context, snap Snapshot, ttl time.Duration) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode workflow %s: %w", snap.ID, err)
	}
	return s.storage.Set(snapshotPrefix+snap.ID, raw, ttl)
}

func (s *RedisStore) Delete(_ context.Context, id string) error {
	return s.storage.Delete(snapshotPrefix + id)
}

func (s *RedisStore) Lock(ctx context.Context, id string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := s.locks.SetNX(ctx, lockPrefix+id, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("lock workflow %s: %w", id, err)
	}
	if !ok {
		return "", ErrBusy
	}
	return token, nil
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (s *RedisStore) Unlock(ctx context.Context, id, token string) error {
	return unlockScript.Run(ctx, s.locks, []string{lockPrefix + id}, token).Err()
}

func (s *RedisStore) Close() error {
	return s.storage.Close()
}

type memEntry struct {
	raw     []byte
	expires time.Time
}

// MemoryStore is a process-local Store for tests and single-node development.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	locks   map[string]memEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: map[string]memEntry{},
		locks:   map[string]memEntry{},
		now:     time.Now,
	}
}

func (s *MemoryStore) live(e memEntry) bool {
	return e.expires.IsZero() || s.now().Before(e.expires)
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *MemoryStore) Load(_ context.Context, id string) (*Snapshot, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok || !s.live(e) {
		return nil, ErrNotFound
	}
	var snap Snapshot
	if err := json.Unmarshal(e.raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *MemoryStore) Save(_ context.Context, snap Snapshot, ttl time.Duration) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[snap.ID] = memEntry{raw: raw, expires: s.expiry(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Lock(_ context.Context, id string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.locks[id]; ok && s.live(e) {
		return "", ErrBusy
	}
	token := uuid.NewString()
	s.locks[id] = memEntry{raw: []byte(token), expires: s.expiry(ttl)}
	return token, nil
}

func (s *MemoryStore) Unlock(_ context.Context, id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.locks[id]; ok && string(e.raw) == token {
		delete(s.locks, id)
	}
	return nil
}
