package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key holding the directory's JSON array.
const DefaultRedisKey = "clientes"

// kvClient is the subset of *redis.Client the store uses.
type kvClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisStore is a Store that keeps the whole directory as one JSON array
// under a single key. Every write rewrites the array; writes from this
// process are serialized, writes from other processes are last-wins.
type RedisStore struct {
	kv      kvClient
	key     string
	logger  *slog.Logger
	nowFunc func() time.Time

	mu sync.Mutex
}

// NewRedisStore connects to the Redis server at addr.
func NewRedisStore(addr, key string, logger *slog.Logger) *RedisStore {
	return newRedisStore(redis.NewClient(&redis.Options{Addr: addr}), key, logger)
}

func newRedisStore(kv kvClient, key string, logger *slog.Logger) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &RedisStore{kv: kv, key: key, logger: logger, nowFunc: time.Now}
}

// List returns every client in stored order. A missing key is an empty
// directory.
func (s *RedisStore) List(ctx context.Context) ([]Client, error) {
	raw, err := s.kv.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []Client{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("clients: reading %s: %w", s.key, err)
	}

	var out []Client
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("clients: decoding %s: %w", s.key, err)
	}

	if out == nil {
		out = []Client{}
	}

	return out, nil
}

// Lookup returns the client with the given public code.
func (s *RedisStore) Lookup(ctx context.Context, code string) (Client, error) {
	all, err := s.List(ctx)
	if err != nil {
		return Client{}, err
	}

	code = strings.TrimSpace(code)
	for _, c := range all {
		if c.Code == code {
			return c, nil
		}
	}

	return Client{}, fmt.Errorf("%w: code %q", ErrNotFound, code)
}

// Add appends a new client. Codes are unique.
func (s *RedisStore) Add(ctx context.Context, n NewClient) (Client, error) {
	n, err := n.normalize()
	if err != nil {
		return Client{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.List(ctx)
	if err != nil {
		return Client{}, err
	}

	for _, c := range all {
		if c.Code == n.Code {
			return Client{}, fmt.Errorf("%w: %q", ErrDuplicateCode, n.Code)
		}
	}

	c := newEntry(n, s.nowFunc())
	if err := s.write(ctx, append(all, c)); err != nil {
		return Client{}, err
	}

	s.logger.Info("client added", slog.String("code", c.Code), slog.String("id", c.ID))

	return c, nil
}

// Remove deletes the client with the given ID.
func (s *RedisStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.List(ctx)
	if err != nil {
		return err
	}

	kept := all[:0]
	for _, c := range all {
		if c.ID != id {
			kept = append(kept, c)
		}
	}

	if len(kept) == len(all) {
		return nil
	}

	if err := s.write(ctx, kept); err != nil {
		return err
	}

	s.logger.Info("client removed", slog.String("id", id))

	return nil
}

// Migrate overwrites the key with the legacy seed list.
func (s *RedisStore) Migrate(ctx context.Context) ([]Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seeded := seedEntries(s.nowFunc())
	if err := s.write(ctx, seeded); err != nil {
		return nil, err
	}

	s.logger.Info("client directory migrated", slog.Int("count", len(seeded)))

	return seeded, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.kv.Close()
}

func (s *RedisStore) write(ctx context.Context, all []Client) error {
	raw, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("clients: encoding directory: %w", err)
	}

	if err := s.kv.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("clients: writing %s: %w", s.key, err)
	}

	return nil
}
