package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/velmie/spool"
)

const (
	defaultPrefix  = "spool"
	defaultLockTTL = 5 * time.Minute
)

// ErrClientRequired is returned when a nil client is provided.
var ErrClientRequired = errors.New("spool redis: client is required")

// Config defines key layout and locking.
type Config struct {
	Prefix    string
	LockTTL   time.Duration
	Generator spool.IDGenerator
}

// Option configures the Redis store.
type Option func(*Config)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(c *Config) {
		c.Prefix = prefix
	}
}

// WithLockTTL sets how long a TryLock lease lasts when its holder never unlocks.
func WithLockTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.LockTTL = ttl
	}
}

// WithGenerator sets the UUID generator.
func WithGenerator(gen spool.IDGenerator) Option {
	return func(c *Config) {
		c.Generator = gen
	}
}

// Store implements spool.Store on Redis.
type Store struct {
	client  goredis.UniversalClient
	cfg     Config
	payload string
	queued  string
	claimed string
}

var (
	_ spool.Store          = (*Store)(nil)
	_ spool.PendingCounter = (*Store)(nil)
	_ spool.Locker         = (*Store)(nil)
)

// NewStore constructs a store on client. Any go-redis client works, including
// cluster and failover clients.
func NewStore(client goredis.UniversalClient, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, ErrClientRequired
	}

	cfg := Config{Prefix: defaultPrefix}
	for _, opt := range opts {
		opt(&cfg)
	}
	prefix, err := spool.CheckName("key prefix", cfg.Prefix)
	if err != nil {
		return nil, err
	}
	if cfg.LockTTL < 0 {
		return nil, fmt.Errorf("%w: lock ttl must be non-negative", spool.ErrInvalidConfig)
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.Generator == nil {
		cfg.Generator = spool.UUIDv7Generator{}
	}
	cfg.Prefix = "{" + prefix + "}"

	return &Store{
		client:  client,
		cfg:     cfg,
		payload: cfg.Prefix + ":payload",
		queued:  cfg.Prefix + ":queued",
		claimed: cfg.Prefix + ":claimed",
	}, nil
}

// MustNewStore constructs a store or panics on error.
func MustNewStore(client goredis.UniversalClient, opts ...Option) *Store {
	store, err := NewStore(client, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Insert implements spool.Store.
func (s *Store) Insert(ctx context.Context, payload []byte) (spool.ID, error) {
	id, err := s.cfg.Generator.New()
	if err != nil {
		return spool.ID{}, spool.WrapStorage("spool redis: generate id", err)
	}
	member := id.String()

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, s.payload, member, payload)
		pipe.ZAdd(ctx, s.queued, goredis.Z{Score: 0, Member: member})
		return nil
	})
	if err != nil {
		return spool.ID{}, spool.WrapStorage("spool redis: insert", err)
	}

	return id, nil
}

// FindUnclaimed implements spool.Store. Payloads are read lazily as the cursor advances.
func (s *Store) FindUnclaimed(ctx context.Context, limit int) (spool.Cursor, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	members, err := s.client.ZRange(ctx, s.queued, 0, stop).Result()
	if err != nil {
		return nil, spool.WrapStorage("spool redis: find", err)
	}

	return &cursor{store: s, members: members}, nil
}

// Claim implements spool.Store.
func (s *Store) Claim(ctx context.Context, id spool.ID, now time.Time) (bool, error) {
	n, err := claimScript.Run(
		ctx,
		s.client,
		[]string{s.queued, s.claimed, s.payload},
		id.String(),
		now.UnixMilli(),
	).Int64()
	if err != nil {
		return false, spool.WrapStorage("spool redis: claim", err)
	}

	return n == 1, nil
}

// Delete implements spool.Store.
func (s *Store) Delete(ctx context.Context, id spool.ID) (bool, error) {
	n, err := deleteScript.Run(ctx, s.client, []string{s.queued, s.claimed, s.payload}, id.String()).Int64()
	if err != nil {
		return false, spool.WrapStorage("spool redis: delete", err)
	}

	return n == 1, nil
}

// RecoverStale implements spool.Store.
func (s *Store) RecoverStale(ctx context.Context, olderThan time.Time) (int64, error) {
	n, err := recoverScript.Run(
		ctx,
		s.client,
		[]string{s.queued, s.claimed},
		strconv.FormatInt(olderThan.UnixMilli(), 10),
	).Int64()
	if err != nil {
		return 0, spool.WrapStorage("spool redis: recover", err)
	}

	return n, nil
}

// CountUnclaimed implements spool.PendingCounter.
func (s *Store) CountUnclaimed(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.queued).Result()
	if err != nil {
		return 0, spool.WrapStorage("spool redis: pending count", err)
	}

	return int(n), nil
}

// TryLock implements spool.Locker with SET NX PX. The lease expires after LockTTL
// if the holder dies, unlock only deletes the key while it still holds the token.
func (s *Store) TryLock(ctx context.Context, name string) (func(context.Context) error, bool, error) {
	key := s.cfg.Prefix + ":lock:" + name
	token := uuid.NewString()

	ok, err := s.client.SetNX(ctx, key, token, s.cfg.LockTTL).Result()
	if err != nil {
		return nil, false, spool.WrapStorage("spool redis: acquire lock", err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func(ctx context.Context) error {
		if err := unlockScript.Run(ctx, s.client, []string{key}, token).Err(); err != nil {
			return spool.WrapStorage("spool redis: release lock", err)
		}

		return nil
	}

	return unlock, true, nil
}

type cursor struct {
	store   *Store
	members []string
	current spool.Record
	err     error
}

func (c *cursor) Next(ctx context.Context) bool {
	for len(c.members) > 0 && c.err == nil {
		member := c.members[0]
		c.members = c.members[1:]

		payload, err := c.store.client.HGet(ctx, c.store.payload, member).Bytes()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			c.err = spool.WrapStorage("spool redis: cursor", err)

			return false
		}

		id, err := spool.ParseID(member)
		if err != nil {
			c.current = spool.Record{}
		} else {
			c.current = spool.Record{ID: id, Payload: payload}
		}

		return true
	}

	return false
}

func (c *cursor) Record() spool.Record {
	return c.current
}

func (c *cursor) Err() error {
	return c.err
}

func (c *cursor) Close(context.Context) error {
	c.members = nil

	return nil
}
