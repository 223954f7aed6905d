package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/noxrp/stream-notifier/db"
)

// DefaultKey is the kv / redis key holding the document.
const DefaultKey = "notifier:state"

// PostgresStore keeps the document as one row of the kv table.
type PostgresStore struct {
	DB      *sql.DB
	Key     string
	Initial InitFunc
}

// NewPostgresStore returns a store over an already migrated database.
func NewPostgresStore(dbx *sql.DB, key string, init InitFunc) *PostgresStore {
	if key == "" {
		key = DefaultKey
	}
	return &PostgresStore{DB: dbx, Key: key, Initial: init}
}

func (p *PostgresStore) Load(ctx context.Context) (*State, error) {
	v, err := db.GetKV(ctx, p.DB, p.Key)
	if errors.Is(err, db.ErrNotFound) {
		s := initial(p.Initial)
		slog.Info("state row not found; creating", slog.String("key", p.Key))
		if err := p.Save(ctx, s); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres load state: %w", err)
	}
	return Decode([]byte(v))
}

func (p *PostgresStore) Save(ctx context.Context, s *State) error {
	b, err := Encode(s)
	if err != nil {
		return err
	}
	if err := db.PutKV(ctx, p.DB, p.Key, string(b)); err != nil {
		return fmt.Errorf("postgres save state: %w", err)
	}
	return nil
}

// RedisStore keeps the document under a single key. SET replaces the value
// atomically.
type RedisStore struct {
	Client  redis.UniversalClient
	Key     string
	Initial InitFunc
}

// NewRedisStore returns a store over client.
func NewRedisStore(client redis.UniversalClient, key string, init InitFunc) *RedisStore {
	if key == "" {
		key = DefaultKey
	}
	return &RedisStore{Client: client, Key: key, Initial: init}
}

func (r *RedisStore) Load(ctx context.Context) (*State, error) {
	v, err := r.Client.Get(ctx, r.Key).Bytes()
	if errors.Is(err, redis.Nil) {
		s := initial(r.Initial)
		slog.Info("state key not found; creating", slog.String("key", r.Key))
		if err := r.Save(ctx, s); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis load state: %w", err)
	}
	return Decode(v)
}

func (r *RedisStore) Save(ctx context.Context, s *State) error {
	b, err := Encode(s)
	if err != nil {
		return err
	}
	if err := r.Client.Set(ctx, r.Key, b, 0).Err(); err != nil {
		return fmt.Errorf("redis save state: %w", err)
	}
	return nil
}
