// Package redis stores sessions in Redis as JSON documents, one key per
// conversation, mutated with WATCH/MULTI optimistic transactions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/domain"
)

const (
	defaultPrefix = "shop:session:"
	maxTxRetries  = 64
)

// ErrContention is returned when a key stays contended for every retry.
var ErrContention = errors.New("redis: session transaction contention")

// Options configure the session store.
type Options struct {
	// TTL expires idle sessions; 0 keeps them forever.
	TTL    time.Duration
	Prefix string
	Now    func() time.Time
}

// Sessions implements storage.SessionStore on Redis.
type Sessions struct {
	client goredis.UniversalClient
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

// NewSessions wraps client.
func NewSessions(client goredis.UniversalClient, opts Options) *Sessions {
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sessions{client: client, ttl: opts.TTL, prefix: opts.Prefix, now: opts.Now}
}

func (s *Sessions) key(id domain.ConversationID) string {
	return s.prefix + strconv.FormatInt(int64(id), 10)
}

func (s *Sessions) Get(ctx context.Context, id domain.ConversationID) (domain.Session, error) {
	return s.read(ctx, s.client, id)
}

type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func (s *Sessions) read(ctx context.Context, c getter, id domain.ConversationID) (domain.Session, error) {
	data, err := c.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.NewSession(id), nil
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("redis get session: %w", err)
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session failed: %w", err)
	}
	return sess, nil
}

func (s *Sessions) Mutate(ctx context.Context, id domain.ConversationID, fn func(*domain.Session) error) (domain.Session, error) {
	key := s.key(id)
	var out domain.Session
	txf := func(tx *goredis.Tx) error {
		sess, err := s.read(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(&sess); err != nil {
			return err
		}
		sess.ConversationID = id
		sess.UpdatedAt = s.now()
		payload, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("marshal session failed: %w", err)
		}
		if _, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		}); err != nil {
			return err
		}
		out = sess
		return nil
	}

	for attempt := 1; attempt <= maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			if attempt > 1 {
				logger.Debug(ctx, logger.CompRedis, "session.mutate", slog.String("key", key), slog.Int("attempts", attempt))
			}
			return out, nil
		}
		if !errors.Is(err, goredis.TxFailedErr) {
			return domain.Session{}, err
		}
		select {
		case <-ctx.Done():
			return domain.Session{}, ctx.Err()
		case <-time.After(time.Duration(rand.Intn(2000)) * time.Microsecond):
		}
	}
	logger.Warn(ctx, logger.CompRedis, "session.mutate", slog.String("key", key), slog.String("status", "fail"), slog.Int("attempts", maxTxRetries))
	return domain.Session{}, ErrContention
}
