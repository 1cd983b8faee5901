// Package redis keeps quiz sessions in Redis with an idle expiry.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/session"
)

// DefaultTTL is how long an untouched session survives.
const DefaultTTL = 24 * time.Hour

// Store implements session.Store and session.AttemptLog. Every write
// refreshes the TTL of the session and its attempt list.
type Store struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

var (
	_ session.Store      = (*Store)(nil)
	_ session.AttemptLog = (*Store)(nil)
)

// NewClient dials addr and pings it.
func NewClient(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// NewStore wraps a client. Keys are namespaced by prefix ("meteor" if empty).
func NewStore(rdb *goredis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "meteor"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *Store) sessionKey(id string) string { return s.prefix + ":session:" + id }
func (s *Store) attemptsKey(id string) string { return s.prefix + ":attempts:" + id }
func (s *Store) indexKey() string            { return s.prefix + ":sessions" }

func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.sessionKey(sess.ID), raw, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), goredis.Z{
		Score:  float64(sess.CreatedAt.UnixNano()),
		Member: sess.ID,
	})
	pipe.Expire(ctx, s.attemptsKey(sess.ID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	raw, err := s.rdb.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	del := pipe.Del(ctx, s.sessionKey(id))
	pipe.Del(ctx, s.attemptsKey(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if del.Val() == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

// List returns live sessions newest first. Index entries whose session
// expired are pruned on the way.
func (s *Store) List(ctx context.Context) ([]*session.Session, error) {
	ids, err := s.rdb.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions := make([]*session.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if errors.Is(err, session.ErrSessionNotFound) {
			s.rdb.ZRem(ctx, s.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (s *Store) AppendAttempt(ctx context.Context, a *session.Attempt) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	key := s.attemptsKey(a.SessionID)
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, raw)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

func (s *Store) Attempts(ctx context.Context, sessionID string) ([]*session.Attempt, error) {
	items, err := s.rdb.LRange(ctx, s.attemptsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	out := make([]*session.Attempt, 0, len(items))
	for _, item := range items {
		var a session.Attempt
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			return nil, fmt.Errorf("unmarshal attempt: %w", err)
		}
		out = append(out, &a)
	}
	return out, nil
}
