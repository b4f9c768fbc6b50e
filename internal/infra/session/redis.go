package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"groupnotify/internal/domain/dispatch"

	"github.com/redis/go-redis/v9"
)

// userField is the session hash field holding the logged-in user's GUID.
const userField = "user_guid"

var _ dispatch.SessionResolver = (*RedisSessionStore)(nil)

// RedisSessionStore reads host CMS sessions stored as Redis hashes under
// prefix+sessionID.
type RedisSessionStore struct {
	client redis.Cmdable
	prefix string
	closer func() error
}

// NewRedisSessionStore connects to Redis and resolves sessions under prefix.
func NewRedisSessionStore(redisAddr, password string, db int, prefix string) *RedisSessionStore {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: password,
		DB:       db,
	})
	return &RedisSessionStore{client: client, prefix: prefix, closer: client.Close}
}

// NewRedisSessionStoreWithClient wraps an existing client. Close is a no-op.
func NewRedisSessionStoreWithClient(client redis.Cmdable, prefix string) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: prefix}
}

// ActorForSession returns the GUID of the session's user, or 0 when the
// session does not exist or is anonymous.
func (s *RedisSessionStore) ActorForSession(ctx context.Context, sessionID string) (dispatch.GUID, error) {
	if sessionID == "" {
		return 0, nil
	}

	val, err := s.client.HGet(ctx, s.prefix+sessionID, userField).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading session: %w", err)
	}

	guid, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("session %s has malformed %s %q", sessionID, userField, val)
	}
	return dispatch.GUID(guid), nil
}

// Close closes the Redis connection.
func (s *RedisSessionStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
