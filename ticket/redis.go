package ticket

import (
	"encoding/json"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
)

const redisKeyPrefix = "cas:ticket:"

// getAndDelete makes lookup and removal one step on the Redis side, which
// keeps ValidateAndConsume linearizable across server instances.
var getAndDelete = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v then redis.call('DEL', KEYS[1]) end
return v
`)

// RedisStore is the multi-instance Store. Tickets live in Redis with a key
// TTL slightly past the ticket TTL; ExpiresAt inside the value stays
// authoritative so a lagging Redis expiry cannot extend a ticket's life.
type RedisStore struct {
	client  *redis.Client
	ttl     time.Duration
	nowTime func() time.Time
}

var _ Store = (*RedisStore)(nil)

type RedisStoreOption func(*RedisStore)

// WithRedisNowTime sets the now time function (primarily for testing)
func WithRedisNowTime(nowFunc func() time.Time) RedisStoreOption {
	return func(s *RedisStore) {
		s.nowTime = nowFunc
	}
}

func NewRedisStore(client *redis.Client, ttl time.Duration, options ...RedisStoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("[NewRedisStore] redis client is required")
	}
	s := &RedisStore{
		client:  client,
		ttl:     ttl,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

type redisTicket struct {
	PrincipalID string    `json:"principal_id"`
	Service     string    `json:"service"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *RedisStore) Issue(principalID, service string) (string, error) {
	now := s.nowTime()
	token, err := newToken(now)
	if err != nil {
		return "", err
	}

	value, err := json.Marshal(redisTicket{
		PrincipalID: principalID,
		Service:     service,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.ttl),
	})
	if err != nil {
		return "", errors.Wrap(err, "[RedisStore.Issue] marshal ticket")
	}

	// Key expiry is hygiene; expiry inside the value is the check that counts.
	if err := s.client.Set(redisKeyPrefix+token, string(value), s.ttl+time.Minute).Err(); err != nil {
		return "", errors.Wrap(err, "[RedisStore.Issue] redis set")
	}
	return token, nil
}

func (s *RedisStore) ValidateAndConsume(token, service string) (string, error) {
	raw, err := getAndDelete.Run(s.client, []string{redisKeyPrefix + token}).Result()
	if err == redis.Nil || raw == nil {
		return "", ErrTicketInvalid
	}
	if err != nil {
		return "", errors.Wrap(err, "[RedisStore.ValidateAndConsume] redis eval")
	}

	value, ok := raw.(string)
	if !ok {
		return "", ErrTicketInvalid
	}

	var t redisTicket
	if err := json.Unmarshal([]byte(value), &t); err != nil {
		return "", ErrTicketInvalid
	}
	if s.nowTime().After(t.ExpiresAt) {
		return "", ErrTicketInvalid
	}
	if t.Service != service {
		return "", ErrTicketInvalid
	}
	return t.PrincipalID, nil
}

func (s *RedisStore) Invalidate(token string) (bool, error) {
	removed, err := s.client.Del(redisKeyPrefix + token).Result()
	if err != nil {
		return false, errors.Wrap(err, "[RedisStore.Invalidate] redis del")
	}
	return removed > 0, nil
}
