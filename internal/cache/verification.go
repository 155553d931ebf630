package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConsumeResult is the outcome of a verification code attempt.
type ConsumeResult int

const (
	ConsumeOK ConsumeResult = iota
	ConsumeWrongCode
	ConsumeTooManyAttempts
	ConsumeNotFound
)

// consumeScript checks and consumes a verification code atomically: the code
// comparison, attempt increment, and delete happen in one round trip so two
// concurrent attempts cannot both succeed or skip the attempt budget.
var consumeScript = redis.NewScript(`
local key = KEYS[1]
local submitted = ARGV[1]
local max_attempts = tonumber(ARGV[2])

local code = redis.call('HGET', key, 'code')
if not code then
  return -2
end

if code == submitted then
  redis.call('DEL', key)
  return 1
end

local attempts = redis.call('HINCRBY', key, 'attempts', 1)
if attempts >= max_attempts then
  redis.call('DEL', key)
  return -1
end

return 0
`)

// VerificationStore holds short-lived verification codes with an attempt
// budget enforced atomically in Redis.
type VerificationStore struct {
	client *redis.Client
}

// NewVerificationStore creates a verification code store.
func NewVerificationStore(client *redis.Client) *VerificationStore {
	return &VerificationStore{client: client}
}

// Put stores a code under the key with the given TTL, resetting attempts.
func (s *VerificationStore) Put(ctx context.Context, key, code, target string, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "code", code, "target", target, "attempts", 0)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store verification code %s: %w", key, err)
	}
	return nil
}

// Consume validates the submitted code against the stored one. A correct code
// deletes the record; a wrong code burns one attempt; exhausting the budget
// deletes the record so the flow must restart.
func (s *VerificationStore) Consume(ctx context.Context, key, code string, maxAttempts int) (ConsumeResult, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{key}, code, maxAttempts).Int64()
	if err != nil {
		return ConsumeNotFound, fmt.Errorf("consume verification code %s: %w", key, err)
	}

	switch res {
	case 1:
		return ConsumeOK, nil
	case 0:
		return ConsumeWrongCode, nil
	case -1:
		return ConsumeTooManyAttempts, nil
	default:
		return ConsumeNotFound, nil
	}
}
