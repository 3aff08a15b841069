package idempotency

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// pendingPrefix starts the claim token that occupies a key while its owner
// is executing.  A stored snapshot is JSON and can never start with a NUL
// byte.
const pendingPrefix = "\x00pending:"

// finishScript stores the snapshot only while ARGV[1] still owns the key.
// A lapsed claim nobody took over may still record its result.
var finishScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == ARGV[1] or cur == false then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
  return 1
end
return 0`)

// abortScript deletes the key only while ARGV[1] still owns it.
var abortScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0`)

// RedisOptions tunes a Redis store.  Zero values pick the defaults.
type RedisOptions struct {
	Prefix    string
	Retention time.Duration
	// ClaimTTL bounds how long a crashed owner can block a key.
	ClaimTTL time.Duration
	// Poll is the wait between reads while another caller owns the key.
	Poll  time.Duration
	Clock clockwork.Clock
}

// Redis is a Store shared by every instance of the service.  Keys are
// hashed so client input never shapes the Redis keyspace.
type Redis struct {
	rdb   redis.Cmdable
	opts  RedisOptions
	token func() string
}

// NewRedis builds a Redis-backed store.
func NewRedis(rdb redis.Cmdable, opts RedisOptions) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = "idem"
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = defaultClaimTTL
	}
	if opts.Poll <= 0 {
		opts.Poll = defaultPoll
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Redis{rdb: rdb, opts: opts, token: newToken}
}

func (r *Redis) redisKey(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return r.opts.Prefix + ":" + hex.EncodeToString(sum[:])
}

func (r *Redis) Begin(ctx context.Context, key string) (Claim, []byte, bool, error) {
	rk := r.redisKey(key)
	for {
		c := Claim{Key: key, Token: pendingPrefix + r.token()}
		claimed, err := r.rdb.SetNX(ctx, rk, c.Token, r.opts.ClaimTTL).Result()
		if err != nil {
			return Claim{}, nil, false, err
		}
		if claimed {
			return c, nil, false, nil
		}
		val, err := r.rdb.Get(ctx, rk).Bytes()
		if errors.Is(err, redis.Nil) {
			// Owner aborted or the record expired between the two calls.
			continue
		}
		if err != nil {
			return Claim{}, nil, false, err
		}
		if !strings.HasPrefix(string(val), pendingPrefix) {
			return Claim{}, val, true, nil
		}
		select {
		case <-r.opts.Clock.After(r.opts.Poll):
		case <-ctx.Done():
			return Claim{}, nil, false, ctx.Err()
		}
	}
}

func (r *Redis) Finish(ctx context.Context, c Claim, snapshot []byte) error {
	n, err := finishScript.Run(ctx, r.rdb, []string{r.redisKey(c.Key)},
		c.Token, string(snapshot), r.opts.Retention.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotClaimed
	}
	return nil
}

func (r *Redis) Abort(ctx context.Context, c Claim) error {
	n, err := abortScript.Run(ctx, r.rdb, []string{r.redisKey(c.Key)}, c.Token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotClaimed
	}
	return nil
}

// Purge is a no-op; Redis expires records on its own.
func (r *Redis) Purge(context.Context) (int, error) { return 0, nil }
