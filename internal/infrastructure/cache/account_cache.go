// Package cache keeps sanitized account views in Redis.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-service/internal/domain/entity"
	"github.com/oksasatya/account-service/pkg/helpers"
)

const (
	viewPrefix  = "account:view:"
	fencePrefix = "account:fence:"

	// deleted is the fence value that blocks every later fill.
	deleted = "deleted"

	defaultFenceTTL = 10 * time.Minute
)

// fillScript writes the view unless a fence says the copy is stale.
// KEYS: view, fence. ARGV: payload, version (unix micros), ttl ms (0 = none).
var fillScript = redis.NewScript(`
local fence = redis.call("GET", KEYS[2])
if fence == "deleted" then
  return 0
end
if fence and tonumber(fence) > tonumber(ARGV[2]) then
  return 0
end
if tonumber(ARGV[3]) > 0 then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
else
  redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

// fenceScript drops the view and raises the fence. A deletion fence is final.
// KEYS: view, fence. ARGV: version or "deleted", fence ttl ms.
var fenceScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[2])
if cur ~= "deleted" then
  if ARGV[1] == "deleted" or not cur or tonumber(ARGV[1]) > tonumber(cur) then
    redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
  end
end
redis.call("DEL", KEYS[1])
return 1
`)

// AccountCache is a JSON read cache keyed by account id. Cache errors are
// logged and treated as misses.
//
// Writers fence the id before readers can fill it again: Invalidate records
// the newest UpdatedAt, Delete records a tombstone. A fill carrying an older
// version than the fence is dropped.
type AccountCache struct {
	rdb      redis.Cmdable
	ttl      time.Duration
	fenceTTL time.Duration
	logger   *logrus.Logger
}

func NewAccountCache(rdb redis.Cmdable, ttl time.Duration, logger *logrus.Logger) *AccountCache {
	fenceTTL := ttl
	if fenceTTL <= 0 {
		fenceTTL = defaultFenceTTL
	}
	return &AccountCache{rdb: rdb, ttl: ttl, fenceTTL: fenceTTL, logger: logger}
}

// Key and FenceKey share a hash tag so both land on one cluster slot.
func Key(id string) string      { return viewPrefix + "{" + id + "}" }
func FenceKey(id string) string { return fencePrefix + "{" + id + "}" }

// Version is the fence ordering of an account copy.
func Version(a *entity.Account) int64 { return a.UpdatedAt.UnixMicro() }

func (c *AccountCache) Get(ctx context.Context, id string) (*entity.Account, bool) {
	var a entity.Account
	ok, err := helpers.RedisGetJSON(ctx, c.rdb, Key(id), &a)
	if err != nil {
		c.logger.WithError(err).WithField("account_id", id).Warn("account cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &a, true
}

// Set stores a sanitized copy unless a newer write or a deletion fenced the
// id in the meantime. The hash is never written.
func (c *AccountCache) Set(ctx context.Context, a *entity.Account) {
	if a == nil || a.ID == "" {
		return
	}
	payload, err := json.Marshal(a.Sanitized())
	if err != nil {
		c.logger.WithError(err).WithField("account_id", a.ID).Warn("account cache encode failed")
		return
	}
	keys := []string{Key(a.ID), FenceKey(a.ID)}
	stored, err := fillScript.Run(ctx, c.rdb, keys, string(payload), Version(a), c.ttl.Milliseconds()).Int64()
	if err != nil {
		c.logger.WithError(err).WithField("account_id", a.ID).Warn("account cache write failed")
		return
	}
	if stored == 0 {
		c.logger.WithField("account_id", a.ID).Debug("stale account cache fill skipped")
	}
}

// Invalidate drops the cached view after a is written and rejects later
// fills older than a.
func (c *AccountCache) Invalidate(ctx context.Context, a *entity.Account) {
	if a == nil || a.ID == "" {
		return
	}
	c.fence(ctx, a.ID, Version(a))
}

// Delete drops the cached view and blocks fills for the id until the fence
// expires.
func (c *AccountCache) Delete(ctx context.Context, id string) {
	c.fence(ctx, id, deleted)
}

func (c *AccountCache) fence(ctx context.Context, id string, version any) {
	keys := []string{Key(id), FenceKey(id)}
	if err := fenceScript.Run(ctx, c.rdb, keys, version, c.fenceTTL.Milliseconds()).Err(); err != nil {
		c.logger.WithError(err).WithField("account_id", id).Warn("account cache invalidate failed")
	}
}
