package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/account-service/internal/domain/entity"
	"github.com/oksasatya/account-service/pkg/metrics"
	"github.com/oksasatya/account-service/pkg/response"
)

const (
	maxPeekBytes      = 8 << 10
	maxKeyUsernameLen = 64
)

// KeyFunc names the bucket a request is charged to. An empty key means the
// request is not charged by this limiter.
type KeyFunc func(c *gin.Context) string

// AllowFunc returns true for requests that skip the limiter.
type AllowFunc func(*gin.Context) bool

func clientIP(c *gin.Context) string {
	if ip := c.GetString(RealIPKey); ip != "" {
		return ip
	}
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

func routeOf(c *gin.Context) string {
	if fp := c.FullPath(); fp != "" {
		return fp
	}
	return c.Request.URL.Path
}

func KeyByIP() KeyFunc {
	return func(c *gin.Context) string { return "rl:ip:" + clientIP(c) }
}

// KeyByIPAndPath limits by client IP and route, so login and register get
// separate budgets.
func KeyByIPAndPath() KeyFunc {
	return func(c *gin.Context) string {
		return "rl:path:" + routeOf(c) + ":ip:" + clientIP(c)
	}
}

// KeyByUsername charges the account named by the "username" field of a JSON
// body, folded the way usernames are compared. The body is left intact for
// the handler.
func KeyByUsername() KeyFunc {
	return func(c *gin.Context) string {
		name := peekUsername(c)
		if name == "" || len(name) > maxKeyUsernameLen {
			return ""
		}
		return "rl:path:" + routeOf(c) + ":user:" + name
	}
}

type replayBody struct {
	io.Reader
	io.Closer
}

func peekUsername(c *gin.Context) string {
	body := c.Request.Body
	if body == nil || body == http.NoBody {
		return ""
	}
	head, err := io.ReadAll(io.LimitReader(body, maxPeekBytes))
	c.Request.Body = replayBody{Reader: io.MultiReader(bytes.NewReader(head), body), Closer: body}
	if err != nil {
		return ""
	}
	var in struct {
		Username string `json:"username"`
	}
	if json.Unmarshal(head, &in) != nil {
		return ""
	}
	return entity.UsernameKey(in.Username)
}

// hitScript counts a hit in a fixed window and returns {count, pttl}.
var hitScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// hit charges key and reports the window count and time left in it.
func hit(c *gin.Context, rdb redis.Cmdable, key string, window time.Duration) (int, time.Duration, error) {
	res, err := hitScript.Run(c.Request.Context(), rdb, []string{key}, window.Milliseconds()).Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, redis.Nil
	}
	count, _ := res[0].(int64)
	pttl, _ := res[1].(int64)
	if pttl < 0 {
		pttl = 0
	}
	return int(count), time.Duration(pttl) * time.Millisecond, nil
}

// RateLimit allows max requests per key in each window and answers 429
// beyond that. It sets the X-RateLimit-* headers and Retry-After when
// limited. Redis failures let the request through. With no redis, a
// non-positive max or window, or no key func, it does nothing.
func RateLimit(rdb redis.Cmdable, max int, window time.Duration, keyFn KeyFunc, allow AllowFunc) gin.HandlerFunc {
	if rdb == nil || max <= 0 || window <= 0 || keyFn == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || (allow != nil && allow(c)) {
			c.Next()
			return
		}
		key := keyFn(c)
		if key == "" {
			c.Next()
			return
		}

		count, left, err := hit(c, rdb, key, window)
		if err != nil {
			c.Next()
			return
		}
		resetSec := int((left + time.Second - 1) / time.Second)

		c.Header("X-RateLimit-Limit", strconv.Itoa(max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(maxInt(max-count, 0)))
		c.Header("X-RateLimit-Reset", strconv.Itoa(resetSec))

		if count <= max {
			c.Next()
			return
		}
		metrics.RecordRateLimited(routeOf(c))
		if resetSec > 0 {
			c.Header("Retry-After", strconv.Itoa(resetSec))
		}
		response.Error[any](c, http.StatusTooManyRequests, "rate limit exceeded", nil)
		c.Abort()
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
