package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRealIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"cloudflare wins", map[string]string{"CF-Connecting-IP": "203.0.113.7", "X-Forwarded-For": "198.51.100.1"}, "203.0.113.7"},
		{"left-most forwarded", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, "198.51.100.1"},
		{"x-real-ip", map[string]string{"X-Real-IP": "2001:db8::1"}, "2001:db8::1"},
		{"garbage falls back", map[string]string{"X-Forwarded-For": "nope"}, "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			var got string
			r.Use(RealIP())
			r.GET("/", func(c *gin.Context) { got = c.GetString(RealIPKey) })

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			r.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	var got string
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { got = c.GetString("request_id") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, got)
	assert.Equal(t, got, w.Header().Get(RequestIDHeader))

	const incoming = "0b6e7a52-1a8f-4a35-9b0e-2f56d0f0c1aa"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, incoming)
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, incoming, got)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "<script>", got)
}

func TestAllowPrivateIP(t *testing.T) {
	allow := AllowPrivateIP()
	for ip, want := range map[string]bool{
		"127.0.0.1":   true,
		"10.1.2.3":    true,
		"192.168.1.5": true,
		"8.8.8.8":     false,
		"unknown":     false,
	} {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Set(RealIPKey, ip)
		assert.Equal(t, want, allow(c), ip)
	}
}

func TestRateLimit(t *testing.T) {
	const window = time.Minute
	key := "rl:ip:192.0.2.1"

	newRouter := func(mw gin.HandlerFunc) *gin.Engine {
		r := gin.New()
		r.Use(mw)
		r.POST("/login", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		return r
	}
	expectHit := func(mock redismock.ClientMock, key string, count, pttl int64) {
		mock.ExpectEvalSha(hitScript.Hash(), []string{key}, window.Milliseconds()).
			SetVal([]interface{}{count, pttl})
	}

	t.Run("under the limit", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		expectHit(mock, key, 1, window.Milliseconds())

		w := httptest.NewRecorder()
		newRouter(RateLimit(rdb, 2, window, KeyByIP(), nil)).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "60", w.Header().Get("X-RateLimit-Reset"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("over the limit", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		expectHit(mock, key, 3, 29_500)

		w := httptest.NewRecorder()
		newRouter(RateLimit(rdb, 2, window, KeyByIP(), nil)).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "30", w.Header().Get("Retry-After"))
	})

	t.Run("fails open", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		mock.ExpectEvalSha(hitScript.Hash(), []string{key}, window.Milliseconds()).SetErr(errors.New("connection refused"))

		w := httptest.NewRecorder()
		newRouter(RateLimit(rdb, 2, window, KeyByIP(), nil)).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("disabled without redis", func(t *testing.T) {
		w := httptest.NewRecorder()
		newRouter(RateLimit(nil, 2, window, KeyByIP(), nil)).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("allow func bypasses", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		w := httptest.NewRecorder()
		allowAll := func(*gin.Context) bool { return true }
		newRouter(RateLimit(rdb, 2, window, KeyByIP(), allowAll)).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty key is not charged", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		w := httptest.NewRecorder()
		noKey := func(*gin.Context) string { return "" }
		newRouter(RateLimit(rdb, 2, window, noKey, nil)).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRateLimit_PerUsernameAcrossIPs(t *testing.T) {
	const window = time.Minute
	key := "rl:path:/login:user:alice"
	rdb, mock := redismock.NewClientMock()
	mock.ExpectEvalSha(hitScript.Hash(), []string{key}, window.Milliseconds()).SetVal([]interface{}{int64(1), int64(60_000)})
	mock.ExpectEvalSha(hitScript.Hash(), []string{key}, window.Milliseconds()).SetVal([]interface{}{int64(2), int64(59_000)})

	var seen []string
	r := gin.New()
	r.Use(RealIP())
	r.POST("/login", RateLimit(rdb, 1, window, KeyByUsername(), nil), func(c *gin.Context) {
		var in struct {
			Username string `json:"username"`
		}
		require.NoError(t, c.ShouldBindJSON(&in))
		seen = append(seen, in.Username)
		c.Status(http.StatusNoContent)
	})

	send := func(ip, username string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"`+username+`","password":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, send("198.51.100.1", "alice"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.2", " ALICE "))
	assert.Equal(t, []string{"alice"}, seen, "handler still reads the full body")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyByUsername_NoUsername(t *testing.T) {
	for _, body := range []string{"", "not json", `{"password":"x"}`, `{"username":"` + strings.Repeat("a", 65) + `"}`} {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
		assert.Empty(t, KeyByUsername()(c), body)

		rest, err := io.ReadAll(c.Request.Body)
		require.NoError(t, err)
		assert.Equal(t, body, string(rest))
	}
}

func TestKeyByIPAndPath(t *testing.T) {
	r := gin.New()
	var key string
	r.Use(RealIP())
	r.POST("/api/accounts/:id/avatar", func(c *gin.Context) { key = KeyByIPAndPath()(c) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/accounts/abc/avatar", nil))
	assert.Equal(t, "rl:path:/api/accounts/:id/avatar:ip:192.0.2.1", key)
}
