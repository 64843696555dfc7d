package modules

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	handlers "github.com/oksasatya/account-service/internal/interface/http"
	"github.com/oksasatya/account-service/internal/interface/middleware"
)

// AccountModule wires account HTTP handlers into routes
// Public: POST /accounts/login, POST /accounts/register (rate limited per IP;
// login also per username)
// Reads: GET /accounts, /accounts/search, /accounts/by-username/:username, /accounts/:id
// Writes: PUT /accounts/:id, DELETE /accounts/:id, POST /accounts/:id/avatar
type AccountModule struct {
	Handler *handlers.AccountHandler
	Limits  RateLimits
}

// RateLimits configures the credential endpoints. A nil Redis disables limiting.
type RateLimits struct {
	Redis         redis.Cmdable
	Login         int
	LoginUsername int
	Register      int
	Window        time.Duration
	TrustPrivate  bool
}

func NewAccountModule(h *handlers.AccountHandler, limits RateLimits) *AccountModule {
	return &AccountModule{Handler: h, Limits: limits}
}

func (m *AccountModule) Register(rg *gin.RouterGroup) {
	var allow middleware.AllowFunc
	if m.Limits.TrustPrivate {
		allow = middleware.AllowPrivateIP()
	}
	loginLimiter := middleware.RateLimit(m.Limits.Redis, m.Limits.Login, m.Limits.Window, middleware.KeyByIPAndPath(), allow)
	// per account, whatever address the attempts come from
	usernameLimiter := middleware.RateLimit(m.Limits.Redis, m.Limits.LoginUsername, m.Limits.Window, middleware.KeyByUsername(), nil)
	registerLimiter := middleware.RateLimit(m.Limits.Redis, m.Limits.Register, m.Limits.Window, middleware.KeyByIPAndPath(), allow)

	g := rg.Group("/accounts")
	g.POST("/login", loginLimiter, usernameLimiter, m.Handler.Login)
	g.POST("/register", registerLimiter, m.Handler.Register)

	g.GET("", m.Handler.List)
	g.GET("/search", m.Handler.Search)
	g.GET("/by-username/:username", m.Handler.GetByUsername)
	g.GET("/:id", m.Handler.GetByID)
	g.PUT("/:id", m.Handler.Update)
	g.DELETE("/:id", m.Handler.Delete)
	g.POST("/:id/avatar", m.Handler.UploadAvatar)
}
