package router

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oksasatya/account-service/internal/application"
	"github.com/oksasatya/account-service/internal/container"
	"github.com/oksasatya/account-service/internal/infrastructure/cache"
	"github.com/oksasatya/account-service/internal/infrastructure/search"
	"github.com/oksasatya/account-service/internal/infrastructure/storage"
	handlers "github.com/oksasatya/account-service/internal/interface/http"
	"github.com/oksasatya/account-service/internal/router/modules"
	"github.com/oksasatya/account-service/pkg/helpers"
)

type AccountModuleDeps struct {
	Service *application.Service
	Handler *handlers.AccountHandler
}

// BuildAccountService assembles the service from whatever the container holds.
// Missing optional clients simply leave the matching option out.
func BuildAccountService() (*application.Service, error) {
	cfg := container.GetConfig()
	logger := container.GetLogger()

	opts := []application.Option{application.WithLogger(logger)}
	if rdb := container.GetRedis(); rdb != nil {
		opts = append(opts, application.WithCache(cache.NewAccountCache(rdb, cfg.CacheTTL, logger)))
	}
	if es := container.GetES(); es != nil {
		opts = append(opts, application.WithSearch(search.NewAccountIndex(es, cfg.ESAccountsIndex)))
	}
	if pub := container.GetEventPublisher(); pub != nil {
		opts = append(opts, application.WithEvents(pub))
	}
	if gcs := container.GetGCS(); gcs != nil && cfg.GCSBucket != "" {
		opts = append(opts, application.WithAvatarStore(storage.NewAvatarStore(gcs, cfg.GCSBucket, cfg.GCSPublicBaseURL)))
	}

	hasher := helpers.NewPasswordHasher(cfg.PasswordHasher, cfg.BcryptCost)
	return application.NewService(container.GetAccountRepo(), hasher, opts...)
}

func buildAccountDeps() (AccountModuleDeps, error) {
	service, err := BuildAccountService()
	if err != nil {
		return AccountModuleDeps{}, fmt.Errorf("build account service: %w", err)
	}
	return AccountModuleDeps{
		Service: service,
		Handler: handlers.NewAccountHandler(service, container.GetLogger()),
	}, nil
}

func healthChecks() map[string]modules.Check {
	checks := map[string]modules.Check{}
	if pool := container.GetPGPool(); pool != nil {
		checks["postgres"] = pool.Ping
	}
	if rdb := container.GetRedis(); rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}

// InitModules initializes all application modules and registers them with the router registry
// This function should be called once during application startup to wire up all modules
func InitModules(r *Registry) error {
	cfg := container.GetConfig()

	accountDeps, err := buildAccountDeps()
	if err != nil {
		return err
	}

	limits := modules.RateLimits{
		Login:         cfg.RateLimitLogin,
		LoginUsername: cfg.RateLimitLoginUsername,
		Register:      cfg.RateLimitRegister,
		Window:        cfg.RateLimitWindow,
		TrustPrivate:  cfg.RateLimitTrustPrivate,
	}
	if cfg.RateLimitEnabled {
		limits.Redis = container.Limiter()
	}

	r.Add(modules.NewHealthModule(healthChecks()))
	r.Add(modules.NewAccountModule(accountDeps.Handler, limits))
	if cfg.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule(container.Limiter(), prometheus.DefaultGatherer))
	}
	return nil
}
