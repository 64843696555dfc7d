package container

import (
	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-service/config"
	"github.com/oksasatya/account-service/internal/domain/repository"
	"github.com/oksasatya/account-service/internal/infrastructure/memory"
	"github.com/oksasatya/account-service/internal/infrastructure/messaging"
	pginfra "github.com/oksasatya/account-service/internal/infrastructure/postgres"
)

// app-level container to share constructed components across packages
// Router can auto-wire modules from these singletons. Optional clients stay
// nil when their integration is not configured.

var (
	cfg         *config.Config
	logger      *logrus.Logger
	pgPool      *pgxpool.Pool
	redisClient *redis.Client
	gcsClient   *storage.Client

	eventPub *messaging.Publisher
	esClient *elasticsearch.Client

	accountRepo repository.AccountRepository
)

func SetConfig(c *config.Config) { cfg = c }
func GetConfig() *config.Config {
	if cfg == nil {
		cfg = config.Load()
	}
	return cfg
}
func SetLogger(l *logrus.Logger) { logger = l }
func GetLogger() *logrus.Logger {
	if logger == nil {
		logger = logrus.New()
	}
	return logger
}
func SetPGPool(p *pgxpool.Pool)                     { pgPool = p }
func GetPGPool() *pgxpool.Pool                      { return pgPool }
func SetRedis(r *redis.Client)                      { redisClient = r }
func GetRedis() *redis.Client                       { return redisClient }
func SetGCS(s *storage.Client)                      { gcsClient = s }
func GetGCS() *storage.Client                       { return gcsClient }
func SetEventPublisher(p *messaging.Publisher)      { eventPub = p }
func GetEventPublisher() *messaging.Publisher       { return eventPub }
func SetES(c *elasticsearch.Client)                 { esClient = c }
func GetES() *elasticsearch.Client                  { return esClient }
func SetAccountRepo(r repository.AccountRepository) { accountRepo = r }

// Limiter returns the redis client as an interface, or a nil interface when
// redis is not configured, so middleware.RateLimit degrades to a no-op.
func Limiter() redis.Cmdable {
	if redisClient == nil {
		return nil
	}
	return redisClient
}

// GetAccountRepo returns the configured store. Without an explicit repo it
// is Postgres when a pool was provided and the in-process store otherwise.
func GetAccountRepo() repository.AccountRepository {
	if accountRepo != nil {
		return accountRepo
	}
	if pgPool != nil {
		accountRepo = pginfra.NewAccountRepository(pgPool)
	} else {
		accountRepo = memory.NewAccountRepository()
	}
	return accountRepo
}

// Reset clears every singleton.
func Reset() {
	cfg, logger, pgPool, redisClient, gcsClient = nil, nil, nil, nil, nil
	eventPub, esClient, accountRepo = nil, nil, nil
}
