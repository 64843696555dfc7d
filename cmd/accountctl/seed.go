package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/oksasatya/account-service/config"
	"github.com/oksasatya/account-service/internal/application"
	"github.com/oksasatya/account-service/internal/container"
	"github.com/oksasatya/account-service/internal/domain/entity"
	"github.com/oksasatya/account-service/internal/infrastructure/messaging"
	pginfra "github.com/oksasatya/account-service/internal/infrastructure/postgres"
	"github.com/oksasatya/account-service/internal/infrastructure/search"
	"github.com/oksasatya/account-service/internal/router"
	"github.com/oksasatya/account-service/pkg/helpers"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	timeout  time.Duration
	file     string
	username string
	password string
	email    string
}

// seedAccount is one entry of a seed file.
type seedAccount struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone"`
}

type registrar interface {
	Register(ctx context.Context, in application.RegisterInput) (*entity.Account, error)
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Register demo accounts",
		Long: `Registers accounts through the account service, so the usual validation
and hashing apply. Usernames that already exist are skipped; running the
command twice is safe.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, args, cfg)
		},
	}

	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	cmd.Flags().StringVar(&cfg.file, "file", "", "JSON file with an array of accounts")
	cmd.Flags().StringVar(&cfg.username, "username", "demoUser", "username of the single demo account (ignored with --file)")
	cmd.Flags().StringVar(&cfg.password, "password", "password123", "password of the single demo account")
	cmd.Flags().StringVar(&cfg.email, "email", "demo@example.com", "email of the single demo account")

	return cmd
}

func runSeed(cmd *cobra.Command, _ []string, cfg *seedConfig) error {
	accounts := []seedAccount{{Username: cfg.username, Password: cfg.password, Email: cfg.email}}
	if cfg.file != "" {
		f, err := os.Open(cfg.file)
		if err != nil {
			return fmt.Errorf("open seed file: %w", err)
		}
		defer func() { _ = f.Close() }()
		if accounts, err = readSeedFile(f); err != nil {
			return err
		}
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	appCfg := config.Load()
	logger := helpers.NewLogger("accountctl", appCfg.Env, appCfg.LogLevel)
	cmd.Println("Running migrations...")
	if err := pginfra.RunMigrations(appCfg.PostgresDSN(), logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	pool, err := pginfra.NewPool(ctx, appCfg.PostgresDSN(), 2, 1, time.Minute)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	container.Reset()
	defer container.Reset()
	container.SetConfig(appCfg)
	container.SetLogger(logger)
	container.SetPGPool(pool)
	closeIntegrations := wireIntegrations(ctx, appCfg, logger)
	defer closeIntegrations()

	// same collaborators as the server: cache, search index and events
	svc, err := router.BuildAccountService()
	if err != nil {
		return err
	}

	created, skipped, err := seedAccounts(ctx, svc, accounts, cmd.OutOrStdout())
	cmd.Printf("seed finished: created=%d skipped=%d\n", created, skipped)
	return err
}

// wireIntegrations connects the optional collaborators the server would use.
// An integration that cannot be reached is skipped with a warning; seeding
// only needs Postgres.
func wireIntegrations(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (closeAll func()) {
	var closers []func()
	if cfg.RedisAddr != "" {
		rdb := helpers.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		closers = append(closers, func() { _ = rdb.Close() })
		container.SetRedis(rdb)
	}
	if addrs := cfg.ESAddrs(); len(addrs) > 0 {
		es, err := helpers.NewESClient(addrs, cfg.ElasticsearchUser, cfg.ElasticsearchPass)
		if err != nil {
			helpers.LogWarn(logger, "elasticsearch unavailable, seeded accounts will not be indexed", err, nil)
		} else {
			if err := search.NewAccountIndex(es, cfg.ESAccountsIndex).EnsureIndex(ctx); err != nil {
				helpers.LogWarn(logger, "ensure search index", err, logrus.Fields{"index": cfg.ESAccountsIndex})
			}
			container.SetES(es)
		}
	}
	if cfg.RabbitMQURL != "" {
		pub, err := messaging.Dial(ctx, cfg.RabbitMQURL, cfg.RabbitMQEventsQueue)
		if err != nil {
			helpers.LogWarn(logger, "rabbitmq unavailable, no account.registered events", err, nil)
		} else {
			closers = append(closers, pub.Close)
			container.SetEventPublisher(pub)
		}
	}
	return func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

func readSeedFile(r io.Reader) ([]seedAccount, error) {
	var accounts []seedAccount
	if err := json.NewDecoder(r).Decode(&accounts); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(accounts) == 0 {
		return nil, errors.New("seed file holds no accounts")
	}
	return accounts, nil
}

// seedAccounts registers each account, skipping usernames that already exist.
// It stops at the first other failure.
func seedAccounts(ctx context.Context, svc registrar, accounts []seedAccount, out io.Writer) (created, skipped int, err error) {
	for _, a := range accounts {
		acc, regErr := svc.Register(ctx, application.RegisterInput{
			Username:    a.Username,
			Password:    a.Password,
			Email:       a.Email,
			DisplayName: a.DisplayName,
			Phone:       a.Phone,
		})
		switch {
		case errors.Is(regErr, application.ErrConflict):
			skipped++
			_, _ = fmt.Fprintf(out, "exists:  %s\n", a.Username)
		case regErr != nil:
			return created, skipped, fmt.Errorf("seed %q: %w", a.Username, regErr)
		default:
			created++
			_, _ = fmt.Fprintf(out, "created: %s id=%s\n", acc.Username, acc.ID)
		}
	}
	return created, skipped, nil
}
