//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/oksasatya/account-service/internal/domain/entity"
	"github.com/oksasatya/account-service/internal/domain/repository"
	"github.com/oksasatya/account-service/internal/infrastructure/postgres"
)

var _ = Describe("AccountRepository against PostgreSQL", Ordered, func() {
	var (
		ctx       context.Context
		container *tcpostgres.PostgresContainer
		pool      *pgxpool.Pool
		repo      *postgres.AccountRepository
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("accounts_test"),
			tcpostgres.WithUsername("accounts"),
			tcpostgres.WithPassword("accounts"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		logger := logrus.New()
		logger.SetLevel(logrus.WarnLevel)
		Expect(postgres.RunMigrations(dsn, logger)).To(Succeed())

		pool, err = postgres.NewPool(ctx, dsn, 10, 1, time.Hour)
		Expect(err).NotTo(HaveOccurred())
		repo = postgres.NewAccountRepository(pool)
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	BeforeEach(func() {
		_, err := pool.Exec(ctx, `TRUNCATE accounts`)
		Expect(err).NotTo(HaveOccurred())
	})

	newAccount := func(username string) *entity.Account {
		now := time.Now().UTC().Truncate(time.Microsecond)
		return &entity.Account{Username: username, PasswordHash: "hash", CreatedAt: now, UpdatedAt: now}
	}

	It("round-trips an account and looks it up case-insensitively", func() {
		in := newAccount("Alice")
		in.Email = "alice@example.com"
		id, err := repo.Insert(ctx, in)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).NotTo(BeEmpty())

		got, err := repo.FindByUsername(ctx, "ALICE")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(id))
		Expect(got.Username).To(Equal("Alice"))
		Expect(got.Email).To(Equal("alice@example.com"))
		Expect(got.CreatedAt).To(BeTemporally("==", in.CreatedAt))
	})

	It("rejects a case-variant duplicate at insert time", func() {
		_, err := repo.Insert(ctx, newAccount("bob"))
		Expect(err).NotTo(HaveOccurred())

		_, err = repo.Insert(ctx, newAccount("BOB"))
		Expect(err).To(MatchError(repository.ErrDuplicateUsername))
	})

	It("lets exactly one concurrent insert win", func() {
		const n = 12
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
			dups int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := repo.Insert(ctx, newAccount("racer"))
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					wins++
				} else if err == repository.ErrDuplicateUsername {
					dups++
				}
			}()
		}
		wg.Wait()
		Expect(wins).To(Equal(1))
		Expect(dups).To(Equal(n - 1))
	})

	It("updates, renames and deletes", func() {
		id, err := repo.Insert(ctx, newAccount("carol"))
		Expect(err).NotTo(HaveOccurred())
		_, err = repo.Insert(ctx, newAccount("dave"))
		Expect(err).NotTo(HaveOccurred())

		a, err := repo.FindByID(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		a.Username = "Dave"
		Expect(repo.Update(ctx, a)).To(MatchError(repository.ErrDuplicateUsername))

		a.Username = "caroline"
		a.UpdatedAt = a.UpdatedAt.Add(time.Second)
		Expect(repo.Update(ctx, a)).To(Succeed())

		got, err := repo.FindByID(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Username).To(Equal("caroline"))

		Expect(repo.DeleteByID(ctx, id)).To(Succeed())
		Expect(repo.DeleteByID(ctx, id)).To(MatchError(repository.ErrNotFound))
		_, err = repo.FindByID(ctx, id)
		Expect(err).To(MatchError(repository.ErrNotFound))
	})

	It("lists accounts in creation order", func() {
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		for i, name := range []string{"third", "first", "second"} {
			a := newAccount(name)
			a.CreatedAt = base.Add(time.Duration([]int{2, 0, 1}[i]) * time.Second)
			a.UpdatedAt = a.CreatedAt
			_, err := repo.Insert(ctx, a)
			Expect(err).NotTo(HaveOccurred())
		}

		all, err := repo.FindAll(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(3))
		Expect(all[0].Username).To(Equal("first"))
		Expect(all[1].Username).To(Equal("second"))
		Expect(all[2].Username).To(Equal("third"))
	})
})
