package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/account-service/config"
	"github.com/oksasatya/account-service/internal/application"
	"github.com/oksasatya/account-service/internal/container"
	"github.com/oksasatya/account-service/internal/infrastructure/memory"
	"github.com/oksasatya/account-service/internal/router"
	"github.com/oksasatya/account-service/pkg/helpers"
)

func newSeedService(t *testing.T) *application.Service {
	t.Helper()
	svc, err := application.NewService(memory.NewAccountRepository(), helpers.BcryptHasher{Cost: 4})
	require.NoError(t, err)
	return svc
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["migrate"])
	assert.True(t, names["seed"])

	migrate, _, err := root.Find([]string{"migrate", "down"})
	require.NoError(t, err)
	assert.Equal(t, "down", migrate.Name())
	assert.NotNil(t, migrate.Flags().Lookup("yes"))
}

func TestMigrateDown_RequiresConfirmation(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"migrate", "down"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestReadSeedFile(t *testing.T) {
	accounts, err := readSeedFile(strings.NewReader(`[{"username":"alice","password":"pw","email":"a@example.com"}]`))
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "alice", accounts[0].Username)

	_, err = readSeedFile(strings.NewReader(`[]`))
	assert.Error(t, err)

	_, err = readSeedFile(strings.NewReader(`{`))
	assert.Error(t, err)
}

func TestSeedAccounts_IsIdempotent(t *testing.T) {
	svc := newSeedService(t)
	accounts := []seedAccount{
		{Username: "alice", Password: "pw1"},
		{Username: "bob", Password: "pw2", DisplayName: "Bob"},
	}

	var out bytes.Buffer
	created, skipped, err := seedAccounts(context.Background(), svc, accounts, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 0, skipped)

	created, skipped, err = seedAccounts(context.Background(), svc, accounts, &out)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 2, skipped)
	assert.Contains(t, out.String(), "exists:  alice")
}

func TestSeedAccounts_StopsOnInvalidInput(t *testing.T) {
	svc := newSeedService(t)
	accounts := []seedAccount{
		{Username: "ok_user", Password: "pw"},
		{Username: "x", Password: "pw"},
		{Username: "never_reached", Password: "pw"},
	}

	created, _, err := seedAccounts(context.Background(), svc, accounts, &bytes.Buffer{})
	require.Error(t, err)
	assert.ErrorIs(t, err, application.ErrValidation)
	assert.Equal(t, 1, created)
}

func TestSeedService_CarriesServerCollaborators(t *testing.T) {
	var (
		mu   sync.Mutex
		reqs []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reqs = append(reqs, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"acknowledged":true,"result":"created"}`))
	}))
	defer srv.Close()

	container.Reset()
	t.Cleanup(container.Reset)
	cfg := config.Load()
	cfg.RedisAddr, cfg.RabbitMQURL = "", ""
	cfg.ElasticsearchAddrs = srv.URL
	cfg.ESAccountsIndex = "accounts"
	cfg.BcryptCost = 4
	logger, _ := logtest.NewNullLogger()
	container.SetConfig(cfg)
	container.SetLogger(logger)
	container.SetAccountRepo(memory.NewAccountRepository())

	closeAll := wireIntegrations(context.Background(), cfg, logger)
	defer closeAll()
	require.NotNil(t, container.GetES())

	svc, err := router.BuildAccountService()
	require.NoError(t, err)
	created, _, err := seedAccounts(context.Background(), svc, []seedAccount{{Username: "carol", Password: "pw"}}, &bytes.Buffer{})
	require.NoError(t, err)
	require.Equal(t, 1, created)

	acc, err := svc.GetByUsername(context.Background(), "carol")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, reqs, "PUT /accounts")
	assert.Contains(t, reqs, "PUT /accounts/_doc/"+acc.ID)
}
