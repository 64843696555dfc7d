package mailer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/account-service/internal/domain/entity"
	mailtpl "github.com/oksasatya/account-service/pkg/mailer/templates"
)

var brand = mailtpl.Brand{AppName: "Accounts", CompanyName: "Example Ltd"}

func TestTemplateFor(t *testing.T) {
	assert.Equal(t, "account_registered", TemplateFor(entity.EventAccountRegistered))
	assert.Equal(t, "account_deleted", TemplateFor(entity.EventAccountDeleted))
}

func TestBuildJob(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	t.Run("registered", func(t *testing.T) {
		ev := entity.AccountEvent{Type: entity.EventAccountRegistered, Username: "alice", Email: " alice@example.com ", OccurredAt: at}
		job, ok, err := BuildJob(ev, brand)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "alice@example.com", job.To)
		assert.Equal(t, "Welcome to Accounts, alice", job.Subject)
		assert.Contains(t, job.HTML, "<strong>alice</strong>")
	})

	t.Run("no email address", func(t *testing.T) {
		ev := entity.AccountEvent{Type: entity.EventAccountUpdated, Username: "bob"}
		_, ok, err := BuildJob(ev, brand)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown event", func(t *testing.T) {
		ev := entity.AccountEvent{Type: "account.suspended", Email: "x@example.com"}
		_, ok, err := BuildJob(ev, brand)
		assert.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMailgun_Send(t *testing.T) {
	var hits atomic.Int32
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"<1@mg.example.com>","message":"Queued. Thank you."}`))
	}))
	defer srv.Close()

	m := NewMailgun("mg.example.com", "key-test", "Accounts <no-reply@mg.example.com>").WithAPIBase(srv.URL + "/v3")
	err := m.Send(context.Background(), "alice@example.com", "hi", "text", "<p>html</p>")
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())
	assert.True(t, strings.HasSuffix(path, "/messages"), path)
}
