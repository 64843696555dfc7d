package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/account-service/internal/domain/entity"
)

type recorded struct {
	method, path, query, body string
}

// fakeES answers like an Elasticsearch node and records every request.
func fakeES(t *testing.T, handle func(w http.ResponseWriter, r *http.Request)) (*elasticsearch.Client, *[]recorded) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recorded{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, body: string(b)})
		mu.Unlock()
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handle(w, r)
	}))
	t.Cleanup(srv.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return es, &reqs
}

func TestAccountIndex_IndexWritesSanitizedDocument(t *testing.T) {
	es, reqs := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	a := &entity.Account{ID: "id-1", Username: "alice", PasswordHash: "$2a$secret", Email: "a@example.com"}
	require.NoError(t, NewAccountIndex(es, "accounts").Index(context.Background(), a))

	require.Len(t, *reqs, 1)
	got := (*reqs)[0]
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "/accounts/_doc/id-1", got.path)
	assert.Contains(t, got.body, `"username":"alice"`)
	assert.NotContains(t, got.body, "secret")
}

func TestAccountIndex_IndexVersionsByUpdatedAt(t *testing.T) {
	updated := time.Date(2024, 5, 1, 12, 0, 0, 123000, time.UTC)
	a := &entity.Account{ID: "id-1", Username: "alice", UpdatedAt: updated}

	t.Run("sends an external version", func(t *testing.T) {
		es, reqs := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"result":"updated"}`))
		})
		require.NoError(t, NewAccountIndex(es, "accounts").Index(context.Background(), a))

		require.Len(t, *reqs, 1)
		q, err := url.ParseQuery((*reqs)[0].query)
		require.NoError(t, err)
		assert.Equal(t, strconv.FormatInt(updated.UnixMicro(), 10), q.Get("version"))
		assert.Equal(t, "external_gte", q.Get("version_type"))
	})

	t.Run("older copy losing the race is not an error", func(t *testing.T) {
		es, _ := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":{"type":"version_conflict_engine_exception"},"status":409}`))
		})
		assert.NoError(t, NewAccountIndex(es, "accounts").Index(context.Background(), a))
	})
}

func TestAccountIndex_IndexErrorStatus(t *testing.T) {
	es, _ := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
	})
	err := NewAccountIndex(es, "accounts").Index(context.Background(), &entity.Account{ID: "id-1"})
	assert.Error(t, err)
}

func TestAccountIndex_RemoveToleratesMissing(t *testing.T) {
	es, reqs := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"result":"not_found"}`))
	})
	require.NoError(t, NewAccountIndex(es, "accounts").Remove(context.Background(), "id-1"))
	require.Len(t, *reqs, 1)
	assert.Equal(t, http.MethodDelete, (*reqs)[0].method)
}

func TestAccountIndex_Search(t *testing.T) {
	es, reqs := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"hits": {"hits": [
				{"_id": "id-1", "_source": {"id": "id-1", "username": "alice", "display_name": "Alice"}},
				{"_id": "id-2", "_source": {"username": "alicia"}}
			]}
		}`))
	})

	out, err := NewAccountIndex(es, "accounts").Search(context.Background(), "ali", 5)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "alice", out[0].Username)
	assert.Equal(t, "Alice", out[0].DisplayName)
	assert.Equal(t, "id-2", out[1].ID)

	require.Len(t, *reqs, 1)
	assert.True(t, strings.HasSuffix((*reqs)[0].path, "/accounts/_search"))
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte((*reqs)[0].body), &body))
	assert.EqualValues(t, 5, body["size"])
}

func TestAccountIndex_EnsureIndex(t *testing.T) {
	t.Run("exists", func(t *testing.T) {
		es, reqs := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		require.NoError(t, NewAccountIndex(es, "accounts").EnsureIndex(context.Background()))
		assert.Len(t, *reqs, 1)
	})

	t.Run("creates when missing", func(t *testing.T) {
		es, reqs := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		})
		require.NoError(t, NewAccountIndex(es, "accounts").EnsureIndex(context.Background()))
		require.Len(t, *reqs, 2)
		assert.Equal(t, http.MethodPut, (*reqs)[1].method)
		assert.Contains(t, (*reqs)[1].body, `"username"`)
	})
}
