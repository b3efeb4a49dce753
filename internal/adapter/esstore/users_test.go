package esstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"elasticrag/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureIndex_CreatesOnFirstUse(t *testing.T) {
	var created bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			created = true
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		}
	}))
	t.Cleanup(srv.Close)
	repo := NewUserRepository(NewClient(srv.URL, "", "", srv.Client()))

	require.NoError(t, repo.EnsureIndex(context.Background()))
	assert.True(t, created)
}

func TestEnsureIndex_ExistingIsNoop(t *testing.T) {
	client, calls := recordingServer(t, http.StatusOK, ``)
	repo := NewUserRepository(client)

	require.NoError(t, repo.EnsureIndex(context.Background()))
	require.Len(t, *calls, 1)
	assert.Equal(t, http.MethodHead, (*calls)[0].method)
}

func TestPutUser(t *testing.T) {
	client, calls := recordingServer(t, http.StatusCreated, `{"result":"created"}`)
	repo := NewUserRepository(client)

	now := time.Now().UTC()
	err := repo.Put(context.Background(), domain.User{
		Username:   "alice",
		APIKeyHash: "abc123",
		CreatedAt:  now,
	})
	require.NoError(t, err)

	call := (*calls)[0]
	assert.Equal(t, "/"+domain.UserIndex+"/_doc/alice", call.path)
	assert.Equal(t, "wait_for", call.query.Get("refresh"))
	assert.Equal(t, "alice", call.body["username"])
	assert.Equal(t, "abc123", call.body["api_key_hash"])
}

func TestGetUser(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		response := `{"found":true,"_source":{
			"username":"alice","api_key_hash":"abc123",
			"metadata":{"team":"search"},
			"created_at":"2026-08-01T00:00:00Z",
			"last_login":"2026-08-30T09:00:00Z"
		}}`
		client, _ := recordingServer(t, http.StatusOK, response)
		repo := NewUserRepository(client)

		user, err := repo.Get(context.Background(), "alice")
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "alice", user.Username)
		assert.Equal(t, "abc123", user.APIKeyHash)
		assert.Equal(t, map[string]any{"team": "search"}, user.Metadata)
		require.NotNil(t, user.LastLogin)
	})

	t.Run("absent", func(t *testing.T) {
		client, _ := recordingServer(t, http.StatusNotFound, `{"found":false}`)
		repo := NewUserRepository(client)

		user, err := repo.Get(context.Background(), "ghost")
		require.NoError(t, err)
		assert.Nil(t, user)
	})
}

func TestUpdateFields(t *testing.T) {
	client, calls := recordingServer(t, http.StatusOK, `{"result":"updated"}`)
	repo := NewUserRepository(client)

	err := repo.UpdateFields(context.Background(), "alice", map[string]any{"metadata": map[string]any{"team": "rag"}})
	require.NoError(t, err)

	call := (*calls)[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "/"+domain.UserIndex+"/_update/alice", call.path)
	doc := call.body["doc"].(map[string]any)
	assert.Equal(t, map[string]any{"team": "rag"}, doc["metadata"])
}

func TestDeleteUser(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		client, _ := recordingServer(t, http.StatusOK, `{"result":"deleted"}`)
		repo := NewUserRepository(client)

		deleted, err := repo.Delete(context.Background(), "alice")
		require.NoError(t, err)
		assert.True(t, deleted)
	})

	t.Run("absent", func(t *testing.T) {
		client, _ := recordingServer(t, http.StatusNotFound, `{"result":"not_found"}`)
		repo := NewUserRepository(client)

		deleted, err := repo.Delete(context.Background(), "ghost")
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestListUsers(t *testing.T) {
	response := `{"hits":{"total":{"value":12},"hits":[
		{"_source":{"username":"bob","api_key_hash":"x","created_at":"2026-08-20T00:00:00Z"}},
		{"_source":{"username":"alice","api_key_hash":"y","created_at":"2026-08-01T00:00:00Z"}}
	]}}`
	client, calls := recordingServer(t, http.StatusOK, response)
	repo := NewUserRepository(client)

	users, total, err := repo.List(context.Background(), 10, 2)
	require.NoError(t, err)

	assert.Equal(t, 12, total)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[0].Username)

	call := (*calls)[0]
	assert.Equal(t, float64(10), call.body["from"])
	assert.Equal(t, float64(2), call.body["size"])
	assert.Equal(t, true, call.body["track_total_hits"])
}
