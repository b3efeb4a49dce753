package esstore

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"elasticrag/internal/domain"
)

// UserRepository persists user records in the auth index.
type UserRepository struct {
	client *Client
}

func NewUserRepository(client *Client) *UserRepository {
	return &UserRepository{client: client}
}

type userDoc struct {
	Username   string         `json:"username"`
	APIKeyHash string         `json:"api_key_hash"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	LastLogin  *time.Time     `json:"last_login,omitempty"`
}

func (r *UserRepository) EnsureIndex(ctx context.Context) error {
	status, data, err := r.client.send(ctx, "ensure_user_index", http.MethodHead, "/"+domain.UserIndex, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}
	if status != http.StatusNotFound {
		return unexpectedStatus("ensure_user_index", status, data)
	}

	body := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"username":     map[string]any{"type": "keyword"},
				"api_key_hash": map[string]any{"type": "keyword"},
				"metadata":     map[string]any{"type": "object", "dynamic": true},
				"created_at":   map[string]any{"type": "date"},
				"last_login":   map[string]any{"type": "date"},
			},
		},
	}
	status, data, err = r.client.send(ctx, "ensure_user_index", http.MethodPut, "/"+domain.UserIndex, body)
	if err != nil {
		return err
	}
	if status == http.StatusBadRequest && alreadyExists(data) {
		return nil
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return unexpectedStatus("ensure_user_index", status, data)
	}
	slog.InfoContext(ctx, "user_index_created", slog.String("index", domain.UserIndex))
	return nil
}

func (r *UserRepository) Put(ctx context.Context, user domain.User) error {
	doc := userDoc{
		Username:   user.Username,
		APIKeyHash: user.APIKeyHash,
		Metadata:   user.Metadata,
		CreatedAt:  user.CreatedAt,
		LastLogin:  user.LastLogin,
	}
	path := "/" + domain.UserIndex + "/_doc/" + pathEscape(user.Username) + "?refresh=wait_for"
	status, data, err := r.client.send(ctx, "put_user", http.MethodPut, path, doc)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return unexpectedStatus("put_user", status, data)
	}
	return nil
}

func (r *UserRepository) Get(ctx context.Context, username string) (*domain.User, error) {
	path := "/" + domain.UserIndex + "/_doc/" + pathEscape(username)
	status, data, err := r.client.send(ctx, "get_user", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, unexpectedStatus("get_user", status, data)
	}

	var resp struct {
		Found  bool    `json:"found"`
		Source userDoc `json:"_source"`
	}
	if err := decode("get_user", data, &resp); err != nil {
		return nil, err
	}
	if !resp.Found {
		return nil, nil
	}
	user := userFromDoc(resp.Source)
	return &user, nil
}

func (r *UserRepository) UpdateFields(ctx context.Context, username string, fields map[string]any) error {
	body := map[string]any{"doc": fields}
	path := "/" + domain.UserIndex + "/_update/" + pathEscape(username) + "?refresh=wait_for"
	status, data, err := r.client.send(ctx, "update_user", http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return unexpectedStatus("update_user", status, data)
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, username string) (bool, error) {
	path := "/" + domain.UserIndex + "/_doc/" + pathEscape(username) + "?refresh=wait_for"
	status, data, err := r.client.send(ctx, "delete_user", http.MethodDelete, path, nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, unexpectedStatus("delete_user", status, data)
	}
}

func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]domain.User, int, error) {
	body := map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
		"sort": []map[string]any{
			{"created_at": map[string]any{"order": "desc"}},
		},
		"from":             offset,
		"size":             limit,
		"track_total_hits": true,
	}
	path := "/" + domain.UserIndex + "/_search"
	status, data, err := r.client.send(ctx, "list_users", http.MethodPost, path, body)
	if err != nil {
		return nil, 0, err
	}
	if status == http.StatusNotFound {
		return nil, 0, nil
	}
	if status != http.StatusOK {
		return nil, 0, unexpectedStatus("list_users", status, data)
	}

	var resp struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source userDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := decode("list_users", data, &resp); err != nil {
		return nil, 0, err
	}

	users := make([]domain.User, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		users = append(users, userFromDoc(hit.Source))
	}
	return users, resp.Hits.Total.Value, nil
}

func userFromDoc(doc userDoc) domain.User {
	return domain.User{
		Username:   doc.Username,
		APIKeyHash: doc.APIKeyHash,
		Metadata:   doc.Metadata,
		CreatedAt:  doc.CreatedAt,
		LastLogin:  doc.LastLogin,
	}
}

var _ domain.UserRepository = (*UserRepository)(nil)
