package usecase

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"elasticrag/internal/domain"
)

// UserInfo is a user record with the credential hash stripped.
type UserInfo struct {
	Username  string
	Metadata  map[string]any
	CreatedAt time.Time
	LastLogin *time.Time
}

type UserStore interface {
	// AddUser creates a user or rotates an existing user's key and metadata.
	AddUser(ctx context.Context, username, apiKey string, metadata map[string]any) error
	// Authenticate verifies an api key and records the login time.
	Authenticate(ctx context.Context, username, apiKey string) (*UserInfo, error)
	// GetInfo returns a user record. Returns nil, nil if not found.
	GetInfo(ctx context.Context, username string) (*UserInfo, error)
	// UpdateMetadata replaces a user's metadata.
	UpdateMetadata(ctx context.Context, username string, metadata map[string]any) error
	// DeleteUser removes a user. Returns false when no record existed.
	DeleteUser(ctx context.Context, username string) (bool, error)
	// ListUsers returns users newest first with the total count.
	ListUsers(ctx context.Context, offset, limit int) ([]UserInfo, int, error)
}

type userStore struct {
	repo domain.UserRepository
}

func NewUserStore(repo domain.UserRepository) UserStore {
	return &userStore{repo: repo}
}

func (s *userStore) AddUser(ctx context.Context, username, apiKey string, metadata map[string]any) error {
	if err := domain.ValidateNamePart(username); err != nil {
		return err
	}
	if apiKey == "" {
		return fmt.Errorf("api key is empty: %w", domain.ErrInvalidInput)
	}
	if err := s.repo.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("failed to ensure user index: %w", err)
	}

	user := domain.User{
		Username:   username,
		APIKeyHash: domain.HashAPIKey(apiKey),
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}
	// Re-adding an existing user rotates the key but keeps its history.
	existing, err := s.repo.Get(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if existing != nil {
		user.CreatedAt = existing.CreatedAt
		user.LastLogin = existing.LastLogin
	}

	if err := s.repo.Put(ctx, user); err != nil {
		return fmt.Errorf("failed to put user: %w", err)
	}
	slog.InfoContext(ctx, "user_added", slog.String("username", username), slog.Bool("existing", existing != nil))
	return nil
}

func (s *userStore) Authenticate(ctx context.Context, username, apiKey string) (*UserInfo, error) {
	user, err := s.repo.Get(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("unknown user %q: %w", username, domain.ErrUnauthorized)
	}
	hash := domain.HashAPIKey(apiKey)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(user.APIKeyHash)) != 1 {
		return nil, fmt.Errorf("bad api key for %q: %w", username, domain.ErrUnauthorized)
	}

	now := time.Now().UTC()
	// Login-time tracking is best effort; a failed bookkeeping write must
	// not fail an otherwise valid authentication.
	if err := s.repo.UpdateFields(ctx, username, map[string]any{"last_login": now}); err != nil {
		slog.WarnContext(ctx, "last_login_update_failed",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
	} else {
		user.LastLogin = &now
	}
	return infoFromUser(*user), nil
}

func (s *userStore) GetInfo(ctx context.Context, username string) (*UserInfo, error) {
	user, err := s.repo.Get(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, nil
	}
	return infoFromUser(*user), nil
}

func (s *userStore) UpdateMetadata(ctx context.Context, username string, metadata map[string]any) error {
	user, err := s.repo.Get(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("unknown user %q: %w", username, domain.ErrUnauthorized)
	}
	if err := s.repo.UpdateFields(ctx, username, map[string]any{"metadata": metadata}); err != nil {
		return fmt.Errorf("failed to update user metadata: %w", err)
	}
	return nil
}

func (s *userStore) DeleteUser(ctx context.Context, username string) (bool, error) {
	deleted, err := s.repo.Delete(ctx, username)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	if deleted {
		slog.InfoContext(ctx, "user_deleted", slog.String("username", username))
	}
	return deleted, nil
}

func (s *userStore) ListUsers(ctx context.Context, offset, limit int) ([]UserInfo, int, error) {
	if limit <= 0 {
		limit = 100
	}
	users, total, err := s.repo.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	infos := make([]UserInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, *infoFromUser(u))
	}
	return infos, total, nil
}

func infoFromUser(user domain.User) *UserInfo {
	return &UserInfo{
		Username:  user.Username,
		Metadata:  user.Metadata,
		CreatedAt: user.CreatedAt,
		LastLogin: user.LastLogin,
	}
}
