package usecase

import (
	"context"
	"fmt"
	"strings"

	"elasticrag/internal/domain"
)

// Client composes the stores behind the top-level operations the CLI and
// the HTTP API expose.
type Client struct {
	Users       UserStore
	Models      ModelRegistry
	Collections *CollectionManager

	indices domain.IndexAdmin
}

func NewClient(users UserStore, models ModelRegistry, collections *CollectionManager, indices domain.IndexAdmin) *Client {
	return &Client{
		Users:       users,
		Models:      models,
		Collections: collections,
		indices:     indices,
	}
}

// Collection opens a handle on one of a user's collections.
func (c *Client) Collection(ctx context.Context, username, collection, modelID string, forceRecreate bool) (*Collection, error) {
	return c.Collections.Open(ctx, username, collection, modelID, forceRecreate)
}

// CollectionInfo describes one collection recovered from the index naming
// convention.
type CollectionInfo struct {
	Name     string
	ModelID  string
	Index    string
	Health   string
	Status   string
	DocCount int
}

// ListCollections parses a user's backing indices back into collection
// descriptors.
func (c *Client) ListCollections(ctx context.Context, username string) ([]CollectionInfo, error) {
	if err := domain.ValidateNamePart(username); err != nil {
		return nil, err
	}
	infos, err := c.indices.ListIndices(ctx, []string{
		"*__" + username + "__*",
		username + "__*",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list indices: %w", err)
	}

	collections := make([]CollectionInfo, 0, len(infos))
	for _, info := range infos {
		if info.Name == domain.UserIndex {
			continue
		}
		// Components never contain "__", so the split is unambiguous.
		parts := strings.Split(info.Name, "__")
		var modelID, collection string
		switch {
		case len(parts) == 3 && parts[1] == username:
			modelID, collection = parts[0], parts[2]
		case len(parts) == 2 && parts[0] == username:
			collection = parts[1]
		default:
			continue
		}
		collections = append(collections, CollectionInfo{
			Name:     collection,
			ModelID:  modelID,
			Index:    info.Name,
			Health:   info.Health,
			Status:   info.Status,
			DocCount: info.DocCount,
		})
	}
	return collections, nil
}
