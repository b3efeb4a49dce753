package esstore

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"elasticrag/internal/domain"
)

// IndexAdmin manages collection indices.
type IndexAdmin struct {
	client *Client
}

func NewIndexAdmin(client *Client) *IndexAdmin {
	return &IndexAdmin{client: client}
}

func (a *IndexAdmin) IndexExists(ctx context.Context, name string) (bool, error) {
	status, data, err := a.client.send(ctx, "index_exists", http.MethodHead, "/"+pathEscape(name), nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, unexpectedStatus("index_exists", status, data)
	}
}

// CreateVectorIndex creates an index with no explicit mapping; the mapping and
// default pipeline come from the matching index template.
func (a *IndexAdmin) CreateVectorIndex(ctx context.Context, name string) error {
	return a.create(ctx, name, nil)
}

// CreateLexicalIndex creates an index with the chunk mapping but no vector
// field, for collections without a bound model.
func (a *IndexAdmin) CreateLexicalIndex(ctx context.Context, name string) error {
	body := map[string]any{
		"mappings": map[string]any{
			"properties": chunkProperties(0),
		},
	}
	return a.create(ctx, name, body)
}

func (a *IndexAdmin) create(ctx context.Context, name string, body any) error {
	status, data, err := a.client.send(ctx, "create_index", http.MethodPut, "/"+pathEscape(name), body)
	if err != nil {
		return err
	}
	if status == http.StatusBadRequest && alreadyExists(data) {
		// Lost a race with a concurrent creation; the index is there.
		return nil
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return unexpectedStatus("create_index", status, data)
	}
	slog.InfoContext(ctx, "index_created", slog.String("index", name))
	return nil
}

func (a *IndexAdmin) DeleteIndex(ctx context.Context, name string) error {
	status, data, err := a.client.send(ctx, "delete_index", http.MethodDelete, "/"+pathEscape(name), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return unexpectedStatus("delete_index", status, data)
	}
	slog.InfoContext(ctx, "index_deleted", slog.String("index", name))
	return nil
}

type catIndexRow struct {
	Index     string `json:"index"`
	Health    string `json:"health"`
	Status    string `json:"status"`
	DocsCount string `json:"docs.count"`
}

// ListIndices resolves each pattern against the store's cat API and returns
// the union, deduplicated and sorted by name. A pattern matching nothing is
// not an error.
func (a *IndexAdmin) ListIndices(ctx context.Context, patterns []string) ([]domain.IndexInfo, error) {
	seen := make(map[string]domain.IndexInfo)
	for _, pattern := range patterns {
		path := "/_cat/indices/" + pathEscape(pattern) + "?format=json"
		status, data, err := a.client.send(ctx, "list_indices", http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		if status == http.StatusNotFound {
			continue
		}
		if status != http.StatusOK {
			return nil, unexpectedStatus("list_indices", status, data)
		}

		var rows []catIndexRow
		if err := decode("list_indices", data, &rows); err != nil {
			return nil, err
		}
		for _, row := range rows {
			if strings.HasPrefix(row.Index, ".") {
				continue
			}
			count, _ := strconv.Atoi(row.DocsCount)
			seen[row.Index] = domain.IndexInfo{
				Name:     row.Index,
				Health:   row.Health,
				Status:   row.Status,
				DocCount: count,
			}
		}
	}

	infos := make([]domain.IndexInfo, 0, len(seen))
	for _, info := range seen {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

var _ domain.IndexAdmin = (*IndexAdmin)(nil)
