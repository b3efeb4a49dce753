package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"elasticrag/internal/domain"
	"elasticrag/internal/infra/logger"
	"elasticrag/internal/usecase"
	"elasticrag/internal/usecase/retrieval"
	"elasticrag/internal/worker"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	client *usecase.Client
	jobs   *worker.IngestWorker
}

func NewHandler(client *usecase.Client, jobs *worker.IngestWorker) *Handler {
	return &Handler{client: client, jobs: jobs}
}

type registerUserRequest struct {
	Username string         `json:"username"`
	APIKey   string         `json:"api_key"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (h *Handler) RegisterUser(c echo.Context) error {
	var req registerUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request"))
	}
	if err := h.client.Users.AddUser(c.Request().Context(), req.Username, req.APIKey, req.Metadata); err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"username": req.Username})
}

func (h *Handler) ListUsers(c echo.Context) error {
	offset, limit := pagination(c)
	users, total, err := h.client.Users.ListUsers(c.Request().Context(), offset, limit)
	if err != nil {
		return jsonError(c, err)
	}
	items := make([]map[string]any, 0, len(users))
	for _, u := range users {
		items = append(items, userBody(u))
	}
	return c.JSON(http.StatusOK, map[string]any{"users": items, "total": total})
}

func (h *Handler) DeleteUser(c echo.Context) error {
	deleted, err := h.client.Users.DeleteUser(c.Request().Context(), c.Param("username"))
	if err != nil {
		return jsonError(c, err)
	}
	if !deleted {
		return c.JSON(http.StatusNotFound, errorBody("user not found"))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Me(c echo.Context) error {
	info, err := h.client.Users.GetInfo(c.Request().Context(), authenticatedUser(c))
	if err != nil {
		return jsonError(c, err)
	}
	if info == nil {
		return c.JSON(http.StatusNotFound, errorBody("user not found"))
	}
	return c.JSON(http.StatusOK, userBody(*info))
}

type registerModelRequest struct {
	ModelID         string         `json:"model_id"`
	Service         string         `json:"service"`
	ServiceSettings map[string]any `json:"service_settings"`
	Dimensions      int            `json:"dimensions"`
	Force           bool           `json:"force,omitempty"`
}

func (h *Handler) RegisterModel(c echo.Context) error {
	var req registerModelRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request"))
	}
	cfg := domain.ModelConfig{
		ModelID:         req.ModelID,
		Service:         domain.ServiceKind(req.Service),
		ServiceSettings: req.ServiceSettings,
		Dimensions:      req.Dimensions,
	}
	if err := h.client.Models.Register(c.Request().Context(), cfg, req.Force); err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusCreated, modelBody(cfg))
}

func (h *Handler) ListModels(c echo.Context) error {
	configs, err := h.client.Models.List(c.Request().Context())
	if err != nil {
		return jsonError(c, err)
	}
	items := make([]map[string]any, 0, len(configs))
	for _, cfg := range configs {
		items = append(items, modelBody(cfg))
	}
	return c.JSON(http.StatusOK, map[string]any{"models": items})
}

func (h *Handler) GetModel(c echo.Context) error {
	cfg, err := h.client.Models.Get(c.Request().Context(), c.Param("model"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, modelBody(*cfg))
}

func (h *Handler) DeleteModel(c echo.Context) error {
	force := c.QueryParam("force") == "true"
	if err := h.client.Models.Delete(c.Request().Context(), c.Param("model"), force); err != nil {
		return jsonError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListCollections(c echo.Context) error {
	infos, err := h.client.ListCollections(c.Request().Context(), authenticatedUser(c))
	if err != nil {
		return jsonError(c, err)
	}
	items := make([]map[string]any, 0, len(infos))
	for _, info := range infos {
		items = append(items, map[string]any{
			"name":      info.Name,
			"model_id":  info.ModelID,
			"index":     info.Index,
			"health":    info.Health,
			"status":    info.Status,
			"doc_count": info.DocCount,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"collections": items})
}

type addDocumentRequest struct {
	DocumentID string `json:"document_id,omitempty"`
	Name       string `json:"name,omitempty"`
	// Text is a pointer so an explicitly empty string still selects the
	// text source instead of vanishing at decode time.
	Text     *string        `json:"text,omitempty"`
	FileData []byte         `json:"file_data,omitempty"`
	FileName string         `json:"file_name,omitempty"`
	Chunks   []chunkPayload `json:"chunks,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type chunkPayload struct {
	Content   string         `json:"content"`
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (h *Handler) AddDocument(c echo.Context) error {
	var req addDocumentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request"))
	}
	var sources []usecase.ContentSource
	if req.Text != nil {
		sources = append(sources, usecase.TextContent{Text: *req.Text})
	}
	if len(req.FileData) > 0 {
		sources = append(sources, usecase.FileContent{Data: req.FileData, Name: req.FileName})
	}
	if len(req.Chunks) > 0 {
		chunks := make([]domain.Chunk, 0, len(req.Chunks))
		for _, chunk := range req.Chunks {
			chunks = append(chunks, domain.Chunk{
				Content:   chunk.Content,
				Embedding: chunk.Embedding,
				Metadata:  chunk.Metadata,
			})
		}
		sources = append(sources, usecase.ChunkContent{Chunks: chunks})
	}
	if len(sources) > 1 {
		return c.JSON(http.StatusBadRequest, errorBody("provide exactly one of text, file_data or chunks"))
	}
	input := usecase.AddDocumentInput{
		DocumentID: req.DocumentID,
		Name:       req.Name,
		Metadata:   req.Metadata,
	}
	if len(sources) == 1 {
		input.Source = sources[0]
	}

	scopeRequest(c)
	if input.DocumentID != "" {
		r := c.Request()
		c.SetRequest(r.WithContext(logger.WithDocumentID(r.Context(), input.DocumentID)))
	}
	username := authenticatedUser(c)
	collection := c.Param("collection")
	modelID := c.QueryParam("model")

	if c.QueryParam("async") == "true" {
		if input.DocumentID == "" {
			input.DocumentID = uuid.NewString()
		}
		job := worker.IngestJob{
			ID:         uuid.NewString(),
			Username:   username,
			Collection: collection,
			ModelID:    modelID,
			Input:      input,
		}
		if !h.jobs.Enqueue(job) {
			return c.JSON(http.StatusServiceUnavailable, errorBody("ingest queue is full"))
		}
		return c.JSON(http.StatusAccepted, map[string]string{
			"job_id":      job.ID,
			"document_id": input.DocumentID,
		})
	}

	coll, err := h.client.Collection(c.Request().Context(), username, collection, modelID, false)
	if err != nil {
		return jsonError(c, err)
	}
	result, err := coll.Add(c.Request().Context(), input)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"document_id":   result.DocumentID,
		"chunk_count":   result.ChunkCount,
		"stale_deleted": result.StaleDeleted,
	})
}

func (h *Handler) ListDocuments(c echo.Context) error {
	coll, err := h.openCollection(c)
	if err != nil {
		return jsonError(c, err)
	}
	offset, limit := pagination(c)
	docs, total, err := coll.ListDocuments(c.Request().Context(), offset, limit)
	if err != nil {
		return jsonError(c, err)
	}
	items := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		items = append(items, map[string]any{
			"document_id": doc.ID,
			"name":        doc.Name,
			"metadata":    doc.Metadata,
			"chunk_count": doc.ChunkCount,
			"added_at":    doc.AddedAt.Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"documents": items, "total": total})
}

func (h *Handler) GetDocument(c echo.Context) error {
	coll, err := h.openCollection(c)
	if err != nil {
		return jsonError(c, err)
	}
	chunks, err := coll.GetDocument(c.Request().Context(), c.Param("document"))
	if err != nil {
		return jsonError(c, err)
	}
	items := make([]map[string]any, 0, len(chunks))
	for _, chunk := range chunks {
		items = append(items, map[string]any{
			"chunk_id": chunk.ID,
			"ordinal":  chunk.Ordinal,
			"content":  chunk.Content,
			"metadata": chunk.Metadata,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"document_id": c.Param("document"),
		"chunks":      items,
	})
}

func (h *Handler) DeleteDocument(c echo.Context) error {
	coll, err := h.openCollection(c)
	if err != nil {
		return jsonError(c, err)
	}
	deleted, err := coll.DeleteDocument(c.Request().Context(), c.Param("document"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"deleted": deleted})
}

func (h *Handler) DropCollection(c echo.Context) error {
	coll, err := h.openCollection(c)
	if err != nil {
		return jsonError(c, err)
	}
	if err := coll.Drop(c.Request().Context()); err != nil {
		return jsonError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type searchRequest struct {
	Query            string         `json:"query"`
	Filter           map[string]any `json:"filter,omitempty"`
	Size             int            `json:"size,omitempty"`
	IncludeEmbedding bool           `json:"include_embedding,omitempty"`
}

func (h *Handler) Search(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request"))
	}
	coll, err := h.openCollection(c)
	if err != nil {
		return jsonError(c, err)
	}
	resp, err := coll.Search(c.Request().Context(), retrieval.Request{
		Query:            req.Query,
		Filter:           req.Filter,
		Size:             req.Size,
		IncludeEmbedding: req.IncludeEmbedding,
	})
	if err != nil {
		return jsonError(c, err)
	}
	results := make([]map[string]any, 0, len(resp.Results))
	for _, r := range resp.Results {
		item := map[string]any{
			"chunk_id":      r.ChunkID,
			"document_id":   r.DocumentID,
			"document_name": r.DocumentName,
			"content":       r.Content,
			"metadata":      r.Metadata,
			"score":         r.Score,
		}
		if req.IncludeEmbedding {
			item["embedding"] = r.Embedding
		}
		results = append(results, item)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"results":  results,
		"degraded": resp.Degraded,
	})
}

func (h *Handler) openCollection(c echo.Context) (*usecase.Collection, error) {
	scopeRequest(c)
	return h.client.Collection(
		c.Request().Context(),
		authenticatedUser(c),
		c.Param("collection"),
		c.QueryParam("model"),
		false,
	)
}

// scopeRequest stamps the collection and document route parameters into the
// request context so every downstream log record carries them.
func scopeRequest(c echo.Context) {
	ctx := c.Request().Context()
	if collection := c.Param("collection"); collection != "" {
		ctx = logger.WithCollection(ctx, collection)
	}
	if document := c.Param("document"); document != "" {
		ctx = logger.WithDocumentID(ctx, document)
	}
	c.SetRequest(c.Request().WithContext(ctx))
}

func pagination(c echo.Context) (offset, limit int) {
	offset = intQuery(c, "offset", 0)
	limit = intQuery(c, "limit", 100)
	return offset, limit
}

func intQuery(c echo.Context, name string, fallback int) int {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func userBody(u usecase.UserInfo) map[string]any {
	body := map[string]any{
		"username":   u.Username,
		"metadata":   u.Metadata,
		"created_at": u.CreatedAt.Format(time.RFC3339),
	}
	if u.LastLogin != nil {
		body["last_login"] = u.LastLogin.Format(time.RFC3339)
	}
	return body
}

func modelBody(cfg domain.ModelConfig) map[string]any {
	return map[string]any{
		"model_id":   cfg.ModelID,
		"service":    string(cfg.Service),
		"dimensions": cfg.Dimensions,
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// jsonError maps domain errors onto HTTP statuses.
func jsonError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrModelNotFound), errors.Is(err, domain.ErrDocumentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrCollectionModelMismatch):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, domain.ErrInvalidIdentifier),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrEmptyDocument):
		status = http.StatusBadRequest
	case domain.IsTransient(err):
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, errorBody(err.Error()))
}
