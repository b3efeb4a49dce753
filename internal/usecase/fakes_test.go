package usecase

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"

	"elasticrag/internal/domain"
)

// In-memory fakes for the store-facing interfaces.

type fakeUserRepo struct {
	mu        sync.Mutex
	users     map[string]domain.User
	ensured   bool
	updateErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]domain.User)}
}

func (f *fakeUserRepo) EnsureIndex(ctx context.Context) error {
	f.ensured = true
	return nil
}

func (f *fakeUserRepo) Put(ctx context.Context, user domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.Username] = user
	return nil
}

func (f *fakeUserRepo) Get(ctx context.Context, username string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[username]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (f *fakeUserRepo) UpdateFields(ctx context.Context, username string, fields map[string]any) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[username]
	if v, ok := fields["last_login"].(time.Time); ok {
		user.LastLogin = &v
	}
	if v, ok := fields["metadata"].(map[string]any); ok {
		user.Metadata = v
	}
	f.users[username] = user
	return nil
}

func (f *fakeUserRepo) Delete(ctx context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[username]; !ok {
		return false, nil
	}
	delete(f.users, username)
	return true, nil
}

func (f *fakeUserRepo) List(ctx context.Context, offset, limit int) ([]domain.User, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users := make([]domain.User, 0, len(f.users))
	for _, u := range f.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	total := len(users)
	if offset >= len(users) {
		return nil, total, nil
	}
	users = users[offset:]
	if len(users) > limit {
		users = users[:limit]
	}
	return users, total, nil
}

type fakeModelResources struct {
	mu         sync.Mutex
	inferences map[string]domain.ModelConfig
	pipelines  map[string]string
	templates  map[string]int

	putInferenceCalls int
	getInferenceCalls int
	callOrder         []string

	// onDeleteTemplate runs at the start of DeleteTemplate, outside the
	// lock, to interleave reads mid-mutation.
	onDeleteTemplate func()
}

func newFakeModelResources() *fakeModelResources {
	return &fakeModelResources{
		inferences: make(map[string]domain.ModelConfig),
		pipelines:  make(map[string]string),
		templates:  make(map[string]int),
	}
}

func (f *fakeModelResources) PutInference(ctx context.Context, cfg domain.ModelConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putInferenceCalls++
	f.callOrder = append(f.callOrder, "inference")
	f.inferences[cfg.InferenceID()] = cfg
	return nil
}

func (f *fakeModelResources) GetInference(ctx context.Context, inferenceID string) (*domain.ModelConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getInferenceCalls++
	cfg, ok := f.inferences[inferenceID]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (f *fakeModelResources) ListInferences(ctx context.Context) ([]domain.ModelConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	configs := make([]domain.ModelConfig, 0, len(f.inferences))
	for _, cfg := range f.inferences {
		configs = append(configs, cfg)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].ModelID < configs[j].ModelID })
	return configs, nil
}

func (f *fakeModelResources) DeleteInference(ctx context.Context, inferenceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inferences, inferenceID)
	return nil
}

func (f *fakeModelResources) PutPipeline(ctx context.Context, pipelineID, inferenceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callOrder = append(f.callOrder, "pipeline")
	f.pipelines[pipelineID] = inferenceID
	return nil
}

func (f *fakeModelResources) HasPipeline(ctx context.Context, pipelineID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pipelines[pipelineID]
	return ok, nil
}

func (f *fakeModelResources) DeletePipeline(ctx context.Context, pipelineID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pipelines, pipelineID)
	return nil
}

func (f *fakeModelResources) PutTemplate(ctx context.Context, name, indexPattern, pipelineID string, dimensions int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callOrder = append(f.callOrder, "template")
	f.templates[name] = dimensions
	return nil
}

func (f *fakeModelResources) HasTemplate(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.templates[name]
	return ok, nil
}

func (f *fakeModelResources) DeleteTemplate(ctx context.Context, name string) error {
	if f.onDeleteTemplate != nil {
		f.onDeleteTemplate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.templates, name)
	return nil
}

type fakeIndexAdmin struct {
	mu      sync.Mutex
	indices map[string]domain.IndexInfo
	deleted []string
}

func newFakeIndexAdmin(names ...string) *fakeIndexAdmin {
	f := &fakeIndexAdmin{indices: make(map[string]domain.IndexInfo)}
	for _, name := range names {
		f.indices[name] = domain.IndexInfo{Name: name, Health: "green", Status: "open"}
	}
	return f
}

func (f *fakeIndexAdmin) IndexExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.indices[name]
	return ok, nil
}

func (f *fakeIndexAdmin) CreateVectorIndex(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indices[name] = domain.IndexInfo{Name: name, Health: "green", Status: "open"}
	return nil
}

func (f *fakeIndexAdmin) CreateLexicalIndex(ctx context.Context, name string) error {
	return f.CreateVectorIndex(ctx, name)
}

func (f *fakeIndexAdmin) DeleteIndex(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.indices, name)
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeIndexAdmin) ListIndices(ctx context.Context, patterns []string) ([]domain.IndexInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]domain.IndexInfo)
	for _, pattern := range patterns {
		for name, info := range f.indices {
			if ok, _ := path.Match(pattern, name); ok {
				seen[name] = info
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

type fakeChunkRepo struct {
	mu           sync.Mutex
	chunks       map[string]map[string]domain.StoredChunk
	putErr       error
	lastPipeline string
}

func newFakeChunkRepo() *fakeChunkRepo {
	return &fakeChunkRepo{chunks: make(map[string]map[string]domain.StoredChunk)}
}

func (f *fakeChunkRepo) PutChunk(ctx context.Context, index, pipeline string, chunk domain.Chunk, documentName string, addedAt time.Time) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPipeline = pipeline
	if f.chunks[index] == nil {
		f.chunks[index] = make(map[string]domain.StoredChunk)
	}
	f.chunks[index][chunk.ID] = domain.StoredChunk{
		Chunk:        chunk,
		DocumentName: documentName,
		AddedAt:      addedAt,
	}
	return nil
}

func (f *fakeChunkRepo) DeleteStale(ctx context.Context, index, documentID string, fromOrdinal int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deleted := 0
	for id, chunk := range f.chunks[index] {
		if chunk.DocumentID == documentID && chunk.Ordinal >= fromOrdinal {
			delete(f.chunks[index], id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeChunkRepo) DeleteDocument(ctx context.Context, index, documentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deleted := 0
	for id, chunk := range f.chunks[index] {
		if chunk.DocumentID == documentID {
			delete(f.chunks[index], id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeChunkRepo) GetDocumentChunks(ctx context.Context, index, documentID string) ([]domain.StoredChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var chunks []domain.StoredChunk
	for _, chunk := range f.chunks[index] {
		if chunk.DocumentID == documentID {
			chunks = append(chunks, chunk)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Ordinal < chunks[j].Ordinal })
	return chunks, nil
}

func (f *fakeChunkRepo) ListDocuments(ctx context.Context, index string, offset, limit int) ([]domain.Document, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byDoc := make(map[string]*domain.Document)
	for _, chunk := range f.chunks[index] {
		doc, ok := byDoc[chunk.DocumentID]
		if !ok {
			doc = &domain.Document{ID: chunk.DocumentID, Name: chunk.DocumentName, Metadata: chunk.Metadata}
			byDoc[chunk.DocumentID] = doc
		}
		doc.ChunkCount++
		if chunk.AddedAt.After(doc.AddedAt) {
			doc.AddedAt = chunk.AddedAt
		}
	}
	docs := make([]domain.Document, 0, len(byDoc))
	for _, doc := range byDoc {
		docs = append(docs, *doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].AddedAt.After(docs[j].AddedAt) })
	total := len(docs)
	if offset >= len(docs) {
		return nil, total, nil
	}
	docs = docs[offset:]
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, total, nil
}

// documentChunkCount counts stored chunks of one document.
func (f *fakeChunkRepo) documentChunkCount(index, documentID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, chunk := range f.chunks[index] {
		if chunk.DocumentID == documentID {
			count++
		}
	}
	return count
}

type fakeSearcher struct {
	lexHits []domain.SearchHit
	lexErr  error
	vecHits []domain.SearchHit
	vecErr  error
}

func (f *fakeSearcher) LexicalSearch(ctx context.Context, index, query string, filter map[string]any, size int, includeEmbedding bool) ([]domain.SearchHit, error) {
	return f.lexHits, f.lexErr
}

func (f *fakeSearcher) VectorSearch(ctx context.Context, index string, vector []float32, filter map[string]any, size int, includeEmbedding bool) ([]domain.SearchHit, error) {
	return f.vecHits, f.vecErr
}

type fakeEncoder struct {
	vector []float32
	err    error
}

func (f *fakeEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = f.vector
	}
	return vectors, nil
}

func (f *fakeEncoder) Version() string { return "fake" }

type fakeExtractor struct{}

func (fakeExtractor) ExtractBytes(content []byte, ext string) (string, error) {
	return string(content), nil
}
