package service

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/recall/internal/models"
	"github.com/persistorai/recall/internal/tokenize"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func chunk(id string) models.Chunk {
	return models.Chunk{ChunkRef: models.ChunkRef{
		ID: id, Source: "test", SourceID: id, AssetID: "asset-" + id, Text: "text " + id, Timestamp: testEpoch,
	}}
}

func scored(ids ...string) []models.ScoredChunk {
	out := make([]models.ScoredChunk, len(ids))
	for i, id := range ids {
		out[i] = models.ScoredChunk{Chunk: chunk(id), Score: float64(len(ids) - i)}
	}
	return out
}

func ranked(id string, score float64) models.RankedResult {
	return models.RankedResult{Chunk: chunk(id), Score: score, Origin: models.OriginRetrieved}
}

func ids(rs []models.RankedResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Chunk.ID
	}
	return out
}

// mockIndex records calls and returns configured responses.
type mockIndex struct {
	mu    sync.Mutex
	calls []string

	dense   func(ctx context.Context, embedding []float32, filters models.Filters, limit int) ([]models.ScoredChunk, error)
	lexical func(ctx context.Context, q models.LexicalQuery, filters models.Filters, limit int) ([]models.ScoredChunk, error)
}

func (m *mockIndex) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *mockIndex) getCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockIndex) DenseSearch(ctx context.Context, embedding []float32, filters models.Filters, limit int) ([]models.ScoredChunk, error) {
	m.record("DenseSearch")
	return m.dense(ctx, embedding, filters, limit)
}

func (m *mockIndex) LexicalSearch(ctx context.Context, q models.LexicalQuery, filters models.Filters, limit int) ([]models.ScoredChunk, error) {
	m.record("LexicalSearch")
	return m.lexical(ctx, q, filters, limit)
}

// mockEmbedder returns a fixed vector or error.
type mockEmbedder struct {
	mu    sync.Mutex
	texts []string

	generate func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) Generate(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()

	if m.generate == nil {
		return []float32{0.1, 0.2, 0.3}, nil
	}
	return m.generate(ctx, text)
}

func (m *mockEmbedder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.texts)
}

// mockReranker scores documents with a function.
type mockReranker struct {
	rerank func(ctx context.Context, query string, docs []string) ([]float64, error)
}

func (m *mockReranker) Rerank(ctx context.Context, query string, docs []string) ([]float64, error) {
	return m.rerank(ctx, query, docs)
}

// mockAliasLookup serves alias matches from a map keyed by norm.
type mockAliasLookup struct {
	mu      sync.Mutex
	calls   [][]string
	aliases map[string][]models.AliasMatch
	err     error
	delay   time.Duration
}

func (m *mockAliasLookup) ResolveAliases(_ context.Context, norms []string) ([]models.AliasMatch, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string(nil), norms...))
	err := m.err
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	if err != nil {
		return nil, err
	}

	var out []models.AliasMatch
	for _, n := range norms {
		out = append(out, m.aliases[n]...)
	}
	return out, nil
}

func (m *mockAliasLookup) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockAliasLookup) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// memArchive is an in-memory archive implementing the search, expansion and
// graph interfaces over a fixed set of chunks.
type memArchive struct {
	chunks        []models.Chunk
	personAssets  map[string][]string // person id → asset refs
	assetEdges    map[string][]string // ref → neighbour refs (undirected)
	relationships map[string][]models.Relationship
	facts         map[string][]models.GraphFact
	aliases       []models.AliasMatch
	merged        map[string]string // merged person id → live id

	failThreadWindow error
	failNeighbors    error
	denseErr         error
	lexicalErr       error
}

func newMemArchive(chunks ...models.Chunk) *memArchive {
	return &memArchive{
		chunks:        chunks,
		personAssets:  map[string][]string{},
		assetEdges:    map[string][]string{},
		relationships: map[string][]models.Relationship{},
		facts:         map[string][]models.GraphFact{},
		merged:        map[string]string{},
	}
}

func (a *memArchive) addEdge(src, dst string) {
	a.assetEdges[src] = append(a.assetEdges[src], dst)
	a.assetEdges[dst] = append(a.assetEdges[dst], src)
}

func (a *memArchive) addAlias(personID, name, alias string) {
	kind := models.ClassifyAlias(alias)
	a.aliases = append(a.aliases, models.AliasMatch{
		PersonID: personID, CanonicalName: name, Alias: alias, Norm: models.NormalizeAlias(kind, alias), Kind: kind,
	})
}

func matchesFilters(c models.Chunk, f models.Filters) bool {
	if f.ThreadID != "" && c.ThreadID != f.ThreadID {
		return false
	}
	if len(f.ContentTypes) > 0 && !slices.Contains(f.ContentTypes, c.ContentType) {
		return false
	}
	if slices.Contains(f.ExcludeKinds, c.Kind) {
		return false
	}
	if f.From != nil && c.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && c.Timestamp.After(*f.To) {
		return false
	}
	if len(f.PersonIDs) > 0 {
		found := false
		for _, p := range f.PersonIDs {
			if slices.Contains(c.PersonIDs, p) {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// DenseSearch returns every chunk matching filters, newest first.
func (a *memArchive) DenseSearch(_ context.Context, _ []float32, filters models.Filters, limit int) ([]models.ScoredChunk, error) {
	if a.denseErr != nil {
		return nil, a.denseErr
	}

	var out []models.ScoredChunk
	for _, c := range a.chunks {
		if matchesFilters(c, filters) {
			out = append(out, models.ScoredChunk{Chunk: c, Score: 0.5})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LexicalSearch scores term overlap plus person links. An empty query
// matches everything the filters admit, newest first.
func (a *memArchive) LexicalSearch(_ context.Context, q models.LexicalQuery, filters models.Filters, limit int) ([]models.ScoredChunk, error) {
	if a.lexicalErr != nil {
		return nil, a.lexicalErr
	}

	tok := tokenize.New()
	var out []models.ScoredChunk

	for _, c := range a.chunks {
		if !matchesFilters(c, filters) {
			continue
		}

		terms := tok.Terms(c.Text + " " + c.Sender)
		score := 0.0
		for _, t := range q.Terms {
			if slices.Contains(terms, t) {
				score++
			}
		}
		for _, p := range q.PersonIDs {
			if slices.Contains(c.PersonIDs, p) || slices.Contains(c.MentionedPersonIDs, p) {
				score += 0.5
			}
		}
		if score > 0 || q.IsEmpty() {
			out = append(out, models.ScoredChunk{Chunk: c, Score: score})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (a *memArchive) ThreadWindow(_ context.Context, threadID string, from, to time.Time, exclude []models.ChunkKind, limit int) ([]models.Chunk, error) {
	if a.failThreadWindow != nil {
		return nil, a.failThreadWindow
	}

	var out []models.Chunk
	for _, c := range a.chunks {
		if c.ThreadID == threadID && !c.Timestamp.Before(from) && !c.Timestamp.After(to) && !slices.Contains(exclude, c.Kind) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (a *memArchive) GroupParts(_ context.Context, groupID string, total int) ([]models.Chunk, error) {
	var out []models.Chunk
	for _, c := range a.chunks {
		if c.ChunkGroupID == groupID && c.ChunkIndex < total {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (a *memArchive) RecentInThread(_ context.Context, threadID string, n int, exclude []models.ChunkKind) ([]models.Chunk, error) {
	var out []models.Chunk
	for _, c := range a.chunks {
		if c.ThreadID == threadID && !slices.Contains(exclude, c.Kind) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (a *memArchive) ChunksByAssets(_ context.Context, assetIDs []string, limit int) ([]models.Chunk, error) {
	var out []models.Chunk
	for _, c := range a.chunks {
		if slices.Contains(assetIDs, c.AssetID) {
			out = append(out, c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (a *memArchive) ExpandRelationships(_ context.Context, seeds, relationTypes []string, maxHops int) (map[string]int, error) {
	depth := map[string]int{}
	frontier := append([]string(nil), seeds...)
	for _, s := range seeds {
		depth[s] = 0
	}

	for hop := 1; hop <= maxHops; hop++ {
		var next []string
		for _, p := range frontier {
			for _, r := range a.relationships[p] {
				if len(relationTypes) > 0 && !slices.Contains(relationTypes, r.RelationType) {
					continue
				}
				if _, ok := depth[r.RelatedID]; !ok {
					depth[r.RelatedID] = hop
					next = append(next, r.RelatedID)
				}
			}
		}
		frontier = next
	}
	return depth, nil
}

func (a *memArchive) FactsFor(_ context.Context, personIDs []string) ([]models.GraphFact, error) {
	var out []models.GraphFact
	for _, p := range personIDs {
		out = append(out, a.facts[p]...)
	}
	return out, nil
}

func (a *memArchive) AssetNeighbors(_ context.Context, seeds, _ []string, maxHops int) (map[string]int, error) {
	if a.failNeighbors != nil {
		return nil, a.failNeighbors
	}

	depth := map[string]int{}
	frontier := append([]string(nil), seeds...)
	for _, s := range seeds {
		depth[s] = 0
	}

	for hop := 1; hop <= maxHops; hop++ {
		var next []string
		for _, ref := range frontier {
			for _, n := range a.assetEdges[ref] {
				if _, ok := depth[n]; !ok {
					depth[n] = hop
					next = append(next, n)
				}
			}
		}
		frontier = next
	}
	return depth, nil
}

func (a *memArchive) PersonAssets(_ context.Context, personIDs, _ []string, limit int) ([]string, error) {
	var out []string
	for _, p := range personIDs {
		out = append(out, a.personAssets[p]...)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (a *memArchive) ResolveAliases(_ context.Context, norms []string) ([]models.AliasMatch, error) {
	var out []models.AliasMatch
	for _, m := range a.aliases {
		if slices.Contains(norms, m.Norm) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (a *memArchive) CanonicalIDs(_ context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range ids {
		if to, ok := a.merged[id]; ok {
			out[id] = to
		}
	}
	return out, nil
}

func (a *memArchive) AliasesOf(_ context.Context, personIDs []string) ([]models.AliasMatch, error) {
	var out []models.AliasMatch
	for _, m := range a.aliases {
		if slices.Contains(personIDs, m.PersonID) && m.Kind == models.AliasName {
			out = append(out, m)
		}
	}
	return out, nil
}

// mockChunkWriter records upserted chunks.
type mockChunkWriter struct {
	mu     sync.Mutex
	chunks []models.Chunk
	err    error
}

func (m *mockChunkWriter) UpsertChunks(_ context.Context, chunks []models.Chunk) ([]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	m.chunks = append(m.chunks, chunks...)
	out := make([]bool, len(chunks))
	for i, c := range chunks {
		out[i] = len(c.Embedding) > 0
	}
	return out, nil
}

// mockLinkWriter records links and edges, failing while err is set.
type mockLinkWriter struct {
	mu    sync.Mutex
	links []models.PersonAssetLink
	edges []models.AssetEdge
	err   error
}

func (m *mockLinkWriter) LinkPersonAsset(_ context.Context, link models.PersonAssetLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.links = append(m.links, link)
	return nil
}

func (m *mockLinkWriter) LinkAssetAsset(_ context.Context, edge models.AssetEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.edges = append(m.edges, edge)
	return nil
}

// mockPersonWriter records aliases added during ingest and forwards merged
// person ids through merged.
type mockPersonWriter struct {
	mu       sync.Mutex
	aliases  map[string][]models.Alias
	merged   map[string]string
	err      error
	canonErr error
}

func (m *mockPersonWriter) CanonicalIDs(_ context.Context, ids []string) (map[string]string, error) {
	if m.canonErr != nil {
		return nil, m.canonErr
	}
	out := map[string]string{}
	for _, id := range ids {
		if to, ok := m.merged[id]; ok {
			out[id] = to
		}
	}
	return out, nil
}

func (m *mockPersonWriter) AddAlias(_ context.Context, personID string, alias models.Alias) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.aliases == nil {
		m.aliases = map[string][]models.Alias{}
	}
	for _, a := range m.aliases[personID] {
		if a.Norm == alias.Norm {
			return false, nil
		}
	}
	m.aliases[personID] = append(m.aliases[personID], alias)
	return true, nil
}

// mockQueue records enqueued embedding jobs.
type mockQueue struct {
	mu   sync.Mutex
	jobs []EmbedJob
	full bool
}

func (m *mockQueue) Enqueue(job EmbedJob) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full {
		return false
	}
	m.jobs = append(m.jobs, job)
	return true
}

// mockInvalidator counts cache invalidations.
type mockInvalidator struct {
	mu    sync.Mutex
	count int
}

func (m *mockInvalidator) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
}

func (m *mockInvalidator) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

func joinIDs(rs []models.RankedResult) string {
	return strings.Join(ids(rs), ",")
}
