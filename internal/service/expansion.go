package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/recall/internal/models"
)

// Expansion scoring and limits.
const (
	temporalFactor     = 0.85
	graphFactor        = 0.8
	temporalPerAnchor  = 10
	graphPerAnchor     = 20
	graphAnchors       = 5
	personAssetLimit   = 20
	recencySparseBelow = 3
	recencyCount       = 5
	recencyFloor       = 0.3
	recencyCeiling     = 0.5
	expansionWorkers   = 4
)

// summaryOnly excludes synthetic summaries from context expansion.
var summaryOnly = []models.ChunkKind{models.KindSummary}

// ChunkExpansionStore defines the chunk reads the expander depends on.
type ChunkExpansionStore interface {
	ThreadWindow(ctx context.Context, threadID string, from, to time.Time, excludeKinds []models.ChunkKind, limit int) ([]models.Chunk, error)
	GroupParts(ctx context.Context, groupID string, total int) ([]models.Chunk, error)
	RecentInThread(ctx context.Context, threadID string, n int, excludeKinds []models.ChunkKind) ([]models.Chunk, error)
	ChunksByAssets(ctx context.Context, assetIDs []string, limit int) ([]models.Chunk, error)
}

// PersonGraph defines the identity graph reads the expander depends on.
type PersonGraph interface {
	ExpandRelationships(ctx context.Context, seeds, relationTypes []string, maxHops int) (map[string]int, error)
	FactsFor(ctx context.Context, personIDs []string) ([]models.GraphFact, error)
}

// AssetGraph defines the asset graph reads the expander depends on.
type AssetGraph interface {
	AssetNeighbors(ctx context.Context, seeds, relationTypes []string, maxHops int) (map[string]int, error)
	PersonAssets(ctx context.Context, personIDs, roles []string, limit int) ([]string, error)
}

// ExpansionInput is the post-rerank state the expander works from.
type ExpansionInput struct {
	Results  []models.RankedResult
	Policy   Policy
	Persons  []string
	ThreadID string
	Now      time.Time
}

// ExpansionResult holds chunks added by expansion and injected facts.
type ExpansionResult struct {
	Added    []models.RankedResult
	Facts    []models.GraphFact
	Degraded bool
}

// Expander adds context around top results. Every strategy skips chunks
// already selected.
type Expander struct {
	chunks ChunkExpansionStore
	people PersonGraph
	assets AssetGraph
	window time.Duration
	decay  DecayFunc
	log    *logrus.Logger
}

// NewExpander creates an Expander.
func NewExpander(
	chunks ChunkExpansionStore,
	people PersonGraph,
	assets AssetGraph,
	window time.Duration,
	decay DecayFunc,
	log *logrus.Logger,
) *Expander {
	if window <= 0 {
		window = 30 * time.Minute
	}

	if decay == nil {
		decay = ExponentialDecay(72 * time.Hour)
	}

	return &Expander{chunks: chunks, people: people, assets: assets, window: window, decay: decay, log: log}
}

// selection tracks chunk ids already in the result set.
type selection struct {
	seen  map[string]struct{}
	added []models.RankedResult
}

func newSelection(results []models.RankedResult) *selection {
	s := &selection{seen: make(map[string]struct{}, len(results)*4)}
	for _, r := range results {
		s.seen[r.Chunk.ID] = struct{}{}
	}

	return s
}

func (s *selection) add(c models.Chunk, score float64, origin models.Origin, anchor string) {
	if _, ok := s.seen[c.ID]; ok {
		return
	}

	s.seen[c.ID] = struct{}{}
	s.added = append(s.added, models.RankedResult{Chunk: c, Score: clamp01(score), Origin: origin, Anchor: anchor})
}

// Expand runs the strategies the policy enables, in a fixed order:
// sibling, temporal, graph neighborhood, person assets, then recency.
func (e *Expander) Expand(ctx context.Context, in ExpansionInput) *ExpansionResult {
	out := &ExpansionResult{}
	sel := newSelection(in.Results)

	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	fail := func(strategy string, err error) {
		e.log.WithError(err).WithField("strategy", strategy).Warn("expansion strategy failed")
		out.Degraded = true
	}

	if in.Policy.Sibling {
		if err := e.expandSiblings(ctx, in.Results, sel); err != nil {
			fail("sibling", err)
		}
	}

	if in.Policy.Temporal {
		if err := e.expandTemporal(ctx, in.Results, sel); err != nil {
			fail("temporal", err)
		}
	}

	if in.Policy.NeighborhoodHops > 0 {
		if err := e.expandNeighborhood(ctx, in.Results, in.Policy.NeighborhoodHops, sel); err != nil {
			fail("graph", err)
		}
	}

	persons := in.Persons

	if in.Policy.RelationshipHops > 0 && len(persons) > 0 {
		widened, err := e.people.ExpandRelationships(ctx, persons, in.Policy.RelationTypes, in.Policy.RelationshipHops)
		if err != nil {
			fail("relationship", err)
		} else {
			persons = personOrder(persons, widened)
		}
	}

	if (in.Policy.PersonAssets || in.Policy.RelationshipHops > 0) && len(persons) > 0 {
		if err := e.expandPersonAssets(ctx, in.Results, persons, in.Policy, sel); err != nil {
			fail("person_assets", err)
		}
	}

	if in.Policy.Facts && len(persons) > 0 {
		facts, err := e.people.FactsFor(ctx, persons)
		if err != nil {
			fail("facts", err)
		} else {
			out.Facts = facts
		}
	}

	if thread := recencyThread(in); thread != "" {
		if err := e.expandRecency(ctx, in.Results, thread, in.Now, sel); err != nil {
			fail("recency", err)
		}
	}

	out.Added = sel.added

	return out
}

// expandSiblings fetches every part of each matched chunk group, bounded by
// the group's declared total.
func (e *Expander) expandSiblings(ctx context.Context, results []models.RankedResult, sel *selection) error {
	groups := make(map[string]struct{})

	for _, r := range results {
		g := r.Chunk.ChunkGroupID
		if g == "" || r.Chunk.ChunkTotal <= 1 {
			continue
		}

		if _, done := groups[g]; done {
			continue
		}

		groups[g] = struct{}{}

		parts, err := e.chunks.GroupParts(ctx, g, r.Chunk.ChunkTotal)
		if err != nil {
			return err
		}

		for _, p := range parts {
			sel.add(p, r.Score, models.OriginSibling, r.Chunk.ID)
		}
	}

	return nil
}

// expandTemporal adds thread neighbours within the window around each
// threaded result.
func (e *Expander) expandTemporal(ctx context.Context, results []models.RankedResult, sel *selection) error {
	found := make([][]models.Chunk, len(results))

	var g errgroup.Group
	g.SetLimit(expansionWorkers)

	for i, r := range results {
		c := r.Chunk
		if c.ThreadID == "" || c.Kind == models.KindSummary {
			continue
		}

		g.Go(func() error {
			chunks, err := e.chunks.ThreadWindow(ctx, c.ThreadID,
				c.Timestamp.Add(-e.window), c.Timestamp.Add(e.window), summaryOnly, temporalPerAnchor+1)
			found[i] = chunks

			return err
		})
	}

	err := g.Wait()

	for i, chunks := range found {
		for _, c := range chunks {
			sel.add(c, results[i].Score*temporalFactor, models.OriginTemporal, results[i].Chunk.ID)
		}
	}

	return err
}

// expandNeighborhood follows asset edges from the top anchors.
func (e *Expander) expandNeighborhood(ctx context.Context, results []models.RankedResult, hops int, sel *selection) error {
	anchors := results
	if len(anchors) > graphAnchors {
		anchors = anchors[:graphAnchors]
	}

	type hit struct {
		chunks []models.Chunk
		depth  map[string]int
	}

	found := make([]hit, len(anchors))

	var g errgroup.Group
	g.SetLimit(expansionWorkers)

	for i, r := range anchors {
		g.Go(func() error {
			depth, err := e.assets.AssetNeighbors(ctx, assetSeeds(r.Chunk), nil, hops)
			if err != nil {
				return err
			}

			refs := make([]string, 0, len(depth))
			for ref, d := range depth {
				if d > 0 || ref == r.Chunk.ParentAssetID {
					refs = append(refs, ref)
				}
			}

			chunks, err := e.chunks.ChunksByAssets(ctx, refs, graphPerAnchor)
			found[i] = hit{chunks: chunks, depth: depth}

			return err
		})
	}

	err := g.Wait()

	for i, h := range found {
		for _, c := range h.chunks {
			hop := max(h.depth[c.AssetID], 1)
			sel.add(c, anchors[i].Score*math.Pow(graphFactor, float64(hop)), models.OriginGraph, anchors[i].Chunk.ID)
		}
	}

	return err
}

// expandPersonAssets follows person-asset links (hop 1) and, when the policy
// allows two hops, one asset edge further (hop 2).
func (e *Expander) expandPersonAssets(
	ctx context.Context,
	results []models.RankedResult,
	persons []string,
	policy Policy,
	sel *selection,
) error {
	base := 1.0
	anchor := ""

	if len(results) > 0 {
		base = results[0].Score
		anchor = results[0].Chunk.ID
	}

	refs, err := e.assets.PersonAssets(ctx, persons, nil, personAssetLimit)
	if err != nil {
		return err
	}

	depth := make(map[string]int, len(refs))
	for _, ref := range refs {
		depth[ref] = 1
	}

	if policy.NeighborhoodHops >= 2 && len(refs) > 0 {
		more, err := e.assets.AssetNeighbors(ctx, refs, nil, 1)
		if err != nil {
			return err
		}

		for ref, d := range more {
			if _, ok := depth[ref]; !ok {
				depth[ref] = d + 1
			}
		}
	}

	all := make([]string, 0, len(depth))
	for ref := range depth {
		all = append(all, ref)
	}

	chunks, err := e.chunks.ChunksByAssets(ctx, all, graphPerAnchor*2)
	if err != nil {
		return err
	}

	for _, c := range chunks {
		hop := max(depth[c.AssetID], 1)
		sel.add(c, base*math.Pow(graphFactor, float64(hop)), models.OriginGraph, anchor)
	}

	return nil
}

// expandRecency supplements a sparse thread with its newest chunks, scored
// in a band below every genuine match.
func (e *Expander) expandRecency(
	ctx context.Context,
	results []models.RankedResult,
	thread string,
	now time.Time,
	sel *selection,
) error {
	inThread := 0
	floor := math.Inf(1)

	for _, r := range results {
		floor = math.Min(floor, r.Score)

		if r.Chunk.ThreadID == thread {
			inThread++
		}
	}

	if inThread >= recencySparseBelow {
		return nil
	}

	recent, err := e.chunks.RecentInThread(ctx, thread, recencyCount, summaryOnly)
	if err != nil {
		return err
	}

	for _, c := range recent {
		sel.add(c, recencyScore(e.decay(now.Sub(c.Timestamp)), floor), models.OriginRecency, "")
	}

	return nil
}

// recencyScore places a decay weight in [recencyFloor, recencyCeiling] and
// keeps it strictly below floor, the lowest genuine score. When the band
// reaches floor it is scaled down proportionally so decay order survives.
func recencyScore(weight, floor float64) float64 {
	s := recencyFloor + (recencyCeiling-recencyFloor)*clamp01(weight)

	if math.IsInf(floor, 1) || floor > recencyCeiling {
		return s
	}

	s *= math.Max(floor, 0) / recencyCeiling

	return math.Max(0, math.Min(s, math.Nextafter(floor, 0)))
}

// recencyThread returns the clearly scoped thread of a query, if any: the
// thread filter, or for thread-follow queries the thread of the top result.
func recencyThread(in ExpansionInput) string {
	if !in.Policy.Recency {
		return ""
	}

	if in.ThreadID != "" {
		return in.ThreadID
	}

	if len(in.Results) > 0 {
		return in.Results[0].Chunk.ThreadID
	}

	return ""
}

// assetSeeds are the graph refs a chunk touches.
func assetSeeds(c models.Chunk) []string {
	seeds := []string{c.AssetID}

	if c.ParentAssetID != "" {
		seeds = append(seeds, c.ParentAssetID)
	}

	if c.ThreadID != "" {
		seeds = append(seeds, models.ThreadRef(c.ThreadID))
	}

	return seeds
}

// personOrder returns seeds first, then widened persons.
func personOrder(seeds []string, widened map[string]int) []string {
	out := append([]string(nil), seeds...)
	seen := make(map[string]struct{}, len(widened))

	for _, s := range seeds {
		seen[s] = struct{}{}
	}

	rest := make([]string, 0, len(widened))

	for id := range widened {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}

	sort.Slice(rest, func(a, b int) bool {
		if widened[rest[a]] != widened[rest[b]] {
			return widened[rest[a]] < widened[rest[b]]
		}

		return rest[a] < rest[b]
	})

	return append(out, rest...)
}
