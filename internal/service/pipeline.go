package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/recall/internal/metrics"
	"github.com/persistorai/recall/internal/models"
	"github.com/persistorai/recall/internal/tokenize"
)

const maxLexicalTerms = 64

// QueryResolver finds person mentions in query text.
type QueryResolver interface {
	ResolveQuery(ctx context.Context, text string) ([]models.Resolution, error)
}

// PersonDirectory lists the name aliases of persons for lexical expansion and
// maps merged person ids to their live ids.
type PersonDirectory interface {
	PersonCanonicalizer
	AliasesOf(ctx context.Context, personIDs []string) ([]models.AliasMatch, error)
}

// QueryConfig sizes the retrieval pipeline.
type QueryConfig struct {
	// Pool is how many fused candidates reach the reranker.
	Pool int
	// Keep is how many reranked results are kept before expansion.
	Keep int
}

// QueryService runs retrieve → rerank → expand → assemble for one query.
type QueryService struct {
	resolver  QueryResolver
	persons   PersonDirectory
	retriever *HybridRetriever
	reranker  *RerankAdapter
	expander  *Expander
	assembler *Assembler
	tok       *tokenize.Tokenizer
	cfg       QueryConfig
	log       *logrus.Logger
	now       func() time.Time
}

// NewQueryService creates a QueryService.
func NewQueryService(
	resolver QueryResolver,
	persons PersonDirectory,
	retriever *HybridRetriever,
	reranker *RerankAdapter,
	expander *Expander,
	assembler *Assembler,
	cfg QueryConfig,
	log *logrus.Logger,
) *QueryService {
	if cfg.Keep <= 0 {
		cfg.Keep = 15
	}

	if cfg.Pool < cfg.Keep*3 {
		cfg.Pool = cfg.Keep * 3
	}

	return &QueryService{
		resolver:  resolver,
		persons:   persons,
		retriever: retriever,
		reranker:  reranker,
		expander:  expander,
		assembler: assembler,
		tok:       tokenize.New(),
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

func observe(stage string, start time.Time) {
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Retrieve runs the full ranking pipeline. The work runs detached from ctx
// cancellation, each external call under its own timeout, so an abandoned
// request lets in-flight calls finish and its result is discarded.
func (s *QueryService) Retrieve(ctx context.Context, req models.RetrieveRequest) (*models.RetrieveResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	started := s.now()
	work := context.WithoutCancel(ctx)
	resp := &models.RetrieveResponse{Results: []models.RankedResult{}, Flags: []models.Flag{}}

	if ids, err := canonicalPersons(work, s.persons, req.Filters.PersonIDs); err != nil {
		s.log.WithError(err).Warn("person filter kept as given")
		resp.AddFlag(models.FlagResolverDegraded)
	} else {
		req.Filters.PersonIDs = ids
	}

	resolved, searchPersons := s.resolve(work, req.Query, resp)

	lexical := models.LexicalQuery{Terms: s.tok.Terms(req.Query), PersonIDs: searchPersons}
	lexical.Terms = s.aliasTerms(work, resolved, lexical.Terms)

	keep := req.Limit
	if keep <= 0 {
		keep = s.cfg.Keep
	}

	pool := max(s.cfg.Pool, keep*3)

	t := time.Now()
	fused, err := s.retriever.Search(work, HybridQuery{Text: req.Query, Lexical: lexical, Filters: req.Filters, Limit: pool})

	observe("search", t)

	if err != nil {
		return nil, fmt.Errorf("retrieving candidates: %w", err)
	}

	for _, f := range fused.Flags {
		resp.AddFlag(f)
	}

	t = time.Now()
	results, reranked := s.reranker.Rerank(work, req.Query, fused, s.retriever.K(), keep)

	observe("rerank", t)

	resp.Reranked = reranked

	if !reranked && s.reranker.Enabled() && req.Query != "" && len(fused.Candidates) > 0 {
		resp.AddFlag(models.FlagUnreranked)
	}

	if reranked && req.MinScore > 0 {
		results = aboveScore(results, req.MinScore)
	}

	intents := ClassifyIntent(IntentInput{Query: req.Query, Persons: len(resolved), ThreadID: req.Filters.ThreadID})
	policy := PolicyFor(intents)
	resp.Intents = IntentStrings(intents)

	t = time.Now()
	exp := s.expander.Expand(work, ExpansionInput{
		Results:  results,
		Policy:   policy,
		Persons:  unionIDs(resolved, req.Filters.PersonIDs),
		ThreadID: req.Filters.ThreadID,
		Now:      s.now(),
	})

	observe("expand", t)

	if exp.Degraded {
		resp.AddFlag(models.FlagExpansionDegraded)
	}

	all := make([]models.RankedResult, 0, len(results)+len(exp.Added))
	all = append(all, results...)
	all = append(all, exp.Added...)
	sortRanked(all)

	if !req.Debug {
		for i := range all {
			all[i].Debug = nil
		}
	}

	resp.Results = all
	resp.Facts = exp.Facts
	resp.TookMillis = time.Since(started).Milliseconds()

	for _, f := range resp.Flags {
		metrics.DegradedTotal.WithLabelValues(string(f)).Inc()
	}

	s.log.WithFields(logrus.Fields{
		"results":  len(resp.Results),
		"expanded": len(exp.Added),
		"intents":  intentsField(intents),
		"flags":    resp.Flags,
		"reranked": reranked,
		"took_ms":  resp.TookMillis,
	}).Debug("retrieve complete")

	return resp, nil
}

// Context retrieves and then assembles a context block within the budget.
func (s *QueryService) Context(ctx context.Context, req models.RetrieveRequest) (*models.ContextResponse, error) {
	resp, err := s.Retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	t := time.Now()
	block := s.assembler.Assemble(resp.Results, resp.Facts, req.TokenBudget)

	observe("assemble", t)

	if block.BudgetExceeded {
		resp.AddFlag(models.FlagBudgetExceeded)
	}

	return &models.ContextResponse{Context: block, Retrieve: resp}, nil
}

// Assemble builds a context block over caller-supplied results.
func (s *QueryService) Assemble(req models.AssembleRequest) (models.ContextBlock, error) {
	if err := req.Validate(); err != nil {
		return models.ContextBlock{}, err
	}

	return s.assembler.Assemble(req.Results, req.Facts, req.TokenBudget), nil
}

// resolve returns resolved person ids and the wider set used for lexical
// person matching, which also carries every ambiguous candidate.
func (s *QueryService) resolve(ctx context.Context, query string, resp *models.RetrieveResponse) (resolved, search []string) {
	if query == "" || s.resolver == nil {
		return nil, nil
	}

	t := time.Now()
	resolutions, err := s.resolver.ResolveQuery(ctx, query)

	observe("resolve", t)

	if err != nil {
		s.log.WithError(err).Warn("person resolution unavailable")
		resp.AddFlag(models.FlagResolverDegraded)

		return nil, nil
	}

	seen := make(map[string]struct{})

	for _, r := range resolutions {
		switch r.Status {
		case models.ResolutionResolved:
			id, _ := r.Resolved()
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				resolved = append(resolved, id)
				search = append(search, id)
			}

			resp.Persons = append(resp.Persons, r.Candidates[0])
		case models.ResolutionAmbiguous:
			resp.Ambiguous = append(resp.Ambiguous, r)

			for _, c := range r.Candidates {
				if _, dup := seen[c.PersonID]; !dup {
					seen[c.PersonID] = struct{}{}
					search = append(search, c.PersonID)
				}
			}
		}
	}

	return resolved, search
}

// aliasTerms adds the lexical terms of every alias of resolved persons, so a
// name in one script also matches text written in another.
func (s *QueryService) aliasTerms(ctx context.Context, persons, terms []string) []string {
	if len(persons) == 0 || s.persons == nil {
		return terms
	}

	aliases, err := s.persons.AliasesOf(ctx, persons)
	if err != nil {
		s.log.WithError(err).Warn("alias expansion failed")

		return terms
	}

	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		seen[t] = struct{}{}
	}

	for _, a := range aliases {
		for _, t := range s.tok.Terms(a.Alias) {
			if len(terms) >= maxLexicalTerms {
				return terms
			}

			if _, dup := seen[t]; !dup {
				seen[t] = struct{}{}
				terms = append(terms, t)
			}
		}
	}

	return terms
}

func aboveScore(results []models.RankedResult, minScore float64) []models.RankedResult {
	out := results[:0]

	for _, r := range results {
		if r.Score >= minScore {
			out = append(out, r)
		}
	}

	return out
}

func unionIDs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if _, dup := seen[id]; !dup && id != "" {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}

	return out
}
