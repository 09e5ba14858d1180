package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"golang.org/x/sync/singleflight"

	"github.com/persistorai/recall/internal/metrics"
	"github.com/persistorai/recall/internal/models"
	"github.com/persistorai/recall/internal/tokenize"
)

// Resolver limits.
const (
	maxMentionWords   = 3
	maxResolveWords   = 200
	defaultResolveTTL = 10 * time.Minute
)

// AliasLookup is the graph store method the resolver depends on.
type AliasLookup interface {
	ResolveAliases(ctx context.Context, norms []string) ([]models.AliasMatch, error)
}

type cachedAliases struct {
	matches   []models.AliasMatch
	gen       uint64
	fetchedAt time.Time
}

// Resolver maps free text to persons on demand. Lookups are cached per
// normalized key until the TTL passes or Invalidate is called.
type Resolver struct {
	lookup AliasLookup
	ttl    time.Duration
	cache  sync.Map
	group  singleflight.Group
	gen    atomic.Uint64
}

// NewResolver creates a Resolver.
func NewResolver(lookup AliasLookup, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = defaultResolveTTL
	}

	return &Resolver{lookup: lookup, ttl: ttl}
}

// Invalidate drops every cached lookup. Called after person or alias writes.
func (r *Resolver) Invalidate() {
	r.gen.Add(1)
	r.cache.Clear()
}

// ResolveName resolves one name, phone number or email address.
func (r *Resolver) ResolveName(ctx context.Context, name string) (models.Resolution, error) {
	name = strings.TrimSpace(name)
	kind := models.ClassifyAlias(name)

	keys := []string{models.NormalizeAlias(kind, name)}
	if kind == models.AliasName {
		words := tokenize.Words(name)
		if len(words) == 1 {
			keys = tokenize.Variants(words[0])
		}
	}

	found, err := r.lookupNorms(ctx, keys)
	if err != nil {
		return models.Resolution{}, err
	}

	var matches []models.AliasMatch
	for _, k := range keys {
		matches = append(matches, found[k]...)
		if len(found[k]) > 0 {
			break
		}
	}

	return models.NewResolution(name, matches), nil
}

// mention is a span of query words that may name a person.
type mention struct {
	start, end int
	text       string
	keys       []string
}

// ResolveQuery finds person mentions in free text. Longer spans win over the
// shorter spans they contain. Every mention that matched is returned, each
// either resolved or ambiguous.
func (r *Resolver) ResolveQuery(ctx context.Context, text string) ([]models.Resolution, error) {
	words := tokenize.Words(text)
	if len(words) > maxResolveWords {
		words = words[:maxResolveWords]
	}

	cands := make([]mention, 0, len(words)*maxMentionWords)

	for n := maxMentionWords; n >= 1; n-- {
		for i := 0; i+n <= len(words); i++ {
			span := strings.Join(words[i:i+n], " ")
			keys := []string{span}

			if n == 1 {
				keys = tokenize.Variants(span)
			}

			cands = append(cands, mention{start: i, end: i + n, text: span, keys: keys})
		}
	}

	contacts := contactMentions(text)

	norms := make([]string, 0, len(cands)+len(contacts))
	for _, c := range cands {
		norms = append(norms, c.keys...)
	}

	for _, c := range contacts {
		norms = append(norms, c.keys...)
	}

	found, err := r.lookupNorms(ctx, norms)
	if err != nil {
		return nil, err
	}

	covered := make([]bool, len(words))
	out := make([]models.Resolution, 0, 2)

	for _, c := range cands {
		if spanCovered(covered, c.start, c.end) {
			continue
		}

		matches := firstMatch(found, c.keys)
		if len(matches) == 0 {
			continue
		}

		for i := c.start; i < c.end; i++ {
			covered[i] = true
		}

		out = append(out, models.NewResolution(c.text, matches))
	}

	for _, c := range contacts {
		if matches := firstMatch(found, c.keys); len(matches) > 0 {
			out = append(out, models.NewResolution(c.text, matches))
		}
	}

	return out, nil
}

func firstMatch(found map[string][]models.AliasMatch, keys []string) []models.AliasMatch {
	for _, k := range keys {
		if m := found[k]; len(m) > 0 {
			return m
		}
	}

	return nil
}

func spanCovered(covered []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if covered[i] {
			return true
		}
	}

	return false
}

// contactMentions extracts phone numbers and email addresses from text.
func contactMentions(text string) []mention {
	var out []mention

	for _, f := range strings.Fields(text) {
		f = strings.TrimFunc(f, func(r rune) bool {
			return r != '+' && r != '@' && !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})

		kind := models.ClassifyAlias(f)
		if kind == models.AliasName {
			continue
		}

		if norm := models.NormalizeAlias(kind, f); norm != "" {
			out = append(out, mention{text: f, keys: []string{norm}})
		}
	}

	return out
}

// lookupNorms returns matches per key, serving what it can from cache and
// fetching the rest in one batch.
func (r *Resolver) lookupNorms(ctx context.Context, norms []string) (map[string][]models.AliasMatch, error) {
	gen := r.gen.Load()
	out := make(map[string][]models.AliasMatch, len(norms))
	missing := make([]string, 0, len(norms))

	for _, n := range norms {
		if _, dup := out[n]; dup || n == "" {
			continue
		}

		if m, ok := r.cached(n, gen); ok {
			metrics.ResolverCache.WithLabelValues("hit").Inc()
			out[n] = m

			continue
		}

		metrics.ResolverCache.WithLabelValues("miss").Inc()
		out[n] = nil
		missing = append(missing, n)
	}

	if len(missing) == 0 {
		return out, nil
	}

	sort.Strings(missing)

	key := strconv.FormatUint(gen, 10) + "\x1e" + strings.Join(missing, "\x1f")

	val, err, _ := r.group.Do(key, func() (any, error) {
		// Double-check cache after winning the singleflight race.
		res := make(map[string][]models.AliasMatch, len(missing))
		fetch := make([]string, 0, len(missing))

		for _, n := range missing {
			if m, ok := r.cached(n, gen); ok {
				res[n] = m
			} else {
				fetch = append(fetch, n)
			}
		}

		if len(fetch) == 0 {
			return res, nil
		}

		matches, err := r.lookup.ResolveAliases(ctx, fetch)
		if err != nil {
			return nil, fmt.Errorf("resolving aliases: %w", err)
		}

		for _, m := range matches {
			res[m.Norm] = append(res[m.Norm], m)
		}

		now := time.Now()
		for _, n := range fetch {
			r.store(n, cachedAliases{matches: res[n], gen: gen, fetchedAt: now})
		}

		return res, nil
	})
	if err != nil {
		return nil, err
	}

	res, ok := val.(map[string][]models.AliasMatch)
	if !ok {
		return nil, fmt.Errorf("resolver: unexpected singleflight result type %T", val)
	}

	for _, n := range missing {
		out[n] = res[n]
	}

	return out, nil
}

func (r *Resolver) cached(norm string, gen uint64) ([]models.AliasMatch, bool) {
	v, ok := r.cache.Load(norm)
	if !ok {
		return nil, false
	}

	entry, valid := v.(cachedAliases)
	if !valid || entry.gen != gen {
		return nil, false
	}

	if time.Since(entry.fetchedAt) >= r.ttl {
		r.cache.Delete(norm)

		return nil, false
	}

	return entry.matches, true
}

// store caches an entry unless an invalidation happened since the lookup began.
func (r *Resolver) store(norm string, entry cachedAliases) {
	if r.gen.Load() != entry.gen {
		return
	}

	r.cache.Store(norm, entry)
}
