package query

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/exif-turbo/exifturbo/internal/errors"
	"github.com/exif-turbo/exifturbo/internal/logging"
	"github.com/exif-turbo/exifturbo/internal/metrics"
	"github.com/exif-turbo/exifturbo/internal/store"
)

const (
	// DefaultLimit is the page size when none is given.
	DefaultLimit = 50
	// MaxLimit caps a single page.
	MaxLimit = 10000
	// DefaultCacheSize is the number of parsed queries kept.
	DefaultCacheSize = 256

	// SortRelevance orders by score, best first, ties by path.
	SortRelevance = "relevance"
)

// Options controls paging and ordering of a search.
type Options struct {
	Limit  int
	Offset int
	// Sort is SortRelevance (the default for non-empty queries) or any
	// store sort key. Blank queries default to path order.
	Sort string
	Desc bool
}

// Hit is one matching file.
type Hit struct {
	ID             int64             `json:"id"`
	Path           string            `json:"path"`
	Score          float64           `json:"score"`
	MatchedColumns []string          `json:"matched_columns,omitempty"`
	Record         *store.FileRecord `json:"record"`
}

// Result is one page of matches.
type Result struct {
	Query  string        `json:"query"`
	Total  int           `json:"total"`
	Offset int           `json:"offset"`
	Hits   []Hit         `json:"hits"`
	Took   time.Duration `json:"took_ns"`
}

// Engine parses and evaluates queries against a store. It never writes
// and is safe for concurrent use.
type Engine struct {
	store        *store.Store
	cache        *lru.Cache[string, Node]
	logger       *slog.Logger
	defaultLimit int
	cacheSize    int
}

// Option configures an Engine.
type Option func(*Engine)

// WithCacheSize sets the parsed query cache size.
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.cacheSize = n
		}
	}
}

// WithDefaultLimit sets the page size used when Options.Limit is zero.
func WithDefaultLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.defaultLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates a query engine over st.
func NewEngine(st *store.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:        st,
		defaultLimit: DefaultLimit,
		cacheSize:    DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrDiscard(e.logger)

	cache, err := lru.New[string, Node](e.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}
	e.cache = cache
	return e, nil
}

// Parse parses q, reusing the tree of an identical earlier query.
func (e *Engine) Parse(q string) (Node, error) {
	if n, ok := e.cache.Get(q); ok {
		metrics.QueryCacheHits.Inc()
		return n, nil
	}
	metrics.QueryCacheMisses.Inc()

	n, err := Parse(q)
	if err != nil {
		return nil, err
	}
	e.cache.Add(q, n)
	return n, nil
}

// Evaluate returns every document matching n with its score. A nil node
// matches every document with score zero.
func (e *Engine) Evaluate(ctx context.Context, v *store.View, n Node) (map[int64]float64, error) {
	ev := &evaluator{ctx: ctx, v: v}
	return ev.eval(n)
}

// Search parses and runs q, returning one page. Syntax errors are returned
// before the store is touched; store failures come back as query execution
// errors, never as an empty result.
func (e *Engine) Search(ctx context.Context, q string, opts Options) (*Result, error) {
	start := time.Now()

	node, err := e.Parse(q)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("syntax_error").Inc()
		return nil, err
	}
	sortKey, err := e.normalize(&opts, node)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	res := &Result{Query: q, Offset: opts.Offset, Hits: []Hit{}}
	err = e.store.View(ctx, func(v *store.View) error {
		matched, err := e.Evaluate(ctx, v, node)
		if err != nil {
			return err
		}
		res.Total = len(matched)
		if res.Total == 0 || opts.Offset >= res.Total {
			return nil
		}

		ordered, err := e.order(ctx, v, matched, sortKey, opts.Desc)
		if err != nil {
			return err
		}
		page := ordered[opts.Offset:min(opts.Offset+opts.Limit, len(ordered))]

		recs, err := v.Records(ctx, page)
		if err != nil {
			return err
		}
		refs := leaves(node)
		for _, rec := range recs {
			res.Hits = append(res.Hits, Hit{
				ID:             rec.ID,
				Path:           rec.Path,
				Score:          matched[rec.ID],
				MatchedColumns: matchedColumns(rec, refs),
				Record:         rec,
			})
		}
		return nil
	})
	res.Took = time.Since(start)
	metrics.QueryDuration.Observe(res.Took.Seconds())

	if err != nil {
		metrics.QueriesTotal.WithLabelValues("failed").Inc()
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		e.logger.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		return nil, errors.QueryExecutionError("search failed", err)
	}

	metrics.QueriesTotal.WithLabelValues("ok").Inc()
	e.logger.Debug("search",
		slog.String("query", q),
		slog.Int("total", res.Total),
		slog.Int("returned", len(res.Hits)),
		slog.Duration("took", res.Took))
	return res, nil
}

// normalize fills defaults into opts and resolves the sort key.
func (e *Engine) normalize(opts *Options, node Node) (string, error) {
	if opts.Offset < 0 {
		return "", errors.ValidationError(fmt.Sprintf("offset must not be negative, got %d", opts.Offset), nil)
	}
	switch {
	case opts.Limit < 0:
		return "", errors.ValidationError(fmt.Sprintf("limit must not be negative, got %d", opts.Limit), nil)
	case opts.Limit == 0:
		opts.Limit = e.defaultLimit
	case opts.Limit > MaxLimit:
		opts.Limit = MaxLimit
	}

	key := strings.ToLower(strings.TrimSpace(opts.Sort))
	switch {
	case key == "" || key == SortRelevance || key == "score":
		if node == nil {
			return "path", nil
		}
		return SortRelevance, nil
	case slices.Contains(store.SortKeys(), key):
		return key, nil
	}
	if c, ok := store.LookupColumn(key); ok && c.Sortable() {
		return c.Name, nil
	}
	return "", errors.ValidationError(fmt.Sprintf("cannot sort by %q", opts.Sort), nil).
		WithSuggestion("Sort by relevance or one of: " + strings.Join(store.SortKeys(), ", "))
}

func (e *Engine) order(ctx context.Context, v *store.View, matched map[int64]float64, key string, desc bool) ([]int64, error) {
	ids := make([]int64, 0, len(matched))
	for id := range matched {
		ids = append(ids, id)
	}
	if key != SortRelevance {
		return v.Order(ctx, ids, key, desc)
	}

	paths, err := v.Paths(ctx, ids)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(ids, func(a, b int64) int {
		if sa, sb := matched[a], matched[b]; sa != sb {
			if sa > sb {
				return -1
			}
			return 1
		}
		return strings.Compare(paths[a], paths[b])
	})
	return ids, nil
}
