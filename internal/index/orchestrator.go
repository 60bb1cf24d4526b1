// Package index runs indexing passes: scan folders, classify files against
// the store, extract and normalize what changed, commit in batches and
// tombstone paths that disappeared.
package index

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/exif-turbo/exifturbo/internal/change"
	"github.com/exif-turbo/exifturbo/internal/config"
	"github.com/exif-turbo/exifturbo/internal/errors"
	"github.com/exif-turbo/exifturbo/internal/extract"
	"github.com/exif-turbo/exifturbo/internal/logging"
	"github.com/exif-turbo/exifturbo/internal/metrics"
	"github.com/exif-turbo/exifturbo/internal/normalize"
	"github.com/exif-turbo/exifturbo/internal/scanner"
	"github.com/exif-turbo/exifturbo/internal/store"
	"github.com/exif-turbo/exifturbo/internal/ui"
)

const (
	DefaultWorkers   = 12
	DefaultBatchSize = 500

	// scanProgressEvery throttles scan progress events.
	scanProgressEvery = 500
)

// ErrAlreadyRunning is returned when Run is called during another run.
var ErrAlreadyRunning = errors.New(errors.ErrCodeIndexFailed, "an index run is already in progress", nil)

// Options tunes a run.
type Options struct {
	Workers   int
	BatchSize int
	Policy    change.Policy
	Scan      scanner.ScanOptions
}

// OptionsFromConfig builds run options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	policy, err := change.ParsePolicy(cfg.Index.ChangePolicy)
	if err != nil {
		return Options{}, errors.ConfigError(err.Error(), err)
	}
	return Options{
		Workers:   cfg.Index.Workers,
		BatchSize: cfg.Index.BatchSize,
		Policy:    policy,
		Scan: scanner.ScanOptions{
			Extensions:      cfg.Paths.Extensions,
			ExcludePatterns: cfg.Paths.Exclude,
			IncludeHidden:   cfg.Paths.IncludeHidden,
		},
	}, nil
}

// Dependencies are the collaborators of an Orchestrator.
type Dependencies struct {
	// Store is required and must be writable.
	Store *store.Store
	// Extractor is required.
	Extractor extract.Extractor

	Scanner  *scanner.Scanner
	Renderer ui.Renderer
	Logger   *slog.Logger
}

// Orchestrator runs index passes against one store. Only one run may be
// active at a time.
type Orchestrator struct {
	store     *store.Store
	extractor extract.Extractor
	scanner   *scanner.Scanner
	renderer  ui.Renderer
	logger    *slog.Logger
	opts      Options
	now       func() time.Time

	running atomic.Bool
	state   atomic.Int32

	mu   sync.Mutex
	last *Summary
}

// New creates an Orchestrator.
func New(deps Dependencies, opts Options) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Store.ReadOnly() {
		return nil, fmt.Errorf("store is read-only")
	}
	if deps.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}

	logger := logging.OrDiscard(deps.Logger)
	sc := deps.Scanner
	if sc == nil {
		var err error
		if sc, err = scanner.New(logger); err != nil {
			return nil, fmt.Errorf("failed to create scanner: %w", err)
		}
	}
	renderer := deps.Renderer
	if renderer == nil {
		renderer = ui.Discard()
	}

	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Policy == "" {
		opts.Policy = change.PolicyMtime
	}

	return &Orchestrator{
		store:     deps.Store,
		extractor: deps.Extractor,
		scanner:   sc,
		renderer:  renderer,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}, nil
}

// State returns the current phase.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Scanner returns the scanner used for walks.
func (o *Orchestrator) Scanner() *scanner.Scanner {
	return o.scanner
}

// LastSummary returns the summary of the most recent finished run, or nil.
func (o *Orchestrator) LastSummary() *Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return nil
	}
	s := *o.last
	return &s
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

// job is one file selected for extraction. seq is its classification order.
type job struct {
	seq         int
	file        *scanner.FileInfo
	status      change.Status
	fingerprint string
}

// outcome is a finished job. Exactly one of rec, err, vanished or
// cancelled describes it; warn may accompany rec.
type outcome struct {
	job
	rec       *store.FileRecord
	warn      error
	err       error
	vanished  bool
	cancelled bool
}

// run holds the transient state of one pass.
type run struct {
	sum      *Summary
	timings  ui.StageTimings
	observed map[string]bool
	vanished map[string]bool
	complete map[string]bool
	// stored lists, per root, the paths indexed before the run.
	stored map[string][]string
	sigs   map[string]store.Signature
}

// Run indexes folders. Per-file problems are collected in the summary and
// never fail the run. A store error aborts it and is returned together
// with the summary so far. On cancellation everything already extracted is
// committed, tombstoning is skipped and ctx.Err() is returned.
func (o *Orchestrator) Run(ctx context.Context, folders []string) (*Summary, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer o.running.Store(false)
	defer o.setState(StateIdle)

	metrics.IndexRunning.Set(1)
	defer metrics.IndexRunning.Set(0)

	r := &run{
		sum:      &Summary{StartedAt: o.now(), Errors: []FileError{}, Warnings: []FileError{}},
		observed: make(map[string]bool),
		vanished: make(map[string]bool),
		complete: make(map[string]bool),
		stored:   make(map[string][]string),
		sigs:     make(map[string]store.Signature),
	}

	roots, err := rootsOf(folders)
	if err != nil {
		return nil, err
	}
	r.sum.Folders = roots
	o.logger.Info("index_started",
		slog.Any("folders", roots),
		slog.Int("workers", o.opts.Workers),
		slog.Int("batch_size", o.opts.BatchSize),
		slog.String("policy", string(o.opts.Policy)),
		slog.String("extractor", o.extractor.Name()))

	// Scan
	o.setState(StateScanning)
	start := time.Now()
	files := o.scan(ctx, roots, r)
	r.timings.Scan = time.Since(start)
	if ctx.Err() != nil {
		return o.finish(ctx, r, ctx.Err())
	}

	// Classify
	if err := o.loadSignatures(ctx, roots, r); err != nil {
		if ctx.Err() != nil {
			return o.finish(ctx, r, ctx.Err())
		}
		return o.finish(ctx, r, err)
	}
	jobs := o.classify(files, r)
	o.logger.Info("index_classified",
		slog.Int("scanned", r.sum.Scanned),
		slog.Int("new", r.sum.New),
		slog.Int("modified", r.sum.Modified),
		slog.Int("unchanged", r.sum.Unchanged))

	// Extract, normalize, write
	o.setState(StateExtracting)
	start = time.Now()
	err = o.process(ctx, jobs, r)
	r.timings.Extract = time.Since(start) - r.timings.Commit
	if err != nil {
		return o.finish(ctx, r, err)
	}
	if ctx.Err() != nil {
		return o.finish(ctx, r, ctx.Err())
	}

	// Tombstone
	o.setState(StateTombstoning)
	start = time.Now()
	deleted, err := o.tombstone(ctx, roots, r)
	r.timings.Tombstone = time.Since(start)
	if err != nil {
		return o.finish(ctx, r, err)
	}
	r.sum.Deleted = deleted

	return o.finish(ctx, r, nil)
}

// rootsOf makes folders absolute and drops duplicates.
func rootsOf(folders []string) ([]string, error) {
	if len(folders) == 0 {
		return nil, errors.ValidationError("no folders to index", nil).
			WithSuggestion("Pass one or more folders, or list them under folders: in the config")
	}
	seen := make(map[string]bool, len(folders))
	roots := make([]string, 0, len(folders))
	for _, f := range folders {
		abs, err := scanner.AbsFolder(f)
		if err != nil {
			return nil, errors.New(errors.ErrCodeInvalidPath, fmt.Sprintf("invalid folder %q", f), err)
		}
		if !seen[abs] {
			seen[abs] = true
			roots = append(roots, abs)
		}
	}
	return roots, nil
}

// scan walks every root and returns the distinct files in walk order. A
// root whose walk was not complete is recorded so it is never tombstoned.
func (o *Orchestrator) scan(ctx context.Context, roots []string, r *run) []*scanner.FileInfo {
	var files []*scanner.FileInfo
	for _, root := range roots {
		o.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "Scanning " + root})

		results, err := o.scanner.Scan(ctx, root, &o.opts.Scan)
		if err != nil {
			o.fileError(r, root, err)
			r.sum.Incomplete = append(r.sum.Incomplete, root)
			continue
		}

		complete := true
		for res := range results {
			if res.Error != nil {
				complete = false
				o.fileWarning(r, errorPath(res), res.Error)
				continue
			}
			if r.observed[res.File.Path] {
				continue
			}
			r.observed[res.File.Path] = true
			files = append(files, res.File)
			if len(files)%scanProgressEvery == 0 {
				o.renderer.UpdateProgress(ui.ProgressEvent{
					Stage:       ui.StageScanning,
					Current:     len(files),
					CurrentFile: res.File.Path,
				})
			}
		}
		if ctx.Err() != nil {
			complete = false
		}
		r.complete[root] = complete
		if !complete {
			r.sum.Incomplete = append(r.sum.Incomplete, root)
		}
	}

	r.sum.Scanned = len(files)
	o.logger.Info("index_scan_complete",
		slog.Int("files", len(files)),
		slog.Int("incomplete_folders", len(r.sum.Incomplete)))
	return files
}

func errorPath(res scanner.ScanResult) string {
	var pe *fs.PathError
	if stderrors.As(res.Error, &pe) {
		return pe.Path
	}
	return res.Root
}

func (o *Orchestrator) loadSignatures(ctx context.Context, roots []string, r *run) error {
	return o.store.View(ctx, func(v *store.View) error {
		for _, root := range roots {
			sigs, err := v.Signatures(ctx, root)
			if err != nil {
				return err
			}
			for path, sig := range sigs {
				r.sigs[path] = sig
				r.stored[root] = append(r.stored[root], path)
			}
		}
		return nil
	})
}

// classify compares every scanned file with its stored signature and
// returns the ones to extract, in scan order.
func (o *Orchestrator) classify(files []*scanner.FileInfo, r *run) []job {
	var jobs []job
	for _, f := range files {
		var stored *store.Signature
		if sig, ok := r.sigs[f.Path]; ok {
			stored = &sig
		}

		cur := change.Current{Size: f.Size, ModTime: f.ModTime}
		if change.NeedsFingerprint(stored, cur, o.opts.Policy) {
			fp, err := change.Fingerprint(f.Path)
			if err != nil {
				if stderrors.Is(err, fs.ErrNotExist) {
					r.vanished[f.Path] = true
					o.fileWarning(r, f.Path, errors.NewExtractionError(errors.KindNotFound, f.Path, err))
					continue
				}
				o.fileError(r, f.Path, err)
				continue
			}
			cur.Fingerprint = fp
		}

		status := change.Classify(stored, cur, o.opts.Policy)
		switch status {
		case change.Unchanged:
			r.sum.Unchanged++
			continue
		case change.New:
			r.sum.New++
		case change.Modified:
			r.sum.Modified++
		}
		jobs = append(jobs, job{seq: len(jobs), file: f, status: status, fingerprint: cur.Fingerprint})
	}
	return jobs
}

// process extracts jobs on a bounded pool and writes the results from this
// goroutine, in classification order, committing every BatchSize records.
func (o *Orchestrator) process(ctx context.Context, jobs []job, r *run) error {
	if len(jobs) == 0 {
		return nil
	}

	workCtx, stopWork := context.WithCancel(ctx)
	defer stopWork()

	results := make(chan outcome, o.opts.Workers)
	go func() {
		var g errgroup.Group
		g.SetLimit(o.opts.Workers)
		for _, j := range jobs {
			g.Go(func() error {
				results <- o.extractOne(workCtx, j)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	var (
		fatal   error
		done    int
		batch   int
		pending = make(map[int]outcome)
		next    = 0
	)
	for out := range results {
		pending[out.seq] = out
		for fatal == nil {
			cur, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			if cur.cancelled {
				continue
			}
			done++
			o.renderer.UpdateProgress(ui.ProgressEvent{
				Stage:       ui.StageExtracting,
				Current:     done,
				Total:       len(jobs),
				CurrentFile: cur.file.Path,
			})

			written, err := o.apply(cur, r)
			if err != nil {
				fatal = err
				break
			}
			if written {
				batch++
			}
			if batch >= o.opts.BatchSize {
				if err := o.commit(ctx, r); err != nil {
					fatal = err
					break
				}
				batch = 0
			}
		}
		if fatal != nil {
			// Drain so the pool can exit.
			stopWork()
		}
	}
	if fatal != nil {
		return fatal
	}

	o.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageCommitting, Message: "Committing"})
	return o.commit(ctx, r)
}

// extractOne runs the extractor and the normalizer for one file.
func (o *Orchestrator) extractOne(ctx context.Context, j job) outcome {
	out := outcome{job: j}
	if ctx.Err() != nil {
		out.cancelled = true
		return out
	}

	fingerprint := j.fingerprint
	if o.opts.Policy == change.PolicyHash && fingerprint == "" {
		fp, err := change.Fingerprint(j.file.Path)
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				out.vanished = true
				out.err = errors.NewExtractionError(errors.KindNotFound, j.file.Path, err)
				return out
			}
			out.err = err
			return out
		}
		fingerprint = fp
	}

	start := time.Now()
	meta, err := o.extractor.Extract(ctx, j.file.Path)
	metrics.ExtractDuration.WithLabelValues(o.extractor.Name()).Observe(time.Since(start).Seconds())
	o.observeBreaker()
	if err != nil {
		if ctx.Err() != nil {
			out.cancelled = true
			return out
		}
		if kind, ok := errors.ExtractionKindOf(err); ok && kind == errors.KindNotFound {
			out.vanished = true
		}
		out.err = err
		return out
	}

	rec, warn := normalize.Normalize(j.file.Path, meta)
	rec.Size = j.file.Size
	rec.ModTime = j.file.ModTime
	rec.Fingerprint = fingerprint
	rec.IndexedAt = o.now()
	out.rec = rec
	out.warn = warn
	return out
}

type breakerHolder interface {
	Breaker() *errors.CircuitBreaker
}

func (o *Orchestrator) observeBreaker() {
	if b, ok := o.extractor.(breakerHolder); ok && b.Breaker() != nil {
		metrics.ExtractorBreakerOpen.Set(metrics.BoolGauge(b.Breaker().State() == errors.StateOpen))
	}
}

// apply records an outcome. It reports whether a record was buffered; an
// error is always a store failure.
func (o *Orchestrator) apply(out outcome, r *run) (bool, error) {
	path := out.file.Path
	switch {
	case out.vanished:
		// Not observed: a stored record for it is tombstoned later.
		r.vanished[path] = true
		r.sum.Skipped++
		o.fileWarning(r, path, out.err)
		return false, nil
	case out.err != nil:
		// A modified file keeps its previous record.
		r.sum.Skipped++
		o.logger.Warn("extract_failed",
			slog.String("path", path),
			slog.String("status", out.status.String()),
			slog.String("error", out.err.Error()))
		o.fileError(r, path, out.err)
		return false, nil
	}

	if err := o.store.Upsert(out.rec); err != nil {
		return false, err
	}
	r.sum.Indexed++
	if out.warn != nil {
		o.fileWarning(r, path, out.warn)
	}
	return true, nil
}

// commit flushes buffered writes. It runs even when ctx is cancelled so
// extracted work is kept.
func (o *Orchestrator) commit(ctx context.Context, r *run) error {
	n := o.store.Pending()
	if n == 0 {
		return nil
	}

	prev := o.State()
	o.setState(StateCommitting)
	defer o.setState(prev)

	start := time.Now()
	if err := o.store.CommitBatch(context.WithoutCancel(ctx)); err != nil {
		o.logger.Error("batch_commit_failed", slog.Int("ops", n), slog.String("error", err.Error()))
		return err
	}
	took := time.Since(start)
	r.timings.Commit += took
	metrics.CommitDuration.Observe(took.Seconds())
	o.logger.Debug("batch_committed", slog.Int("ops", n), slog.Duration("took", took))
	return nil
}

// tombstone deletes stored paths under completely scanned roots that this
// run did not observe.
func (o *Orchestrator) tombstone(ctx context.Context, roots []string, r *run) (int, error) {
	gone := make(map[string]bool)
	for _, root := range roots {
		if !r.complete[root] {
			continue
		}
		for _, path := range r.stored[root] {
			if !r.observed[path] || r.vanished[path] {
				gone[path] = true
			}
		}
	}
	if len(gone) == 0 {
		return 0, nil
	}

	paths := make([]string, 0, len(gone))
	for p := range gone {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	o.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageTombstoning,
		Message: fmt.Sprintf("Removing %d missing files", len(paths)),
	})
	for _, p := range paths {
		if err := o.store.Delete(p); err != nil {
			return 0, err
		}
	}
	if err := o.commit(ctx, r); err != nil {
		return 0, err
	}
	o.logger.Info("index_tombstoned", slog.Int("deleted", len(paths)))
	return len(paths), nil
}

func (o *Orchestrator) fileError(r *run, path string, err error) {
	r.sum.addError(path, err)
	o.renderer.AddError(ui.ErrorEvent{File: path, Err: err})
}

func (o *Orchestrator) fileWarning(r *run, path string, err error) {
	r.sum.addWarning(path, err)
	o.renderer.AddError(ui.ErrorEvent{File: path, Err: err, IsWarn: true})
}

// finish records metrics, logs and renders the summary.
func (o *Orchestrator) finish(ctx context.Context, r *run, err error) (*Summary, error) {
	sum := r.sum
	sum.Duration = time.Since(sum.StartedAt)
	sum.Cancelled = err != nil && ctx.Err() != nil && stderrors.Is(err, ctx.Err())

	outcome := "ok"
	switch {
	case sum.Cancelled:
		outcome = "cancelled"
	case err != nil:
		outcome = "failed"
	default:
		metrics.IndexLastRunTimestamp.SetToCurrentTime()
	}
	metrics.IndexRunsTotal.WithLabelValues(outcome).Inc()
	metrics.IndexRunDuration.Observe(sum.Duration.Seconds())
	for result, n := range map[string]int{
		"new":       sum.New,
		"modified":  sum.Modified,
		"unchanged": sum.Unchanged,
		"indexed":   sum.Indexed,
		"skipped":   sum.Skipped,
		"deleted":   sum.Deleted,
		"error":     len(sum.Errors),
	} {
		metrics.IndexFilesTotal.WithLabelValues(result).Add(float64(n))
	}

	attrs := []any{
		slog.String("outcome", outcome),
		slog.Int("scanned", sum.Scanned),
		slog.Int("new", sum.New),
		slog.Int("modified", sum.Modified),
		slog.Int("unchanged", sum.Unchanged),
		slog.Int("indexed", sum.Indexed),
		slog.Int("skipped", sum.Skipped),
		slog.Int("deleted", sum.Deleted),
		slog.Int("errors", len(sum.Errors)),
		slog.Int("warnings", len(sum.Warnings)),
		slog.Int64("duration_ms", sum.Duration.Milliseconds()),
		slog.Int64("duration_scan_ms", r.timings.Scan.Milliseconds()),
		slog.Int64("duration_extract_ms", r.timings.Extract.Milliseconds()),
		slog.Int64("duration_commit_ms", r.timings.Commit.Milliseconds()),
	}
	if err != nil && !sum.Cancelled {
		o.logger.Error("index_failed", append(attrs, slog.String("error", err.Error()))...)
	} else {
		o.logger.Info("index_complete", attrs...)
	}

	o.renderer.Complete(ui.CompletionStats{
		Scanned:   sum.Scanned,
		New:       sum.New,
		Modified:  sum.Modified,
		Unchanged: sum.Unchanged,
		Indexed:   sum.Indexed,
		Skipped:   sum.Skipped,
		Deleted:   sum.Deleted,
		Errors:    len(sum.Errors),
		Warnings:  len(sum.Warnings),
		Duration:  sum.Duration,
		Stages:    r.timings,
		Extractor: o.extractor.Name(),
		Cancelled: sum.Cancelled,
	})

	o.mu.Lock()
	o.last = sum
	o.mu.Unlock()

	return sum, err
}
