// Package harvest drives a run: it walks batch directories, deduplicates
// tweet IDs across labeled source files, serves cached text, resolves the
// rest through a bounded pool, and streams rows into per-label datasets.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tweet-harvester/internal/cache"
	"github.com/JakeFAU/tweet-harvester/internal/dispatcher"
	"github.com/JakeFAU/tweet-harvester/internal/metrics"
	"github.com/JakeFAU/tweet-harvester/internal/progress"
	"github.com/JakeFAU/tweet-harvester/internal/sink"
)

// Resolver turns a tweet ID into text.
type Resolver interface {
	Resolve(ctx context.Context, id string) (string, error)
}

// Config tunes batch processing.
type Config struct {
	Workers    int
	Sleep      time.Duration
	FlushEvery int
	// RefetchEmpty re-resolves IDs cached with empty text instead of serving
	// them as hits.
	RefetchEmpty bool
}

// BatchResult summarizes one processed batch.
type BatchResult struct {
	Batch      string
	Skipped    bool
	Files      int
	Unique     int
	Hits       int
	Misses     int
	Empty      int
	Duplicates int
	Conflicts  int
	Invalid    int
	Rows       map[Label]int
}

// Harvester processes batches against a shared cache.
type Harvester struct {
	cfg        Config
	resolver   Resolver
	store      *cache.Store
	tracker    *progress.Tracker
	dispatcher *dispatcher.Dispatcher
	logger     *zap.Logger
}

// New builds a Harvester. tracker may be nil.
func New(cfg Config, resolver Resolver, store *cache.Store, tracker *progress.Tracker, logger *zap.Logger) *Harvester {
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("harvest")
	return &Harvester{
		cfg:        cfg,
		resolver:   resolver,
		store:      store,
		tracker:    tracker,
		dispatcher: dispatcher.New(dispatcher.Config{Workers: cfg.Workers, Sleep: cfg.Sleep}, logger),
		logger:     logger,
	}
}

// Run processes every batch under inputDir in name order, writing outputs to
// the same-named directory under outputDir. The cache is saved after each
// batch, including one interrupted by ctx.
func (h *Harvester) Run(ctx context.Context, inputDir, outputDir string) error {
	batches, err := ListBatches(inputDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return fmt.Errorf("create output dir %s: %w", outputDir, err)
	}

	h.logger.Info("run starting",
		zap.Int("batches", len(batches)),
		zap.Int("cached", h.store.Len()),
		zap.Int("workers", h.dispatcher.Workers()),
	)
	for _, name := range batches {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted before %s: %w", name, err)
		}
		_, batchErr := h.ProcessBatch(ctx, filepath.Join(inputDir, name), filepath.Join(outputDir, name))
		if err := h.checkpoint(ctx); err != nil {
			return errors.Join(batchErr, err)
		}
		if batchErr != nil {
			return fmt.Errorf("batch %s: %w", name, batchErr)
		}
	}
	h.logger.Info("run finished", zap.Int("cached", h.store.Len()))
	return nil
}

// checkpoint saves the cache even when ctx is already cancelled.
func (h *Harvester) checkpoint(ctx context.Context) error {
	if err := h.store.Save(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("checkpoint cache: %w", err)
	}
	return nil
}

// ProcessBatch handles one batch directory. A batch without any readable,
// labeled source file is skipped and creates no outputs.
func (h *Harvester) ProcessBatch(ctx context.Context, batchDir, outDir string) (BatchResult, error) {
	name := filepath.Base(batchDir)
	logger := h.logger.With(zap.String("batch", name))
	result := BatchResult{Batch: name, Rows: make(map[Label]int)}

	found, err := h.discover(batchDir, logger)
	if err != nil {
		metrics.ObserveBatch(progress.StatusFailed)
		h.tracker.FinishBatch(name, progress.StatusFailed)
		return result, err
	}
	if found.files == 0 {
		result.Skipped = true
		logger.Info("no recognized source files, skipping batch")
		metrics.ObserveBatch(progress.StatusSkipped)
		h.tracker.FinishBatch(name, progress.StatusSkipped)
		return result, nil
	}
	result.Files = found.files
	result.Unique = len(found.order)
	result.Duplicates = found.duplicates
	result.Conflicts = found.conflicts
	result.Invalid = found.invalid

	w, err := openWriter(outDir, h.cfg.FlushEvery, h.store, h.tracker, name)
	if err != nil {
		metrics.ObserveBatch(progress.StatusFailed)
		h.tracker.FinishBatch(name, progress.StatusFailed)
		return result, err
	}

	var hits []cachedText
	var misses []string
	for _, id := range found.order {
		text, ok := h.store.Lookup(id)
		if ok && !(h.cfg.RefetchEmpty && text == "") {
			hits = append(hits, cachedText{id: id, text: text})
			continue
		}
		misses = append(misses, id)
	}
	result.Hits = len(hits)
	result.Misses = len(misses)
	h.tracker.StartBatch(name, len(hits), len(misses), found.duplicates, found.conflicts)
	logger.Info("batch starting",
		zap.Int("files", found.files),
		zap.Int("unique", result.Unique),
		zap.Int("hits", result.Hits),
		zap.Int("misses", result.Misses),
		zap.Int("label_conflicts", found.conflicts),
		zap.Int("invalid_ids", found.invalid),
	)

	for _, hit := range hits {
		w.write(hit.id, found.labels[hit.id], hit.text, false)
	}

	dispatchErr := h.dispatcher.Run(ctx, misses, func(ctx context.Context, id string) {
		text, err := h.resolver.Resolve(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Debug("resolve failed", zap.String("tweet_id", id), zap.Error(err))
			text = ""
		}
		w.write(id, found.labels[id], text, true)
	})

	writeErr := w.close()
	for label, s := range w.sinks {
		result.Rows[label] = s.Rows()
	}
	result.Empty = w.empty

	status := progress.StatusDone
	switch {
	case writeErr != nil:
		status = progress.StatusFailed
	case dispatchErr != nil:
		status = progress.StatusInterrupted
	}
	metrics.ObserveBatch(status)
	final := h.tracker.FinishBatch(name, status)
	logger.Info("batch finished",
		zap.String("status", status),
		zap.Int("fake_rows", result.Rows[LabelFake]),
		zap.Int("real_rows", result.Rows[LabelReal]),
		zap.Int("empty", result.Empty),
		zap.Time("started_at", final.StartedAt),
	)

	if err := errors.Join(dispatchErr, writeErr); err != nil {
		return result, err
	}
	return result, nil
}

func (h *Harvester) discover(batchDir string, logger *zap.Logger) (*discovery, error) {
	names, err := listSources(batchDir)
	if err != nil {
		return nil, err
	}
	found := newDiscovery()
	for _, fname := range names {
		label, ok := Classify(fname)
		if !ok {
			logger.Warn("unrecognized source file, skipping", zap.String("file", fname))
			continue
		}
		raw, err := readIDs(filepath.Join(batchDir, fname))
		if err != nil {
			logger.Warn("skipping source file", zap.String("file", fname), zap.Error(err))
			continue
		}
		ids, invalid := normalizeIDs(raw)
		for _, token := range invalid {
			logger.Warn("dropping invalid tweet id", zap.String("file", fname), zap.String("tweet_id", token))
		}
		found.invalid += len(invalid)
		found.add(label, ids)
	}
	return found, nil
}

type cachedText struct {
	id   string
	text string
}

// batchWriter serializes cache updates and sink appends for one batch.
type batchWriter struct {
	mu      sync.Mutex
	sinks   map[Label]*sink.CSVSink
	store   *cache.Store
	tracker *progress.Tracker
	batch   string
	empty   int
	err     error
}

func openWriter(outDir string, flushEvery int, store *cache.Store, tracker *progress.Tracker, batch string) (*batchWriter, error) {
	w := &batchWriter{
		sinks:   make(map[Label]*sink.CSVSink, 2),
		store:   store,
		tracker: tracker,
		batch:   batch,
	}
	for _, label := range []Label{LabelFake, LabelReal} {
		s, err := sink.Open(filepath.Join(outDir, label.OutputFile()), string(label), label.Tag(), flushEvery)
		if err != nil {
			_ = w.close()
			return nil, fmt.Errorf("open %s sink: %w", label, err)
		}
		w.sinks[label] = s
	}
	return w, nil
}

// write records one result. Resolved results are also stored in the cache.
// CRLF line breaks are stored as LF so the cache file reloads the same text.
func (w *batchWriter) write(id string, label Label, text string, resolved bool) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	w.mu.Lock()
	defer w.mu.Unlock()
	if resolved {
		w.store.Put(id, text)
	}
	if text == "" {
		w.empty++
	}
	if err := w.sinks[label].Append(text); err != nil && w.err == nil {
		w.err = err
	}
	w.tracker.RecordRow(w.batch, text == "")
}

func (w *batchWriter) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	errs := []error{w.err}
	for _, s := range w.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
