package cache

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// ErrCorruptRow marks a cache row that was skipped on load.
var ErrCorruptRow = errors.New("corrupt cache row")

var fileHeader = []string{"tweet_id", "text"}

// FileBackend stores the cache as a two-column CSV file.
type FileBackend struct {
	path   string
	logger *zap.Logger
}

// NewFileBackend returns a backend rooted at path.
func NewFileBackend(path string, logger *zap.Logger) *FileBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileBackend{path: path, logger: logger.Named("cache_file")}
}

// Path returns the cache file location.
func (b *FileBackend) Path() string {
	return b.path
}

// Load implements Backend.
func (b *FileBackend) Load(_ context.Context) (map[string]string, error) {
	entries, skipped, err := readFile(b.path)
	if err != nil {
		return nil, err
	}
	if len(skipped) > 0 {
		b.logger.Warn("skipped corrupt cache rows",
			zap.String("path", b.path),
			zap.Int("count", len(skipped)),
			zap.Error(errors.Join(skipped...)),
		)
	}
	return entries, nil
}

// Save implements Backend.
func (b *FileBackend) Save(_ context.Context, entries map[string]string) error {
	return SaveFile(b.path, entries)
}

// LoadFile reads a cache file. A missing file yields an empty mapping; the
// first row is treated as a header and rows without an ID are skipped.
func LoadFile(path string) (map[string]string, error) {
	entries, _, err := readFile(path)
	return entries, err
}

func readFile(path string) (map[string]string, []error, error) {
	entries := make(map[string]string)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entries, nil, nil
		}
		return nil, nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var skipped []error
	line := 0
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped = append(skipped, fmt.Errorf("line %d: %w: %v", line, ErrCorruptRow, err))
				continue
			}
			return nil, nil, fmt.Errorf("read cache %s: %w", path, err)
		}
		if line == 1 {
			continue
		}
		if len(record) < 2 || record[0] == "" {
			skipped = append(skipped, fmt.Errorf("line %d: %w", line, ErrCorruptRow))
			continue
		}
		entries[record[0]] = record[1]
	}
	return entries, skipped, nil
}

// SaveFile atomically replaces path with entries sorted by ID. The file is
// written to a temp sibling, synced, then renamed into place.
func SaveFile(path string, entries map[string]string) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(fileHeader); err != nil {
		return fmt.Errorf("write cache header: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.Write([]string{k, entries[k]}); err != nil {
			return fmt.Errorf("write cache row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}
