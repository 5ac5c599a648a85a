package harvest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/JakeFAU/tweet-harvester/internal/resolver"
)

const idColumn = "tweet_id"

// ListBatches returns the sorted names of the batch directories under root.
func ListBatches(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read input dir %s: %w", root, err)
	}
	var batches []string
	for _, e := range entries {
		if e.IsDir() {
			batches = append(batches, e.Name())
		}
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("%s: %w", root, ErrNoBatches)
	}
	sort.Strings(batches)
	return batches, nil
}

// listSources returns the *_tweets.csv files in dir sorted by name.
func listSources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read batch dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), sourceSuffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// readIDs returns the trimmed, non-empty values of the tweet_id column.
func readIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrSourceFileInvalid, path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header of %s: %w", ErrSourceFileInvalid, path, err)
	}
	col := -1
	for i, name := range header {
		if strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) == idColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%w: %q column not found in %s", ErrSourceFileInvalid, idColumn, path)
	}

	var ids []string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrSourceFileInvalid, path, err)
		}
		if col >= len(record) {
			continue
		}
		if id := strings.TrimSpace(record[col]); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// normalizeIDs maps status URLs and bare IDs to numeric IDs. Tokens that are
// neither are returned separately.
func normalizeIDs(raw []string) (ids, invalid []string) {
	ids = make([]string, 0, len(raw))
	for _, token := range raw {
		id, err := resolver.NormalizeID(token)
		if err != nil {
			invalid = append(invalid, token)
			continue
		}
		ids = append(ids, id)
	}
	return ids, invalid
}

// discovery is the deduplicated ID set of one batch.
type discovery struct {
	files      int
	order      []string
	labels     map[string]Label
	duplicates int
	conflicts  int
	invalid    int
}

func newDiscovery() *discovery {
	return &discovery{labels: make(map[string]Label)}
}

// add records ids from a file labeled label. The first label seen for an ID
// is kept.
func (d *discovery) add(label Label, ids []string) {
	d.files++
	for _, id := range ids {
		prev, seen := d.labels[id]
		if !seen {
			d.labels[id] = label
			d.order = append(d.order, id)
			continue
		}
		d.duplicates++
		if prev != label {
			d.conflicts++
		}
	}
}
