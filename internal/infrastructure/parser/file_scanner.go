package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"GradScrape/internal/domain"
	"GradScrape/internal/scanner"
)

// FileScanner reads a raw scrape dump from disk. The dump is either a JSON
// object keyed by entry id or a JSON array of entries.
type FileScanner struct{}

// NewFileScanner builds the dump reader.
func NewFileScanner() *FileScanner {
	return &FileScanner{}
}

// Name identifies the strategy inside the registry.
func (f *FileScanner) Name() string {
	return "file"
}

// Scan loads entries from the "path" option, falling back to the source URL.
func (f *FileScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.RawEntry, error) {
	path := req.Option("path", req.URL)
	if path == "" {
		return nil, fmt.Errorf("source %s: no dump path configured", req.SourceName)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dump %s: %w", path, err)
	}

	entries, err := decodeDump(raw)
	if err != nil {
		return nil, fmt.Errorf("decode dump %s: %w", path, err)
	}
	return entries, nil
}

func decodeDump(raw []byte) ([]domain.RawEntry, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var entries []domain.RawEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	}

	var keyed map[string]domain.RawEntry
	if err := json.Unmarshal(trimmed, &keyed); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keyed))
	for id := range keyed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return idLess(ids[i], ids[j]) })

	entries := make([]domain.RawEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, keyed[id])
	}
	return entries, nil
}

// idLess orders numeric ids numerically and everything else lexically after them.
func idLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
