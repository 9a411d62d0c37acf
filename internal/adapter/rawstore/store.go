// Package rawstore persists the raw layer: the API response kept verbatim as
// one JSON array per run.
package rawstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/brewery-data-etl/internal/domain"
)

var (
	// ErrRawNotFound means the raw file does not exist.
	ErrRawNotFound = errors.New("raw file not found")
	// ErrRawDecode means the raw file is not valid JSON.
	ErrRawDecode = errors.New("could not decode raw JSON")
)

// Store reads and writes raw JSON files on the local filesystem.
type Store struct {
	logger *slog.Logger
}

// NewStore creates a raw layer store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{logger: logger}
}

// FilePath returns the raw file location for a directory and base name.
func FilePath(dir, name string) string {
	return filepath.Join(dir, name+".json")
}

// Save writes records as a single JSON array to <dir>/<name>.json, creating
// dir if needed and replacing any existing file.
func (s *Store) Save(records []domain.Record, dir, name string) error {
	path := FilePath(dir, name)

	if err := s.save(records, dir, path); err != nil {
		s.logger.Error("unexpected error when saving raw data", "path", path, "error", err)
		return err
	}

	s.logger.Info("raw data saved", "path", path, "records", len(records))
	return nil
}

func (s *Store) save(records []domain.Record, dir, path string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create raw dir: %w", err)
	}
	if records == nil {
		records = []domain.Record{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode raw data: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write raw file: %w", err)
	}
	return nil
}

// ReadRecords reads <dir>/<name>.json back into records, in file order.
// Errors wrap ErrRawNotFound or ErrRawDecode where they apply.
func (s *Store) ReadRecords(dir, name string) ([]domain.Record, error) {
	path := FilePath(dir, name)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRawNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read raw file: %w", err)
	}

	return decodeRecords(data)
}

// Load reads the raw file and normalizes it into a Table. Each failure is
// logged once at error level: not found, decode, or unexpected.
func (s *Store) Load(dir, name string) (*domain.Table, error) {
	path := FilePath(dir, name)

	records, err := s.ReadRecords(dir, name)
	switch {
	case errors.Is(err, ErrRawNotFound):
		s.logger.Error("raw file was not found", "path", path)
		return nil, err
	case errors.Is(err, ErrRawDecode):
		s.logger.Error("could not decode raw JSON, check that it is a valid JSON file", "path", path, "error", err)
		return nil, err
	case err != nil:
		s.logger.Error("unexpected error when loading raw data", "path", path, "error", err)
		return nil, err
	}

	table := domain.Normalize(records)
	s.logger.Info("raw data loaded", "path", path, "rows", len(table.Rows), "columns", len(table.Columns))
	return table, nil
}

// decodeRecords accepts a JSON array of objects or a single object.
func decodeRecords(data []byte) ([]domain.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRawDecode, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after top-level value", ErrRawDecode)
	}

	switch v := raw.(type) {
	case []any:
		records := make([]domain.Record, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: raw record %d is %T, not an object", ErrRawDecode, i, item)
			}
			records = append(records, domain.Record(m))
		}
		return records, nil
	case map[string]any:
		return []domain.Record{v}, nil
	default:
		return nil, fmt.Errorf("%w: raw JSON is %T, not an array of objects", ErrRawDecode, raw)
	}
}
