// Package store persists the chat document as a single TOML file.
//
// Every write replaces the whole file. The store does no locking of its own;
// callers serialize read-modify-write cycles (see internal/chat/service).
// Writes truncate the file in place, so a crash mid-write can leave a partial
// document behind.
package store

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"flexchat/pkg/logger"
	"flexchat/pkg/version"

	"github.com/BurntSushi/toml"
)

// FileName is the fixed document name inside the database directory.
const FileName = "database.toml"

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

// FilePath joins FileName onto dir. An empty dir means the working directory.
func FilePath(dir string) string {
	if dir == "" {
		return FileName
	}
	return filepath.Join(dir, FileName)
}

type Store struct {
	path    string
	current uint64
}

// Open returns a store for path, creating the parent directories and an empty
// document stamped with current when the file does not exist yet. The stored
// version must equal current.
func Open(path string, current uint64) (*Store, error) {
	s := &Store{path: path, current: current}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Sugar.Infof("Creating database %s", path)
		if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
			return nil, fmt.Errorf("%w: create dir for %s: %v", ErrIO, path, err)
		}
		if err := s.WriteAll(NewDocument(current)); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrIO, path, err)
	}

	if err := s.EnsureCompatibleVersion(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

// CurrentVersionCode is the program version this store was opened with.
func (s *Store) CurrentVersionCode() uint64 { return s.current }

// ReadVersionCode parses only the version-code field.
func (s *Store) ReadVersionCode() (uint64, error) {
	return ReadVersionCode(s.path)
}

// EnsureCompatibleVersion fails with ErrSchemaVersion when the file was
// written by a newer program and ErrMigrationRequired when it is older.
func (s *Store) EnsureCompatibleVersion() error {
	stored, err := s.ReadVersionCode()
	if err != nil {
		return err
	}
	switch {
	case stored > s.current:
		return fmt.Errorf("%w: database %s, app %s", ErrSchemaVersion, version.Describe(stored), version.Describe(s.current))
	case stored < s.current:
		return fmt.Errorf("%w: database %s, app %s", ErrMigrationRequired, version.Describe(stored), version.Describe(s.current))
	}
	return nil
}

// ReadAll parses the whole document.
func (s *Store) ReadAll() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrIO, s.path, err)
	}
	doc := NewDocument(0)
	if err := toml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrParse, s.path, err)
	}
	return doc, nil
}

// WriteAll overwrites the file with doc. TOML integers are signed 64-bit, so
// a version code above math.MaxInt64 fails with ErrSerialize.
func (s *Store) WriteAll(doc *Document) error {
	if doc.VersionCode > math.MaxInt64 {
		return fmt.Errorf("%w: version-code %s does not fit a TOML integer", ErrSerialize, version.Describe(doc.VersionCode))
	}
	return writeTOML(s.path, doc)
}

// ReadVersionCode reads the version-code of the document at path without
// decoding the records. A missing key is ErrSchema; a value that is not an
// integer is ErrParse.
func ReadVersionCode(path string) (uint64, error) {
	raw, err := ReadRaw(path)
	if err != nil {
		return 0, err
	}
	value, ok := raw["version-code"]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSchema, path)
	}
	code, ok := value.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: %s: version-code is %T, want integer", ErrParse, path, value)
	}
	return uint64(code), nil
}

// ReadRaw decodes the document at path into generic TOML values. Migrations
// use it to reshape files that no longer match Document.
func ReadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrIO, path, err)
	}
	raw := make(map[string]any)
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrParse, path, err)
	}
	return raw, nil
}

// WriteRaw overwrites path with generic TOML values.
func WriteRaw(path string, raw map[string]any) error {
	return writeTOML(path, raw)
}

func writeTOML(path string, v any) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, defaultFilePerm)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrIO, path, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := toml.NewEncoder(writer).Encode(v); err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrSerialize, path, err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrIO, path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrIO, path, err)
	}
	return nil
}
