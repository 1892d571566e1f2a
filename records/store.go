// Package records persists the set of test-request records as a single
// xlsx table, read and rewritten as a whole.
//
// There is no locking and no cache: every LoadAll re-reads the file and
// SaveAll replaces it. With two concurrent writers the last SaveAll wins
// and ExistsByIdentifier followed by SaveAll can admit a duplicate.
// This is a tool for a single user session at a time.
package records

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kjk/testdesk/atomicfile"
	"github.com/kjk/testdesk/config"
	"github.com/kjk/testdesk/log"
	"github.com/kjk/testdesk/storeerr"
	"github.com/kjk/testdesk/u"
)

// ErrDuplicate is returned by Append if a record with the same
// application number already exists
var ErrDuplicate = errors.New("duplicate application number")

type Store struct {
	path string
}

func New(cfg *config.Config) *Store {
	return &Store{
		path: cfg.TablePath(),
	}
}

// Path returns path of the table file
func (s *Store) Path() string {
	return s.path
}

// Initialize creates an empty table file if it doesn't exist.
// An existing file is never modified.
func (s *Store) Initialize() error {
	if u.PathExists(s.path) {
		return nil
	}
	if err := s.write(nil); err != nil {
		return err
	}
	log.Event("records.init", "path", s.path)
	return nil
}

// LoadAll reads all records. Returns an empty slice if the table file
// doesn't exist yet. Read and parse failures are *storeerr.ReadError.
func (s *Store) LoadAll() ([]*Record, error) {
	d, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []*Record{}, nil
	}
	if err != nil {
		return nil, storeerr.Read("read", s.path, err)
	}
	recs, err := Decode(bytes.NewReader(d))
	if err != nil {
		return nil, storeerr.Read("parse", s.path, err)
	}
	return recs, nil
}

// SaveAll replaces the table file with recs. The file is written to
// a temporary file and renamed so a failed write leaves the previous
// content in place. Failures are *storeerr.WriteError.
func (s *Store) SaveAll(recs []*Record) error {
	if err := s.write(recs); err != nil {
		return err
	}
	log.Event("records.save", "path", s.path, "count", len(recs))
	return nil
}

func (s *Store) write(recs []*Record) error {
	var buf bytes.Buffer
	if err := Encode(&buf, recs); err != nil {
		return storeerr.Write("encode", s.path, err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return storeerr.Write("mkdir", dir, err)
	}
	if err := atomicfile.WriteFile(s.path, buf.Bytes()); err != nil {
		return storeerr.Write("write", s.path, err)
	}
	return nil
}

func indexOfIdentifier(recs []*Record, id string) int {
	for i, rec := range recs {
		if rec.Get(FieldIdentifier) != nil && rec.Identifier() == id {
			return i
		}
	}
	return -1
}

// ExistsByIdentifier returns true if a persisted record has application
// number id. Loads the whole table.
func (s *Store) ExistsByIdentifier(id string) (bool, error) {
	recs, err := s.LoadAll()
	if err != nil {
		return false, err
	}
	return indexOfIdentifier(recs, id) >= 0, nil
}

// Append adds rec to the persisted records. Returns ErrDuplicate if
// its application number is already used. The check and the save are
// not atomic.
func (s *Store) Append(rec *Record) error {
	recs, err := s.LoadAll()
	if err != nil {
		return err
	}
	if indexOfIdentifier(recs, rec.Identifier()) >= 0 {
		return ErrDuplicate
	}
	recs = append(recs, rec)
	return s.SaveAll(recs)
}
