// Package attachments stores files uploaded for a record under
// <root>/<application number>/<file name>.
//
// Saving never overwrites: if the name is taken the file is stored as
// name_1.ext, name_2.ext and so on.
package attachments

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kjk/testdesk/config"
	"github.com/kjk/testdesk/log"
	"github.com/kjk/testdesk/storeerr"
	"github.com/kjk/testdesk/u"
)

// Reasons an upload is rejected by Validate
var (
	ErrUnsupportedType = errors.New("unsupported type")
	ErrTooLarge        = errors.New("too large")
)

// ErrInvalidName is returned for application numbers and file names
// that would resolve to a path outside of the attachments root
var ErrInvalidName = errors.New("invalid name")

// Upload is a file received from the user
type Upload struct {
	Name string
	// if 0, len(Data) is used
	Size int64
	Data []byte
}

// ByteSize returns size of the upload
func (f *Upload) ByteSize() int64 {
	if f.Size > 0 {
		return f.Size
	}
	return int64(len(f.Data))
}

type Store struct {
	root    string
	maxSize int64
	cfg     *config.Config
}

func New(cfg *config.Config) *Store {
	return &Store{
		root:    cfg.AttachmentsDir(),
		maxSize: cfg.MaxFileSize,
		cfg:     cfg,
	}
}

// Root returns the directory holding per-application-number folders
func (s *Store) Root() string {
	return s.root
}

// Validate returns nil if f can be accepted, ErrUnsupportedType or
// ErrTooLarge otherwise. A nil f means there's nothing to upload and
// is accepted.
func (s *Store) Validate(f *Upload) error {
	if f == nil {
		return nil
	}
	if !s.cfg.IsAllowedExt(f.Name) {
		return ErrUnsupportedType
	}
	if s.maxSize > 0 && f.ByteSize() > s.maxSize {
		return ErrTooLarge
	}
	return nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, `/\`+"\x00") {
		return ErrInvalidName
	}
	return nil
}

func checkNames(appNo, filename string) error {
	if err := checkName(appNo); err != nil {
		return fmt.Errorf("application number '%s': %w", appNo, err)
	}
	if err := checkName(filename); err != nil {
		return fmt.Errorf("file name '%s': %w", filename, err)
	}
	return nil
}

// Path returns path of the attachment. Doesn't check if it exists.
func (s *Store) Path(appNo, filename string) (string, error) {
	if err := checkNames(appNo, filename); err != nil {
		return "", err
	}
	return filepath.Join(s.root, appNo, filename), nil
}

// ContentType returns mime type for serving filename
func ContentType(filename string) string {
	return u.MimeTypeFromFileName(filename)
}

// candidateName returns filename for n == 0, name_<n>.ext otherwise
func candidateName(filename string, n int) string {
	if n == 0 {
		return filename
	}
	ext := filepath.Ext(filename)
	base := u.TrimExt(filename)
	if base == "" {
		// ".hidden" has no base name
		base, ext = filename, ""
	}
	return fmt.Sprintf("%s_%d%s", base, n, ext)
}

// Save writes f to the folder of appNo under filename, or under the
// first free name_N.ext if filename is taken. Returns the path of the
// stored file. A nil f is a no-op and returns "".
func (s *Store) Save(f *Upload, appNo, filename string) (string, error) {
	if f == nil {
		return "", nil
	}
	if err := checkNames(appNo, filename); err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, appNo)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", storeerr.Write("mkdir", dir, err)
	}
	for n := 0; ; n++ {
		path := filepath.Join(dir, candidateName(filename, n))
		err := u.WriteFileExclusive(path, f.Data, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", storeerr.Write("write", path, err)
		}
		log.Event("attachment.save", "app", appNo, "path", path, "size", len(f.Data))
		return path, nil
	}
}

// List returns names of files stored for appNo. Empty if there are none.
func (s *Store) List(appNo string) ([]string, error) {
	if err := checkName(appNo); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, appNo)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, storeerr.Read("list", dir, err)
	}
	res := []string{}
	for _, e := range entries {
		if e.Type().IsRegular() {
			res = append(res, e.Name())
		}
	}
	return res, nil
}

// Folders returns application numbers that have an attachment folder
func (s *Store) Folders() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, storeerr.Read("list", s.root, err)
	}
	res := []string{}
	for _, e := range entries {
		if e.IsDir() {
			res = append(res, e.Name())
		}
	}
	return res, nil
}

// Read returns content of the attachment, nil if it doesn't exist
func (s *Store) Read(appNo, filename string) ([]byte, error) {
	path, err := s.Path(appNo, filename)
	if err != nil {
		return nil, err
	}
	d, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, storeerr.Read("read", path, err)
	}
	return d, nil
}

// Delete removes the attachment. Returns false if it didn't exist.
// Only files reported by List are attachments.
func (s *Store) Delete(appNo, filename string) (bool, error) {
	path, err := s.Path(appNo, filename)
	if err != nil {
		return false, err
	}
	fi, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, storeerr.Write("delete", path, err)
	}
	if !fi.Mode().IsRegular() {
		return false, nil
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, storeerr.Write("delete", path, err)
	}
	log.Event("attachment.delete", "app", appNo, "path", path)
	return true, nil
}
