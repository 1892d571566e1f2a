package attachments

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/testdesk/config"
	"github.com/kjk/testdesk/require"
	"github.com/kjk/testdesk/storeerr"
	"github.com/kjk/testdesk/u"
)

const mb = 1024 * 1024

func newTestStore(t *testing.T) *Store {
	return New(config.Default(t.TempDir()))
}

func TestValidate(t *testing.T) {
	s := newTestStore(t)
	tests := []struct {
		f   *Upload
		exp error
	}{
		{nil, nil},
		{&Upload{Name: "setup.exe", Size: 10}, ErrUnsupportedType},
		{&Upload{Name: "setup.exe", Size: 11 * mb}, ErrUnsupportedType},
		{&Upload{Name: "noext", Size: 10}, ErrUnsupportedType},
		{&Upload{Name: "report.pdf", Size: 11 * mb}, ErrTooLarge},
		{&Upload{Name: "report.pdf", Size: 1 * mb}, nil},
		{&Upload{Name: "REPORT.PDF", Size: 10 * mb}, nil},
		{&Upload{Name: "photo.JPeg", Data: []byte("jpg")}, nil},
		{&Upload{Name: "big.xlsx", Data: make([]byte, 10*mb+1)}, ErrTooLarge},
	}
	for _, tc := range tests {
		got := s.Validate(tc.f)
		assert.Equal(t, tc.exp, got, "%#v", tc.f)
	}
}

func TestSaveCollision(t *testing.T) {
	s := newTestStore(t)
	f := &Upload{Name: "report.pdf", Data: []byte("first")}
	path, err := s.Save(f, "APP-001", "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), "APP-001", "report.pdf"), path)

	path, err = s.Save(&Upload{Data: []byte("second")}, "APP-001", "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), "APP-001", "report_1.pdf"), path)

	path, err = s.Save(&Upload{Data: []byte("third")}, "APP-001", "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), "APP-001", "report_2.pdf"), path)

	// existing content is never overwritten
	d, err := s.Read("APP-001", "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "first", string(d))
	d, err = s.Read("APP-001", "report_2.pdf")
	require.NoError(t, err)
	assert.Equal(t, "third", string(d))

	names, err := s.List("APP-001")
	require.NoError(t, err)
	slices.Sort(names)
	assert.Equal(t, []string{"report.pdf", "report_1.pdf", "report_2.pdf"}, names)

	// other folders are independent
	path, err = s.Save(f, "APP-002", "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", filepath.Base(path))

	folders, err := s.Folders()
	require.NoError(t, err)
	slices.Sort(folders)
	assert.Equal(t, []string{"APP-001", "APP-002"}, folders)
}

func TestCandidateName(t *testing.T) {
	assert.Equal(t, "a.pdf", candidateName("a.pdf", 0))
	assert.Equal(t, "a_3.pdf", candidateName("a.pdf", 3))
	assert.Equal(t, "a.tar_1.gz", candidateName("a.tar.gz", 1))
	assert.Equal(t, "README_1", candidateName("README", 1))
	assert.Equal(t, ".hidden_1", candidateName(".hidden", 1))
}

func TestSaveNil(t *testing.T) {
	s := newTestStore(t)
	path, err := s.Save(nil, "APP-001", "report.pdf")
	assert.NoError(t, err)
	assert.Equal(t, "", path)
	// folder is not created for nothing
	_, err = os.Stat(filepath.Join(s.Root(), "APP-001"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDeleteAndRead(t *testing.T) {
	s := newTestStore(t)
	ok, err := s.Delete("APP-001", "nope.pdf")
	assert.NoError(t, err)
	assert.False(t, ok)

	d, err := s.Read("APP-001", "nope.pdf")
	assert.NoError(t, err)
	assert.Nil(t, d)

	names, err := s.List("APP-001")
	assert.NoError(t, err)
	assert.Equal(t, 0, len(names))

	_, err = s.Save(&Upload{Data: []byte("x")}, "APP-001", "quote.xlsx")
	require.NoError(t, err)
	ok, err = s.Delete("APP-001", "quote.xlsx")
	assert.NoError(t, err)
	assert.True(t, ok)
	names, err = s.List("APP-001")
	assert.NoError(t, err)
	assert.False(t, slices.Contains(names, "quote.xlsx"))

	ok, err = s.Delete("APP-001", "quote.xlsx")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteSkipsDirectories(t *testing.T) {
	s := newTestStore(t)
	sub := filepath.Join(s.Root(), "APP-001", "sub")
	require.NoError(t, os.MkdirAll(sub, 0755))

	names, err := s.List("APP-001")
	assert.NoError(t, err)
	assert.Equal(t, 0, len(names))

	ok, err := s.Delete("APP-001", "sub")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, u.DirExists(sub))
}

func TestInvalidNames(t *testing.T) {
	s := newTestStore(t)
	f := &Upload{Data: []byte("x")}
	bad := [][2]string{
		{"", "a.pdf"},
		{"..", "a.pdf"},
		{"APP/001", "a.pdf"},
		{"APP-001", ""},
		{"APP-001", "../a.pdf"},
		{"APP-001", `..\a.pdf`},
	}
	for _, b := range bad {
		_, err := s.Save(f, b[0], b[1])
		assert.True(t, errors.Is(err, ErrInvalidName), "%v", b)
		_, err = s.Read(b[0], b[1])
		assert.True(t, errors.Is(err, ErrInvalidName), "%v", b)
		_, err = s.Delete(b[0], b[1])
		assert.True(t, errors.Is(err, ErrInvalidName), "%v", b)
	}
	_, err := s.List("../..")
	assert.True(t, errors.Is(err, ErrInvalidName))
}

func TestSaveWriteError(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default(dir)
	// attachments root is a file
	require.NoError(t, os.WriteFile(cfg.AttachmentsDir(), []byte("x"), 0644))
	s := New(cfg)
	_, err := s.Save(&Upload{Data: []byte("x")}, "APP-001", "a.pdf")
	var we *storeerr.WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, "mkdir", we.Op)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", ContentType("Report.PDF"))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ContentType("a.xlsx"))
	assert.Equal(t, "application/octet-stream", ContentType("a.unknownext"))
}
