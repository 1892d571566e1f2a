package u

import (
	"testing"

	"github.com/alecthomas/assert"
)

func TestTrimExt(t *testing.T) {
	tests := []string{
		"report.pdf", "report",
		"archive.tar.gz", "archive.tar",
		"noext", "noext",
	}
	n := len(tests)
	for i := 0; i < n; i += 2 {
		assert.Equal(t, tests[i+1], TrimExt(tests[i]))
	}
}

func TestParseEnv(t *testing.T) {
	d := []byte("# comment\r\nTESTDESK_ADDR = :9090\n\nTESTDESK_DEPARTMENTS=\"研发部, 质量部\"\n")
	m, err := ParseEnv(d)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(m))
	assert.Equal(t, ":9090", m["TESTDESK_ADDR"])
	assert.Equal(t, "研发部, 质量部", m["TESTDESK_DEPARTMENTS"])
	assert.Equal(t, []string{"研发部", "质量部"}, SplitTrimmed(m["TESTDESK_DEPARTMENTS"], ","))

	_, err = ParseEnv([]byte("no equals sign"))
	assert.Error(t, err)
}

func TestWriteFileExclusive(t *testing.T) {
	path := t.TempDir() + "/a.txt"
	err := WriteFileExclusive(path, []byte("one"), 0644)
	assert.NoError(t, err)
	err = WriteFileExclusive(path, []byte("two"), 0644)
	assert.Error(t, err)
	assert.Equal(t, int64(3), FileSize(path))
}
