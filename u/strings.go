package u

import (
	"fmt"
	"path/filepath"
	"strings"
)

// NormalizeNewlinesInPlace changes CRLF (Windows) and CR (Mac) to
// LF (Unix). Optimized for speed, modifies data in place
func NormalizeNewlinesInPlace(d []byte) []byte {
	wi := 0
	n := len(d)
	for i := 0; i < n; i++ {
		c := d[i]
		if c != '\r' {
			d[wi] = c
			wi++
			continue
		}
		// CR (Mac) => LF, CRLF (Windows) => LF
		d[wi] = '\n'
		wi++
		if i+1 < n && d[i+1] == '\n' {
			i++
		}
	}
	return d[:wi]
}

// NormalizeNewlines is like NormalizeNewlinesInPlace but
// makes a copy of d
func NormalizeNewlines(d []byte) []byte {
	d2 := make([]byte, len(d))
	copy(d2, d)
	return NormalizeNewlinesInPlace(d2)
}

// TrimExt removes extension from s
func TrimExt(s string) string {
	ext := filepath.Ext(s)
	return s[:len(s)-len(ext)]
}

// SplitTrimmed splits s on sep, trims every part and drops empty parts
func SplitTrimmed(s string, sep string) []string {
	var res []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			res = append(res, part)
		}
	}
	return res
}

// ParseEnv parses .env style content: KEY=value lines, # comments
// and empty lines are skipped. Values can be wrapped in single or double quotes.
func ParseEnv(d []byte) (map[string]string, error) {
	d = NormalizeNewlines(d)
	lines := strings.Split(string(d), "\n")
	m := make(map[string]string)
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid line %d '%s' in .env", i+1, line)
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
			val = val[1 : len(val)-1]
		}
		m[key] = val
	}
	return m, nil
}
