package httputil

import (
	"bytes"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kjk/testdesk/u"
)

// don't bother compressing small responses
const minCompressSize = 1024

// AcceptsBrotli returns true if client accepts br content encoding
func AcceptsBrotli(r *http.Request) bool {
	if r == nil {
		return false
	}
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc, _, _ = strings.Cut(strings.TrimSpace(enc), ";")
		if enc == "br" {
			return true
		}
	}
	return false
}

func canServeCompressed(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".zip", ".zst", ".br", ".gz":
		// already compressed
		return false
	}
	return true
}

type ServeDataOptions struct {
	// if true, browsers show the file instead of saving it
	Inline bool
	// if true and client accepts br, the response is brotli-compressed
	ServeCompressed bool
}

// ServeData sends d as a download of file name
func ServeData(w http.ResponseWriter, r *http.Request, name string, d []byte, modTime time.Time, opts *ServeDataOptions) {
	if opts == nil {
		opts = &ServeDataOptions{}
	}
	h := w.Header()
	h.Set("Content-Type", u.MimeTypeFromFileName(name))
	h.Set("Content-Disposition", ContentDisposition(opts.Inline, name))
	h.Set("X-Content-Type-Options", "nosniff")

	if opts.ServeCompressed && len(d) >= minCompressSize && canServeCompressed(name) {
		// https://www.maxcdn.com/blog/accept-encoding-its-vary-important/
		h.Add("Vary", "Accept-Encoding")
		if AcceptsBrotli(r) {
			if br, err := u.BrCompressDataDefault(d); err == nil {
				h.Set("Content-Encoding", "br")
				h.Set("Content-Length", strconv.Itoa(len(br)))
				w.WriteHeader(http.StatusOK)
				if r.Method != http.MethodHead {
					_, _ = w.Write(br)
				}
				return
			}
		}
	}
	http.ServeContent(w, r, name, modTime, bytes.NewReader(d))
}
