package httputil

import "net/http"

// CapturingResponseWriter remembers status code and number of bytes
// written, for logging
type CapturingResponseWriter struct {
	http.ResponseWriter
	StatusCode  int
	Size        int64
	wroteHeader bool
}

func NewCapturingResponseWriter(w http.ResponseWriter) *CapturingResponseWriter {
	return &CapturingResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

func (w *CapturingResponseWriter) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.StatusCode = statusCode
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *CapturingResponseWriter) Write(d []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(d)
	w.Size += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer
func (w *CapturingResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
