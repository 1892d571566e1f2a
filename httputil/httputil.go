package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/tidwall/pretty"
)

// QueryBool returns true if query param name is "1", "true" etc.
func QueryBool(r *http.Request, name string) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// WriteJSON serializes v as JSON response with a given status code.
// If the request has ?pretty=1 the JSON is indented.
func WriteJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	d, err := json.Marshal(v)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, fmt.Sprintf("json.Marshal() failed with '%s'", err))
		return
	}
	if r != nil && QueryBool(r, "pretty") {
		d = pretty.Pretty(d)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(d)))
	w.WriteHeader(code)
	_, _ = w.Write(d)
}

type errorResponse struct {
	Error string `json:"error"`
}

// WriteError sends {"error": msg} with a given status code
func WriteError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	d, _ := json.Marshal(errorResponse{Error: msg})
	if r != nil && QueryBool(r, "pretty") {
		d = pretty.Pretty(d)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	_, _ = w.Write(d)
}

// ReadJSON decodes body of r into v. Body is limited to maxSize bytes.
func ReadJSON(w http.ResponseWriter, r *http.Request, maxSize int64, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxSize)
	d, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	return json.Unmarshal(d, v)
}

// ContentDisposition returns Content-Disposition header value for
// downloading a file. Non-ASCII names are encoded per RFC 2231.
func ContentDisposition(inline bool, name string) string {
	kind := "attachment"
	if inline {
		kind = "inline"
	}
	v := mime.FormatMediaType(kind, map[string]string{"filename": name})
	if v == "" {
		return kind
	}
	return v
}
