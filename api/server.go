// Package api exposes the record and attachment stores over HTTP as JSON.
package api

import (
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/kjk/testdesk/attachments"
	"github.com/kjk/testdesk/config"
	"github.com/kjk/testdesk/httputil"
	"github.com/kjk/testdesk/log"
	"github.com/kjk/testdesk/records"
)

// max size of JSON request body
const maxJSONSize = 32 * 1024 * 1024

type Server struct {
	cfg     *config.Config
	records *records.Store
	files   *attachments.Store

	// held during load-modify-save of the table. Only protects against
	// concurrent requests of this process, not other writers of the file.
	mu sync.Mutex
}

func New(cfg *config.Config) *Server {
	return &Server{
		cfg:     cfg,
		records: records.New(cfg),
		files:   attachments.New(cfg),
	}
}

// Initialize creates the table file if needed
func (s *Server) Initialize() error {
	return s.records.Initialize()
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Get("/records", s.handleListRecords)
		r.Post("/records", s.handleCreateRecord)
		r.Put("/records", s.handleReplaceRecords)

		r.Get("/records/{appNo}/attachments", s.handleListAttachments)
		r.Post("/records/{appNo}/attachments", s.handleUploadAttachment)
		r.Get("/records/{appNo}/attachments/{name}", s.handleDownloadAttachment)
		r.Delete("/records/{appNo}/attachments/{name}", s.handleDeleteAttachment)

		r.Get("/dashboard", s.handleDashboard)
		r.Get("/export", s.handleExport)
	})
	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-Id", reqID)
		start := time.Now()
		cw := httputil.NewCapturingResponseWriter(w)
		next.ServeHTTP(cw, r)
		dur := time.Since(start)
		log.IfErrf(log.HTTPRequest(r, reqID, cw.StatusCode, cw.Size, dur))
		log.Verbosef("%s %s %d %s\n", r.Method, r.URL.Path, cw.StatusCode, dur.Round(time.Millisecond))
	})
}

// urlParam returns unescaped path parameter. Application numbers and
// file names are often non-ASCII.
// chi matches on r.URL.RawPath when it's set, otherwise parameters are
// already unescaped.
func urlParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}
	if s, err := url.PathUnescape(v); err == nil {
		return s
	}
	return v
}

// writeStoreError reports failure of a store operation. Read failures are
// shown to the user with their cause; the data is unavailable, not lost.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, attachments.ErrInvalidName) {
		httputil.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	log.Errorf("%s %s: %s", r.Method, r.URL.Path, err)
	httputil.WriteError(w, r, http.StatusInternalServerError, err.Error())
}
