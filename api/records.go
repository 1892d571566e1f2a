package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/kjk/testdesk/attachments"
	"github.com/kjk/testdesk/httputil"
	"github.com/kjk/testdesk/log"
	"github.com/kjk/testdesk/records"
	"github.com/kjk/testdesk/u"
)

// file name of exported workbook
const exportFileName = "test_data.xlsx"

type recordsResponse struct {
	Records []*records.Record `json:"records"`
	Total   int               `json:"total"`
}

// GET /api/records?q=${term}
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := s.records.LoadAll()
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	recs = records.NormalizeDates(recs)
	recs = records.Search(recs, r.URL.Query().Get("q"))
	if recs == nil {
		recs = []*records.Record{}
	}
	httputil.WriteJSON(w, r, http.StatusOK, recordsResponse{Records: recs, Total: len(recs)})
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func readUpload(fh *multipart.FileHeader) (*attachments.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer u.CloseNoError(f)
	d, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &attachments.Upload{
		Name: fh.Filename,
		Size: fh.Size,
		Data: d,
	}, nil
}

// parseMultipart limits request body to what the largest accepted
// upload of n files could need
func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request, nFiles int) error {
	maxSize := int64(nFiles)*s.cfg.MaxFileSize + maxJSONSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	return r.ParseMultipartForm(32 << 20)
}

// newRecordRequest reads a record and its attachments. Accepts a JSON
// record or a multipart form with JSON in "record" and files under
// attachment field names.
func (s *Server) newRecordRequest(w http.ResponseWriter, r *http.Request) (*records.Record, map[string]*attachments.Upload, error) {
	var rec records.Record
	uploads := map[string]*attachments.Upload{}
	if !isMultipart(r) {
		err := httputil.ReadJSON(w, r, maxJSONSize, &rec)
		return &rec, uploads, err
	}
	if err := s.parseMultipart(w, r, len(records.AttachmentFields)); err != nil {
		return nil, nil, err
	}
	if err := json.Unmarshal([]byte(r.FormValue("record")), &rec); err != nil {
		return nil, nil, fmt.Errorf("record: %w", err)
	}
	for _, field := range records.AttachmentFields {
		fhs := r.MultipartForm.File[field]
		if len(fhs) == 0 {
			continue
		}
		f, err := readUpload(fhs[0])
		if err != nil {
			return nil, nil, err
		}
		uploads[field] = f
	}
	return &rec, uploads, nil
}

// rejectReason describes why Validate rejected f
func (s *Server) rejectReason(f *attachments.Upload, err error) string {
	if errors.Is(err, attachments.ErrTooLarge) {
		return fmt.Sprintf("%s (%s, limit is %s)", err, u.FormatSize(f.ByteSize()), u.FormatSize(s.cfg.MaxFileSize))
	}
	return err.Error()
}

// POST /api/records
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	rec, uploads, err := s.newRecordRequest(w, r)
	if err != nil {
		httputil.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := rec.Identifier()
	if id != "" {
		exists, err := s.records.ExistsByIdentifier(id)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		if exists {
			msg := fmt.Sprintf("%s '%s' already exists", records.FieldIdentifier, id)
			httputil.WriteError(w, r, http.StatusConflict, msg)
			return
		}
	}
	if err = records.Validate(rec, s.cfg); err != nil {
		httputil.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var rejected []string
	for _, field := range records.AttachmentFields {
		if err := s.files.Validate(uploads[field]); err != nil {
			rejected = append(rejected, field+": "+s.rejectReason(uploads[field], err))
		}
	}
	if len(rejected) > 0 {
		msg := "file validation failed:\n" + strings.Join(rejected, "\n")
		httputil.WriteError(w, r, http.StatusBadRequest, msg)
		return
	}

	var saved []string
	for _, field := range records.AttachmentFields {
		f := uploads[field]
		if f == nil {
			if !rec.Has(field) {
				rec.Set(field, nil)
			}
			continue
		}
		path, err := s.files.Save(f, id, f.Name)
		if err != nil {
			s.removeSaved(id, saved)
			writeStoreError(w, r, err)
			return
		}
		saved = append(saved, path)
		rec.Set(field, path)
	}

	err = s.records.Append(rec)
	if err != nil {
		s.removeSaved(id, saved)
	}
	if errors.Is(err, records.ErrDuplicate) {
		httputil.WriteError(w, r, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	httputil.WriteJSON(w, r, http.StatusCreated, rec)
}

// removeSaved deletes files stored for a record that wasn't added
func (s *Server) removeSaved(appNo string, paths []string) {
	for _, path := range paths {
		_, err := s.files.Delete(appNo, filepath.Base(path))
		log.IfErrf(err)
	}
}

// PUT /api/records replaces all records, as edited in a grid
func (s *Server) handleReplaceRecords(w http.ResponseWriter, r *http.Request) {
	var recs []*records.Record
	if err := httputil.ReadJSON(w, r, maxJSONSize, &recs); err != nil {
		httputil.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	for i, rec := range recs {
		if rec == nil {
			httputil.WriteError(w, r, http.StatusBadRequest, fmt.Sprintf("record %d is null", i))
			return
		}
	}
	recs = records.NormalizeDates(recs)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.records.SaveAll(recs); err != nil {
		writeStoreError(w, r, err)
		return
	}
	httputil.WriteJSON(w, r, http.StatusOK, map[string]int{"saved": len(recs)})
}

// GET /api/export
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	recs, err := s.records.LoadAll()
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err = records.Export(&buf, records.NormalizeDates(recs)); err != nil {
		writeStoreError(w, r, err)
		return
	}
	opts := &httputil.ServeDataOptions{
		ServeCompressed: true,
	}
	httputil.ServeData(w, r, exportFileName, buf.Bytes(), time.Time{}, opts)
}
