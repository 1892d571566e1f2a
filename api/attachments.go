package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"slices"
	"time"

	"github.com/kjk/testdesk/httputil"
	"github.com/kjk/testdesk/records"
)

// GET /api/records/{appNo}/attachments
func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	names, err := s.files.List(urlParam(r, "appNo"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	httputil.WriteJSON(w, r, http.StatusOK, map[string]any{"files": names})
}

// setRecordField stores path of uploaded attachment in the record
func (s *Server) setRecordField(appNo, field, path string) (bool, error) {
	recs, err := s.records.LoadAll()
	if err != nil {
		return false, err
	}
	for _, rec := range recs {
		if rec.Get(records.FieldIdentifier) != nil && rec.Identifier() == appNo {
			rec.Set(field, path)
			return true, s.records.SaveAll(recs)
		}
	}
	return false, nil
}

// POST /api/records/{appNo}/attachments
// multipart form with "file" and optional "field", the attachment field
// of the record to point at the stored file
func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	appNo := urlParam(r, "appNo")
	if err := s.parseMultipart(w, r, 1); err != nil {
		httputil.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	fhs := r.MultipartForm.File["file"]
	if len(fhs) == 0 {
		httputil.WriteError(w, r, http.StatusBadRequest, "file is required")
		return
	}
	field := r.FormValue("field")
	if field != "" && !slices.Contains(records.AttachmentFields, field) {
		httputil.WriteError(w, r, http.StatusBadRequest, fmt.Sprintf("'%s' is not an attachment field", field))
		return
	}
	f, err := readUpload(fhs[0])
	if err != nil {
		httputil.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err = s.files.Validate(f); err != nil {
		httputil.WriteError(w, r, http.StatusBadRequest, f.Name+": "+s.rejectReason(f, err))
		return
	}

	if field != "" {
		s.mu.Lock()
		defer s.mu.Unlock()
		exists, err := s.records.ExistsByIdentifier(appNo)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		if !exists {
			httputil.WriteError(w, r, http.StatusNotFound, fmt.Sprintf("record '%s' not found", appNo))
			return
		}
	}
	path, err := s.files.Save(f, appNo, f.Name)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if field != "" {
		if _, err = s.setRecordField(appNo, field, path); err != nil {
			writeStoreError(w, r, err)
			return
		}
	}
	res := map[string]string{
		"path": path,
		"name": filepath.Base(path),
	}
	httputil.WriteJSON(w, r, http.StatusCreated, res)
}

// GET /api/records/{appNo}/attachments/{name}?inline=1
func (s *Server) handleDownloadAttachment(w http.ResponseWriter, r *http.Request) {
	appNo := urlParam(r, "appNo")
	name := urlParam(r, "name")
	d, err := s.files.Read(appNo, name)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if d == nil {
		httputil.WriteError(w, r, http.StatusNotFound, fmt.Sprintf("attachment '%s' not found", name))
		return
	}
	opts := &httputil.ServeDataOptions{
		Inline:          httputil.QueryBool(r, "inline"),
		ServeCompressed: true,
	}
	httputil.ServeData(w, r, name, d, time.Time{}, opts)
}

// DELETE /api/records/{appNo}/attachments/{name}
func (s *Server) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.files.Delete(urlParam(r, "appNo"), urlParam(r, "name"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	httputil.WriteJSON(w, r, http.StatusOK, map[string]bool{"deleted": deleted})
}
