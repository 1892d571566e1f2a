package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/testdesk/config"
	"github.com/kjk/testdesk/records"
	"github.com/kjk/testdesk/require"
	"github.com/kjk/testdesk/u"
)

type testServer struct {
	t   *testing.T
	cfg *config.Config
	srv *Server
	h   http.Handler
}

func newTestServer(t *testing.T) *testServer {
	cfg := config.Default(t.TempDir())
	srv := New(cfg)
	require.NoError(t, srv.Initialize())
	return &testServer{t: t, cfg: cfg, srv: srv, h: srv.Handler()}
}

func (ts *testServer) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.h.ServeHTTP(w, r)
	return w
}

func (ts *testServer) get(uri string) *httptest.ResponseRecorder {
	return ts.do(httptest.NewRequest(http.MethodGet, uri, nil))
}

func (ts *testServer) sendJSON(method, uri string, v any) *httptest.ResponseRecorder {
	d, err := json.Marshal(v)
	require.NoError(ts.t, err)
	r := httptest.NewRequest(method, uri, bytes.NewReader(d))
	r.Header.Set("Content-Type", "application/json")
	return ts.do(r)
}

type part struct {
	field    string
	filename string
	data     string
}

func (ts *testServer) postMultipart(uri string, values map[string]string, files []part) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mp := multipart.NewWriter(&body)
	for k, v := range values {
		require.NoError(ts.t, mp.WriteField(k, v))
	}
	for _, f := range files {
		w, err := mp.CreateFormFile(f.field, f.filename)
		require.NoError(ts.t, err)
		_, err = w.Write([]byte(f.data))
		require.NoError(ts.t, err)
	}
	require.NoError(ts.t, mp.Close())
	r := httptest.NewRequest(http.MethodPost, uri, &body)
	r.Header.Set("Content-Type", mp.FormDataContentType())
	return ts.do(r)
}

func newRecord(appNo string) *records.Record {
	r := &records.Record{}
	for _, f := range records.DefaultRequiredFields {
		r.Set(f, "x")
	}
	r.Set(records.FieldApplicationNumber, appNo)
	r.Set(records.FieldDepartment, "研发部")
	r.Set(records.FieldApplicationDate, "2025-03-01")
	r.Set(records.FieldSampleDate, "2025-03-02")
	r.Set(records.FieldQuantity, 2)
	r.Set(records.FieldExpectedCost, 100.5)
	r.Set(records.FieldProgress, records.ProgressInProgress)
	return r
}

func listRecords(t *testing.T, ts *testServer, uri string) recordsResponse {
	w := ts.get(uri)
	require.Equal(t, http.StatusOK, w.Code)
	var res recordsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func TestCreateAndListRecords(t *testing.T) {
	ts := newTestServer(t)
	res := listRecords(t, ts, "/api/records")
	assert.Equal(t, 0, res.Total)

	w := ts.sendJSON(http.MethodPost, "/api/records", newRecord("APP-001"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEqual(t, "", w.Header().Get("X-Request-Id"))

	w = ts.sendJSON(http.MethodPost, "/api/records", newRecord("APP-001"))
	assert.Equal(t, http.StatusConflict, w.Code)

	rec := newRecord("APP-002")
	rec.Delete(records.FieldApplicant)
	w = ts.sendJSON(http.MethodPost, "/api/records", rec)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "missing required fields")

	w = ts.sendJSON(http.MethodPost, "/api/records", newRecord("APP-002"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	res = listRecords(t, ts, "/api/records")
	require.Equal(t, 2, res.Total)
	assert.Equal(t, "APP-001", res.Records[0].Identifier())
	// dates come back normalized
	assert.Equal(t, "2025-03-01", res.Records[0].Get(records.FieldApplicationDate))
	assert.Equal(t, 2.0, res.Records[0].Get(records.FieldQuantity))
	assert.True(t, res.Records[0].Has(records.FieldQuote))

	res = listRecords(t, ts, "/api/records?q=app-002")
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "APP-002", res.Records[0].Identifier())

	res = listRecords(t, ts, "/api/records?q=nothing")
	assert.Equal(t, 0, res.Total)
	assert.NotNil(t, res.Records)
}

func TestCreateRecordWithFiles(t *testing.T) {
	ts := newTestServer(t)
	d, err := json.Marshal(newRecord("APP-001"))
	require.NoError(t, err)
	values := map[string]string{"record": string(d)}

	files := []part{
		{records.FieldQuote, "quote.pdf", "pdf data"},
		{records.FieldSettlement, "virus.exe", "MZ"},
	}
	w := ts.postMultipart("/api/records", values, files)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), records.FieldSettlement+": unsupported type")
	// nothing is saved when validation fails
	assert.False(t, u.DirExists(ts.srv.files.Root()+"/APP-001"))

	files = []part{
		{records.FieldQuote, "quote.pdf", "pdf data"},
		{records.FieldTestReport, "report.xlsx", "xlsx data"},
	}
	w = ts.postMultipart("/api/records", values, files)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	res := listRecords(t, ts, "/api/records")
	require.Equal(t, 1, res.Total)
	rec := res.Records[0]
	quotePath := rec.String(records.FieldQuote)
	assert.True(t, strings.HasSuffix(quotePath, "quote.pdf"), quotePath)
	got, err := os.ReadFile(quotePath)
	require.NoError(t, err)
	assert.Equal(t, "pdf data", string(got))
	assert.Nil(t, rec.Get(records.FieldSettlement))
}

func TestAttachments(t *testing.T) {
	ts := newTestServer(t)
	appNo := "申请-001"
	base := "/api/records/" + url.PathEscape(appNo) + "/attachments"

	w := ts.get(base)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"files":[]}`, w.Body.String())

	w = ts.postMultipart(base, nil, []part{{"file", "报价单.pdf", "one"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = ts.postMultipart(base, nil, []part{{"file", "报价单.pdf", "two"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var saved map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.Equal(t, "报价单_1.pdf", saved["name"])

	w = ts.postMultipart(base, nil, []part{{"file", "a.exe", "x"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// field must name an existing record
	w = ts.postMultipart(base, map[string]string{"field": records.FieldQuote}, []part{{"file", "q.pdf", "x"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.get(base + "/" + url.PathEscape("报价单_1.pdf"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "two", w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	w = ts.get(base + "/missing.pdf")
	assert.Equal(t, http.StatusNotFound, w.Code)

	r := httptest.NewRequest(http.MethodDelete, base+"/"+url.PathEscape("报价单.pdf"), nil)
	w = ts.do(r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"deleted":true}`, w.Body.String())
	w = ts.do(httptest.NewRequest(http.MethodDelete, base+"/"+url.PathEscape("报价单.pdf"), nil))
	assert.Equal(t, `{"deleted":false}`, w.Body.String())

	w = ts.get(base)
	assert.Equal(t, `{"files":["报价单_1.pdf"]}`, w.Body.String())

	w = ts.get("/api/records/" + url.PathEscape("..") + "/attachments")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttachmentNamesWithPercent(t *testing.T) {
	ts := newTestServer(t)
	base := "/api/records/APP-001/attachments"
	w := ts.postMultipart(base, nil, []part{{"file", "a%20b.pdf", "literal"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = ts.postMultipart(base, nil, []part{{"file", "a b.pdf", "space"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.get(base + "/" + url.PathEscape("a%20b.pdf"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "literal", w.Body.String())
	w = ts.get(base + "/" + url.PathEscape("a b.pdf"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "space", w.Body.String())

	w = ts.do(httptest.NewRequest(http.MethodDelete, base+"/"+url.PathEscape("a%20b.pdf"), nil))
	assert.Equal(t, `{"deleted":true}`, w.Body.String())
	w = ts.get(base)
	assert.Equal(t, `{"files":["a b.pdf"]}`, w.Body.String())
}

func TestAttachmentLowercaseEscapes(t *testing.T) {
	ts := newTestServer(t)
	base := "/api/records/APP-001/attachments"
	w := ts.postMultipart(base, nil, []part{{"file", "报价单.pdf", "one"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// routed on RawPath since it isn't the canonical escaping
	w = ts.get(base + "/" + strings.ToLower(url.PathEscape("报价单.pdf")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "one", w.Body.String())
}

func TestCreateRecordRemovesFilesOnFailure(t *testing.T) {
	ts := newTestServer(t)
	rec := newRecord("APP-001")
	// longer than a cell can hold so the table can't be saved
	rec.Set(records.FieldSummary, strings.Repeat("x", 40000))
	d, err := json.Marshal(rec)
	require.NoError(t, err)
	values := map[string]string{"record": string(d)}
	files := []part{
		{records.FieldQuote, "quote.pdf", "pdf data"},
		{records.FieldTestReport, "report.xlsx", "xlsx data"},
	}
	w := ts.postMultipart("/api/records", values, files)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	names, err := ts.srv.files.List("APP-001")
	require.NoError(t, err)
	assert.Equal(t, 0, len(names))
	res := listRecords(t, ts, "/api/records")
	assert.Equal(t, 0, res.Total)
}

func TestUploadSetsRecordField(t *testing.T) {
	ts := newTestServer(t)
	w := ts.sendJSON(http.MethodPost, "/api/records", newRecord("APP-001"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	values := map[string]string{"field": records.FieldSettlement}
	w = ts.postMultipart("/api/records/APP-001/attachments", values, []part{{"file", "bill.pdf", "x"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	res := listRecords(t, ts, "/api/records")
	require.Equal(t, 1, res.Total)
	assert.True(t, strings.HasSuffix(res.Records[0].String(records.FieldSettlement), "bill.pdf"))

	values = map[string]string{"field": records.FieldApplicant}
	w = ts.postMultipart("/api/records/APP-001/attachments", values, []part{{"file", "bill.pdf", "x"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReplaceRecords(t *testing.T) {
	ts := newTestServer(t)
	recs := []*records.Record{
		records.NewRecord(records.FieldApplicationNumber, "A1", records.FieldApplicationDate, "2025/01/02"),
		records.NewRecord(records.FieldApplicationNumber, "A2", records.FieldApplicationDate, "garbage"),
	}
	w := ts.sendJSON(http.MethodPut, "/api/records", recs)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, `{"saved":2}`, w.Body.String())

	res := listRecords(t, ts, "/api/records")
	require.Equal(t, 2, res.Total)
	assert.Equal(t, "2025-01-02", res.Records[0].Get(records.FieldApplicationDate))
	assert.Nil(t, res.Records[1].Get(records.FieldApplicationDate))

	r := httptest.NewRequest(http.MethodPut, "/api/records", strings.NewReader(`{"not": "an array"}`))
	w = ts.do(r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExport(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 50; i++ {
		w := ts.sendJSON(http.MethodPost, "/api/records", newRecord("APP-"+string(rune('A'+i%26))+string(rune('a'+i/26))))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := ts.get("/api/export")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", w.Header().Get("Content-Encoding"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), exportFileName)
	recs, err := records.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 50, len(recs))

	r := httptest.NewRequest(http.MethodGet, "/api/export", nil)
	r.Header.Set("Accept-Encoding", "gzip, br")
	w = ts.do(r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "br", w.Header().Get("Content-Encoding"))
	d, err := u.BrDecompressData(w.Body.Bytes())
	require.NoError(t, err)
	recs, err = records.Decode(bytes.NewReader(d))
	require.NoError(t, err)
	assert.Equal(t, 50, len(recs))
}

func TestDashboard(t *testing.T) {
	ts := newTestServer(t)
	r1 := newRecord("A1")
	r2 := newRecord("A2")
	r2.Set(records.FieldDepartment, "质量部")
	r2.Set(records.FieldProgress, records.ProgressCompleted)
	r2.Set(records.FieldApplicationDate, "2025-04-01")
	for _, rec := range []*records.Record{r1, r2} {
		w := ts.sendJSON(http.MethodPost, "/api/records", rec)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	var v struct {
		Summary struct {
			Total      int     `json:"total"`
			InProgress int     `json:"inProgress"`
			Completed  int     `json:"completed"`
			TotalCost  float64 `json:"totalCost"`
		} `json:"summary"`
	}
	w := ts.get("/api/dashboard")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, 2, v.Summary.Total)
	assert.Equal(t, 1, v.Summary.Completed)
	assert.Equal(t, 201.0, v.Summary.TotalCost)

	w = ts.get("/api/dashboard?department=" + url.QueryEscape("质量部"))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, 1, v.Summary.Total)

	w = ts.get("/api/dashboard?from=2025-03-15&pretty=1")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, 1, v.Summary.Total)
	assert.Equal(t, 1, v.Summary.Completed)

	w = ts.get("/api/dashboard?to=someday")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var gv struct {
		Options struct {
			Departments []string `json:"departments"`
			From        string   `json:"from"`
			To          string   `json:"to"`
		} `json:"options"`
		Groups []struct {
			Value string  `json:"value"`
			Sum   float64 `json:"sum"`
		} `json:"groups"`
	}
	q := url.Values{}
	q.Set("group", records.FieldDepartment)
	q.Set("value", records.FieldExpectedCost)
	q.Set("department", "研发部")
	w = ts.get("/api/dashboard?" + q.Encode())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &gv))
	assert.Equal(t, []string{"研发部", "质量部"}, gv.Options.Departments)
	assert.Equal(t, "2025-03-01", gv.Options.From)
	assert.Equal(t, "2025-04-01", gv.Options.To)
	require.Equal(t, 1, len(gv.Groups))
	assert.Equal(t, "研发部", gv.Groups[0].Value)
	assert.Equal(t, 100.5, gv.Groups[0].Sum)

	w = ts.get("/api/dashboard?group=" + url.QueryEscape(records.FieldDepartment))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCorruptTable(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, os.WriteFile(ts.cfg.TablePath(), []byte("garbage"), 0644))
	w := ts.get("/api/records")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "parse")

	body, _ := io.ReadAll(ts.get("/api/export").Body)
	assert.Contains(t, string(body), "error")
}
