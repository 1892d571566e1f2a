package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kjk/testdesk/dashboard"
	"github.com/kjk/testdesk/httputil"
	"github.com/kjk/testdesk/records"
	"github.com/kjk/testdesk/u"
)

// queryList returns values of repeated or comma-separated query param
func queryList(r *http.Request, name string) []string {
	var res []string
	for _, v := range r.URL.Query()[name] {
		res = append(res, u.SplitTrimmed(v, ",")...)
	}
	return res
}

func queryDate(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, ok := records.ParseDate(v)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid date '%s' in '%s'", v, name)
	}
	return t, nil
}

// queryGrouping returns nil if group and value are not given
func queryGrouping(r *http.Request) (*dashboard.Grouping, error) {
	q := r.URL.Query()
	g := &dashboard.Grouping{
		Group: q.Get("group"),
		Value: q.Get("value"),
	}
	if g.Group == "" && g.Value == "" {
		return nil, nil
	}
	if g.Group == "" || g.Value == "" {
		return nil, fmt.Errorf("'group' and 'value' must be given together")
	}
	return g, nil
}

// GET /api/dashboard?department=${d}&progress=${p}&from=${date}&to=${date}&group=${field}&value=${field}
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	f := &dashboard.Filter{
		Departments: queryList(r, "department"),
		Progress:    queryList(r, "progress"),
	}
	var err error
	if f.From, err = queryDate(r, "from"); err != nil {
		httputil.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if f.To, err = queryDate(r, "to"); err != nil {
		httputil.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	g, err := queryGrouping(r)
	if err != nil {
		httputil.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := s.records.LoadAll()
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	httputil.WriteJSON(w, r, http.StatusOK, dashboard.Build(recs, f, g))
}
