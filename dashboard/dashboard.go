// Package dashboard computes the aggregate views of the summary page:
// filters, headline metrics, group-by counts and sums and cost trend.
//
// Functions expect records with dates already normalized
// (see records.NormalizeDates).
package dashboard

import (
	"cmp"
	"slices"
	"time"

	"github.com/kjk/testdesk/records"
)

// Filter selects records. Empty lists and zero times don't filter.
type Filter struct {
	Departments []string
	Progress    []string
	// inclusive range of application date
	From time.Time
	To   time.Time
}

func matchesChoice(rec *records.Record, field string, choices []string) bool {
	if len(choices) == 0 {
		return true
	}
	if rec.Get(field) == nil {
		return false
	}
	return slices.Contains(choices, rec.String(field))
}

// Match returns true if rec passes the filter. When a date range is set,
// records without an application date don't match.
func (f *Filter) Match(rec *records.Record) bool {
	if !matchesChoice(rec, records.FieldDepartment, f.Departments) {
		return false
	}
	if !matchesChoice(rec, records.FieldProgress, f.Progress) {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	d, ok := rec.Date(records.FieldApplicationDate)
	if !ok {
		return false
	}
	if !f.From.IsZero() && d.Before(records.ToDate(f.From)) {
		return false
	}
	if !f.To.IsZero() && d.After(records.ToDate(f.To)) {
		return false
	}
	return true
}

// Apply returns records matching the filter
func (f *Filter) Apply(recs []*records.Record) []*records.Record {
	res := []*records.Record{}
	for _, rec := range recs {
		if f.Match(rec) {
			res = append(res, rec)
		}
	}
	return res
}

// Choices returns distinct values of field in order of first appearance.
// Used to offer filter options.
func Choices(recs []*records.Record, field string) []string {
	res := []string{}
	seen := map[string]bool{}
	for _, rec := range recs {
		if rec.Get(field) == nil {
			continue
		}
		v := rec.String(field)
		if !seen[v] {
			seen[v] = true
			res = append(res, v)
		}
	}
	return res
}

// DateRange returns earliest and latest application date.
// ok is false if no record has one.
func DateRange(recs []*records.Record) (min time.Time, max time.Time, ok bool) {
	for _, rec := range recs {
		d, has := rec.Date(records.FieldApplicationDate)
		if !has {
			continue
		}
		if !ok || d.Before(min) {
			min = d
		}
		if !ok || d.After(max) {
			max = d
		}
		ok = true
	}
	return min, max, ok
}

type Summary struct {
	Total      int     `json:"total"`
	InProgress int     `json:"inProgress"`
	Completed  int     `json:"completed"`
	TotalCost  float64 `json:"totalCost"`
}

// Summarize computes headline metrics. Non-numeric costs are ignored.
func Summarize(recs []*records.Record) Summary {
	s := Summary{Total: len(recs)}
	for _, rec := range recs {
		switch rec.Get(records.FieldProgress) {
		case records.ProgressInProgress:
			s.InProgress++
		case records.ProgressCompleted:
			s.Completed++
		}
		if cost, ok := rec.Float(records.FieldExpectedCost); ok {
			s.TotalCost += cost
		}
	}
	return s
}

type Count struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// CountBy counts records per value of field, most frequent first.
// Records without the field are not counted.
func CountBy(recs []*records.Record, field string) []Count {
	counts := map[string]int{}
	for _, rec := range recs {
		if rec.Get(field) == nil {
			continue
		}
		counts[rec.String(field)]++
	}
	res := make([]Count, 0, len(counts))
	for v, n := range counts {
		res = append(res, Count{Value: v, Count: n})
	}
	slices.SortFunc(res, func(a, b Count) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Value, b.Value)
	})
	return res
}

type Sum struct {
	Value string  `json:"value"`
	Sum   float64 `json:"sum"`
}

// SumBy sums numeric valueField per value of groupField, sorted by group
func SumBy(recs []*records.Record, groupField, valueField string) []Sum {
	sums := map[string]float64{}
	for _, rec := range recs {
		if rec.Get(groupField) == nil {
			continue
		}
		k := rec.String(groupField)
		f, _ := rec.Float(valueField)
		sums[k] += f
	}
	res := make([]Sum, 0, len(sums))
	for k, v := range sums {
		res = append(res, Sum{Value: k, Sum: v})
	}
	slices.SortFunc(res, func(a, b Sum) int {
		return cmp.Compare(a.Value, b.Value)
	})
	return res
}

type Point struct {
	// YYYY-MM-DD
	Date string  `json:"date"`
	Cost float64 `json:"cost"`
}

// CostTrend sums expected cost per application date, ordered by date.
// Records without a date are skipped.
func CostTrend(recs []*records.Record) []Point {
	sums := map[string]float64{}
	for _, rec := range recs {
		d, ok := rec.Date(records.FieldApplicationDate)
		if !ok {
			continue
		}
		cost, _ := rec.Float(records.FieldExpectedCost)
		sums[d.Format(records.DateLayout)] += cost
	}
	res := make([]Point, 0, len(sums))
	for d, cost := range sums {
		res = append(res, Point{Date: d, Cost: cost})
	}
	// YYYY-MM-DD sorts chronologically
	slices.SortFunc(res, func(a, b Point) int {
		return cmp.Compare(a.Date, b.Date)
	})
	return res
}

// ColumnKinds classifies columns for choosing chart axes
type ColumnKinds struct {
	Numeric     []string `json:"numeric"`
	Date        []string `json:"date"`
	Categorical []string `json:"categorical"`
}

// Columns classifies every column of recs. A column is numeric or date if
// all its values are; columns with mixed or no values are categorical.
func Columns(recs []*records.Record) ColumnKinds {
	var res ColumnKinds
	for _, col := range records.Columns(recs) {
		nNum, nDate, nOther := 0, 0, 0
		for _, rec := range recs {
			switch rec.Get(col).(type) {
			case nil:
			case float64:
				nNum++
			case time.Time:
				nDate++
			default:
				nOther++
			}
		}
		switch {
		case nNum > 0 && nDate == 0 && nOther == 0:
			res.Numeric = append(res.Numeric, col)
		case nDate > 0 && nNum == 0 && nOther == 0:
			res.Date = append(res.Date, col)
		default:
			res.Categorical = append(res.Categorical, col)
		}
	}
	return res
}

// Options are the choices offered by the filter inputs of the summary page
type Options struct {
	Departments []string `json:"departments"`
	Progress    []string `json:"progress"`
	// bounds of the date inputs, YYYY-MM-DD. Empty if no record has a date.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// OptionsOf returns filter choices for recs
func OptionsOf(recs []*records.Record) Options {
	o := Options{
		Departments: Choices(recs, records.FieldDepartment),
		Progress:    Choices(recs, records.FieldProgress),
	}
	if min, max, ok := DateRange(recs); ok {
		o.From = min.Format(records.DateLayout)
		o.To = max.Format(records.DateLayout)
	}
	return o
}

// Grouping asks for the sum of Value per value of Group (pie chart)
type Grouping struct {
	Group string
	Value string
}

// View is everything the summary page shows for a filter
type View struct {
	Options     Options           `json:"options"`
	Summary     Summary           `json:"summary"`
	Progress    []Count           `json:"progress"`
	Departments []Count           `json:"departments"`
	CostTrend   []Point           `json:"costTrend"`
	Columns     ColumnKinds       `json:"columns"`
	Groups      []Sum             `json:"groups,omitempty"`
	Records     []*records.Record `json:"records"`
}

// Build normalizes dates of recs, applies f and computes the view.
// Options are computed before filtering. g is optional.
func Build(recs []*records.Record, f *Filter, g *Grouping) *View {
	recs = records.NormalizeDates(recs)
	opts := OptionsOf(recs)
	if f != nil {
		recs = f.Apply(recs)
	}
	v := &View{
		Options:     opts,
		Summary:     Summarize(recs),
		Progress:    CountBy(recs, records.FieldProgress),
		Departments: CountBy(recs, records.FieldDepartment),
		CostTrend:   CostTrend(recs),
		Columns:     Columns(recs),
		Records:     recs,
	}
	if g != nil {
		v.Groups = SumBy(recs, g.Group, g.Value)
	}
	return v
}
