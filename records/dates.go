package records

import (
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// layouts accepted for date strings, most common first
var dateLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006/01/02",
	"2006/01/02 15:04:05",
	"2006.01.02",
	"2006-1-2",
	"2006/1/2",
	"2006年1月2日",
	"01/02/2006",
	"20060102",
}

// Excel serial numbers for 1900-01-01 and 9999-12-31
const (
	minExcelDate = 1
	maxExcelDate = 2958465
)

// ParseDate coerces v to a calendar date. Returns false for nil,
// empty or unparseable values. Numbers are Excel date serials.
func ParseDate(v any) (time.Time, bool) {
	switch v := NormalizeValue(v).(type) {
	case time.Time:
		return v, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return ToDate(t), true
			}
		}
	case float64:
		if v < minExcelDate || v > maxExcelDate {
			return time.Time{}, false
		}
		if t, err := excelize.ExcelDateToTime(v, false); err == nil {
			return ToDate(t), true
		}
	}
	return time.Time{}, false
}

// NormalizeDates returns copies of recs where every date field that is
// present holds a date or nil if its value couldn't be parsed.
// Never fails. Applying it to its own result changes nothing.
func NormalizeDates(recs []*Record) []*Record {
	res := make([]*Record, len(recs))
	for i, rec := range recs {
		rec = rec.Clone()
		for _, field := range DateFields {
			if !rec.Has(field) {
				continue
			}
			if t, ok := ParseDate(rec.Get(field)); ok {
				rec.Set(field, t)
			} else {
				rec.Set(field, nil)
			}
		}
		res[i] = rec
	}
	return res
}
