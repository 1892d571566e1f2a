package records

import (
	"strings"
)

// Search returns records where any value contains term, ignoring case.
// Numbers and dates are matched against their display form.
// Empty term returns recs.
func Search(recs []*Record, term string) []*Record {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return recs
	}
	var res []*Record
	for _, rec := range recs {
		for _, f := range rec.fields {
			v := rec.values[f]
			if v == nil {
				continue
			}
			if strings.Contains(strings.ToLower(FormatValue(v)), term) {
				res = append(res, rec)
				break
			}
		}
	}
	return res
}
