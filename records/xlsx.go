package records

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// Columns returns the union of field names of recs, in order of first use
func Columns(recs []*Record) []string {
	var cols []string
	seen := map[string]bool{}
	for _, rec := range recs {
		for _, f := range rec.fields {
			if !seen[f] {
				seen[f] = true
				cols = append(cols, f)
			}
		}
	}
	return cols
}

func cellName(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		// only happens for col or row < 1
		panic(err)
	}
	return name
}

// date cells are shown as 2025-03-01 by spreadsheet programs
var dateNumFmt = "yyyy-mm-dd"

var minCellDate = time.Date(1900, 3, 1, 0, 0, 0, 0, time.UTC)

func isXMLChar(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	}
	return r >= 0x10000 && r <= 0x10FFFF
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// startsEscape returns true if s, the text after a '_', would be read back
// as the rest of a _xHHHH_ sequence once encoded
func startsEscape(s string) bool {
	if len(s) < 6 || s[0] != 'x' {
		return false
	}
	for i := 1; i < 5; i++ {
		if !isHex(s[i]) {
			return false
		}
	}
	r, _ := utf8.DecodeRuneInString(s[5:])
	return r == '_' || !isXMLChar(r)
}

// encodeString escapes s the way xlsx stores characters that XML can't
// hold: as _xHHHH_. A literal _xHHHH_ gets its '_' escaped as _x005F_.
// Returns an error if s doesn't fit in a cell.
func encodeString(s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", errors.New("invalid UTF-8")
	}
	var sb strings.Builder
	for i, r := range s {
		switch {
		case r == '_' && startsEscape(s[i+1:]):
			sb.WriteString("_x005F_")
		case !isXMLChar(r):
			fmt.Fprintf(&sb, "_x%04X_", r)
		default:
			sb.WriteRune(r)
		}
	}
	res := sb.String()
	if n := utf8.RuneCountInString(res); n > excelize.TotalCellChars {
		return "", fmt.Errorf("%d characters, a cell holds at most %d", n, excelize.TotalCellChars)
	}
	return res, nil
}

func setString(f *excelize.File, sheet, cell, v string) error {
	enc, err := encodeString(v)
	if err != nil {
		return err
	}
	return f.SetCellStr(sheet, cell, enc)
}

func setDate(f *excelize.File, sheet, cell string, v time.Time, style int) error {
	// serials before March 1900 don't map to dates one to one
	if v.Before(minCellDate) {
		return fmt.Errorf("date %s is before %s", v.Format(DateLayout), minCellDate.Format(DateLayout))
	}
	if err := f.SetCellValue(sheet, cell, ToDate(v)); err != nil {
		return err
	}
	return f.SetCellStyle(sheet, cell, cell, style)
}

// Encode writes recs as an xlsx workbook with a single sheet.
// Row 1 is the header with field names, then one row per record.
// Dates are date cells. Nil values and empty strings are left as empty
// cells. Values a cell can't hold exactly are an error.
func Encode(w io.Writer, recs []*Record) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &dateNumFmt})
	if err != nil {
		return err
	}

	cols := Columns(recs)
	for i, name := range cols {
		if err := setString(f, sheet, cellName(i+1, 1), name); err != nil {
			return fmt.Errorf("header '%s': %w", name, err)
		}
	}
	for ri, rec := range recs {
		for ci, name := range cols {
			cell := cellName(ci+1, ri+2)
			var err error
			switch v := rec.Get(name).(type) {
			case nil:
				continue
			case string:
				if v == "" {
					continue
				}
				err = setString(f, sheet, cell, v)
			case float64:
				err = f.SetCellFloat(sheet, cell, v, -1, 64)
			case time.Time:
				err = setDate(f, sheet, cell, v, dateStyle)
			}
			if err != nil {
				return fmt.Errorf("row %d, field '%s': %w", ri+1, name, err)
			}
		}
	}
	return f.Write(w)
}

// built-in number formats that show a date, including the CJK ones
func isBuiltInDateFmt(id int) bool {
	switch {
	case id >= 14 && id <= 17, id == 22:
		return true
	case id >= 27 && id <= 31, id == 36:
		return true
	}
	return id >= 50 && id <= 58
}

// isDateFmtCode returns true if a custom number format shows a year or
// a day. Quoted text, [..] sections and escaped characters don't count.
func isDateFmtCode(code string) bool {
	inQuote, inBracket, escaped := false, false, false
	for _, c := range strings.ToLower(code) {
		switch {
		case escaped:
			escaped = false
		case inQuote:
			inQuote = c != '"'
		case inBracket:
			inBracket = c != ']'
		case c == '\\':
			escaped = true
		case c == '"':
			inQuote = true
		case c == '[':
			inBracket = true
		case c == 'y' || c == 'd':
			return true
		}
	}
	return false
}

// dateStyles remembers which cell styles of a workbook format dates
type dateStyles struct {
	f     *excelize.File
	known map[int]bool
}

func (ds *dateStyles) isDate(sheet, cell string) (bool, error) {
	id, err := ds.f.GetCellStyle(sheet, cell)
	if err != nil {
		return false, err
	}
	if id == 0 {
		return false, nil
	}
	if isDate, ok := ds.known[id]; ok {
		return isDate, nil
	}
	style, err := ds.f.GetStyle(id)
	if err != nil {
		return false, err
	}
	isDate := isBuiltInDateFmt(style.NumFmt)
	if style.CustomNumFmt != nil {
		isDate = isDateFmtCode(*style.CustomNumFmt)
	}
	ds.known[id] = isDate
	return isDate, nil
}

// Decode reads records from the first sheet of an xlsx workbook written
// by Encode (or by a spreadsheet program). Every record gets every header
// field; empty cells are nil. Rows with no values are skipped.
func Decode(r io.Reader) ([]*Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	res := []*Record{}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return res, nil
	}
	sheet := sheets[0]
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return res, nil
	}
	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	styles := &dateStyles{f: f, known: map[int]bool{}}
	header := headerNames(rows[0])
	for ri, row := range rows[1:] {
		rec := &Record{}
		isEmpty := true
		for ci, name := range header {
			raw := ""
			if ci < len(row) {
				raw = row[ci]
			}
			if raw == "" {
				rec.Set(name, nil)
				continue
			}
			isEmpty = false
			cell := cellName(ci+1, ri+2)
			typ, err := f.GetCellType(sheet, cell)
			if err != nil {
				return nil, err
			}
			v := decodeCell(typ, raw)
			if n, ok := v.(float64); ok {
				isDate, err := styles.isDate(sheet, cell)
				if err != nil {
					return nil, err
				}
				if isDate {
					// time of day is dropped; the hour absorbs rounding of the conversion
					if t, err := excelize.ExcelDateToTime(math.Floor(n), date1904); err == nil {
						v = ToDate(t.Add(time.Hour))
					}
				}
			}
			rec.Set(name, v)
		}
		if !isEmpty {
			res = append(res, rec)
		}
	}
	return res, nil
}

// headerNames names empty header cells "Unnamed: N" and disambiguates
// repeated names as "name.1", "name.2"
func headerNames(row []string) []string {
	res := make([]string, len(row))
	seen := map[string]int{}
	for i, name := range row {
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = name + "." + strconv.Itoa(n)
		} else {
			seen[name] = 1
		}
		res[i] = name
	}
	return res
}

func decodeCell(typ excelize.CellType, raw string) any {
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
		return raw
	case excelize.CellTypeBool:
		return strconv.FormatBool(raw == "1" || raw == "TRUE")
	case excelize.CellTypeDate:
		if t, ok := ParseDate(raw); ok {
			return t
		}
		return raw
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// Export writes recs in the same format as the persisted table
func Export(w io.Writer, recs []*Record) error {
	return Encode(w, recs)
}
