package tabular

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	dateTimeLayout = "2006-01-02 15:04:05"
	timeLayout     = "15:04:05"
)

// readXLSX returns the cell text of the first sheet. Numeric cells carrying a
// date or time number format are rendered as "2006-01-02 15:04:05" (or
// "15:04:05" for a bare time of day) instead of excelize's locale display text.
func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	dateStyles := make(map[int]bool)
	for r := range rows {
		if r >= len(raw) {
			break
		}
		for c := range rows[r] {
			if c >= len(raw[r]) || raw[r][c] == rows[r][c] {
				continue
			}
			serial, err := strconv.ParseFloat(raw[r][c], 64)
			if err != nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				continue
			}
			styleID, err := f.GetCellStyle(sheet, cell)
			if err != nil {
				continue
			}
			isDate, seen := dateStyles[styleID]
			if !seen {
				isDate = isDateStyle(f, styleID)
				dateStyles[styleID] = isDate
			}
			if !isDate {
				continue
			}
			if serial >= 0 && serial < 1 {
				secs := time.Duration(math.Round(serial*86400)) * time.Second
				rows[r][c] = time.Time{}.Add(secs).Format(timeLayout)
				continue
			}
			t, err := excelize.ExcelDateToTime(serial, date1904)
			if err != nil {
				continue
			}
			rows[r][c] = t.Format(dateTimeLayout)
		}
	}
	return rows, nil
}

func isDateStyle(f *excelize.File, styleID int) bool {
	style, err := f.GetStyle(styleID)
	if err != nil || style == nil {
		return false
	}
	if style.CustomNumFmt != nil {
		return isDateFormatCode(*style.CustomNumFmt)
	}
	return isBuiltinDateFormat(style.NumFmt)
}

// isBuiltinDateFormat reports whether id is one of the built-in date or time
// number formats, including the CJK locale ones.
func isBuiltinDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 22,
		id >= 27 && id <= 36,
		id >= 45 && id <= 47,
		id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormatCode reports whether a custom format code contains date or time
// tokens outside quoted literals, escapes and bracketed modifiers.
func isDateFormatCode(code string) bool {
	code = strings.ToLower(code)
	if code == "general" || code == "@" {
		return false
	}
	// Only the first section decides; later ones cover negatives and text.
	if i := strings.IndexByte(code, ';'); i >= 0 {
		code = code[:i]
	}
	var (
		quoted  bool
		escaped bool
		bracket *strings.Builder
	)
	for _, r := range code {
		switch {
		case escaped:
			escaped = false
		case quoted:
			quoted = r != '"'
		case bracket != nil:
			if r != ']' {
				bracket.WriteRune(r)
				continue
			}
			// elapsed time such as [h]:mm; colours and locales are skipped
			if inner := bracket.String(); inner != "" && strings.Trim(inner, "hms") == "" {
				return true
			}
			bracket = nil
		case r == '\\':
			escaped = true
		case r == '"':
			quoted = true
		case r == '[':
			bracket = &strings.Builder{}
		case strings.ContainsRune("ymdhs", r):
			return true
		}
	}
	return false
}
