package tabular

import (
	"bytes"
	"encoding/csv"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// readCSV parses delimited text. Content that is not valid UTF-8 is assumed
// to be GB18030, the encoding mainland bank exports use.
func readCSV(data []byte) ([][]string, error) {
	data = trimBOM(data)

	var src io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		src = transform.NewReader(src, simplifiedchinese.GB18030.NewDecoder())
	}

	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}
