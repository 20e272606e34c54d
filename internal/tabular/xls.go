package tabular

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/extrame/xls"
)

// readXLS returns the cell text of the first sheet of a BIFF (.xls) workbook.
func readXLS(data []byte) (grid [][]string, err error) {
	// The BIFF parser panics on some truncated workbooks.
	defer func() {
		if r := recover(); r != nil {
			grid, err = nil, fmt.Errorf("malformed xls: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("workbook has no sheets")
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			cells[j] = row.Col(j)
		}
		grid = append(grid, cells)
	}
	return grid, nil
}
