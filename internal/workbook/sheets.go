package workbook

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// SheetNames lists the worksheets of a workbook package. It is used for
// diagnostics only; sync never depends on spreadsheet content.
func SheetNames(data []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	return f.GetSheetList(), nil
}
