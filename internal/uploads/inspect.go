package uploads

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// spreadsheetExts are the formats excelize can open
var spreadsheetExts = map[string]bool{"xlsx": true, "xlsm": true, "xltx": true, "xltm": true}

// SheetNames lists the worksheets of a stored spreadsheet. Files of other
// types have no sheets and return nil.
func SheetNames(path string) ([]string, error) {
	if !spreadsheetExts[Extension(path)] {
		return nil, nil
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	return f.GetSheetList(), nil
}
