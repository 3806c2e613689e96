package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// csvText renders rows as "header: value" lines so chunks stay meaningful
// without the surrounding table.
func csvText(content []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return "", nil
	}

	headers := records[0]
	var text strings.Builder
	text.WriteString(strings.Join(headers, ", "))
	text.WriteString("\n")
	for _, row := range records[1:] {
		cells := make([]string, 0, len(row))
		for i, cell := range row {
			if i < len(headers) {
				cells = append(cells, headers[i]+": "+cell)
			} else {
				cells = append(cells, cell)
			}
		}
		text.WriteString(strings.Join(cells, ", "))
		text.WriteString("\n")
	}
	return text.String(), nil
}
