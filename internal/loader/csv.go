package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docgloss/internal/doctree"
)

// csvBatch is the number of data rows per section.
const csvBatch = 20

// CSVParser handles CSV files. The first row holds the headers; each data
// row becomes one "header: value" paragraph.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, name string) (*doctree.DocTree, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	tree := &doctree.DocTree{Title: stem(name)}
	if len(records) == 0 {
		return tree, nil
	}
	headers, rows := records[0], records[1:]

	for i := 0; i < len(rows); i += csvBatch {
		end := min(i+csvBatch, len(rows))
		paras := make([]string, 0, end-i)
		for _, row := range rows[i:end] {
			cells := make([]string, 0, len(row))
			for j, cell := range row {
				if j < len(headers) && headers[j] != "" {
					cells = append(cells, headers[j]+": "+cell)
				} else {
					cells = append(cells, cell)
				}
			}
			paras = append(paras, strings.Join(cells, ", "))
		}
		tree.Children = append(tree.Children, &doctree.DocNode{
			Title: fmt.Sprintf("Rows %d-%d", i+2, end+1), // 1-indexed after the header
			Text:  strings.Join(paras, "\n\n"),
		})
	}
	return tree, nil
}
