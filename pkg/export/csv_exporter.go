package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// Field is one labelled value of a report summary block.
type Field struct {
	Label string
	Value string
}

// Section is a titled group of summary fields.
type Section struct {
	Title  string
	Fields []Field
}

// Document is a report made of summary sections followed by an optional table.
type Document struct {
	Title    string
	Sections []Section
	Table    Dataset
}

// CSVExporter renders documents into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writeTable(writer, data); err != nil {
		return nil, err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderDocument writes sections as section,label,value rows, then a blank
// record and the table.
func (e *CSVExporter) RenderDocument(doc Document) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write([]string{"section", "field", "value"}); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, section := range doc.Sections {
		for _, f := range section.Fields {
			if err := writer.Write([]string{section.Title, f.Label, f.Value}); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	if len(doc.Table.Headers) > 0 {
		if err := writer.Write([]string{""}); err != nil {
			return nil, fmt.Errorf("write csv separator: %w", err)
		}
		if err := writeTable(writer, doc.Table); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTable(writer *csv.Writer, data Dataset) error {
	if err := writer.Write(data.Headers); err != nil {
		return fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		record := make([]string, len(data.Headers))
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	return nil
}
