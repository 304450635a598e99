package importer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var utf8ByteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// Table is a parsed upload: sanitized headers plus data rows, with the
// header row stripped. Rows are padded so every record has len(Headers)
// cells.
type Table struct {
	Headers []string
	Rows    [][]string
}

// ParseTable decodes an uploaded chat file into a header row and data rows.
// The format is chosen by file extension: .csv, .xlsx, or .json.
func ParseTable(fileName string, payload []byte) (*Table, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	case ".json":
		return parseJSON(payload)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(fileName))
	}
}

func parseCSV(payload []byte) (*Table, error) {
	payload = bytes.TrimPrefix(payload, utf8ByteOrderMark)

	reader := csv.NewReader(bytes.NewReader(payload))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return normalizeTable(records)
}

func parseExcel(payload []byte) (*Table, error) {
	book, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	records, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return normalizeTable(records)
}

// parseJSON accepts a top-level array of flat objects. Keys become headers,
// ordered by first appearance so mapping resolution stays deterministic.
func parseJSON(payload []byte) (*Table, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var objects []map[string]interface{}
	if err := decoder.Decode(&objects); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	var headers []string
	seen := make(map[string]bool)
	rawOrder := func(obj map[string]interface{}) {
		for key := range obj {
			if !seen[key] {
				seen[key] = true
				headers = append(headers, key)
			}
		}
	}
	// Preserve key order from the raw text for the first object, then append
	// any keys later objects introduce.
	if len(objects) > 0 {
		if ordered, err := orderedKeys(payload); err == nil && len(ordered) > 0 {
			for _, key := range ordered {
				if !seen[key] {
					seen[key] = true
					headers = append(headers, key)
				}
			}
		}
		for _, obj := range objects {
			rawOrder(obj)
		}
	}

	records := make([][]string, 0, len(objects)+1)
	records = append(records, headers)
	for _, obj := range objects {
		row := make([]string, len(headers))
		for i, key := range headers {
			row[i] = stringifyCell(obj[key])
		}
		records = append(records, row)
	}
	return normalizeTable(records)
}

// orderedKeys reads the first object's keys in document order, which Go's
// map decoding discards.
func orderedKeys(payload []byte) ([]string, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	if _, err := decoder.Token(); err != nil { // [
		return nil, err
	}
	if !decoder.More() {
		return nil, nil
	}
	if _, err := decoder.Token(); err != nil { // {
		return nil, err
	}
	var keys []string
	for decoder.More() {
		tok, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		keys = append(keys, key)
		var discard interface{}
		if err := decoder.Decode(&discard); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func stringifyCell(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}

// normalizeTable finds the header row, sanitizes header names, pads short
// records and drops rows whose every cell is blank.
func normalizeTable(records [][]string) (*Table, error) {
	headerIdx := -1
	for i, record := range records {
		if !rowIsEmpty(record) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, fmt.Errorf("file contains no data")
	}

	headers := sanitizeHeaders(records[headerIdx])
	rows := make([][]string, 0, len(records)-headerIdx-1)
	for _, record := range records[headerIdx+1:] {
		if rowIsEmpty(record) {
			continue
		}
		rows = append(rows, padRow(record, len(headers)))
	}
	return &Table{Headers: headers, Rows: rows}, nil
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for i, header := range raw {
		header = strings.TrimSpace(header)
		if header == "" {
			header = fmt.Sprintf("column_%d", i+1)
		}
		headers[i] = header
	}
	return headers
}

func padRow(record []string, width int) []string {
	row := make([]string, width)
	for i := 0; i < width; i++ {
		if i < len(record) {
			row[i] = strings.TrimSpace(record[i])
		}
	}
	return row
}

func rowIsEmpty(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
