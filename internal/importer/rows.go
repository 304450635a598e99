package importer

import (
	"fmt"

	"github.com/jsalverda/disentangle/internal/domain"
)

// parsedRow holds one validated data row resolved through the column
// mapping. ReplyTo and Thread are empty when the source cell was blank.
type parsedRow struct {
	Number   int
	TurnID   string
	UserID   string
	Content  string
	ReplyTo  string
	Thread   string
	Metadata map[string]string
}

// rowReader resolves mapped cells out of raw records. Positions are
// computed once per table so the per-row path is index lookups only.
type rowReader struct {
	turnID   int
	userID   int
	content  int
	replyTo  int
	thread   int
	metadata map[string]int
}

func newRowReader(headers []string, mapping domain.ColumnMapping) *rowReader {
	positions := make(map[string]int, len(headers))
	for i, header := range headers {
		if _, exists := positions[header]; !exists {
			positions[header] = i
		}
	}
	at := func(column string) int {
		if column == "" {
			return -1
		}
		if i, ok := positions[column]; ok {
			return i
		}
		return -1
	}

	reader := &rowReader{
		turnID:  at(mapping.TurnID),
		userID:  at(mapping.UserID),
		content: at(mapping.Content),
		replyTo: at(mapping.ReplyTo),
		thread:  at(mapping.Thread),
	}
	if len(mapping.Metadata) > 0 {
		reader.metadata = make(map[string]int, len(mapping.Metadata))
		for key, column := range mapping.Metadata {
			if i := at(column); i >= 0 {
				reader.metadata[key] = i
			}
		}
	}
	return reader
}

// read validates one record. rowNumber is the 1-based line number in the
// source file, counting the header row as line 1.
func (r *rowReader) read(record []string, rowNumber int) (parsedRow, *RowError) {
	cell := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return record[i]
	}

	row := parsedRow{
		Number:  rowNumber,
		TurnID:  cell(r.turnID),
		UserID:  cell(r.userID),
		Content: cell(r.content),
		ReplyTo: cell(r.replyTo),
		Thread:  cell(r.thread),
	}

	if row.TurnID == "" {
		return parsedRow{}, &RowError{Row: rowNumber, Reason: fmt.Sprintf("missing required field %q", FieldTurnID)}
	}
	if row.UserID == "" {
		return parsedRow{}, &RowError{Row: rowNumber, Reason: fmt.Sprintf("missing required field %q", FieldUserID)}
	}
	if row.Content == "" {
		return parsedRow{}, &RowError{Row: rowNumber, Reason: fmt.Sprintf("missing required field %q", FieldContent)}
	}

	if len(r.metadata) > 0 {
		row.Metadata = make(map[string]string, len(r.metadata))
		for key, i := range r.metadata {
			if value := cell(i); value != "" {
				row.Metadata[key] = value
			}
		}
	}
	return row, nil
}
