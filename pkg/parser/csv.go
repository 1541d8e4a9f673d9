package parser

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/logflow/hminer/internal/model"
	hmerrors "github.com/logflow/hminer/pkg/errors"
)

// CSVParser reads delimited event tables with a header row.
type CSVParser struct {
	cfg Config
}

// NewCSVParser creates a new CSV parser.
func NewCSVParser(cfg Config) *CSVParser {
	return &CSVParser{cfg: cfg}
}

// Parse implements the Parser interface.
func (p *CSVParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.Event) error {
	reader := bufio.NewReaderSize(r, p.cfg.BufferSize)

	// Parse header line to get column indices
	headerLine, lineNum, err := readRecord(reader)
	if err != nil && err != io.EOF {
		return hmerrors.ParseError("csv", 1, err)
	}
	headerLine = trimLineEnding(headerLine)
	if len(headerLine) == 0 {
		// An empty input is an empty log.
		return nil
	}
	headerLine = bytes.TrimPrefix(headerLine, []byte("\xef\xbb\xbf"))

	columns := p.splitLine(headerLine)
	colMap := make(map[string]int, len(columns))
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = string(col)
		colMap[names[i]] = i
	}

	caseIdx, ok := colMap[p.cfg.CaseIDColumn]
	if !ok {
		return hmerrors.MissingColumn(p.cfg.CaseIDColumn, names)
	}
	actIdx, ok := colMap[p.cfg.ActivityColumn]
	if !ok {
		return hmerrors.MissingColumn(p.cfg.ActivityColumn, names)
	}
	tsIdx, ok := colMap[p.cfg.TimestampColumn]
	if !ok {
		return hmerrors.MissingColumn(p.cfg.TimestampColumn, names)
	}
	resIdx, hasRes := colMap[p.cfg.ResourceColumn]

	for {
		select {
		case <-ctx.Done():
			return canceled("csv")
		default:
		}

		line, n, err := readRecord(reader)
		if err != nil && err != io.EOF {
			return hmerrors.ParseError("csv", lineNum+1, err)
		}
		if len(line) == 0 && err == io.EOF {
			break
		}
		row := lineNum + 1
		lineNum += n

		line = trimLineEnding(line)
		if len(line) == 0 {
			if err == io.EOF {
				break
			}
			continue
		}

		fields := p.splitLine(line)
		field := func(idx int) string {
			if idx < len(fields) {
				return string(bytes.TrimSpace(fields[idx]))
			}
			return ""
		}

		event := &model.Event{
			CaseID:   field(caseIdx),
			Activity: field(actIdx),
		}
		if event.CaseID == "" {
			return missingField("csv", "case id", row)
		}
		if event.Activity == "" {
			return missingField("csv", "activity", row)
		}
		raw := field(tsIdx)
		if raw == "" {
			return missingField("csv", "timestamp", row)
		}
		ts, tsErr := ParseTimestamp(raw, p.cfg.TimestampFormat)
		if tsErr != nil {
			return badTimestamp("csv", raw, row)
		}
		event.Timestamp = ts
		event.HasTimestamp = true
		if hasRes {
			event.Resource = field(resIdx)
		}

		select {
		case out <- event:
		case <-ctx.Done():
			return canceled("csv")
		}

		if err == io.EOF {
			break
		}
	}

	return nil
}

// readRecord reads one record, joining physical lines while a quoted field
// is open. It returns the record and the number of lines it spans.
func readRecord(r *bufio.Reader) ([]byte, int, error) {
	var (
		record []byte
		lines  int
		quotes int
	)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			lines++
		}
		record = append(record, line...)
		quotes += bytes.Count(line, []byte{'"'})
		if err != nil || quotes%2 == 0 {
			return record, lines, err
		}
	}
}

// splitLine splits a CSV line, honoring quoted fields with embedded
// delimiters and doubled quotes.
func (p *CSVParser) splitLine(line []byte) [][]byte {
	if len(line) == 0 {
		return nil
	}

	fields := make([][]byte, 0, 8)
	delim := p.cfg.Delimiter
	start := 0
	inQuotes := false

	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case c == '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				i++
			} else {
				inQuotes = !inQuotes
			}
		case c == delim && !inQuotes:
			fields = append(fields, unquoteField(line[start:i]))
			start = i + 1
		}
	}
	return append(fields, unquoteField(line[start:]))
}

// unquoteField removes surrounding quotes and unescapes embedded quotes.
func unquoteField(field []byte) []byte {
	if len(field) < 2 || field[0] != '"' || field[len(field)-1] != '"' {
		return field
	}
	return bytes.ReplaceAll(field[1:len(field)-1], []byte(`""`), []byte(`"`))
}

// trimLineEnding removes trailing \n and \r characters.
func trimLineEnding(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
