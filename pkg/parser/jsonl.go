package parser

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/logflow/hminer/internal/model"
	hmerrors "github.com/logflow/hminer/pkg/errors"
)

// JSONLParser reads newline-delimited JSON, one event object per line.
// Field names follow the configured columns.
type JSONLParser struct {
	cfg Config
}

// NewJSONLParser creates a new JSONL parser.
func NewJSONLParser(cfg Config) *JSONLParser {
	return &JSONLParser{cfg: cfg}
}

// Parse implements the Parser interface for JSONL format.
func (p *JSONLParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.Event) error {
	reader := bufio.NewReaderSize(r, p.cfg.BufferSize)

	lineNum := 0
	for {
		select {
		case <-ctx.Done():
			return canceled("jsonl")
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return hmerrors.ParseError("jsonl", lineNum+1, err)
		}
		if len(line) == 0 && err == io.EOF {
			break
		}
		lineNum++

		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			event, perr := p.parseLine(line, lineNum)
			if perr != nil {
				return perr
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return canceled("jsonl")
			}
		}

		if err == io.EOF {
			break
		}
	}

	return nil
}

func (p *JSONLParser) parseLine(line []byte, lineNum int) (*model.Event, error) {
	var record map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	if err := dec.Decode(&record); err != nil {
		return nil, hmerrors.ParseError("jsonl", lineNum, err)
	}

	event := &model.Event{
		CaseID:   scalar(record[p.cfg.CaseIDColumn]),
		Activity: scalar(record[p.cfg.ActivityColumn]),
		Resource: scalar(record[p.cfg.ResourceColumn]),
	}
	if event.CaseID == "" {
		return nil, missingField("jsonl", "case id", lineNum)
	}
	if event.Activity == "" {
		return nil, missingField("jsonl", "activity", lineNum)
	}

	raw := scalar(record[p.cfg.TimestampColumn])
	if raw == "" {
		return nil, missingField("jsonl", "timestamp", lineNum)
	}
	ts, err := ParseTimestamp(raw, p.cfg.TimestampFormat)
	if err != nil {
		return nil, badTimestamp("jsonl", raw, lineNum)
	}
	event.Timestamp = ts
	event.HasTimestamp = true
	return event, nil
}

// scalar renders a decoded JSON scalar as text. Objects, arrays and null
// render as empty.
func scalar(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case nil, map[string]interface{}, []interface{}:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
