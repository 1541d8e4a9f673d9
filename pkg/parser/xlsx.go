package parser

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/logflow/hminer/internal/model"
	hmerrors "github.com/logflow/hminer/pkg/errors"
)

// XLSXParser parses the first sheet of an Excel workbook.
type XLSXParser struct {
	cfg Config
}

// NewXLSXParser creates a new XLSX parser.
func NewXLSXParser(cfg Config) *XLSXParser {
	return &XLSXParser{cfg: cfg}
}

// Parse reads rows from the first sheet and sends parsed events to out.
// Workbooks need random access, so non-file readers are read into memory.
func (p *XLSXParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.Event) error {
	var (
		xlFile *excelize.File
		err    error
	)
	if f, ok := r.(*os.File); ok {
		xlFile, err = excelize.OpenFile(f.Name())
	} else {
		xlFile, err = excelize.OpenReader(r)
	}
	if err != nil {
		return hmerrors.Wrap(err, hmerrors.CodeInvalidFormat, "failed to open xlsx")
	}
	defer xlFile.Close()

	sheets := xlFile.GetSheetList()
	if len(sheets) == 0 {
		return hmerrors.New(hmerrors.CodeInvalidFormat, "no sheets found in xlsx file")
	}

	rows, err := xlFile.Rows(sheets[0])
	if err != nil {
		return hmerrors.Wrap(err, hmerrors.CodeParseFailed, "failed to read rows")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil
	}
	header, err := rows.Columns()
	if err != nil {
		return hmerrors.ParseError("xlsx", 1, err)
	}

	colIdx := make(map[string]int, len(header))
	for i, col := range header {
		colIdx[strings.TrimSpace(col)] = i
	}

	caseIdx, ok := colIdx[p.cfg.CaseIDColumn]
	if !ok {
		return hmerrors.MissingColumn(p.cfg.CaseIDColumn, header)
	}
	actIdx, ok := colIdx[p.cfg.ActivityColumn]
	if !ok {
		return hmerrors.MissingColumn(p.cfg.ActivityColumn, header)
	}
	tsIdx, ok := colIdx[p.cfg.TimestampColumn]
	if !ok {
		return hmerrors.MissingColumn(p.cfg.TimestampColumn, header)
	}
	resIdx, hasRes := colIdx[p.cfg.ResourceColumn]

	rowNum := 1
	for rows.Next() {
		select {
		case <-ctx.Done():
			return canceled("xlsx")
		default:
		}

		rowNum++
		cols, err := rows.Columns()
		if err != nil {
			return hmerrors.ParseError("xlsx", rowNum, err)
		}
		if len(cols) == 0 {
			continue
		}

		cell := func(idx int) string {
			if idx < len(cols) {
				return strings.TrimSpace(cols[idx])
			}
			return ""
		}

		event := &model.Event{CaseID: cell(caseIdx), Activity: cell(actIdx)}
		if event.CaseID == "" {
			return missingField("xlsx", "case id", rowNum)
		}
		if event.Activity == "" {
			return missingField("xlsx", "activity", rowNum)
		}
		raw := cell(tsIdx)
		if raw == "" {
			return missingField("xlsx", "timestamp", rowNum)
		}
		ts, err := ParseTimestamp(raw, p.cfg.TimestampFormat)
		if err != nil {
			return badTimestamp("xlsx", raw, rowNum)
		}
		event.Timestamp = ts
		event.HasTimestamp = true
		if hasRes {
			event.Resource = cell(resIdx)
		}

		select {
		case out <- event:
		case <-ctx.Done():
			return canceled("xlsx")
		}
	}

	return nil
}
