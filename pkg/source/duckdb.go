package source

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/logflow/hminer/internal/model"
	hmerrors "github.com/logflow/hminer/pkg/errors"
	"github.com/logflow/hminer/pkg/parser"
)

// DuckDBLoader loads event logs with SQL over CSV, JSONL or Parquet files.
type DuckDBLoader struct {
	db *sql.DB
}

// NewDuckDBLoader opens an in-memory DuckDB database.
func NewDuckDBLoader() (*DuckDBLoader, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, hmerrors.Wrap(err, hmerrors.CodeDuckDBQuery, "failed to initialize DuckDB")
	}
	if _, err := db.Exec(fmt.Sprintf("SET threads=%d", runtime.NumCPU())); err != nil {
		db.Close()
		return nil, hmerrors.Wrap(err, hmerrors.CodeDuckDBQuery, "failed to configure DuckDB")
	}
	return &DuckDBLoader{db: db}, nil
}

// Close closes the database.
func (l *DuckDBLoader) Close() error {
	return l.db.Close()
}

// tableFunction returns the DuckDB reader for a file format.
func tableFunction(format parser.Format, path string) (string, error) {
	lit := "'" + strings.ReplaceAll(path, "'", "''") + "'"
	switch format {
	case parser.FormatCSV:
		return "read_csv_auto(" + lit + ", header=true, all_varchar=true)", nil
	case parser.FormatJSONL:
		return "read_json_auto(" + lit + ", format='newline_delimited')", nil
	case parser.FormatParquet:
		return "read_parquet(" + lit + ")", nil
	default:
		return "", hmerrors.New(hmerrors.CodeInvalidFormat, "format not supported by duckdb loader").
			WithContext("format", format.String())
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Load reads path and returns its events ordered by case and timestamp,
// with file order breaking ties. Records are validated like the streaming
// parsers: a missing case id, activity or timestamp fails the load.
func (l *DuckDBLoader) Load(ctx context.Context, path string, format parser.Format, cols parser.Config) (*model.Log, error) {
	from, err := tableFunction(format, path)
	if err != nil {
		return nil, err
	}

	view := fmt.Sprintf(`CREATE OR REPLACE VIEW hminer_source AS
		SELECT *, row_number() OVER () AS hminer_seq FROM %s`, from)
	if _, err := l.db.ExecContext(ctx, view); err != nil {
		return nil, hmerrors.Wrap(err, hmerrors.CodeDuckDBQuery, "failed to read source").
			WithContext("path", path)
	}

	available, err := l.columns(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range []string{cols.CaseIDColumn, cols.ActivityColumn, cols.TimestampColumn} {
		if !available[c] {
			return nil, hmerrors.MissingColumn(c, keys(available))
		}
	}

	resource := "NULL"
	if cols.ResourceColumn != "" && available[cols.ResourceColumn] {
		resource = "CAST(" + quoteIdent(cols.ResourceColumn) + " AS VARCHAR)"
	}

	// Timestamps come back as text and go through the same parser as the
	// streaming readers, so both paths accept the same layouts.
	query := fmt.Sprintf(`
		SELECT
			CAST(%[1]s AS VARCHAR),
			CAST(%[2]s AS VARCHAR),
			CAST(%[3]s AS VARCHAR),
			%[4]s
		FROM hminer_source
		ORDER BY CAST(%[1]s AS VARCHAR), TRY_CAST(%[3]s AS TIMESTAMP), hminer_seq
	`, quoteIdent(cols.CaseIDColumn), quoteIdent(cols.ActivityColumn), quoteIdent(cols.TimestampColumn), resource)

	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, hmerrors.Wrap(err, hmerrors.CodeDuckDBQuery, "query failed").WithContext("path", path)
	}
	defer rows.Close()

	log := model.NewLog()
	row := 0
	for rows.Next() {
		row++
		var caseID, activity, ts, res sql.NullString
		if err := rows.Scan(&caseID, &activity, &ts, &res); err != nil {
			return nil, hmerrors.Wrap(err, hmerrors.CodeDuckDBQuery, "failed to scan row").WithContext("row", row)
		}
		if !caseID.Valid || caseID.String == "" {
			return nil, hmerrors.Validation("case id", row).WithContext("format", "duckdb")
		}
		if !activity.Valid || activity.String == "" {
			return nil, hmerrors.Validation("activity", row).WithContext("format", "duckdb")
		}
		if !ts.Valid || ts.String == "" {
			return nil, hmerrors.Validation("timestamp", row).WithContext("format", "duckdb")
		}
		nanos, err := parser.ParseTimestamp(ts.String, cols.TimestampFormat)
		if err != nil {
			return nil, hmerrors.InvalidTimestamp(ts.String, row).WithContext("format", "duckdb")
		}
		log.Append(model.Event{
			CaseID:       caseID.String,
			Activity:     activity.String,
			Timestamp:    nanos,
			HasTimestamp: true,
			Resource:     res.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, hmerrors.Wrap(err, hmerrors.CodeDuckDBQuery, "query failed").WithContext("path", path)
	}
	return log, nil
}

func (l *DuckDBLoader) columns(ctx context.Context) (map[string]bool, error) {
	rows, err := l.db.QueryContext(ctx, "SELECT * FROM hminer_source LIMIT 0")
	if err != nil {
		return nil, hmerrors.Wrap(err, hmerrors.CodeDuckDBQuery, "failed to describe source")
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, hmerrors.Wrap(err, hmerrors.CodeDuckDBQuery, "failed to describe source")
	}
	available := make(map[string]bool, len(names))
	for _, n := range names {
		available[n] = true
	}
	return available, nil
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		if k != "hminer_seq" {
			out = append(out, k)
		}
	}
	return out
}

// loadTimeout is applied by LoadFile when ctx has no deadline.
const loadTimeout = 10 * time.Minute

// LoadFile opens a loader, loads path and closes the loader.
func LoadFile(ctx context.Context, path string, cols parser.Config) (*model.Log, error) {
	format := parser.DetectFormat(path)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, loadTimeout)
		defer cancel()
	}

	l, err := NewDuckDBLoader()
	if err != nil {
		return nil, err
	}
	defer l.Close()
	return l.Load(ctx, path, format, cols)
}
