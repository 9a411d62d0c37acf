// Package parquet writes and reads the silver and gold layers as
// hive-partitioned Parquet datasets using an embedded DuckDB engine.
package parquet

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	duckdb "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"

	"github.com/couchcryptid/brewery-data-etl/internal/domain"
)

var (
	// ErrNoTable is returned by Write when there is no table to persist,
	// usually because an upstream step failed.
	ErrNoTable = errors.New("no table to write")
	// ErrDatasetNotFound is returned by Read when the dataset directory is missing.
	ErrDatasetNotFound = errors.New("dataset not found")
)

// PartitionColumns are the hive partition keys, outermost first.
var PartitionColumns = []string{domain.ColumnCountry, domain.ColumnState, domain.ColumnCity}

// singleFileName is used when a table has none of the partition columns.
const singleFileName = "data.parquet"

// Store is a Parquet dataset reader/writer backed by in-memory DuckDB.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open starts an in-memory DuckDB engine.
func Open(logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the DuckDB engine.
func (s *Store) Close() error {
	return s.db.Close()
}

// Write replaces dir with a Parquet dataset holding table, partitioned by
// whichever of PartitionColumns the table has. int64 columns are stored as
// BIGINT, every other column as VARCHAR. Partition columns are also written
// into the files, so directory names never carry cell values.
func (s *Store) Write(ctx context.Context, table *domain.Table, dir string) error {
	if table == nil {
		return ErrNoTable
	}
	if len(table.Columns) == 0 {
		return fmt.Errorf("%w: table has no columns", ErrNoTable)
	}
	if dir == "" {
		return errors.New("destination directory is required")
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("duckdb connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	staging := "staging_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	types := columnTypes(table)

	defs := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		defs[i] = quoteIdent(c) + " " + types[i]
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", staging, strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "DROP TABLE IF EXISTS "+staging)
	}()

	if err := appendRows(conn, staging, table, types); err != nil {
		return err
	}

	copySQL, partitions := copyStatement(staging, table, dir)
	if _, err := conn.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("copy to parquet: %w", err)
	}

	s.logger.Info("data saved as parquet",
		"path", dir,
		"rows", len(table.Rows),
		"partition_by", strings.Join(partitions, ","),
	)
	return nil
}

func appendRows(conn *sql.Conn, staging string, table *domain.Table, types []string) error {
	return conn.Raw(func(raw any) error {
		driverConn, ok := raw.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected raw conn type %T", raw)
		}

		appender, err := duckdb.NewAppenderFromConn(driverConn, "", staging)
		if err != nil {
			return fmt.Errorf("create appender: %w", err)
		}

		values := make([]driver.Value, len(table.Columns))
		for i, row := range table.Rows {
			for j, c := range table.Columns {
				values[j] = cellValue(row[c], types[j])
			}
			if err := appender.AppendRow(values...); err != nil {
				_ = appender.Close()
				return fmt.Errorf("append row %d: %w", i, err)
			}
		}

		if err := appender.Close(); err != nil {
			return fmt.Errorf("flush appender: %w", err)
		}
		return nil
	})
}

func copyStatement(staging string, table *domain.Table, dir string) (string, []string) {
	var partitions []string
	for _, c := range PartitionColumns {
		if table.HasColumn(c) {
			partitions = append(partitions, c)
		}
	}

	if len(partitions) == 0 {
		target := filepath.Join(dir, singleFileName)
		return fmt.Sprintf("COPY %s TO %s (FORMAT parquet)", staging, quoteLiteral(target)), nil
	}

	quoted := make([]string, len(partitions))
	for i, p := range partitions {
		quoted[i] = quoteIdent(p)
	}
	return fmt.Sprintf("COPY %s TO %s (FORMAT parquet, PARTITION_BY (%s), WRITE_PARTITION_COLUMNS true, FILENAME_PATTERN 'data_{uuid}', OVERWRITE_OR_IGNORE)",
		staging, quoteLiteral(dir), strings.Join(quoted, ", ")), partitions
}

// Read loads every Parquet file under dir. Values come from the file
// contents only; hive directory names are ignored.
func (s *Store) Read(ctx context.Context, dir string) (*domain.Table, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	found, err := hasParquetFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: no parquet files in %s", ErrDatasetNotFound, dir)
	}

	pattern := filepath.Join(dir, "**", "*.parquet")
	query := fmt.Sprintf(
		"SELECT * FROM read_parquet(%s, hive_partitioning = false, union_by_name = true)",
		quoteLiteral(pattern),
	)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", dir, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	table := &domain.Table{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, c := range columns {
			row[c] = values[i]
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	s.logger.Info("parquet dataset loaded", "path", dir, "rows", len(table.Rows))
	return table, nil
}

var errFound = errors.New("found")

func hasParquetFiles(dir string) (bool, error) {
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(d.Name()) == ".parquet" {
			return errFound
		}
		return nil
	})
	if errors.Is(err, errFound) {
		return true, nil
	}
	return false, err
}

// columnTypes picks BIGINT for columns whose non-null cells are all int64.
func columnTypes(table *domain.Table) []string {
	types := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		types[i] = "VARCHAR"
		sawInt := false
		allInt := true
		for _, row := range table.Rows {
			v := row[c]
			if v == nil {
				continue
			}
			if _, ok := v.(int64); !ok {
				allInt = false
				break
			}
			sawInt = true
		}
		if sawInt && allInt {
			types[i] = "BIGINT"
		}
	}
	return types
}

func cellValue(v any, typ string) driver.Value {
	if v == nil {
		return nil
	}
	if typ == "BIGINT" {
		return v.(int64)
	}
	return domain.CellString(v)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
