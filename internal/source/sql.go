package source

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"dataprep/internal/dataframe"
	"dataprep/internal/engine"
)

// SQLParams configures the SQL loader. Driver routes to the backend.
type SQLParams struct {
	Driver string `json:"driver" validate:"required,oneof=postgres mssql sqlite"`
	DSN    string `json:"dsn" validate:"required"`
	Query  string `json:"query" validate:"required"`
}

// LoadSQL runs the query and materializes the result as a single plan.
func (l *Loader) LoadSQL(ctx context.Context, p SQLParams) ([]dataframe.Plan, engine.LoadMetadata, error) {
	var (
		f   *dataframe.Frame
		err error
	)
	switch p.Driver {
	case "postgres":
		f, err = queryPostgres(ctx, p.DSN, p.Query)
	case "mssql":
		f, err = queryStdSQL(ctx, "sqlserver", p.DSN, p.Query)
	case "sqlite":
		f, err = queryStdSQL(ctx, "sqlite", p.DSN, p.Query)
	default:
		err = fmt.Errorf("unsupported driver %q", p.Driver)
	}
	if err != nil {
		return nil, engine.LoadMetadata{}, fmt.Errorf("sql load (%s): %w", p.Driver, err)
	}
	l.Log.Info().Str("driver", p.Driver).Int("rows", f.NumRows()).Msg("sql query loaded")
	return []dataframe.Plan{dataframe.FromFrame(f)}, engine.LoadMetadata{}, nil
}

func queryPostgres(ctx context.Context, dsn, query string) (*dataframe.Frame, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, fd := range fields {
		cols[i] = fd.Name
	}

	f := dataframe.NewFrame(cols)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		row := make([]any, len(vals))
		for i, v := range vals {
			row[i] = normalizeDBValue(v)
		}
		f.AppendRow(row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return f, nil
}

func queryStdSQL(ctx context.Context, driver, dsn, query string) (*dataframe.Frame, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	f := dataframe.NewFrame(cols)
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	row := make([]any, len(cols))
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		for i, v := range vals {
			row[i] = normalizeDBValue(v)
		}
		f.AppendRow(row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return f, nil
}

// normalizeDBValue flattens driver-specific types into the frame's value
// vocabulary.
func normalizeDBValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(t)
	case string, float64, bool, int64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return dataframe.ValueString(t)
	}
}
