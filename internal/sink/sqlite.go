package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"dataprep/internal/dataframe"
)

type sqliteParams struct {
	Path     string `json:"path" validate:"required"`
	Table    string `json:"table"`
	IfExists string `json:"if_exists" validate:"omitempty,oneof=fail replace append"`
}

// sqlite sink: everything lands as TEXT. SQLite applies affinity per value
// anyway and the pipeline's values are strings at this point.
func registerSQLiteSink(r *Registry) {
	r.Register(Definition{
		Kind: "sqlite", Label: "SQLite Database",
		NewParams: func() any { return &sqliteParams{} },
		Write:     writeSQLite,
	})
}

func writeSQLite(ctx context.Context, plans []dataframe.Plan, params any) (WriteResult, error) {
	p := params.(*sqliteParams)
	table := p.Table
	if table == "" {
		table = "data"
	}
	mode := p.IfExists
	if mode == "" {
		mode = "replace"
	}

	db, err := sql.Open("sqlite", p.Path)
	if err != nil {
		return WriteResult{}, fmt.Errorf("open sqlite %s: %w", p.Path, err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return WriteResult{}, fmt.Errorf("open sqlite %s: %w", p.Path, err)
	}

	var res WriteResult
	for i, plan := range plans {
		f, err := plan.Collect(ctx)
		if err != nil {
			return WriteResult{}, err
		}
		partTable := table
		if len(plans) > 1 {
			partTable = fmt.Sprintf("%s_%03d", table, i+1)
		}
		rows, err := writeTable(ctx, db, partTable, mode, f)
		if err != nil {
			return WriteResult{}, err
		}
		res.Rows += rows
	}

	res.Files = []string{p.Path}
	if info, err := os.Stat(p.Path); err == nil {
		res.BytesWritten = info.Size()
	}
	return res, nil
}

func writeTable(ctx context.Context, db *sql.DB, table, mode string, f *dataframe.Frame) (int64, error) {
	exists, err := tableExists(ctx, db, table)
	if err != nil {
		return 0, err
	}
	switch mode {
	case "fail":
		if exists {
			return 0, fmt.Errorf("table %q already exists", table)
		}
	case "replace":
		if exists {
			if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", quoteIdent(table))); err != nil {
				return 0, fmt.Errorf("drop table %s: %w", table, err)
			}
			exists = false
		}
	}

	if !exists {
		cols := make([]string, len(f.Columns()))
		for i, c := range f.Columns() {
			cols[i] = quoteIdent(c) + " TEXT"
		}
		ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(cols, ", "))
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return 0, fmt.Errorf("create table %s: %w", table, err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.Columns())), ",")
	quoted := make([]string, len(f.Columns()))
	for i, c := range f.Columns() {
		quoted[i] = quoteIdent(c)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(quoted, ", "), placeholders,
	))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	args := make([]any, len(f.Columns()))
	for i := 0; i < f.NumRows(); i++ {
		for j, v := range f.Row(i) {
			if v == nil {
				args[j] = nil
			} else {
				args[j] = dataframe.ValueString(v)
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int64(f.NumRows()), nil
}

func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return n > 0, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
