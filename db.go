package makegtfs

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

var dbPragmas = map[string]string{
	"synchronous": "OFF",
}

func sqlitexNoop(stmt *sqlite.Stmt) error { return nil }

// WriteDB writes the feed into a sqlite database, one table per GTFS file
// with TEXT columns, replacing any existing file at the path.
func (f *Feed) WriteDB(path string) error {
	slog.Info(fmt.Sprintf("Writing feed to %s", path))

	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	db, err := sqlite.OpenConn(path, 0)
	if err != nil {
		return err
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	for pragma, value := range dbPragmas {
		if err := sqlitex.Exec(db, "PRAGMA "+pragma+" = "+value, sqlitexNoop); err != nil {
			return err
		}
	}

	for _, table := range f.tables() {
		if err := writeDBTable(db, table); err != nil {
			return err
		}
	}

	err = db.Close()
	db = nil
	if err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("Wrote %s", path))
	return nil
}

func writeDBTable(db *sqlite.Conn, table feedTable) error {
	var columnFragments []string
	for _, column := range table.Header {
		columnFragments = append(columnFragments, column+" TEXT")
	}
	query := fmt.Sprintf("CREATE TABLE %s (%s)", table.Name, strings.Join(columnFragments, ", "))
	if err := sqlitex.ExecTransient(db, query, sqlitexNoop); err != nil {
		return err
	}

	var argFragments []string
	for i := range table.Header {
		argFragments = append(argFragments, fmt.Sprintf("?%d", i+1))
	}
	insertStmt, err := db.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table.Name, strings.Join(table.Header, ", "), strings.Join(argFragments, ", ")))
	if err != nil {
		return err
	}

	for _, row := range table.Rows {
		if err := insertStmt.Reset(); err != nil {
			return err
		}
		if err := insertStmt.ClearBindings(); err != nil {
			return err
		}

		for i, v := range row {
			param := i + 1
			if v == "" {
				insertStmt.BindNull(param)
			} else {
				insertStmt.BindText(param, v)
			}
		}

		for {
			rowReturned, err := insertStmt.Step()
			if err != nil {
				return err
			}
			if !rowReturned {
				break
			}
		}
	}

	slog.Info(fmt.Sprintf("Wrote %d rows to table %s", len(table.Rows), table.Name))
	return nil
}
