package database

import (
	"database/sql"
	"os"
	"strings"
	"time"

	"assetbank/internal/constants"
)

// DBTX is the query surface shared by *sql.DB and *sql.Tx. Mutating helpers
// take a DBTX so callers decide the transaction boundary.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// NowNanos returns the current time as unix nanoseconds, the registry's
// stored timestamp form.
func NowNanos() int64 {
	return time.Now().UTC().UnixNano()
}

// rowsPerStatement computes how many rows fit in one multi-row insert for
// the given column count while staying under the bind-parameter ceiling.
func rowsPerStatement(cols int) int {
	if cols < 1 {
		cols = 1
	}
	n := constants.MaxBindParams / cols
	if n < 1 {
		n = 1
	}
	return n
}

// chunkStrings yields successive n-sized chunks of items.
func chunkStrings(items []string, n int) [][]string {
	var out [][]string
	for i := 0; i < len(items); i += n {
		end := i + n
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

func chunkInt64s(items []int64, n int) [][]int64 {
	var out [][]int64
	for i := 0; i < len(items); i += n {
		end := i + n
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

// placeholders returns "?, ?, ..., ?" with n slots.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// valueTuples returns "(?,...),(?,...)" for rows multi-row inserts.
func valueTuples(rows, cols int) string {
	tuple := "(" + placeholders(cols) + ")"
	parts := make([]string, rows)
	for i := range parts {
		parts[i] = tuple
	}
	return strings.Join(parts, ",")
}

const likeEscapeChar = `\`

// EscapeLike escapes %, _ and the escape character in a LIKE search term.
// Queries using it must append `ESCAPE '\'`.
func EscapeLike(s string) string {
	s = strings.ReplaceAll(s, likeEscapeChar, likeEscapeChar+likeEscapeChar)
	s = strings.ReplaceAll(s, "%", likeEscapeChar+"%")
	s = strings.ReplaceAll(s, "_", likeEscapeChar+"_")
	return s
}

// prefixPattern builds the LIKE pattern matching paths strictly under dir.
func prefixPattern(dir string) string {
	base := dir
	if !strings.HasSuffix(base, pathSeparator) {
		base += pathSeparator
	}
	return EscapeLike(base) + "%"
}

var pathSeparator = string(os.PathSeparator)

// WithTx runs fn inside a transaction, rolling back on error or panic.
func WithTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
