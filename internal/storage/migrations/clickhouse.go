package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	chstore "swap-guard/internal/storage/clickhouse"
)

const createClickhouseMigrations = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		name       String,
		applied_at DateTime DEFAULT now()
	)
	ENGINE = ReplacingMergeTree(applied_at)
	ORDER BY name
`

// RunClickhouseMigrations creates the database named in dsn if needed, applies
// the embedded SQL files not yet recorded in schema_migrations and returns a
// connection to that database. Files are applied statement by statement, so a
// failed file is retried from the start on the next run; statements must be
// idempotent (IF NOT EXISTS).
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	target, err := chstore.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if target.Database == "" {
		return nil, fmt.Errorf("clickhouse dsn %q names no database", target.Redacted())
	}

	if err := createDatabase(ctx, target); err != nil {
		return nil, err
	}

	conn, err := chstore.Open(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db: %w", err)
	}
	if err := applyClickhouse(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func createDatabase(ctx context.Context, target chstore.DSN) error {
	admin := target
	admin.Database = ""
	conn, err := chstore.Open(ctx, admin)
	if err != nil {
		return fmt.Errorf("connect clickhouse admin: %w", err)
	}
	defer conn.Close()

	if err := conn.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+quoteIdent(target.Database)); err != nil {
		return fmt.Errorf("create database %s: %w", target.Database, err)
	}
	return nil
}

func applyClickhouse(ctx context.Context, conn *chstore.Conn) error {
	if err := conn.Exec(ctx, createClickhouseMigrations); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	done := make(map[string]bool)
	rows, err := conn.Query(ctx, `SELECT name FROM schema_migrations FINAL`)
	if err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("scan applied migration: %w", err)
		}
		done[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}

	files, err := sqlFiles(ClickhouseFS, "clickhouse")
	if err != nil {
		return err
	}
	for _, file := range files {
		if done[file] {
			continue
		}
		data, err := fs.ReadFile(ClickhouseFS, "clickhouse/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		stmts, err := splitStatements(string(data))
		if err != nil {
			return fmt.Errorf("parse migration %s: %w", file, err)
		}
		for i, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s (statement %d): %w", file, i+1, err)
			}
		}
		if err := conn.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES (?)`, file); err != nil {
			return fmt.Errorf("record migration %s: %w", file, err)
		}
	}
	return nil
}

// splitStatements breaks a SQL script into statements at top-level
// semicolons. Quoted strings, backquoted identifiers and both comment styles
// are honoured; comments are dropped from the output.
func splitStatements(script string) ([]string, error) {
	var (
		stmts []string
		cur   strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			for i < len(script) && script[i] != '\n' {
				i++
			}
			cur.WriteByte('\n')
		case c == '/' && i+1 < len(script) && script[i+1] == '*':
			end := strings.Index(script[i+2:], "*/")
			if end < 0 {
				return nil, fmt.Errorf("unterminated block comment at offset %d", i)
			}
			i += end + 3
			cur.WriteByte(' ')
		case c == '\'' || c == '"' || c == '`':
			end, err := closingQuote(script, i)
			if err != nil {
				return nil, err
			}
			cur.WriteString(script[i : end+1])
			i = end
		case c == ';':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return stmts, nil
}

// closingQuote returns the offset of the quote closing the one at start.
// Doubled quotes and backslash escapes stay inside the literal.
func closingQuote(script string, start int) (int, error) {
	q := script[start]
	for i := start + 1; i < len(script); i++ {
		switch script[i] {
		case '\\':
			i++
		case q:
			if i+1 < len(script) && script[i+1] == q {
				i++
				continue
			}
			return i, nil
		}
	}
	return 0, fmt.Errorf("unterminated %c literal at offset %d", q, start)
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
