package storage

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect selects placeholder style and DDL for a SQL backend.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// ParseDialect accepts the configured driver name.
func ParseDialect(value string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported sql dialect %q", value)
	}
}

func (d Dialect) driverName() string {
	if d == DialectSQLite {
		return "sqlite"
	}
	return "pgx"
}

func (d Dialect) placeholder() sq.PlaceholderFormat {
	if d == DialectSQLite {
		return sq.Question
	}
	return sq.Dollar
}

func (d Dialect) schema() []string {
	idType, floatType, timeType := "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION", "TIMESTAMPTZ"
	if d == DialectSQLite {
		idType, floatType, timeType = "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL", "TIMESTAMP"
	}

	table := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
	id              %[2]s,
	institution     TEXT NOT NULL,
	program         TEXT NOT NULL,
	decision_date   TEXT NOT NULL,
	applicant_stats TEXT NOT NULL,
	outcome         TEXT NOT NULL,
	term            TEXT NOT NULL DEFAULT '',
	citizenship     TEXT NOT NULL DEFAULT '',
	degree          TEXT NOT NULL DEFAULT '',
	gpa             %[3]s,
	gre             %[3]s,
	gre_v           %[3]s,
	gre_aw          %[3]s,
	comments        TEXT NOT NULL DEFAULT '',
	source_url      TEXT NOT NULL DEFAULT '',
	date_added      TEXT NOT NULL DEFAULT '',
	llm_program     TEXT NOT NULL DEFAULT '',
	llm_university  TEXT NOT NULL DEFAULT '',
	ingested_at     %[4]s NOT NULL,
	updated_at      %[4]s NOT NULL
)`, applicantsTable, idType, floatType, timeType)

	return []string{
		table,
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %[1]s_natural_key
	ON %[1]s (institution, program, decision_date, applicant_stats)`, applicantsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_source_url ON %[1]s (source_url)`, applicantsTable),
	}
}
