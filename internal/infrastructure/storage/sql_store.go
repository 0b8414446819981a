package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"GradScrape/internal/domain"
	"GradScrape/internal/ports"
)

const applicantsTable = "applicants"

var recordColumns = []string{
	"id", "institution", "program", "decision_date", "applicant_stats",
	"outcome", "term", "citizenship", "degree",
	"gpa", "gre", "gre_v", "gre_aw",
	"comments", "source_url", "date_added", "llm_program", "llm_university",
	"ingested_at", "updated_at",
}

// SQLStore persists applicant records through database/sql. Query text is built
// with squirrel so the same code serves Postgres and SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	builder sq.StatementBuilderType
	now     func() time.Time
}

var _ ports.RecordStore = (*SQLStore)(nil)

// NewSQLStore wires a sql.DB opened with the driver matching dialect.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(dialect.placeholder()),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates the applicants table and its indexes when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return classify(fmt.Errorf("apply schema: %w", err))
		}
	}
	return nil
}

// InTx runs fn inside one database transaction.
func (s *SQLStore) InTx(ctx context.Context, fn func(tx ports.RecordTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqlTx{tx: tx, store: s}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// All returns every stored record ordered by id.
func (s *SQLStore) All(ctx context.Context) ([]domain.ApplicantRecord, error) {
	query, args, err := s.builder.Select(recordColumns...).From(applicantsTable).OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("query records: %w", err))
	}

	var result []domain.ApplicantRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan record: %w", err)
		}
		result = append(result, record)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, classify(fmt.Errorf("rows iteration: %w", rowsErr))
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// Count returns the number of stored records.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	query, args, err := s.builder.Select("COUNT(*)").From(applicantsTable).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, classify(fmt.Errorf("count records: %w", err))
	}
	return count, nil
}

// Ping checks connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify(fmt.Errorf("ping: %w", err))
	}
	return nil
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type sqlTx struct {
	tx    *sql.Tx
	store *SQLStore
}

func (t *sqlTx) FindByKey(ctx context.Context, key domain.RecordKey) (domain.ApplicantRecord, bool, error) {
	return t.findOne(ctx, keyPredicate(key))
}

func (t *sqlTx) FindBySourceURL(ctx context.Context, url string) (domain.ApplicantRecord, bool, error) {
	if url == "" {
		return domain.ApplicantRecord{}, false, nil
	}
	return t.findOne(ctx, sq.Eq{"source_url": url})
}

func (t *sqlTx) findOne(ctx context.Context, where sq.Sqlizer) (domain.ApplicantRecord, bool, error) {
	query, args, err := t.store.builder.
		Select(recordColumns...).
		From(applicantsTable).
		Where(where).
		OrderBy("id").
		Limit(1).
		ToSql()
	if err != nil {
		return domain.ApplicantRecord{}, false, fmt.Errorf("build lookup: %w", err)
	}

	record, err := scanRecord(t.tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ApplicantRecord{}, false, nil
	}
	if err != nil {
		return domain.ApplicantRecord{}, false, classify(fmt.Errorf("lookup record: %w", err))
	}
	return record, true, nil
}

func (t *sqlTx) Insert(ctx context.Context, record domain.ApplicantRecord) error {
	key := record.Key()
	now := t.store.now()

	query, args, err := t.store.builder.
		Insert(applicantsTable).
		Columns(recordColumns[1:]...).
		Values(
			key.Institution, key.Program, key.DecisionDate, key.ApplicantStats,
			string(record.Outcome), record.Term, record.Citizenship, record.Degree,
			nullFloat(record.GPA), nullFloat(record.GRE), nullFloat(record.GREVerbal), nullFloat(record.GREWriting),
			record.Comment, record.SourceURL, record.DateAdded, record.LLMProgram, record.LLMUniversity,
			now, now,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return classify(fmt.Errorf("insert record %s: %w", key, err))
	}
	return nil
}

func (t *sqlTx) Update(ctx context.Context, prev domain.RecordKey, record domain.ApplicantRecord) error {
	key := record.Key()

	query, args, err := t.store.builder.
		Update(applicantsTable).
		SetMap(map[string]any{
			"institution":     key.Institution,
			"program":         key.Program,
			"decision_date":   key.DecisionDate,
			"applicant_stats": key.ApplicantStats,
			"outcome":         string(record.Outcome),
			"term":            record.Term,
			"citizenship":     record.Citizenship,
			"degree":          record.Degree,
			"gpa":             nullFloat(record.GPA),
			"gre":             nullFloat(record.GRE),
			"gre_v":           nullFloat(record.GREVerbal),
			"gre_aw":          nullFloat(record.GREWriting),
			"comments":        record.Comment,
			"source_url":      record.SourceURL,
			"date_added":      record.DateAdded,
			"llm_program":     record.LLMProgram,
			"llm_university":  record.LLMUniversity,
			"updated_at":      t.store.now(),
		}).
		Where(keyPredicate(prev)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(fmt.Errorf("update record %s: %w", prev, err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return classify(fmt.Errorf("rows affected: %w", err))
	}
	if affected != 1 {
		return fmt.Errorf("%w: update of %s touched %d rows", domain.ErrReconciliationConflict, prev, affected)
	}
	return nil
}

func keyPredicate(key domain.RecordKey) sq.Eq {
	return sq.Eq{
		"institution":     key.Institution,
		"program":         key.Program,
		"decision_date":   key.DecisionDate,
		"applicant_stats": key.ApplicantStats,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.ApplicantRecord, error) {
	var (
		record                domain.ApplicantRecord
		decisionDate, stats   string
		outcome               string
		gpa, gre, greV, greAW sql.NullFloat64
		ingestedAt, updatedAt flexTime
	)

	err := row.Scan(
		&record.ID, &record.Institution, &record.Program, &decisionDate, &stats,
		&outcome, &record.Term, &record.Citizenship, &record.Degree,
		&gpa, &gre, &greV, &greAW,
		&record.Comment, &record.SourceURL, &record.DateAdded, &record.LLMProgram, &record.LLMUniversity,
		&ingestedAt, &updatedAt,
	)
	if err != nil {
		return domain.ApplicantRecord{}, err
	}

	parsed, err := time.Parse(domain.DateLayout, decisionDate)
	if err != nil {
		return domain.ApplicantRecord{}, fmt.Errorf("decision date %q: %w", decisionDate, err)
	}

	record.DecisionDate = parsed
	record.Outcome = domain.Outcome(outcome)
	record.GPA = floatPtr(gpa)
	record.GRE = floatPtr(gre)
	record.GREVerbal = floatPtr(greV)
	record.GREWriting = floatPtr(greAW)
	record.IngestedAt = ingestedAt.Time
	record.UpdatedAt = updatedAt.Time

	return record, nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return domain.Float(v.Float64)
}

// flexTime scans timestamps whether the driver hands back time.Time (pgx)
// or text (SQLite without a declared time type).
type flexTime struct {
	Time time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

func (f *flexTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		f.Time = time.Time{}
		return nil
	case time.Time:
		f.Time = v.UTC()
		return nil
	case int64:
		f.Time = time.Unix(v, 0).UTC()
		return nil
	case []byte:
		return f.parse(string(v))
	case string:
		return f.parse(v)
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (f *flexTime) parse(value string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			f.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", value)
}
