package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GradScrape/internal/config"
	"GradScrape/internal/domain"
	"GradScrape/internal/ports"
)

func sampleRecord(institution string, gpa float64) domain.ApplicantRecord {
	return domain.ApplicantRecord{
		Institution:  institution,
		Program:      "Computer Science",
		DecisionDate: time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC),
		Outcome:      domain.OutcomeAccepted,
		Term:         "Fall 2024",
		Citizenship:  "International",
		Degree:       "PhD",
		GPA:          domain.Float(gpa),
		GRE:          domain.Float(325),
		Comment:      "funded",
		SourceURL:    "https://www.thegradcafe.com/result/" + institution,
		DateAdded:    "March 05, 2024",
	}
}

type storeFactory func(t *testing.T) ports.RecordStore

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"memdb": func(t *testing.T) ports.RecordStore {
			store, err := NewMemStore()
			require.NoError(t, err)
			return store
		},
		"sqlite": func(t *testing.T) ports.RecordStore {
			dsn := "file:" + filepath.Join(t.TempDir(), "records.db")
			store, err := Open(context.Background(), config.DatabaseConfig{
				Driver:      "sqlite",
				DSN:         dsn,
				AutoMigrate: true,
			})
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}
}

func insert(t *testing.T, store ports.RecordStore, rec domain.ApplicantRecord) {
	t.Helper()
	err := store.InTx(context.Background(), func(tx ports.RecordTx) error {
		return tx.Insert(context.Background(), rec)
	})
	require.NoError(t, err)
}

func TestRecordStoreContract(t *testing.T) {
	t.Parallel()

	for name, factory := range storeFactories() {
		name, factory := name, factory
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			t.Run("insert then find by key and url", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()
				rec := sampleRecord("MIT", 3.9)
				insert(t, store, rec)

				err := store.InTx(ctx, func(tx ports.RecordTx) error {
					found, ok, err := tx.FindByKey(ctx, rec.Key())
					require.NoError(t, err)
					require.True(t, ok)
					assert.Equal(t, rec.Key(), found.Key())
					assert.Equal(t, "funded", found.Comment)
					assert.NotZero(t, found.ID)
					assert.False(t, found.IngestedAt.IsZero())
					require.NotNil(t, found.GPA)
					assert.InDelta(t, 3.9, *found.GPA, 1e-9)
					assert.Nil(t, found.GREVerbal)

					byURL, ok, err := tx.FindBySourceURL(ctx, rec.SourceURL)
					require.NoError(t, err)
					require.True(t, ok)
					assert.Equal(t, found.ID, byURL.ID)

					_, ok, err = tx.FindBySourceURL(ctx, "")
					require.NoError(t, err)
					assert.False(t, ok)
					return nil
				})
				require.NoError(t, err)

				count, err := store.Count(ctx)
				require.NoError(t, err)
				assert.Equal(t, 1, count)
			})

			t.Run("duplicate insert is a conflict", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()
				rec := sampleRecord("CMU", 3.7)
				insert(t, store, rec)

				err := store.InTx(ctx, func(tx ports.RecordTx) error {
					return tx.Insert(ctx, rec)
				})
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrReconciliationConflict), "got %v", err)

				count, err := store.Count(ctx)
				require.NoError(t, err)
				assert.Equal(t, 1, count)
			})

			t.Run("update changes attributes and key", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()
				rec := sampleRecord("Stanford", 3.5)
				insert(t, store, rec)

				changed := rec
				changed.GPA = domain.Float(3.6)
				changed.Comment = "corrected"
				err := store.InTx(ctx, func(tx ports.RecordTx) error {
					return tx.Update(ctx, rec.Key(), changed)
				})
				require.NoError(t, err)

				all, err := store.All(ctx)
				require.NoError(t, err)
				require.Len(t, all, 1)
				assert.Equal(t, changed.Key(), all[0].Key())
				assert.Equal(t, "corrected", all[0].Comment)
			})

			t.Run("update of missing key is a conflict", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()
				rec := sampleRecord("Yale", 3.2)

				err := store.InTx(ctx, func(tx ports.RecordTx) error {
					return tx.Update(ctx, rec.Key(), rec)
				})
				assert.ErrorIs(t, err, domain.ErrReconciliationConflict)
			})

			t.Run("failed transaction discards writes", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()
				boom := errors.New("boom")

				err := store.InTx(ctx, func(tx ports.RecordTx) error {
					require.NoError(t, tx.Insert(ctx, sampleRecord("Harvard", 3.8)))
					return boom
				})
				assert.ErrorIs(t, err, boom)

				count, err := store.Count(ctx)
				require.NoError(t, err)
				assert.Zero(t, count)
			})

			t.Run("ping", func(t *testing.T) {
				store := factory(t)
				assert.NoError(t, store.Ping(context.Background()))
			})
		})
	}
}

func TestMemStoreAllIsOrderedByKey(t *testing.T) {
	t.Parallel()

	store, err := NewMemStore()
	require.NoError(t, err)

	insert(t, store, sampleRecord("Yale", 3.1))
	insert(t, store, sampleRecord("Berkeley", 3.2))
	insert(t, store, sampleRecord("MIT", 3.3))

	all, err := store.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Berkeley", all[0].Institution)
	assert.Equal(t, "MIT", all[1].Institution)
	assert.Equal(t, "Yale", all[2].Institution)
}

func TestMemStoreCancelledContextIsUnavailable(t *testing.T) {
	t.Parallel()

	store, err := NewMemStore()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = store.InTx(ctx, func(tx ports.RecordTx) error { return nil })
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "oracle", DSN: "x"})
	require.Error(t, err)
}

func TestOpenMemory(t *testing.T) {
	t.Parallel()

	store, err := Open(context.Background(), config.DatabaseConfig{Driver: "Memory"})
	require.NoError(t, err)
	_, ok := store.(*MemStore)
	assert.True(t, ok)
}

func TestParseDialect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{in: "postgres", want: DialectPostgres},
		{in: " PGX ", want: DialectPostgres},
		{in: "sqlite3", want: DialectSQLite},
		{in: "mysql", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseDialect(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(context.DeadlineExceeded), domain.ErrStoreUnavailable)

	plain := errors.New("syntax error")
	assert.Equal(t, plain, classify(plain))

	already := domain.ErrReconciliationConflict
	assert.Equal(t, already, classify(already))
}
