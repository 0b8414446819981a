package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GradScrape/internal/domain"
)

func TestReconcileIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newMemStore(t)
	loader := NewLoader(store, nil)
	batch := []domain.ApplicantRecord{
		candidate("MIT", 3.9, "funded"),
		candidate("CMU", 3.7, ""),
		candidate("Stanford", 3.8, "interview first"),
	}

	first, err := loader.Reconcile(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Inserted)
	assert.Zero(t, first.Updated)

	second, err := loader.Reconcile(context.Background(), batch)
	require.NoError(t, err)
	assert.Zero(t, second.Inserted)
	assert.Zero(t, second.Updated)
	assert.Equal(t, 3, second.Skipped)
	assert.NoError(t, second.Errors)
	assert.Equal(t, 3, countRecords(t, store))
}

func TestReconcileUpdatesChangedAttributes(t *testing.T) {
	t.Parallel()

	store := newMemStore(t)
	loader := NewLoader(store, nil)
	ctx := context.Background()

	_, err := loader.Reconcile(ctx, []domain.ApplicantRecord{candidate("MIT", 3.9, "old comment")})
	require.NoError(t, err)

	res, err := loader.Reconcile(ctx, []domain.ApplicantRecord{candidate("MIT", 3.9, "new comment")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Zero(t, res.Inserted)

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "new comment", all[0].Comment)
}

func TestReconcileEmptyAttributesNeverEraseStoredData(t *testing.T) {
	t.Parallel()

	store := newMemStore(t)
	loader := NewLoader(store, nil)
	ctx := context.Background()

	_, err := loader.Reconcile(ctx, []domain.ApplicantRecord{candidate("MIT", 3.9, "keep me")})
	require.NoError(t, err)

	sparse := candidate("MIT", 3.9, "")
	sparse.Citizenship = ""
	sparse.Outcome = domain.OutcomeOther
	res, err := loader.Reconcile(ctx, []domain.ApplicantRecord{sparse})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "keep me", all[0].Comment)
	assert.Equal(t, "American", all[0].Citizenship)
	assert.Equal(t, domain.OutcomeAccepted, all[0].Outcome)
}

func TestReconcileInBatchDuplicates(t *testing.T) {
	t.Parallel()

	t.Run("identical repeat is skipped", func(t *testing.T) {
		t.Parallel()
		store := newMemStore(t)
		rec := candidate("Yale", 3.4, "same")

		res, err := NewLoader(store, nil).Reconcile(context.Background(), []domain.ApplicantRecord{rec, rec})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Inserted)
		assert.Equal(t, 1, res.Skipped)
		assert.Equal(t, 1, countRecords(t, store))
	})

	t.Run("differing repeat wins", func(t *testing.T) {
		t.Parallel()
		store := newMemStore(t)

		res, err := NewLoader(store, nil).Reconcile(context.Background(), []domain.ApplicantRecord{
			candidate("Yale", 3.4, "first"),
			candidate("Yale", 3.4, "second"),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Inserted)
		assert.Equal(t, 1, res.Updated)

		all, err := store.All(context.Background())
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "second", all[0].Comment)
	})
}

func TestReconcileSourceURLSupersedesRekeyedEntry(t *testing.T) {
	t.Parallel()

	store := newMemStore(t)
	loader := NewLoader(store, nil)
	ctx := context.Background()

	original := candidate("Princeton", 3.6, "")
	original.GPA = nil
	original.SourceURL = "https://www.thegradcafe.com/result/77"
	_, err := loader.Reconcile(ctx, []domain.ApplicantRecord{original})
	require.NoError(t, err)

	rescraped := candidate("Princeton", 3.6, "gpa added later")
	rescraped.SourceURL = original.SourceURL
	require.NotEqual(t, original.Key(), rescraped.Key())

	res, err := loader.Reconcile(ctx, []domain.ApplicantRecord{rescraped})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Zero(t, res.Inserted)

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, rescraped.Key(), all[0].Key())
	assert.Equal(t, "gpa added later", all[0].Comment)
}

func TestReconcileSupersedeKeepsStoredAttributes(t *testing.T) {
	t.Parallel()

	store := newMemStore(t)
	loader := NewLoader(store, nil)
	ctx := context.Background()

	original := candidate("Princeton", 3.6, "great interview")
	original.GPA = nil
	original.SourceURL = "https://www.thegradcafe.com/result/78"
	_, err := loader.Reconcile(ctx, []domain.ApplicantRecord{original})
	require.NoError(t, err)

	rescraped := candidate("Princeton", 3.6, "")
	rescraped.Citizenship = ""
	rescraped.SourceURL = original.SourceURL

	res, err := loader.Reconcile(ctx, []domain.ApplicantRecord{rescraped})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, rescraped.Key(), all[0].Key())
	assert.Equal(t, "great interview", all[0].Comment)
	assert.Equal(t, "American", all[0].Citizenship)
	assert.Equal(t, original.SourceURL, all[0].SourceURL)
}

func TestReconcileRejectsSourceURLHeldByAnotherRecord(t *testing.T) {
	t.Parallel()

	store := newMemStore(t)
	loader := NewLoader(store, nil)
	ctx := context.Background()

	holder := candidate("Harvard", 3.9, "")
	holder.SourceURL = "https://www.thegradcafe.com/result/90"
	other := candidate("Brown", 3.2, "")
	_, err := loader.Reconcile(ctx, []domain.ApplicantRecord{holder, other})
	require.NoError(t, err)

	claim := other
	claim.SourceURL = holder.SourceURL
	res, err := loader.Reconcile(ctx, []domain.ApplicantRecord{claim})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Conflicts)
	assert.Zero(t, res.Updated)
	assert.ErrorIs(t, res.Errors, domain.ErrReconciliationConflict)

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	withURL := 0
	for _, rec := range all {
		if rec.SourceURL != "" {
			withURL++
			assert.Equal(t, "Harvard", rec.Institution)
		}
	}
	assert.Equal(t, 1, withURL)
}

func TestReconcileDistinguishesFineGrainedGPA(t *testing.T) {
	t.Parallel()

	store := newMemStore(t)
	loader := NewLoader(store, nil)
	ctx := context.Background()

	_, err := loader.Reconcile(ctx, []domain.ApplicantRecord{candidate("Duke", 3.751, "")})
	require.NoError(t, err)

	res, err := loader.Reconcile(ctx, []domain.ApplicantRecord{candidate("Duke", 3.754, "")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Zero(t, res.Skipped)

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.ElementsMatch(t, []float64{3.751, 3.754}, []float64{*all[0].GPA, *all[1].GPA})
}

func TestReconcileAbortsWhenStoreUnavailable(t *testing.T) {
	t.Parallel()

	store := &faultyStore{
		RecordStore: newMemStore(t),
		fail: func(call int) error {
			if call == 2 {
				return fmt.Errorf("%w: connection reset", domain.ErrStoreUnavailable)
			}
			return nil
		},
	}

	res, err := NewLoader(store, nil).Reconcile(context.Background(), []domain.ApplicantRecord{
		candidate("A", 3.1, ""),
		candidate("B", 3.2, ""),
		candidate("C", 3.3, ""),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, 1, res.Inserted, "records before the failure stay committed")
	assert.Equal(t, 2, store.Calls(), "remaining records must not be attempted")
	assert.Equal(t, 1, countRecords(t, store))
}

func TestReconcileContinuesPastRecordFailures(t *testing.T) {
	t.Parallel()

	store := &faultyStore{
		RecordStore: newMemStore(t),
		fail: func(call int) error {
			switch call {
			case 1:
				return errors.New("value too long")
			case 2:
				return fmt.Errorf("%w: duplicate key", domain.ErrReconciliationConflict)
			}
			return nil
		},
	}

	res, err := NewLoader(store, nil).Reconcile(context.Background(), []domain.ApplicantRecord{
		candidate("A", 3.1, ""),
		candidate("B", 3.2, ""),
		candidate("C", 3.3, ""),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Conflicts)
	assert.Equal(t, 1, res.Inserted)
	require.Error(t, res.Errors)
	assert.ErrorIs(t, res.Errors, domain.ErrReconciliationConflict)
	assert.Len(t, errorStrings(res.Errors), 2)
}

func TestReconcileEmptyBatch(t *testing.T) {
	t.Parallel()

	res, err := NewLoader(newMemStore(t), nil).Reconcile(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.LoadResult{}, res)
}
