package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"GradScrape/internal/domain"
	"GradScrape/internal/ports"
)

type reconcileAction int

const (
	actionInserted reconcileAction = iota
	actionSkipped
	actionUpdated
)

// Loader reconciles candidate records against the record store with
// check-before-insert semantics. Callers serialize Reconcile through the busy
// gate; the loader itself does no locking.
type Loader struct {
	store  ports.RecordStore
	logger *slog.Logger
}

// NewLoader wires the store the loader writes to.
func NewLoader(store ports.RecordStore, logger *slog.Logger) *Loader {
	return &Loader{store: store, logger: logger}
}

// Reconcile applies candidates in order, one transaction per candidate.
// Per-record failures are collected in the result; a store that became
// unavailable aborts the batch and is returned as the error, with the counts
// reached so far.
func (l *Loader) Reconcile(ctx context.Context, candidates []domain.ApplicantRecord) (domain.LoadResult, error) {
	var (
		result domain.LoadResult
		errs   *multierror.Error
	)

	for _, candidate := range candidates {
		key := candidate.Key()

		var action reconcileAction
		err := l.store.InTx(ctx, func(tx ports.RecordTx) error {
			var txErr error
			action, txErr = reconcileOne(ctx, tx, candidate)
			return txErr
		})

		switch {
		case err == nil:
			switch action {
			case actionInserted:
				result.Inserted++
			case actionUpdated:
				result.Updated++
			default:
				result.Skipped++
			}
		case errors.Is(err, domain.ErrStoreUnavailable):
			errs = multierror.Append(errs, fmt.Errorf("reconcile %s: %w", key, err))
			result.Errors = errs.ErrorOrNil()
			l.logError("record store unavailable, aborting batch", "key", key.String(), "error", err,
				"inserted", result.Inserted, "updated", result.Updated, "skipped", result.Skipped)
			return result, fmt.Errorf("reconcile %s: %w", key, err)
		case errors.Is(err, domain.ErrReconciliationConflict):
			result.Conflicts++
			errs = multierror.Append(errs, fmt.Errorf("reconcile %s: %w", key, err))
			l.logError("reconciliation conflict", "key", key.String(), "error", err)
		default:
			result.Failed++
			errs = multierror.Append(errs, fmt.Errorf("reconcile %s: %w", key, err))
			l.warn("record failed to load", "key", key.String(), "error", err)
		}
	}

	result.Errors = errs.ErrorOrNil()
	l.debug("batch reconciled", "candidates", len(candidates), "inserted", result.Inserted,
		"updated", result.Updated, "skipped", result.Skipped, "failed", result.Failed, "conflicts", result.Conflicts)
	return result, nil
}

func reconcileOne(ctx context.Context, tx ports.RecordTx, candidate domain.ApplicantRecord) (reconcileAction, error) {
	key := candidate.Key()

	existing, found, err := tx.FindByKey(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("find by key: %w", err)
	}

	if !found {
		if candidate.SourceURL != "" {
			prior, ok, err := tx.FindBySourceURL(ctx, candidate.SourceURL)
			if err != nil {
				return 0, fmt.Errorf("find by source url: %w", err)
			}
			if ok {
				// Same entry re-scraped under a new key; the newer key wins and
				// empty candidate attributes keep the stored values.
				merged, _ := prior.Merge(candidate)
				if err := tx.Update(ctx, prior.Key(), merged.WithKeyOf(candidate)); err != nil {
					return 0, fmt.Errorf("supersede %s: %w", prior.Key(), err)
				}
				return actionUpdated, nil
			}
		}

		if err := tx.Insert(ctx, candidate); err != nil {
			return 0, fmt.Errorf("insert: %w", err)
		}
		return actionInserted, nil
	}

	if candidate.SourceURL != "" && candidate.SourceURL != existing.SourceURL {
		holder, ok, err := tx.FindBySourceURL(ctx, candidate.SourceURL)
		if err != nil {
			return 0, fmt.Errorf("find by source url: %w", err)
		}
		if ok && holder.Key() != key {
			return 0, fmt.Errorf("%w: source url %s already belongs to %s", domain.ErrReconciliationConflict, candidate.SourceURL, holder.Key())
		}
	}

	merged, changed := existing.Merge(candidate)
	if !changed {
		return actionSkipped, nil
	}
	if err := tx.Update(ctx, key, merged); err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}
	return actionUpdated, nil
}

func (l *Loader) debug(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Debug(msg, args...)
	}
}

func (l *Loader) warn(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Warn(msg, args...)
	}
}

func (l *Loader) logError(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Error(msg, args...)
	}
}
