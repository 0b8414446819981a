package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"GradScrape/internal/cleaning"
	"GradScrape/internal/domain"
	"GradScrape/internal/gate"
	"GradScrape/internal/ports"
)

const operationPull = "pull"

// IngestionDeps wires all driven adapters into the ingestion pipeline.
type IngestionDeps struct {
	Gate         *gate.BusyGate
	Source       ports.RawSource
	Cleaner      ports.Cleaner
	Standardizer ports.Standardizer
	Loader       *Loader
	Notifier     ports.Notifier
	Metrics      ports.Metrics
	Logger       *slog.Logger
	// BaseContext parents background runs; request contexts never do.
	BaseContext context.Context
}

// Ingestion runs extract → clean → load under the busy gate.
type Ingestion struct {
	gate         *gate.BusyGate
	source       ports.RawSource
	cleaner      ports.Cleaner
	standardizer ports.Standardizer
	loader       *Loader
	notifier     ports.Notifier
	metrics      ports.Metrics
	logger       *slog.Logger
	baseCtx      context.Context
	now          func() time.Time

	wg      sync.WaitGroup
	mu      sync.RWMutex
	lastRun *domain.IngestionRun
}

// NewIngestion constructs the orchestration component.
func NewIngestion(deps IngestionDeps) *Ingestion {
	base := deps.BaseContext
	if base == nil {
		base = context.Background()
	}
	g := deps.Gate
	if g == nil {
		g = gate.New()
	}
	m := deps.Metrics
	if m == nil {
		m = noopMetrics{}
	}
	return &Ingestion{
		gate:         g,
		source:       deps.Source,
		cleaner:      deps.Cleaner,
		standardizer: deps.Standardizer,
		loader:       deps.Loader,
		notifier:     deps.Notifier,
		metrics:      m,
		logger:       deps.Logger,
		baseCtx:      context.WithoutCancel(base),
		now:          time.Now,
	}
}

// StartPull claims the gate and runs the pipeline in the background.
// It never blocks on the run itself.
func (i *Ingestion) StartPull(trigger domain.Trigger) domain.TriggerStatus {
	if !i.gate.TryAcquire() {
		i.metrics.GateRejected(operationPull)
		i.debug("pull rejected, gate busy", "trigger", trigger)
		return domain.StatusBusy
	}
	i.metrics.GateBusy(true)

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		defer i.release()
		_, _ = i.execute(i.baseCtx, trigger)
	}()

	return domain.StatusStarted
}

// RunOnce executes the pipeline synchronously under the gate. It returns
// domain.ErrGateBusy when another run or refresh holds the gate.
func (i *Ingestion) RunOnce(ctx context.Context, trigger domain.Trigger) (domain.IngestionRun, error) {
	if !i.gate.TryAcquire() {
		i.metrics.GateRejected(operationPull)
		return domain.IngestionRun{}, domain.ErrGateBusy
	}
	i.metrics.GateBusy(true)
	defer i.release()

	return i.execute(ctx, trigger)
}

// Wait blocks until every background run started so far has finished.
func (i *Ingestion) Wait() {
	i.wg.Wait()
}

// LastRun returns the most recently finished run, if any.
func (i *Ingestion) LastRun() (domain.IngestionRun, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.lastRun == nil {
		return domain.IngestionRun{}, false
	}
	return *i.lastRun, true
}

// Busy reports whether the shared gate is held.
func (i *Ingestion) Busy() bool {
	return i.gate.Busy()
}

func (i *Ingestion) release() {
	i.metrics.GateBusy(false)
	i.gate.Release()
}

func (i *Ingestion) execute(ctx context.Context, trigger domain.Trigger) (run domain.IngestionRun, err error) {
	run = domain.IngestionRun{Trigger: trigger, Status: domain.RunSuccess, StartedAt: i.now().UTC()}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ingestion panicked: %v", r)
			run.Status = domain.RunFailed
			run.Errors = append(run.Errors, err.Error())
		}
		run.FinishedAt = i.now().UTC()
		i.finish(ctx, run)
	}()

	i.debug("ingestion started", "trigger", trigger)

	entries, err := i.extract(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrExtraction, err)
		run.Status = domain.RunFailed
		run.Stages = append(run.Stages, domain.StageOutcome{Stage: domain.StageExtract, Error: err.Error()})
		run.Errors = append(run.Errors, err.Error())
		return run, err
	}
	run.Stages = append(run.Stages, domain.StageOutcome{Stage: domain.StageExtract, Output: len(entries)})

	candidates, rejected := i.clean(ctx, entries)
	run.Rejected = rejected
	run.Stages = append(run.Stages, domain.StageOutcome{
		Stage:  domain.StageClean,
		Input:  len(entries),
		Output: len(candidates),
	})

	result, err := i.load(ctx, candidates)
	run.Load = result
	run.Errors = append(run.Errors, errorStrings(result.Errors)...)
	loadStage := domain.StageOutcome{
		Stage:  domain.StageLoad,
		Input:  len(candidates),
		Output: result.Inserted + result.Updated + result.Skipped,
	}
	if err != nil {
		loadStage.Error = err.Error()
		run.Stages = append(run.Stages, loadStage)
		run.Status = domain.RunFailed
		return run, err
	}
	run.Stages = append(run.Stages, loadStage)

	if result.Failed > 0 || result.Conflicts > 0 {
		run.Status = domain.RunPartial
	}
	return run, nil
}

func (i *Ingestion) extract(ctx context.Context) ([]domain.RawEntry, error) {
	if i.source == nil {
		return nil, nil
	}
	entries, err := i.source.FetchRawEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch raw entries: %w", err)
	}
	return entries, nil
}

func (i *Ingestion) clean(ctx context.Context, entries []domain.RawEntry) ([]domain.ApplicantRecord, int) {
	if i.cleaner == nil || len(entries) == 0 {
		return nil, 0
	}

	candidates := make([]domain.ApplicantRecord, 0, len(entries))
	rejected := 0
	for _, entry := range entries {
		record, err := i.cleaner.Normalize(entry)
		if err != nil {
			rejected++
			if domain.IsRejected(err) {
				i.debug("entry rejected", "university", entry.University, "program", entry.Program, "reason", err)
			} else {
				i.warn("entry could not be cleaned", "university", entry.University, "program", entry.Program, "error", err)
			}
			continue
		}
		candidates = append(candidates, record)
	}

	i.standardize(ctx, candidates)
	return candidates, rejected
}

// standardize fills LLM program/university names in place. Service failures
// fall back to the deterministic split rule.
func (i *Ingestion) standardize(ctx context.Context, records []domain.ApplicantRecord) {
	if len(records) == 0 {
		return
	}

	var standardized []domain.ProgramRef
	if i.standardizer != nil {
		refs := make([]domain.ProgramRef, len(records))
		for idx, record := range records {
			refs[idx] = domain.ProgramRef{Program: record.Program, University: record.Institution}
		}

		out, err := i.standardizer.Standardize(ctx, refs)
		switch {
		case err != nil:
			i.warn("standardization failed, using fallback", "error", err)
		case len(out) != len(refs):
			i.warn("standardization returned wrong row count, using fallback", "want", len(refs), "got", len(out))
		default:
			standardized = out
		}
	}

	for idx := range records {
		program, university := cleaning.SplitProgram(records[idx].Program + ", " + records[idx].Institution)
		if standardized != nil {
			if v := strings.TrimSpace(standardized[idx].LLMProgram); v != "" {
				program = v
			}
			if v := strings.TrimSpace(standardized[idx].LLMUniversity); v != "" {
				university = v
			}
		}
		records[idx].LLMProgram = program
		records[idx].LLMUniversity = university
	}
}

func (i *Ingestion) load(ctx context.Context, candidates []domain.ApplicantRecord) (domain.LoadResult, error) {
	if i.loader == nil || len(candidates) == 0 {
		return domain.LoadResult{}, nil
	}
	return i.loader.Reconcile(ctx, candidates)
}

func (i *Ingestion) finish(ctx context.Context, run domain.IngestionRun) {
	i.mu.Lock()
	i.lastRun = &run
	i.mu.Unlock()

	i.metrics.RunFinished(run.Status, run.Duration())
	i.metrics.RecordsReconciled(run.Load)
	i.metrics.RecordsRejected(run.Rejected)

	if i.logger != nil {
		level := slog.LevelInfo
		if run.Status != domain.RunSuccess {
			level = slog.LevelWarn
		}
		i.logger.Log(ctx, level, "ingestion finished",
			"trigger", run.Trigger,
			"status", run.Status,
			"inserted", run.Load.Inserted,
			"updated", run.Load.Updated,
			"skipped", run.Load.Skipped,
			"failed", run.Load.Failed,
			"conflicts", run.Load.Conflicts,
			"rejected", run.Rejected,
			"duration", run.Duration())
	}

	if i.notifier == nil {
		return
	}
	if err := i.notifier.Publish(ctx, buildRunMessage(run)); err != nil {
		i.warn("publish run summary", "error", err)
	}
}

func buildRunMessage(run domain.IngestionRun) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ingestion %s (%s)\n", run.Status, run.Trigger)
	fmt.Fprintf(&b, "Inserted: %d, updated: %d, skipped: %d\n", run.Load.Inserted, run.Load.Updated, run.Load.Skipped)
	if run.Load.Failed > 0 || run.Load.Conflicts > 0 {
		fmt.Fprintf(&b, "Failed: %d, conflicts: %d\n", run.Load.Failed, run.Load.Conflicts)
	}
	if run.Rejected > 0 {
		fmt.Fprintf(&b, "Rejected entries: %d\n", run.Rejected)
	}
	fmt.Fprintf(&b, "Took %s", run.Duration().Round(time.Millisecond))
	if len(run.Errors) > 0 {
		fmt.Fprintf(&b, "\nFirst error: %s", run.Errors[0])
	}
	return b.String()
}

func errorStrings(err error) []string {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		out := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

func (i *Ingestion) debug(msg string, args ...any) {
	if i.logger != nil {
		i.logger.Debug(msg, args...)
	}
}

func (i *Ingestion) warn(msg string, args ...any) {
	if i.logger != nil {
		i.logger.Warn(msg, args...)
	}
}
