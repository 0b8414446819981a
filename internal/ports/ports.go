package ports

import (
	"context"
	"time"

	"GradScrape/internal/domain"
)

// RawSource pulls raw survey entries from upstream providers.
type RawSource interface {
	FetchRawEntries(ctx context.Context) ([]domain.RawEntry, error)
}

// Cleaner normalizes a raw entry into a candidate record or rejects it
// with a *domain.RejectedError.
type Cleaner interface {
	Normalize(entry domain.RawEntry) (domain.ApplicantRecord, error)
}

// Standardizer maps free-text program/university names onto canonical ones.
type Standardizer interface {
	Standardize(ctx context.Context, refs []domain.ProgramRef) ([]domain.ProgramRef, error)
}

// RecordTx is the view of the record store inside one atomic unit.
type RecordTx interface {
	FindByKey(ctx context.Context, key domain.RecordKey) (domain.ApplicantRecord, bool, error)
	FindBySourceURL(ctx context.Context, url string) (domain.ApplicantRecord, bool, error)
	Insert(ctx context.Context, record domain.ApplicantRecord) error
	Update(ctx context.Context, prev domain.RecordKey, record domain.ApplicantRecord) error
}

// RecordStore persists applicant records keyed by their composite natural key.
type RecordStore interface {
	// InTx runs fn atomically; any error from fn discards its writes.
	InTx(ctx context.Context, fn func(tx RecordTx) error) error
	All(ctx context.Context) ([]domain.ApplicantRecord, error)
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Notifier streams run summaries to Telegram or other channels.
type Notifier interface {
	Publish(ctx context.Context, message string) error
}

// Metrics records coordination-layer telemetry.
type Metrics interface {
	GateRejected(operation string)
	GateBusy(busy bool)
	RunFinished(status domain.RunStatus, elapsed time.Duration)
	RecordsReconciled(result domain.LoadResult)
	RecordsRejected(n int)
	AnalysisRefreshed(status string)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
