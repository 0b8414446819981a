package domain

import "time"

// RunStatus is the terminal status of an ingestion run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// Stage names the pipeline steps in execution order.
type Stage string

const (
	StageExtract Stage = "extract"
	StageClean   Stage = "clean"
	StageLoad    Stage = "load"
)

// Trigger records what started a run.
type Trigger string

const (
	TriggerHTTP      Trigger = "http"
	TriggerScheduler Trigger = "scheduler"
	TriggerCLI       Trigger = "cli"
	TriggerSeed      Trigger = "seed"
)

// TriggerStatus is the immediate answer to a gated trigger.
type TriggerStatus string

const (
	StatusStarted TriggerStatus = "started"
	StatusBusy    TriggerStatus = "busy"
)

// StageOutcome captures one pipeline step.
type StageOutcome struct {
	Stage  Stage  `json:"stage"`
	Input  int    `json:"input"`
	Output int    `json:"output"`
	Error  string `json:"error,omitempty"`
}

// LoadResult counts reconciliation decisions for one batch.
type LoadResult struct {
	Inserted  int `json:"inserted"`
	Skipped   int `json:"skipped"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
	Conflicts int `json:"conflicts"`
	// Errors holds per-record failures; nil when every candidate reconciled.
	Errors error `json:"-"`
}

// IngestionRun is the in-memory summary of one pipeline execution.
type IngestionRun struct {
	Trigger    Trigger        `json:"trigger"`
	Status     RunStatus      `json:"status"`
	Stages     []StageOutcome `json:"stages"`
	Load       LoadResult     `json:"load"`
	Rejected   int            `json:"rejected"`
	Errors     []string       `json:"errors,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Duration is the wall time between start and finish.
func (r IngestionRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RefreshResult is the answer to an analysis refresh.
type RefreshResult struct {
	Status  TriggerStatus `json:"status"`
	Summary *Aggregates   `json:"summary,omitempty"`
}
