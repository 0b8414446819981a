package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"GradScrape/internal/domain"
	"GradScrape/internal/gate"
	"GradScrape/internal/ports"
)

const operationAnalysis = "analysis"

// AnalysisDeps wires the aggregator.
type AnalysisDeps struct {
	Gate    *gate.BusyGate
	Store   ports.RecordStore
	Metrics ports.Metrics
	Logger  *slog.Logger
}

// Analysis recomputes summary statistics from the record store. It shares
// the busy gate with ingestion so it never reads a half-loaded batch.
type Analysis struct {
	gate    *gate.BusyGate
	store   ports.RecordStore
	metrics ports.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.RWMutex
	latest *domain.Aggregates
}

// NewAnalysis constructs the aggregator.
func NewAnalysis(deps AnalysisDeps) *Analysis {
	g := deps.Gate
	if g == nil {
		g = gate.New()
	}
	m := deps.Metrics
	if m == nil {
		m = noopMetrics{}
	}
	return &Analysis{
		gate:    g,
		store:   deps.Store,
		metrics: m,
		logger:  deps.Logger,
		now:     time.Now,
	}
}

// Refresh recomputes aggregates while holding the gate. A held gate yields
// a busy result and a nil error; nothing is read.
func (a *Analysis) Refresh(ctx context.Context) (domain.RefreshResult, error) {
	if !a.gate.TryAcquire() {
		a.metrics.GateRejected(operationAnalysis)
		a.metrics.AnalysisRefreshed(string(domain.StatusBusy))
		return domain.RefreshResult{Status: domain.StatusBusy}, nil
	}
	a.metrics.GateBusy(true)
	defer func() {
		a.metrics.GateBusy(false)
		a.gate.Release()
	}()

	records, err := a.store.All(ctx)
	if err != nil {
		a.metrics.AnalysisRefreshed("error")
		return domain.RefreshResult{}, fmt.Errorf("load records: %w", err)
	}

	summary := Aggregate(records, a.now().UTC())

	a.mu.Lock()
	a.latest = &summary
	a.mu.Unlock()

	a.metrics.AnalysisRefreshed(string(domain.StatusStarted))
	if a.logger != nil {
		a.logger.Info("analysis refreshed", "records", summary.Total, "top_institution", summary.TopInstitution)
	}

	return domain.RefreshResult{Status: domain.StatusStarted, Summary: &summary}, nil
}

// Latest returns the last computed summary without touching the store.
func (a *Analysis) Latest() (domain.Aggregates, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.latest == nil {
		return domain.Aggregates{}, false
	}
	return *a.latest, true
}

// Busy reports whether the shared gate is held.
func (a *Analysis) Busy() bool {
	return a.gate.Busy()
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v *float64) {
	if v == nil {
		return
	}
	m.sum += *v
	m.n++
}

func (m mean) value() *float64 {
	if m.n == 0 {
		return nil
	}
	return domain.Float(round2(m.sum / float64(m.n)))
}

type termAcc struct {
	applicants, accepted          int
	gpa, gpaAccepted, gpaAmerican mean
}

// Aggregate reduces records into summary statistics. Records are reduced in
// composite-key order, so the result does not depend on store iteration order.
func Aggregate(records []domain.ApplicantRecord, now time.Time) domain.Aggregates {
	sorted := make([]domain.ApplicantRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Key().Less(sorted[j].Key())
	})

	agg := domain.Aggregates{
		Total:         len(sorted),
		ByOutcome:     map[domain.Outcome]int{},
		ByInstitution: map[string]domain.InstitutionStats{},
		ByTerm:        map[string]domain.TermStats{},
		ComputedAt:    now,
	}

	var (
		gpa, gre, greV, greAW mean
		international         int
		terms                 = map[string]*termAcc{}
	)

	for _, r := range sorted {
		accepted := r.Outcome == domain.OutcomeAccepted

		agg.ByOutcome[r.Outcome]++

		inst := agg.ByInstitution[r.Institution]
		inst.Applicants++
		if accepted {
			inst.Accepted++
		}
		agg.ByInstitution[r.Institution] = inst

		gpa.add(r.GPA)
		gre.add(r.GRE)
		greV.add(r.GREVerbal)
		greAW.add(r.GREWriting)

		if r.Citizenship == "International" {
			international++
		}
		if r.Outcome == domain.OutcomeRejected && r.GPA == nil {
			agg.RejectedMissingGPA++
		}

		if r.Term != "" {
			acc := terms[r.Term]
			if acc == nil {
				acc = &termAcc{}
				terms[r.Term] = acc
			}
			acc.applicants++
			acc.gpa.add(r.GPA)
			if accepted {
				acc.accepted++
				acc.gpaAccepted.add(r.GPA)
			}
			if r.Citizenship == "American" {
				acc.gpaAmerican.add(r.GPA)
			}
		}
	}

	agg.AvgGPA = gpa.value()
	agg.AvgGRE = gre.value()
	agg.AvgGREVerbal = greV.value()
	agg.AvgGREWriting = greAW.value()
	agg.PercentInternational = percent(international, agg.Total)

	for name, inst := range agg.ByInstitution {
		inst.AcceptanceRate = percent(inst.Accepted, inst.Applicants)
		agg.ByInstitution[name] = inst

		if inst.Accepted > agg.TopAcceptances ||
			(inst.Accepted == agg.TopAcceptances && inst.Accepted > 0 && name < agg.TopInstitution) {
			agg.TopInstitution = name
			agg.TopAcceptances = inst.Accepted
		}
	}

	for term, acc := range terms {
		agg.ByTerm[term] = domain.TermStats{
			Applicants:     acc.applicants,
			Accepted:       acc.accepted,
			AcceptanceRate: percent(acc.accepted, acc.applicants),
			AvgGPA:         acc.gpa.value(),
			AvgGPAAccepted: acc.gpaAccepted.value(),
			AvgGPAAmerican: acc.gpaAmerican.value(),
		}
	}

	return agg
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) * 100 / float64(total))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
