package usecase

import (
	"time"

	"GradScrape/internal/domain"
)

type noopMetrics struct{}

func (noopMetrics) GateRejected(string)                         {}
func (noopMetrics) GateBusy(bool)                               {}
func (noopMetrics) RunFinished(domain.RunStatus, time.Duration) {}
func (noopMetrics) RecordsReconciled(domain.LoadResult)         {}
func (noopMetrics) RecordsRejected(int)                         {}
func (noopMetrics) AnalysisRefreshed(string)                    {}
