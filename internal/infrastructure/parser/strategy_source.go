package parser

import (
	"context"
	"fmt"
	"log/slog"

	"GradScrape/internal/config"
	"GradScrape/internal/domain"
	"GradScrape/internal/ports"
	"GradScrape/internal/scanner"
)

// StrategySource implements RawSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sources  []config.SourceConfig
	logger   *slog.Logger
}

var _ ports.RawSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sources.
func NewStrategySource(reg *scanner.Registry, sources []config.SourceConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sources:  sources,
		logger:   log,
	}
}

// FetchRawEntries runs every configured source in order and concatenates
// their entries. Any failing source fails the whole extraction.
func (s *StrategySource) FetchRawEntries(ctx context.Context) ([]domain.RawEntry, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	s.debug("fetch raw entries", "sources", len(s.sources))

	var aggregated []domain.RawEntry
	for _, src := range s.sources {
		s.debug("process source", "source", src.Name, "scanner", src.Scanner)
		strategy, err := s.registry.Resolve(src.Scanner)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}

		req := scanner.Request{
			SourceName: src.Name,
			URL:        src.URL,
			StartPage:  src.StartPage,
			EndPage:    src.EndPage,
			Options:    src.Options,
		}

		results, err := strategy.Scan(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("scan source %s: %w", src.Name, err)
		}

		s.debug("source produced entries", "source", src.Name, "count", len(results))
		aggregated = append(aggregated, results...)
	}

	s.debug("strategy source done", "total_entries", len(aggregated))
	return aggregated, nil
}

// ForSources returns a copy bound to a different source list (seeding).
func (s *StrategySource) ForSources(sources []config.SourceConfig) *StrategySource {
	return NewStrategySource(s.registry, sources, s.logger)
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
