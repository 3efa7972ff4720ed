package hydrate

import (
	"context"
	"sync"
)

// StaticSource serves a fixed bundle, with optional per-fetch error
// injection. It backs tests and the demo mode of the daemon.
type StaticSource struct {
	mu     sync.RWMutex
	Bundle Bundle
	// Errs maps a sub-fetch name (FetchMetrics, ...) to the error that
	// fetch should return.
	Errs map[string]error
}

// NewStaticSource returns a source serving the given bundle.
func NewStaticSource(b Bundle) *StaticSource {
	return &StaticSource{Bundle: b}
}

// FailWith injects an error for one named sub-fetch.
func (s *StaticSource) FailWith(fetch string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Errs == nil {
		s.Errs = make(map[string]error)
	}
	s.Errs[fetch] = err
}

func (s *StaticSource) errFor(fetch string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Errs[fetch]
}

func (s *StaticSource) FetchMetrics(_ context.Context, _ string) (map[string]any, error) {
	if err := s.errFor(FetchMetrics); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Bundle.Metrics, nil
}

func (s *StaticSource) FetchDiscoveries(_ context.Context, _ string) ([]Discovery, error) {
	if err := s.errFor(FetchDiscoveries); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Bundle.Discoveries, nil
}

func (s *StaticSource) FetchSystemMap(_ context.Context, _ string) (*SystemMap, error) {
	if err := s.errFor(FetchSystemMap); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Bundle.SystemMap, nil
}

func (s *StaticSource) FetchPersonas(_ context.Context, _ string) ([]Persona, error) {
	if err := s.errFor(FetchPersonas); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Bundle.Personas, nil
}

func (s *StaticSource) FetchKPITargets(_ context.Context, _ string) ([]KPITarget, error) {
	if err := s.errFor(FetchKPITargets); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Bundle.KPITargets, nil
}

func (s *StaticSource) FetchRealization(_ context.Context, _ string) (*RealizationReport, error) {
	if err := s.errFor(FetchRealization); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Bundle.Realization, nil
}
