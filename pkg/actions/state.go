package actions

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Blueprint-Labs/blueprint/core/pkg/hydrate"
	"github.com/Blueprint-Labs/blueprint/core/pkg/schema"
)

// MemoryWorkspaceStore is an in-process implementation of the handler-side
// write interfaces. It backs demo mode and tests; production wires the
// data layer's own writers instead.
type MemoryWorkspaceStore struct {
	mu          sync.RWMutex
	discoveries map[string][]hydrate.Discovery
	stages      map[string]schema.LifecycleStage
	feedback    map[string][]string
	logger      *slog.Logger
}

// NewMemoryWorkspaceStore creates an empty store.
func NewMemoryWorkspaceStore() *MemoryWorkspaceStore {
	return &MemoryWorkspaceStore{
		discoveries: make(map[string][]hydrate.Discovery),
		stages:      make(map[string]schema.LifecycleStage),
		feedback:    make(map[string][]string),
		logger:      slog.Default().With("component", "workspace-store"),
	}
}

func (s *MemoryWorkspaceStore) CreateDiscovery(_ context.Context, workspaceID string, d hydrate.Discovery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discoveries[workspaceID] = append(s.discoveries[workspaceID], d)
	return nil
}

// Discoveries returns the stored discoveries for a workspace, newest last.
func (s *MemoryWorkspaceStore) Discoveries(workspaceID string) []hydrate.Discovery {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]hydrate.Discovery, len(s.discoveries[workspaceID]))
	copy(out, s.discoveries[workspaceID])
	return out
}

func (s *MemoryWorkspaceStore) SetStage(_ context.Context, workspaceID string, stage schema.LifecycleStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages[workspaceID] = stage
	return nil
}

// Stage returns the recorded stage, defaulting to opportunity.
func (s *MemoryWorkspaceStore) Stage(workspaceID string) schema.LifecycleStage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if stage, ok := s.stages[workspaceID]; ok {
		return stage
	}
	return schema.StageOpportunity
}

func (s *MemoryWorkspaceStore) SubmitFeedback(_ context.Context, workspaceID, userID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback[workspaceID] = append(s.feedback[workspaceID], message)
	s.logger.Info("feedback received", "workspace_id", workspaceID, "user_id", userID)
	return nil
}

// Feedback returns the stored feedback messages for a workspace.
func (s *MemoryWorkspaceStore) Feedback(workspaceID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.feedback[workspaceID]))
	copy(out, s.feedback[workspaceID])
	return out
}
