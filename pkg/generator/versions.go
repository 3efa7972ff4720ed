package generator

import "sync"

// VersionSource answers which page-contract version a workspace is on.
// Increments are externally triggered (deploy-time); nothing on the request
// path ever bumps a version. The version doubles as the cache-invalidation
// axis: bumping it orphans every cache entry addressed under the old one.
type VersionSource interface {
	Current(workspaceID string) int
	Bump(workspaceID string) int
}

// StaticVersionSource keeps versions in memory, starting every workspace at
// version 1.
type StaticVersionSource struct {
	mu       sync.RWMutex
	versions map[string]int
}

// NewStaticVersionSource creates an empty source.
func NewStaticVersionSource() *StaticVersionSource {
	return &StaticVersionSource{versions: make(map[string]int)}
}

func (s *StaticVersionSource) Current(workspaceID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.versions[workspaceID]; ok {
		return v
	}
	return 1
}

func (s *StaticVersionSource) Bump(workspaceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.versions[workspaceID]
	if v == 0 {
		v = 1
	}
	v++
	s.versions[workspaceID] = v
	return v
}
