// Package cache stores generated page definitions keyed by workspace and
// contract version. A read is a hit only while the entry is fresh; version
// bumps invalidate implicitly because the version is part of the key.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/Blueprint-Labs/blueprint/core/pkg/schema"
)

// Key is the composite cache address for a page. Embedding the version
// means a version bump orphans every entry of the old version without
// enumerating them.
type Key struct {
	Prefix      string
	WorkspaceID string
	Version     int
}

func (k Key) String() string {
	prefix := k.Prefix
	if prefix == "" {
		prefix = "sdui"
	}
	return fmt.Sprintf("%s:page:%s:v%d", prefix, k.WorkspaceID, k.Version)
}

// Entry is one cached page plus the bookkeeping needed for freshness.
type Entry struct {
	Page        *schema.PageDefinition `json:"page"`
	CachedAt    int64                  `json:"cachedAtEpochMs"`
	TTLMs       int64                  `json:"ttlMs"`
	WorkspaceID string                 `json:"workspaceId"`
	Version     int                    `json:"version"`
}

// Fresh reports whether the entry is still within its TTL at the given time.
func (e *Entry) Fresh(now time.Time) bool {
	return now.UnixMilli()-e.CachedAt < e.TTLMs
}

// PageCache is the shared mutable store between concurrent generations.
// Get returns (nil, nil) on a miss. Two writers for the same key may race;
// the later write overwrites and both values were valid at generation time,
// so no locking beyond the store's own is required.
type PageCache interface {
	Get(ctx context.Context, key Key) (*Entry, error)
	Set(ctx context.Context, key Key, entry *Entry) error
	Delete(ctx context.Context, key Key) error
}
