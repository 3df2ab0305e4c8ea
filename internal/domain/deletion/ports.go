package deletion

import (
	"context"
	"time"

	"linkpress/internal/core/id"
	"linkpress/internal/domain/links"
)

// LinkSource reads and removes link rows for a domain.
type LinkSource interface {
	// ListByDomain returns up to limit live links with tags eager-loaded.
	// An empty slice is a normal terminal signal, not an error.
	ListByDomain(ctx context.Context, domain string, limit int) ([]*links.Link, error)

	// CountByDomain returns the live link count for a domain.
	CountByDomain(ctx context.Context, domain string) (int64, error)

	// DeleteByIDs bulk-deletes links by identifier set and returns the
	// number of rows removed. Missing rows are not an error.
	DeleteByIDs(ctx context.Context, ids []id.ID) (int64, error)

	// ClearWorkspaceByDomain tombstones ownership on all of a domain's
	// links in one bulk update.
	ClearWorkspaceByDomain(ctx context.Context, domain string) error
}

// DomainStore mutates the domain row itself.
type DomainStore interface {
	// Delete removes the domain row. Deleting an absent row is a no-op.
	Delete(ctx context.Context, name string) error

	// Detach clears the workspace reference and marks the domain detached.
	Detach(ctx context.Context, name string) error

	// MarkPendingCleanup records that links remain after a cleanup pass.
	MarkPendingCleanup(ctx context.Context, name string) error
}

// UsageCounter adjusts the per-workspace live-link aggregate.
type UsageCounter interface {
	// Decrement atomically subtracts n from the workspace usage counter.
	Decrement(ctx context.Context, workspaceID string, n int64) error
}

// Cache invalidates link entries in the key-value cache.
type Cache interface {
	// DeleteKeys removes entries in one batched call. Absent keys are no-ops.
	DeleteKeys(ctx context.Context, keys []string) error
}

// ObjectStore removes uploaded assets by store-relative path.
type ObjectStore interface {
	// Remove deletes the object at path. A missing object is a no-op.
	Remove(ctx context.Context, path string) error
}

// EventSink records immutable deletion facts in the analytics store.
type EventSink interface {
	RecordDeleted(ctx context.Context, events []TombstoneEvent) error
}

// Provider releases a bound name from the external DNS/hosting provider.
type Provider interface {
	ReleaseDomain(ctx context.Context, name string) error
}

// Scheduler enqueues a deferred re-invocation of the cleanup pipeline.
// Fire-and-forget: the job is owned by the scheduler once enqueued.
type Scheduler interface {
	EnqueueCleanup(ctx context.Context, job CleanupJob, delay time.Duration) error
}

// Archiver snapshots link rows before they are bulk-deleted.
type Archiver interface {
	ArchiveBatch(ctx context.Context, domain string, batch []*links.Link) error
}

// CleanupJob is the payload carried by a deferred pipeline re-invocation.
type CleanupJob struct {
	DomainName  string `json:"domainName"`
	WorkspaceID string `json:"workspaceId"`
}

// TombstoneEvent is the append-only deletion fact emitted per link.
type TombstoneEvent struct {
	LinkID      string
	Domain      string
	Key         string
	URL         string
	TagIDs      []string
	WorkspaceID string
	CreatedAt   time.Time
	Deleted     bool
}
