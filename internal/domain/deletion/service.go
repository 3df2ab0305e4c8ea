// Package deletion coordinates removal of a domain and everything that
// depends on it: link rows, cache entries, uploaded assets, analytics
// tombstones, the workspace usage counter and the provider-bound name.
//
// No cross-store transaction exists, so the pipeline converges instead:
// it deletes a bounded batch, fans out to every backing store with a
// settle-all barrier, recounts, and defers another pass through the
// scheduler until zero links remain. Re-running any step on an already
// cleaned domain is a no-op.
package deletion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"linkpress/internal/core/id"
	"linkpress/internal/domain/domains"
	"linkpress/internal/domain/links"
	"linkpress/pkg/logger"
)

// Config holds pipeline tuning knobs.
type Config struct {
	// BatchSize bounds how many links one pass removes.
	BatchSize int

	// RetryDelay is the deferral window when a pass leaves links behind.
	// Keeps the scheduler from tight re-polling.
	RetryDelay time.Duration

	// AssetBaseURL is the public prefix of this system's object store,
	// e.g. "https://assets.linkpress.io". Only asset URLs under this
	// prefix and scoped to the link's own ID are purged.
	AssetBaseURL string
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	return c
}

// Deps are the external collaborators, passed in explicitly so tests
// can substitute fakes.
type Deps struct {
	Links     LinkSource
	Domains   DomainStore
	Usage     UsageCounter
	Cache     Cache
	Objects   ObjectStore
	Events    EventSink
	Provider  Provider
	Scheduler Scheduler

	// Archive is optional; when set, batches are snapshotted before the
	// relational delete.
	Archive Archiver
}

// Result describes how one pipeline invocation ended. Callers only act
// on Deleted/Deferred; per-operation failures are reported via logging.
type Result struct {
	Domain    string
	Deleted   bool // domain row removed
	Deferred  bool // another cleanup pass enqueued
	BatchSize int
	Remaining int64
	Outcomes  []Outcome
}

// Service runs the deletion pipeline and the detach flow.
type Service struct {
	cfg  Config
	deps Deps
	log  *logger.Logger
}

// NewService creates the deletion coordinator.
func NewService(cfg Config, deps Deps, log *logger.Logger) *Service {
	return &Service{
		cfg:  cfg.withDefaults(),
		deps: deps,
		log:  log.WithComponent("deletion"),
	}
}

// Run executes one pass of the immediate deletion pipeline:
// locate a batch, fan out, recount, then hard-delete or defer.
func (s *Service) Run(ctx context.Context, domainName, workspaceID string) (Result, error) {
	name := domains.Normalize(domainName)
	res := Result{Domain: name}

	batch, err := s.deps.Links.ListByDomain(ctx, name, s.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("list links for %s: %w", name, err)
	}

	// Empty batch is the terminal signal: nothing left to fan out,
	// the domain row itself can go now.
	if len(batch) == 0 {
		if err := s.deps.Domains.Delete(ctx, name); err != nil {
			return res, fmt.Errorf("delete domain %s: %w", name, err)
		}
		res.Deleted = true
		return res, nil
	}

	res.BatchSize = len(batch)

	if s.deps.Archive != nil {
		if err := s.deps.Archive.ArchiveBatch(ctx, name, batch); err != nil {
			s.log.Errorw("archive batch failed",
				"domain", name, "workspace_id", workspaceID, "error", err)
		}
	}

	res.Outcomes = s.fanOut(ctx, name, workspaceID, batch)
	s.reportFailures(name, workspaceID, res.Outcomes)

	// Convergence check: the recount decides, not the batch size. The
	// fan-out may have partially failed; remaining rows get another pass.
	remaining, err := s.deps.Links.CountByDomain(ctx, name)
	if err != nil {
		s.log.Errorw("recount links failed, deferring cleanup",
			"domain", name, "workspace_id", workspaceID, "error", err)
		s.deferCleanup(ctx, name, workspaceID, s.cfg.RetryDelay)
		res.Deferred = true
		return res, nil
	}
	res.Remaining = remaining

	if remaining > 0 {
		if err := s.deps.Domains.MarkPendingCleanup(ctx, name); err != nil {
			s.log.Errorw("mark pending cleanup failed",
				"domain", name, "error", err)
		}
		s.deferCleanup(ctx, name, workspaceID, s.cfg.RetryDelay)
		res.Deferred = true
		return res, nil
	}

	if err := s.deps.Domains.Delete(ctx, name); err != nil {
		return res, fmt.Errorf("delete domain %s: %w", name, err)
	}
	res.Deleted = true
	return res, nil
}

// Detach tombstones ownership immediately and schedules the full
// cleanup. All four calls run concurrently and all outcomes are
// awaited; no failure aborts a sibling or raises past this boundary.
func (s *Service) Detach(ctx context.Context, domainName, workspaceID string) []Outcome {
	name := domains.Normalize(domainName)

	outcomes := settleAll(ctx, []operation{
		{"provider", func(ctx context.Context) error {
			return s.deps.Provider.ReleaseDomain(ctx, name)
		}},
		{"domain-store", func(ctx context.Context) error {
			return s.deps.Domains.Detach(ctx, name)
		}},
		{"link-store", func(ctx context.Context) error {
			return s.deps.Links.ClearWorkspaceByDomain(ctx, name)
		}},
		{"scheduler", func(ctx context.Context) error {
			return s.deps.Scheduler.EnqueueCleanup(ctx,
				CleanupJob{DomainName: name, WorkspaceID: workspaceID}, 0)
		}},
	})

	s.reportFailures(name, workspaceID, outcomes)
	return outcomes
}

// fanOut issues the five independent operations for a batch. The usage
// decrement is unconditional once the batch is chosen; it is not gated
// on the relational delete succeeding.
func (s *Service) fanOut(ctx context.Context, name, workspaceID string, batch []*links.Link) []Outcome {
	events := make([]TombstoneEvent, 0, len(batch))
	keys := make([]string, 0, len(batch))
	ids := make([]id.ID, 0, len(batch))
	var assetPaths []string

	for _, l := range batch {
		events = append(events, TombstoneEvent{
			LinkID:      l.ID.String(),
			Domain:      l.Domain,
			Key:         l.Key,
			URL:         l.URL,
			TagIDs:      l.TagIDs(),
			WorkspaceID: workspaceID,
			CreatedAt:   l.CreatedAt,
			Deleted:     true,
		})
		keys = append(keys, links.CacheKey(l.Domain, l.Key))
		ids = append(ids, l.ID)
		if path, ok := s.ownedAssetPath(l); ok {
			assetPaths = append(assetPaths, path)
		}
	}
	batchSize := int64(len(batch))

	return settleAll(ctx, []operation{
		{"analytics", func(ctx context.Context) error {
			return s.deps.Events.RecordDeleted(ctx, events)
		}},
		{"assets", func(ctx context.Context) error {
			var errs []error
			for _, path := range assetPaths {
				if err := s.deps.Objects.Remove(ctx, path); err != nil {
					errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
				}
			}
			return errors.Join(errs...)
		}},
		{"cache", func(ctx context.Context) error {
			return s.deps.Cache.DeleteKeys(ctx, keys)
		}},
		{"store", func(ctx context.Context) error {
			_, err := s.deps.Links.DeleteByIDs(ctx, ids)
			return err
		}},
		{"usage", func(ctx context.Context) error {
			return s.deps.Usage.Decrement(ctx, workspaceID, batchSize)
		}},
	})
}

// ownedAssetPath reports whether the link's asset lives in our object
// store under the link's own namespace, and returns the store-relative
// path. External or absent assets are skipped, not errored.
func (s *Service) ownedAssetPath(l *links.Link) (string, bool) {
	if l.ImageURL == nil || s.cfg.AssetBaseURL == "" {
		return "", false
	}
	base := strings.TrimSuffix(s.cfg.AssetBaseURL, "/")
	if !strings.HasPrefix(*l.ImageURL, base+"/images/"+l.ID.String()) {
		return "", false
	}
	return strings.TrimPrefix(*l.ImageURL, base+"/"), true
}

// deferCleanup enqueues the next pass. Enqueue failure is reported but
// non-fatal: the domain stays in its intermediate state and an external
// sweep can retry.
func (s *Service) deferCleanup(ctx context.Context, name, workspaceID string, delay time.Duration) {
	job := CleanupJob{DomainName: name, WorkspaceID: workspaceID}
	if err := s.deps.Scheduler.EnqueueCleanup(ctx, job, delay); err != nil {
		s.log.Errorw("enqueue cleanup failed",
			"domain", name, "workspace_id", workspaceID, "error", err)
	}
}

func (s *Service) reportFailures(name, workspaceID string, outcomes []Outcome) {
	for _, o := range outcomes {
		if o.Failed() {
			s.log.Errorw("deletion operation failed",
				"op", o.Op,
				"domain", name,
				"workspace_id", workspaceID,
				"error", o.Err,
			)
		}
	}
}
