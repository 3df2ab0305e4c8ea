package deletion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkpress/internal/core/id"
	"linkpress/internal/domain/links"
	"linkpress/pkg/logger"
)

const assetBase = "https://assets.linkpress.io"

// --- Fakes ---

type fakeLinks struct {
	mu       sync.Mutex
	items    []*links.Link
	listErr  error
	delErr   error
	countErr error
	cleared  []string

	// delHook, when set, runs at the start of DeleteByIDs.
	delHook func()
}

func (f *fakeLinks) ListByDomain(_ context.Context, domain string, limit int) ([]*links.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*links.Link
	for _, l := range f.items {
		if l.Domain == domain {
			out = append(out, l)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeLinks) CountByDomain(_ context.Context, domain string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	var n int64
	for _, l := range f.items {
		if l.Domain == domain {
			n++
		}
	}
	return n, nil
}

func (f *fakeLinks) DeleteByIDs(_ context.Context, ids []id.ID) (int64, error) {
	if f.delHook != nil {
		f.delHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return 0, f.delErr
	}
	drop := make(map[id.ID]bool, len(ids))
	for _, i := range ids {
		drop[i] = true
	}
	var kept []*links.Link
	var removed int64
	for _, l := range f.items {
		if drop[l.ID] {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	f.items = kept
	return removed, nil
}

func (f *fakeLinks) ClearWorkspaceByDomain(_ context.Context, domain string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, domain)
	for _, l := range f.items {
		if l.Domain == domain {
			l.WorkspaceID = nil
		}
	}
	return nil
}

type fakeDomains struct {
	mu       sync.Mutex
	deleted  []string
	detached []string
	pending  []string
}

func (f *fakeDomains) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeDomains) Detach(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached = append(f.detached, name)
	return nil
}

func (f *fakeDomains) MarkPendingCleanup(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, name)
	return nil
}

type fakeUsage struct {
	mu         sync.Mutex
	decrements map[string]int64
	err        error

	// decHook, when set, runs at the start of Decrement.
	decHook func()
}

func (f *fakeUsage) Decrement(_ context.Context, workspaceID string, n int64) error {
	if f.decHook != nil {
		f.decHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.decrements == nil {
		f.decrements = map[string]int64{}
	}
	f.decrements[workspaceID] += n
	return nil
}

type fakeCache struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (f *fakeCache) DeleteKeys(_ context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, keys...)
	return nil
}

type fakeObjects struct {
	mu      sync.Mutex
	removed []string
	err     error
}

func (f *fakeObjects) Remove(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, path)
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []TombstoneEvent
	err    error
}

func (f *fakeEvents) RecordDeleted(_ context.Context, events []TombstoneEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, events...)
	return nil
}

type fakeProvider struct {
	mu       sync.Mutex
	released []string
	err      error
}

func (f *fakeProvider) ReleaseDomain(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.released = append(f.released, name)
	return nil
}

type enqueued struct {
	job   CleanupJob
	delay time.Duration
}

type fakeScheduler struct {
	mu   sync.Mutex
	jobs []enqueued
	err  error
}

func (f *fakeScheduler) EnqueueCleanup(_ context.Context, job CleanupJob, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, enqueued{job: job, delay: delay})
	return nil
}

type fakeArchive struct {
	mu      sync.Mutex
	batches int
	err     error
}

func (f *fakeArchive) ArchiveBatch(_ context.Context, _ string, _ []*links.Link) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches++
	return nil
}

type env struct {
	links     *fakeLinks
	domains   *fakeDomains
	usage     *fakeUsage
	cache     *fakeCache
	objects   *fakeObjects
	events    *fakeEvents
	provider  *fakeProvider
	scheduler *fakeScheduler
	archive   *fakeArchive
	svc       *Service
}

func newEnv(cfg Config) *env {
	e := &env{
		links:     &fakeLinks{},
		domains:   &fakeDomains{},
		usage:     &fakeUsage{},
		cache:     &fakeCache{},
		objects:   &fakeObjects{},
		events:    &fakeEvents{},
		provider:  &fakeProvider{},
		scheduler: &fakeScheduler{},
		archive:   &fakeArchive{},
	}
	if cfg.AssetBaseURL == "" {
		cfg.AssetBaseURL = assetBase
	}
	e.svc = NewService(cfg, Deps{
		Links:     e.links,
		Domains:   e.domains,
		Usage:     e.usage,
		Cache:     e.cache,
		Objects:   e.objects,
		Events:    e.events,
		Provider:  e.provider,
		Scheduler: e.scheduler,
		Archive:   e.archive,
	}, logger.Default())
	return e
}

func strptr(s string) *string { return &s }

func newLink(domain, key, imageURL string) *links.Link {
	l := &links.Link{
		ID:        id.New(),
		Domain:    domain,
		Key:       key,
		URL:       "https://example.com/target",
		CreatedAt: time.Now().UTC(),
	}
	if imageURL != "" {
		l.ImageURL = strptr(imageURL)
	}
	return l
}

// --- Tests ---

func TestRun_NoLinks_DeletesDomainImmediately(t *testing.T) {
	e := newEnv(Config{})

	res, err := e.svc.Run(context.Background(), "empty.example", "ws_1")
	require.NoError(t, err)

	assert.True(t, res.Deleted)
	assert.False(t, res.Deferred)
	assert.Equal(t, []string{"empty.example"}, e.domains.deleted)

	// Fan-out skipped entirely.
	assert.Empty(t, res.Outcomes)
	assert.Empty(t, e.events.events)
	assert.Empty(t, e.cache.deleted)
	assert.Empty(t, e.usage.decrements)
	assert.Empty(t, e.scheduler.jobs)
}

func TestRun_SingleLink_FullCleanup(t *testing.T) {
	e := newEnv(Config{})

	l := newLink("go.example", "x", "")
	l.ImageURL = strptr(assetBase + "/images/" + l.ID.String() + ".png")
	l.Tags = []links.Tag{{ID: id.New(), Name: "t1"}}
	e.links.items = []*links.Link{l}

	res, err := e.svc.Run(context.Background(), "go.example", "ws_1")
	require.NoError(t, err)

	assert.True(t, res.Deleted)
	assert.False(t, res.Deferred)
	assert.Equal(t, 1, res.BatchSize)
	assert.EqualValues(t, 0, res.Remaining)

	// Relational row gone.
	assert.Empty(t, e.links.items)

	// Cache entry invalidated at the normalized key.
	assert.Equal(t, []string{"go.example:x"}, e.cache.deleted)

	// Owned asset purged at the store-relative path.
	assert.Equal(t, []string{"images/" + l.ID.String() + ".png"}, e.objects.removed)

	// One tombstone with deleted=true and the tag association.
	require.Len(t, e.events.events, 1)
	ev := e.events.events[0]
	assert.True(t, ev.Deleted)
	assert.Equal(t, "go.example", ev.Domain)
	assert.Equal(t, "x", ev.Key)
	assert.Equal(t, "ws_1", ev.WorkspaceID)
	assert.Equal(t, l.TagIDs(), ev.TagIDs)

	// Usage decremented by exactly the batch size.
	assert.EqualValues(t, 1, e.usage.decrements["ws_1"])

	// Zero remaining: domain row deleted, nothing deferred.
	assert.Equal(t, []string{"go.example"}, e.domains.deleted)
	assert.Empty(t, e.scheduler.jobs)
}

func TestRun_RemainingLinks_DefersAndKeepsDomain(t *testing.T) {
	e := newEnv(Config{BatchSize: 1, RetryDelay: 3 * time.Second})
	e.links.items = []*links.Link{
		newLink("big.example", "a", ""),
		newLink("big.example", "b", ""),
	}

	res, err := e.svc.Run(context.Background(), "big.example", "ws_2")
	require.NoError(t, err)

	assert.False(t, res.Deleted)
	assert.True(t, res.Deferred)
	assert.EqualValues(t, 1, res.Remaining)
	assert.Empty(t, e.domains.deleted)
	assert.Equal(t, []string{"big.example"}, e.domains.pending)

	require.Len(t, e.scheduler.jobs, 1)
	assert.Equal(t, CleanupJob{DomainName: "big.example", WorkspaceID: "ws_2"}, e.scheduler.jobs[0].job)
	assert.Equal(t, 3*time.Second, e.scheduler.jobs[0].delay)
}

func TestRun_AlreadyCleaned_IsNoop(t *testing.T) {
	e := newEnv(Config{})

	for i := 0; i < 2; i++ {
		res, err := e.svc.Run(context.Background(), "gone.example", "ws_1")
		require.NoError(t, err)
		assert.True(t, res.Deleted)
	}
}

func TestRun_StoreFailureDoesNotBlockSiblings(t *testing.T) {
	e := newEnv(Config{})
	e.links.items = []*links.Link{newLink("flaky.example", "k", "")}
	e.links.delErr = errors.New("store down")

	res, err := e.svc.Run(context.Background(), "flaky.example", "ws_3")
	require.NoError(t, err)

	// The delete failed, so the recount finds the row and defers.
	assert.False(t, res.Deleted)
	assert.True(t, res.Deferred)

	var storeFailed bool
	for _, o := range res.Outcomes {
		if o.Op == "store" {
			storeFailed = o.Failed()
		} else {
			assert.False(t, o.Failed(), "op %s should settle cleanly", o.Op)
		}
	}
	assert.True(t, storeFailed)

	// Siblings still ran: tombstone emitted, cache invalidated, counter
	// decremented unconditionally once the batch was chosen.
	assert.Len(t, e.events.events, 1)
	assert.Equal(t, []string{"flaky.example:k"}, e.cache.deleted)
	assert.EqualValues(t, 1, e.usage.decrements["ws_3"])
}

func TestRun_ExternalAssetIsSkipped(t *testing.T) {
	e := newEnv(Config{})
	e.links.items = []*links.Link{
		newLink("ext.example", "k", "https://cdn.elsewhere.net/pic.png"),
	}

	res, err := e.svc.Run(context.Background(), "ext.example", "ws_1")
	require.NoError(t, err)

	assert.True(t, res.Deleted)
	assert.Empty(t, e.objects.removed)
	for _, o := range res.Outcomes {
		assert.False(t, o.Failed(), "op %s", o.Op)
	}
}

func TestRun_NormalizesDomainName(t *testing.T) {
	e := newEnv(Config{})
	e.links.items = []*links.Link{newLink("mixed.example", "K1", "")}

	res, err := e.svc.Run(context.Background(), "  MIXED.Example ", "ws_1")
	require.NoError(t, err)

	assert.True(t, res.Deleted)
	assert.Equal(t, []string{"mixed.example:k1"}, e.cache.deleted)
	assert.Equal(t, []string{"mixed.example"}, e.domains.deleted)
}

func TestRun_EnqueueFailureIsNonFatal(t *testing.T) {
	e := newEnv(Config{BatchSize: 1})
	e.links.items = []*links.Link{
		newLink("stuck.example", "a", ""),
		newLink("stuck.example", "b", ""),
	}
	e.scheduler.err = errors.New("queue unavailable")

	res, err := e.svc.Run(context.Background(), "stuck.example", "ws_1")
	require.NoError(t, err)

	assert.True(t, res.Deferred)
	assert.Empty(t, e.domains.deleted)
}

func TestRun_StoreAndUsageRunConcurrently(t *testing.T) {
	e := newEnv(Config{})
	e.links.items = []*links.Link{newLink("par.example", "k", "")}

	// Each of the two Postgres-bound operations announces itself and
	// then waits to observe the other in flight. If the fan-out ever ran
	// them sequentially, neither would see the other and both sides
	// would time out.
	storeIn := make(chan struct{})
	usageIn := make(chan struct{})
	overlaps := make(chan bool, 2)

	observe := func(self chan<- struct{}, other <-chan struct{}) {
		close(self)
		select {
		case <-other:
			overlaps <- true
		case <-time.After(2 * time.Second):
			overlaps <- false
		}
	}
	e.links.delHook = func() { observe(storeIn, usageIn) }
	e.usage.decHook = func() { observe(usageIn, storeIn) }

	res, err := e.svc.Run(context.Background(), "par.example", "ws_1")
	require.NoError(t, err)
	assert.True(t, res.Deleted)

	assert.True(t, <-overlaps, "store and usage operations must overlap")
	assert.True(t, <-overlaps, "store and usage operations must overlap")
}

func TestRun_RecountFailureDefers(t *testing.T) {
	e := newEnv(Config{RetryDelay: 3 * time.Second})
	e.links.items = []*links.Link{newLink("murky.example", "k", "")}
	e.links.countErr = errors.New("recount down")

	res, err := e.svc.Run(context.Background(), "murky.example", "ws_1")
	require.NoError(t, err)

	// An unknown remaining count is treated as incomplete convergence:
	// defer another pass, never hard-delete on a guess.
	assert.True(t, res.Deferred)
	assert.False(t, res.Deleted)
	assert.Empty(t, e.domains.deleted)

	require.Len(t, e.scheduler.jobs, 1)
	assert.Equal(t, CleanupJob{DomainName: "murky.example", WorkspaceID: "ws_1"}, e.scheduler.jobs[0].job)
	assert.Equal(t, 3*time.Second, e.scheduler.jobs[0].delay)
}

func TestRun_ArchiveFailureIsNonFatal(t *testing.T) {
	e := newEnv(Config{})
	e.links.items = []*links.Link{newLink("snap.example", "k", "")}
	e.archive.err = errors.New("archive down")

	res, err := e.svc.Run(context.Background(), "snap.example", "ws_1")
	require.NoError(t, err)

	// The snapshot is best-effort; the pipeline still fans out and
	// converges.
	assert.True(t, res.Deleted)
	assert.Len(t, e.events.events, 1)
	assert.Equal(t, []string{"snap.example:k"}, e.cache.deleted)
	assert.Equal(t, []string{"snap.example"}, e.domains.deleted)
}

func TestDetach_ProviderFailureIsolated(t *testing.T) {
	e := newEnv(Config{})
	e.links.items = []*links.Link{newLink("bye.example", "k", "")}
	e.links.items[0].WorkspaceID = strptr("ws_9")
	e.provider.err = errors.New("provider 500")

	outcomes := e.svc.Detach(context.Background(), "bye.example", "ws_9")

	failed := map[string]bool{}
	for _, o := range outcomes {
		failed[o.Op] = o.Failed()
	}
	assert.True(t, failed["provider"])
	assert.False(t, failed["domain-store"])
	assert.False(t, failed["link-store"])
	assert.False(t, failed["scheduler"])

	// Ownership cleared on domain and links despite provider failure.
	assert.Equal(t, []string{"bye.example"}, e.domains.detached)
	assert.Equal(t, []string{"bye.example"}, e.links.cleared)
	assert.Nil(t, e.links.items[0].WorkspaceID)

	// Cleanup enqueued with no delay.
	require.Len(t, e.scheduler.jobs, 1)
	assert.Equal(t, time.Duration(0), e.scheduler.jobs[0].delay)
	assert.Equal(t, "bye.example", e.scheduler.jobs[0].job.DomainName)
	assert.Equal(t, "ws_9", e.scheduler.jobs[0].job.WorkspaceID)
}

func TestSettleAll_CollectsEveryOutcome(t *testing.T) {
	boom := errors.New("boom")
	outcomes := settleAll(context.Background(), []operation{
		{"ok", func(context.Context) error { return nil }},
		{"bad", func(context.Context) error { return boom }},
		{"slow", func(context.Context) error {
			time.Sleep(10 * time.Millisecond)
			return nil
		}},
	})

	require.Len(t, outcomes, 3)
	assert.Equal(t, "ok", outcomes[0].Op)
	assert.NoError(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[1].Err, boom)
	assert.NoError(t, outcomes[2].Err)
}
