package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"linkpress/internal/core/id"
	"linkpress/internal/domain/deletion"
	"linkpress/pkg/logger"
)

// JobStatus represents the state of a queued cleanup job.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// maxJobRetries bounds redelivery attempts before a job is parked as failed.
const maxJobRetries = 5

// CleanupJobRow is a queued deferred re-invocation of the deletion pipeline.
type CleanupJobRow struct {
	ID          id.ID      `db:"id"`
	Payload     []byte     `db:"payload"` // JSON deletion.CleanupJob
	Status      JobStatus  `db:"status"`
	RetryCount  int        `db:"retry_count"`
	LastError   *string    `db:"last_error"`
	RunAt       time.Time  `db:"run_at"`
	CreatedAt   time.Time  `db:"created_at"`
	CompletedAt *time.Time `db:"completed_at"`
}

// Compile-time check that CleanupQueue satisfies the pipeline port.
var _ deletion.Scheduler = (*CleanupQueue)(nil)

// CleanupQueue enqueues deferred cleanup jobs. Once a job is inserted
// the queue owns it; the caller never polls its state.
type CleanupQueue struct {
	txm *TxManager
}

// NewCleanupQueue creates a new cleanup queue.
func NewCleanupQueue(txm *TxManager) *CleanupQueue {
	return &CleanupQueue{txm: txm}
}

// EnqueueCleanup schedules a pipeline re-invocation after delay.
// A zero delay makes the job eligible for immediate pickup.
func (q *CleanupQueue) EnqueueCleanup(ctx context.Context, job deletion.CleanupJob, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal cleanup job: %w", err)
	}

	now := time.Now().UTC()
	_, err = q.txm.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO cleanup_jobs (id, payload, status, retry_count, run_at, created_at)
		VALUES ($1, $2, $3, 0, $4, $5)
	`, id.New(), payload, JobStatusPending, now.Add(delay), now)
	if err != nil {
		return fmt.Errorf("insert cleanup job: %w", err)
	}

	return nil
}

// JobHandler processes a delivered cleanup job.
type JobHandler interface {
	Handle(ctx context.Context, job deletion.CleanupJob) error
}

// JobRelay reads due cleanup jobs and delivers them to the handler.
// Used by the background worker.
type JobRelay struct {
	txm       *TxManager
	batchSize int
	handler   JobHandler
}

// NewJobRelay creates a new job relay.
func NewJobRelay(txm *TxManager, batchSize int, handler JobHandler) *JobRelay {
	return &JobRelay{
		txm:       txm,
		batchSize: batchSize,
		handler:   handler,
	}
}

// ProcessBatch fetches and delivers due jobs.
// Returns number of successfully delivered jobs.
//
// The claim and the status updates run inside one transaction so SKIP
// LOCKED keeps concurrent relays from double-delivering the same job.
// The handler itself runs on the caller's context: the pipeline fans
// out concurrent Postgres calls that must go through the pool, not the
// claim transaction's single connection, and a handler SQL failure must
// not poison the claim.
func (r *JobRelay) ProcessBatch(ctx context.Context) (int, error) {
	var delivered int
	err := r.txm.RunInTransaction(ctx, func(txCtx context.Context) error {
		var err error
		delivered, err = r.processBatch(txCtx, ctx)
		return err
	})
	return delivered, err
}

func (r *JobRelay) processBatch(txCtx, handlerCtx context.Context) (int, error) {
	querier := r.txm.GetQuerier(txCtx)

	rows, err := querier.Query(txCtx, `
		SELECT id, payload, status, retry_count, last_error, run_at, created_at, completed_at
		FROM cleanup_jobs
		WHERE status = $1
		  AND run_at <= NOW()
		ORDER BY run_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, JobStatusPending, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch cleanup jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*CleanupJobRow
	for rows.Next() {
		var row CleanupJobRow
		err := rows.Scan(
			&row.ID, &row.Payload, &row.Status, &row.RetryCount,
			&row.LastError, &row.RunAt, &row.CreatedAt, &row.CompletedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("scan cleanup job: %w", err)
		}
		jobs = append(jobs, &row)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate cleanup jobs: %w", err)
	}

	delivered := 0
	for _, row := range jobs {
		if err := r.deliver(txCtx, handlerCtx, row); err != nil {
			logger.Error(txCtx, "cleanup job delivery failed",
				"job_id", row.ID, "retry_count", row.RetryCount, "error", err)
			continue
		}
		delivered++
	}

	return delivered, nil
}

// deliver hands one job to the handler and records the outcome. Status
// updates go through txCtx (the claim transaction); the handler gets
// handlerCtx so its own store calls use the pool.
func (r *JobRelay) deliver(txCtx, handlerCtx context.Context, row *CleanupJobRow) error {
	var job deletion.CleanupJob
	if err := json.Unmarshal(row.Payload, &job); err != nil {
		// Undecodable payload will never succeed; park it.
		r.markOutcome(txCtx, row, err)
		return fmt.Errorf("unmarshal cleanup job: %w", err)
	}

	if err := r.handler.Handle(handlerCtx, job); err != nil {
		r.markOutcome(txCtx, row, err)
		return err
	}

	now := time.Now().UTC()
	_, err := r.txm.GetQuerier(txCtx).Exec(txCtx, `
		UPDATE cleanup_jobs
		SET status = $1, completed_at = $2
		WHERE id = $3
	`, JobStatusDone, now, row.ID)

	return err
}

// markOutcome bumps retry bookkeeping with linear backoff and parks the
// job as failed once retries are exhausted.
func (r *JobRelay) markOutcome(ctx context.Context, row *CleanupJobRow, cause error) {
	nextRun := time.Now().UTC().Add(time.Duration(row.RetryCount+1) * time.Minute)
	errStr := cause.Error()

	_, err := r.txm.GetQuerier(ctx).Exec(ctx, `
		UPDATE cleanup_jobs
		SET retry_count = retry_count + 1,
		    last_error = $1,
		    run_at = $2,
		    status = CASE WHEN retry_count + 1 >= $3 THEN $4 ELSE status END
		WHERE id = $5
	`, errStr, nextRun, maxJobRetries, JobStatusFailed, row.ID)
	if err != nil {
		logger.Error(ctx, "update failed cleanup job", "job_id", row.ID, "error", err)
	}
}
