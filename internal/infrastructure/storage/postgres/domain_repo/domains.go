// Package domain_repo provides PostgreSQL repositories for domains,
// links and workspace usage counters.
package domain_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"linkpress/internal/core/apperror"
	"linkpress/internal/domain/deletion"
	"linkpress/internal/domain/domains"
	"linkpress/internal/infrastructure/storage/postgres"
)

// Compile-time check that DomainRepo satisfies the pipeline port.
var _ deletion.DomainStore = (*DomainRepo)(nil)

// DomainRepo persists domains.
type DomainRepo struct {
	txm *postgres.TxManager
}

// NewDomainRepo creates a new domain repository.
func NewDomainRepo(txm *postgres.TxManager) *DomainRepo {
	return &DomainRepo{txm: txm}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *DomainRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// GetByName retrieves a domain by its case-insensitive name.
func (r *DomainRepo) GetByName(ctx context.Context, name string) (*domains.Domain, error) {
	d := &domains.Domain{}

	q := r.Builder().
		Select("id", "name", "workspace_id", "status", "created_at", "updated_at").
		From("domains").
		Where(squirrel.Eq{"name": domains.Normalize(name)}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, d, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("domain", name)
		}
		return nil, fmt.Errorf("get domain by name: %w", err)
	}

	return d, nil
}

// Delete removes the domain row. An absent row is a no-op: re-running
// the cleanup pipeline on an already-deleted domain must not error.
func (r *DomainRepo) Delete(ctx context.Context, name string) error {
	q := r.Builder().
		Delete("domains").
		Where(squirrel.Eq{"name": domains.Normalize(name)})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete domain: %w", err)
	}

	return nil
}

// Detach clears the workspace reference and marks the domain detached.
func (r *DomainRepo) Detach(ctx context.Context, name string) error {
	return r.setState(ctx, name, nil, domains.StatusDetached)
}

// MarkPendingCleanup records that links remain after a cleanup pass.
func (r *DomainRepo) MarkPendingCleanup(ctx context.Context, name string) error {
	q := r.Builder().
		Update("domains").
		Set("status", domains.StatusPendingCleanup).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"name": domains.Normalize(name)})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("mark pending cleanup: %w", err)
	}

	return nil
}

func (r *DomainRepo) setState(ctx context.Context, name string, workspaceID *string, status domains.Status) error {
	q := r.Builder().
		Update("domains").
		Set("workspace_id", workspaceID).
		Set("status", status).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"name": domains.Normalize(name)})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update domain state: %w", err)
	}

	return nil
}
