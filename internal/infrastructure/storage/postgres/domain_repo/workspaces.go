package domain_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"linkpress/internal/core/apperror"
	"linkpress/internal/domain/deletion"
	"linkpress/internal/infrastructure/storage/postgres"
)

var _ deletion.UsageCounter = (*WorkspaceRepo)(nil)

// WorkspaceRepo maintains the per-workspace live-link usage counter.
type WorkspaceRepo struct {
	txm *postgres.TxManager
}

// NewWorkspaceRepo creates a new workspace repository.
func NewWorkspaceRepo(txm *postgres.TxManager) *WorkspaceRepo {
	return &WorkspaceRepo{txm: txm}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *WorkspaceRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Decrement subtracts n from the workspace usage counter. The store
// performs the arithmetic, so concurrent decrements for the same
// workspace are commutative and race-free.
func (r *WorkspaceRepo) Decrement(ctx context.Context, workspaceID string, n int64) error {
	q := r.Builder().
		Update("workspaces").
		Set("links_usage", squirrel.Expr("links_usage - ?", n)).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": workspaceID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("decrement usage: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("workspace", workspaceID)
	}

	return nil
}
