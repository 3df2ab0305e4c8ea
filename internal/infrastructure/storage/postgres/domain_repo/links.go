package domain_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"linkpress/internal/core/id"
	"linkpress/internal/domain/deletion"
	"linkpress/internal/domain/domains"
	"linkpress/internal/domain/links"
	"linkpress/internal/infrastructure/storage/postgres"
)

var _ deletion.LinkSource = (*LinkRepo)(nil)

var linkCols = []string{"id", "domain", "key", "url", "image_url", "workspace_id", "created_at"}

// LinkRepo persists links and their tag associations.
type LinkRepo struct {
	txm *postgres.TxManager
}

// NewLinkRepo creates a new link repository.
func NewLinkRepo(txm *postgres.TxManager) *LinkRepo {
	return &LinkRepo{txm: txm}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *LinkRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// ListByDomain returns up to limit links for a domain with tags
// eager-loaded. An empty result is a valid terminal signal.
func (r *LinkRepo) ListByDomain(ctx context.Context, domain string, limit int) ([]*links.Link, error) {
	q := r.Builder().
		Select(linkCols...).
		From("links").
		Where(squirrel.Eq{"domain": domains.Normalize(domain)}).
		OrderBy("created_at").
		Limit(uint64(limit))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	var items []*links.Link
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}

	if len(items) == 0 {
		return nil, nil
	}

	if err := r.loadTags(ctx, items); err != nil {
		return nil, err
	}

	return items, nil
}

// taggedRow is a row of the link_tags join used for eager loading.
type taggedRow struct {
	LinkID id.ID  `db:"link_id"`
	ID     id.ID  `db:"id"`
	Name   string `db:"name"`
}

func (r *LinkRepo) loadTags(ctx context.Context, items []*links.Link) error {
	ids := make([]id.ID, 0, len(items))
	byID := make(map[id.ID]*links.Link, len(items))
	for _, l := range items {
		ids = append(ids, l.ID)
		byID[l.ID] = l
	}

	q := r.Builder().
		Select("lt.link_id", "t.id", "t.name").
		From("link_tags lt").
		Join("tags t ON t.id = lt.tag_id").
		Where(squirrel.Eq{"lt.link_id": ids})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build tags query: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	var rows []taggedRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return fmt.Errorf("load tags: %w", err)
	}

	for _, row := range rows {
		if l, ok := byID[row.LinkID]; ok {
			l.Tags = append(l.Tags, links.Tag{ID: row.ID, Name: row.Name})
		}
	}

	return nil
}

// CountByDomain returns the live link count for a domain.
func (r *LinkRepo) CountByDomain(ctx context.Context, domain string) (int64, error) {
	q := r.Builder().
		Select("COUNT(*)").
		From("links").
		Where(squirrel.Eq{"domain": domains.Normalize(domain)})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}

	var count int64
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count links: %w", err)
	}

	return count, nil
}

// DeleteByIDs bulk-deletes links by identifier set. Already-deleted
// rows simply do not count toward the result.
func (r *LinkRepo) DeleteByIDs(ctx context.Context, ids []id.ID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	q := r.Builder().
		Delete("links").
		Where(squirrel.Eq{"id": ids})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete links: %w", err)
	}

	return result.RowsAffected(), nil
}

// ClearWorkspaceByDomain tombstones ownership on all of a domain's
// links in one bulk update.
func (r *LinkRepo) ClearWorkspaceByDomain(ctx context.Context, domain string) error {
	q := r.Builder().
		Update("links").
		Set("workspace_id", nil).
		Where(squirrel.Eq{"domain": domains.Normalize(domain)})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("clear link workspace: %w", err)
	}

	return nil
}
