// Package links provides the short link entity hosted on a custom domain.
package links

import (
	"strings"
	"time"

	"linkpress/internal/core/id"
)

// Link is a short link: a key on a domain redirecting to a URL.
// Links are individually cache-addressable and may reference an
// uploaded preview image in the object store.
type Link struct {
	ID          id.ID     `db:"id" json:"id"`
	Domain      string    `db:"domain" json:"domain"`
	Key         string    `db:"key" json:"key"`
	URL         string    `db:"url" json:"url"`
	ImageURL    *string   `db:"image_url" json:"imageUrl,omitempty"`
	WorkspaceID *string   `db:"workspace_id" json:"workspaceId,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`

	// Tags are eager-loaded associations; not a database column.
	Tags []Tag `db:"-" json:"tags,omitempty"`
}

// Tag is a label attached to links via a many-to-many join.
// Read-only in the deletion flow.
type Tag struct {
	ID   id.ID  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// TagIDs returns the identifiers of the link's tags.
func (l *Link) TagIDs() []string {
	ids := make([]string, 0, len(l.Tags))
	for _, t := range l.Tags {
		ids = append(ids, t.ID.String())
	}
	return ids
}

// CacheKey derives the cache key for a link. The key is case-normalized
// so invalidation always hits the entry written by the redirect path.
func CacheKey(domain, key string) string {
	return strings.ToLower(domain) + ":" + strings.ToLower(key)
}
