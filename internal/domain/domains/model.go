// Package domains provides the custom domain entity.
// A domain is owned by a workspace and hosts short links.
package domains

import (
	"strings"
	"time"

	"linkpress/internal/core/id"
)

// Status is the lifecycle state of a domain during deletion.
type Status string

const (
	// StatusActive is a live domain serving links.
	StatusActive Status = "active"

	// StatusDetached means ownership was tombstoned and the provider
	// release was requested; cleanup is scheduled but not finished.
	StatusDetached Status = "detached"

	// StatusPendingCleanup means a cleanup pass ran but links remain;
	// another pass is scheduled.
	StatusPendingCleanup Status = "pending_cleanup"
)

// Domain represents a custom domain bound to a workspace.
// The row is removed entirely once all its links are gone.
type Domain struct {
	ID          id.ID      `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"` // stored lowercase, unique
	WorkspaceID *string    `db:"workspace_id" json:"workspaceId,omitempty"`
	Status      Status     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
}

// Normalize lowercases and trims a domain name. Domain names are
// case-insensitive keys everywhere: storage, cache, provider calls.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
