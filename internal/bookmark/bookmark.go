// Package bookmark defines the bookmark model: a stored URL with a note body,
// a 3-character short code used for redirection, and a visit counter.
package bookmark

import "time"

// Bookmark represents a single stored URL owned by a user.
// ShortCode is assigned exactly once at creation and never regenerated.
// Visited only ever grows; it is incremented by the redirect path.
type Bookmark struct {
	ID        int64
	Body      string
	URL       string
	ShortCode string
	Visited   int64

	// UserID is the UUID of the owning user.
	UserID string

	CreatedAt time.Time
	UpdatedAt time.Time
}
