// Package models contains the request and response types of the HTTP API
// and the domain errors shared between the storage and service layers.
package models

import (
	"errors"
	"time"

	"github.com/shpagin/bookmarker/internal/bookmark"
)

type RegisterRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserResponse struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type LoginResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         UserResponse `json:"user"`
}

type BookmarkRequest struct {
	Body string `json:"body"`
	URL  string `json:"url" validate:"omitempty,url"`
}

type BookmarkResponse struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	URL       string    `json:"url"`
	ShortURL  string    `json:"short_url"`
	Visited   int64     `json:"visited"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBookmarkResponse shapes a stored bookmark into its API representation.
// The short_url field carries the bare 3-character code.
func NewBookmarkResponse(bkm *bookmark.Bookmark) BookmarkResponse {
	return BookmarkResponse{
		ID:        bkm.ID,
		Body:      bkm.Body,
		URL:       bkm.URL,
		ShortURL:  bkm.ShortCode,
		Visited:   bkm.Visited,
		CreatedAt: bkm.CreatedAt,
		UpdatedAt: bkm.UpdatedAt,
	}
}

// PageMeta mirrors the pagination metadata of the list endpoint.
// NextPage and PrevPage are null when there is no such page.
type PageMeta struct {
	Page       int   `json:"page"`
	Pages      int   `json:"pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
	NextPage   *int  `json:"next_page"`
	PrevPage   *int  `json:"prev_page"`
	TotalCount int64 `json:"total_count"`
}

type BookmarkListResponse struct {
	Bookmarks []BookmarkResponse `json:"bookmarks"`
	Meta      PageMeta           `json:"meta"`
}

type StatsItem struct {
	ID       int64  `json:"id"`
	Visited  int64  `json:"visited"`
	ShortURL string `json:"short_url"`
	URL      string `json:"url"`
}

type StatsResponse struct {
	Stats []StatsItem `json:"stats"`
}

// Uniqueness violations surfaced by the storage layer. The unique indexes of
// the store are the authoritative guard; application-level lookups are only a
// fast path, so these errors may appear on insert and update as well.
var (
	ErrUsernameExists  = errors.New("username already exists")
	ErrEmailExists     = errors.New("email already exists")
	ErrURLExists       = errors.New("url already exists")
	ErrShortCodeExists = errors.New("short code already exists")
)
