package storage

import (
	"context"
	"database/sql"

	"github.com/shpagin/bookmarker/internal/bookmark"
	"github.com/shpagin/bookmarker/internal/user"
)

// Storage is the full persistence contract of the application. Implementations
// map uniqueness violations to the sentinel errors from the models package.
// The *sql.Tx parameter may be nil, in which case the operation runs outside
// any explicit transaction; non-SQL implementations ignore it.
type Storage interface {
	CreateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) error

	GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, bool, error)

	FindUserByEmail(ctx context.Context, email string, transaction *sql.Tx) (*user.User, bool, error)

	FindUserByUsername(ctx context.Context, username string, transaction *sql.Tx) (*user.User, bool, error)

	InsertBookmark(ctx context.Context, bkm *bookmark.Bookmark, transaction *sql.Tx) error

	IsShortCodeTaken(ctx context.Context, code string) (bool, error)

	IsURLTaken(ctx context.Context, url string, transaction *sql.Tx) (bool, error)

	IsURLTakenByOtherBookmark(
		ctx context.Context,
		url string,
		userID string,
		excludeBookmarkID int64,
	) (bool, error)

	FindBookmarkByID(ctx context.Context, userID string, bookmarkID int64) (*bookmark.Bookmark, bool, error)

	FindBookmarksByUser(ctx context.Context, userID string, limit, offset int) ([]bookmark.Bookmark, error)

	FindAllBookmarksByUser(ctx context.Context, userID string) ([]bookmark.Bookmark, error)

	CountBookmarksByUser(ctx context.Context, userID string) (int64, error)

	UpdateBookmark(ctx context.Context, bkm *bookmark.Bookmark, transaction *sql.Tx) error

	DeleteBookmark(ctx context.Context, userID string, bookmarkID int64) (bool, error)

	RegisterVisit(ctx context.Context, code string) (string, bool, error)

	BeginTransaction() (*sql.Tx, error)

	RollbackTransaction(transaction *sql.Tx) error

	CommitTransaction(transaction *sql.Tx) error

	Ping(ctx context.Context) error

	Close() error
}
