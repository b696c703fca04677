// Package memorystorage provides a mutex-guarded in-memory implementation of
// the storage interface. It backs the unit tests and serves as a fallback when
// no database DSN is configured.
package memorystorage

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/shpagin/bookmarker/internal/bookmark"
	"github.com/shpagin/bookmarker/internal/models"
	"github.com/shpagin/bookmarker/internal/user"
)

// MemoryStorage keeps all users and bookmarks in process memory.
// All operations are safe for concurrent use.
type MemoryStorage struct {
	mu             sync.RWMutex
	users          map[string]*user.User
	bookmarks      map[int64]*bookmark.Bookmark
	nextBookmarkID int64
}

// New returns an empty MemoryStorage.
func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		users:          map[string]*user.User{},
		bookmarks:      map[int64]*bookmark.Bookmark{},
		nextBookmarkID: 1,
	}, nil
}

// CreateUser stores a new user, enforcing the username and email uniqueness
// invariants the same way the SQL unique indexes do.
func (s *MemoryStorage) CreateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == usr.Username {
			return models.ErrUsernameExists
		}
		if existing.Email == usr.Email {
			return models.ErrEmailExists
		}
	}

	now := time.Now()
	usr.CreatedAt = now
	usr.UpdatedAt = now

	clone := *usr
	s.users[usr.ID] = &clone

	return nil
}

// GetUserByID fetches a user by their UUID.
func (s *MemoryStorage) GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	usr, found := s.users[userID]
	if !found {
		return nil, false, nil
	}

	clone := *usr
	return &clone, true, nil
}

// FindUserByEmail fetches a user by their unique email.
func (s *MemoryStorage) FindUserByEmail(ctx context.Context, email string, transaction *sql.Tx) (*user.User, bool, error) {
	return s.findUser(func(usr *user.User) bool { return usr.Email == email })
}

// FindUserByUsername fetches a user by their unique username.
func (s *MemoryStorage) FindUserByUsername(ctx context.Context, username string, transaction *sql.Tx) (*user.User, bool, error) {
	return s.findUser(func(usr *user.User) bool { return usr.Username == username })
}

func (s *MemoryStorage) findUser(matches func(*user.User) bool) (*user.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, usr := range s.users {
		if matches(usr) {
			clone := *usr
			return &clone, true, nil
		}
	}

	return nil, false, nil
}

// InsertBookmark stores a new bookmark, enforcing the global url and short
// code uniqueness invariants, and fills in the generated ID and timestamps.
func (s *MemoryStorage) InsertBookmark(ctx context.Context, bkm *bookmark.Bookmark, transaction *sql.Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.bookmarks {
		if existing.URL == bkm.URL {
			return models.ErrURLExists
		}
		if existing.ShortCode == bkm.ShortCode {
			return models.ErrShortCodeExists
		}
	}

	now := time.Now()
	bkm.ID = s.nextBookmarkID
	s.nextBookmarkID++
	bkm.Visited = 0
	bkm.CreatedAt = now
	bkm.UpdatedAt = now

	clone := *bkm
	s.bookmarks[bkm.ID] = &clone

	return nil
}

// IsShortCodeTaken checks if the specified short code is already assigned.
func (s *MemoryStorage) IsShortCodeTaken(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, bkm := range s.bookmarks {
		if bkm.ShortCode == code {
			return true, nil
		}
	}

	return false, nil
}

// IsURLTaken checks if any bookmark of any user already stores the given URL.
func (s *MemoryStorage) IsURLTaken(ctx context.Context, url string, transaction *sql.Tx) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, bkm := range s.bookmarks {
		if bkm.URL == url {
			return true, nil
		}
	}

	return false, nil
}

// IsURLTakenByOtherBookmark checks whether another bookmark of the same user
// already stores the given URL. The bookmark being updated is excluded.
func (s *MemoryStorage) IsURLTakenByOtherBookmark(
	ctx context.Context,
	url string,
	userID string,
	excludeBookmarkID int64,
) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, bkm := range s.bookmarks {
		if bkm.URL == url && bkm.UserID == userID && bkm.ID != excludeBookmarkID {
			return true, nil
		}
	}

	return false, nil
}

// FindBookmarkByID fetches a single bookmark scoped to its owner.
func (s *MemoryStorage) FindBookmarkByID(
	ctx context.Context,
	userID string,
	bookmarkID int64,
) (*bookmark.Bookmark, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bkm, found := s.bookmarks[bookmarkID]
	if !found || bkm.UserID != userID {
		return nil, false, nil
	}

	clone := *bkm
	return &clone, true, nil
}

// FindBookmarksByUser retrieves a page of the user's bookmarks ordered by ID.
func (s *MemoryStorage) FindBookmarksByUser(
	ctx context.Context,
	userID string,
	limit,
	offset int,
) ([]bookmark.Bookmark, error) {
	all, err := s.FindAllBookmarksByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if offset >= len(all) {
		return []bookmark.Bookmark{}, nil
	}

	end := offset + limit
	if end > len(all) {
		end = len(all)
	}

	return all[offset:end], nil
}

// FindAllBookmarksByUser retrieves every bookmark of the user ordered by ID.
func (s *MemoryStorage) FindAllBookmarksByUser(ctx context.Context, userID string) ([]bookmark.Bookmark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []bookmark.Bookmark{}
	for _, bkm := range s.bookmarks {
		if bkm.UserID == userID {
			result = append(result, *bkm)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return result, nil
}

// CountBookmarksByUser returns the total number of bookmarks owned by the user.
func (s *MemoryStorage) CountBookmarksByUser(ctx context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, bkm := range s.bookmarks {
		if bkm.UserID == userID {
			count++
		}
	}

	return count, nil
}

// UpdateBookmark mutates the body and url of a stored bookmark; the short code
// and visit counter are never touched by the update path.
func (s *MemoryStorage) UpdateBookmark(ctx context.Context, bkm *bookmark.Bookmark, transaction *sql.Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, found := s.bookmarks[bkm.ID]
	if !found || stored.UserID != bkm.UserID {
		return sql.ErrNoRows
	}

	for _, existing := range s.bookmarks {
		if existing.ID != bkm.ID && existing.URL == bkm.URL {
			return models.ErrURLExists
		}
	}

	stored.Body = bkm.Body
	stored.URL = bkm.URL
	stored.UpdatedAt = time.Now()
	bkm.UpdatedAt = stored.UpdatedAt

	return nil
}

// DeleteBookmark removes the bookmark scoped to its owner.
// It reports whether a row was actually deleted.
func (s *MemoryStorage) DeleteBookmark(ctx context.Context, userID string, bookmarkID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bkm, found := s.bookmarks[bookmarkID]
	if !found || bkm.UserID != userID {
		return false, nil
	}

	delete(s.bookmarks, bookmarkID)

	return true, nil
}

// RegisterVisit increments the visit counter of the bookmark with the given
// short code and returns its stored URL. The increment happens under the
// write lock, so N concurrent visits increase the counter by exactly N.
func (s *MemoryStorage) RegisterVisit(ctx context.Context, code string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, bkm := range s.bookmarks {
		if bkm.ShortCode == code {
			bkm.Visited++
			return bkm.URL, true, nil
		}
	}

	return "", false, nil
}

// BeginTransaction is a no-op for the in-memory storage.
func (s *MemoryStorage) BeginTransaction() (*sql.Tx, error) {
	return nil, nil
}

// RollbackTransaction is a no-op for the in-memory storage.
func (s *MemoryStorage) RollbackTransaction(transaction *sql.Tx) error {
	return nil
}

// CommitTransaction is a no-op for the in-memory storage.
func (s *MemoryStorage) CommitTransaction(transaction *sql.Tx) error {
	return nil
}

// Ping always succeeds for the in-memory storage.
func (s *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory storage.
func (s *MemoryStorage) Close() error {
	return nil
}
