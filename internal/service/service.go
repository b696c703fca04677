// Package service implements the business logic of the bookmarker: account
// registration and login, bookmark CRUD with pagination, per-user stats, and
// the short-code redirect path.
package service

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/thoas/go-funk"

	"github.com/shpagin/bookmarker/internal/auth"
	"github.com/shpagin/bookmarker/internal/bookmark"
	"github.com/shpagin/bookmarker/internal/models"
	"github.com/shpagin/bookmarker/internal/shortcode"
	"github.com/shpagin/bookmarker/internal/user"
)

type userKeeper interface {
	CreateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) error

	GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, bool, error)

	FindUserByEmail(ctx context.Context, email string, transaction *sql.Tx) (*user.User, bool, error)

	FindUserByUsername(ctx context.Context, username string, transaction *sql.Tx) (*user.User, bool, error)
}

type bookmarkKeeper interface {
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
}

type visitRegistrar interface {
	RegisterVisit(ctx context.Context, code string) (string, bool, error)
}

type transactioner interface {
	BeginTransaction() (*sql.Tx, error)

	RollbackTransaction(transaction *sql.Tx) error

	CommitTransaction(transaction *sql.Tx) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type storage interface {
	userKeeper
	bookmarkKeeper
	visitRegistrar
	transactioner
	pinger
}

// ErrNotFound is returned when the requested bookmark, user, or short code
// does not exist or is owned by another user.
var ErrNotFound = errors.New("not found")

// ErrWrongCredentials is returned for any failed login attempt. It deliberately
// does not distinguish an unknown email from a wrong password to avoid user
// enumeration.
var ErrWrongCredentials = errors.New("wrong credentials")

// ValidationError reports a missing or malformed request field.
// The message is surfaced verbatim to the API caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(message string) error {
	return &ValidationError{Message: message}
}

const (
	minPasswordLength = 6
	minUsernameLength = 3
	maxUsernameLength = 10

	defaultPerPage = 5
	maxPerPage     = 100

	// Attempts to re-insert after the storage unique index rejected a short
	// code that looked free at generation time.
	shortCodeInsertRetries = 3
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

var validate = validator.New()

// Service wires the storage layer to the HTTP surface.
type Service struct {
	db storage
}

// New returns a Service backed by the given storage.
func New(db storage) *Service {
	return &Service{db: db}
}

// Register validates the registration request, hashes the password, and
// persists a new user. Conflicting usernames and emails are reported with
// models.ErrUsernameExists and models.ErrEmailExists.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*user.User, error) {
	if len(req.Password) < minPasswordLength {
		return nil, newValidationError("Password too short")
	}

	if len(req.Username) < minUsernameLength {
		return nil, newValidationError("Username too short")
	}

	if len(req.Username) > maxUsernameLength {
		return nil, newValidationError("Username too long")
	}

	if !usernamePattern.MatchString(req.Username) {
		return nil, newValidationError("Username must be alphaNumeric and spaces are not allowed")
	}

	if err := validate.Var(req.Email, "required,email"); err != nil {
		return nil, newValidationError("Only valid email addresses are allowed")
	}

	// Fast-path duplicate checks. The unique indexes of the storage remain
	// the authoritative guard, so CreateUser may still report a conflict.
	_, found, err := s.db.FindUserByUsername(ctx, req.Username, nil)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, models.ErrUsernameExists
	}

	_, found, err = s.db.FindUserByEmail(ctx, req.Email, nil)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, models.ErrEmailExists
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	usr := &user.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
	}

	if err := s.db.CreateUser(ctx, usr, nil); err != nil {
		return nil, err
	}

	return usr, nil
}

// Authenticate verifies the email and password of a login request and returns
// the matching user. All failures collapse into ErrWrongCredentials.
func (s *Service) Authenticate(ctx context.Context, req models.LoginRequest) (*user.User, error) {
	if req.Email == "" || req.Password == "" {
		return nil, newValidationError("All fields are required")
	}

	usr, found, err := s.db.FindUserByEmail(ctx, req.Email, nil)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrWrongCredentials
	}

	if !auth.VerifyPassword(req.Password, usr.PasswordHash) {
		return nil, ErrWrongCredentials
	}

	return usr, nil
}

// GetUser returns the user with the given ID or ErrNotFound.
func (s *Service) GetUser(ctx context.Context, userID string) (*user.User, error) {
	usr, found, err := s.db.GetUserByID(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	return usr, nil
}

// CreateBookmark validates the request, assigns a unique short code, and
// persists a new bookmark owned by the given user.
func (s *Service) CreateBookmark(
	ctx context.Context,
	userID string,
	req models.BookmarkRequest,
) (*bookmark.Bookmark, error) {
	if req.Body == "" || req.URL == "" {
		return nil, newValidationError("All fields are required")
	}

	if !isValidURL(req.URL) {
		return nil, newValidationError("Valid url required")
	}

	// Each attempt runs in its own transaction: a unique-index violation
	// aborts the transaction, so a retry with a fresh code has to start over.
	for attempt := 0; attempt < shortCodeInsertRetries; attempt++ {
		bkm, err := s.tryCreateBookmark(ctx, userID, req)
		if errors.Is(err, models.ErrShortCodeExists) {
			continue
		}

		return bkm, err
	}

	return nil, shortcode.ErrSpaceExhausted
}

func (s *Service) tryCreateBookmark(
	ctx context.Context,
	userID string,
	req models.BookmarkRequest,
) (*bookmark.Bookmark, error) {
	tx, err := s.db.BeginTransaction()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = s.db.RollbackTransaction(tx)
	}()

	taken, err := s.db.IsURLTaken(ctx, req.URL, tx)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, models.ErrURLExists
	}

	code, err := shortcode.Unique(ctx, s.db.IsShortCodeTaken)
	if err != nil {
		return nil, err
	}

	bkm := &bookmark.Bookmark{
		Body:      req.Body,
		URL:       req.URL,
		ShortCode: code,
		UserID:    userID,
	}

	if err := s.db.InsertBookmark(ctx, bkm, tx); err != nil {
		return nil, err
	}

	if err := s.db.CommitTransaction(tx); err != nil {
		return nil, err
	}

	return bkm, nil
}

// ListBookmarks returns one page of the user's bookmarks together with the
// pagination metadata. Page numbering starts at 1; perPage defaults to 5.
func (s *Service) ListBookmarks(
	ctx context.Context,
	userID string,
	page,
	perPage int,
) (models.BookmarkListResponse, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	totalCount, err := s.db.CountBookmarksByUser(ctx, userID)
	if err != nil {
		return models.BookmarkListResponse{}, err
	}

	items, err := s.db.FindBookmarksByUser(ctx, userID, perPage, (page-1)*perPage)
	if err != nil {
		return models.BookmarkListResponse{}, err
	}

	bookmarks := make([]models.BookmarkResponse, 0, len(items))
	for _, bkm := range items {
		bkm := bkm
		bookmarks = append(bookmarks, models.NewBookmarkResponse(&bkm))
	}

	return models.BookmarkListResponse{
		Bookmarks: bookmarks,
		Meta:      buildPageMeta(page, perPage, totalCount),
	}, nil
}

// GetBookmark returns a single bookmark scoped to its owner or ErrNotFound.
func (s *Service) GetBookmark(ctx context.Context, userID string, bookmarkID int64) (*bookmark.Bookmark, error) {
	bkm, found, err := s.db.FindBookmarkByID(ctx, userID, bookmarkID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	return bkm, nil
}

// UpdateBookmark mutates the body and url of the user's bookmark. The short
// code and visit counter are never touched. A url already stored by a
// different bookmark of the same user is rejected with models.ErrURLExists.
func (s *Service) UpdateBookmark(
	ctx context.Context,
	userID string,
	bookmarkID int64,
	req models.BookmarkRequest,
) (*bookmark.Bookmark, error) {
	bkm, found, err := s.db.FindBookmarkByID(ctx, userID, bookmarkID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	if req.Body == "" || req.URL == "" {
		return nil, newValidationError("All fields are required")
	}

	if !isValidURL(req.URL) {
		return nil, newValidationError("Enter a valid url")
	}

	taken, err := s.db.IsURLTakenByOtherBookmark(ctx, req.URL, userID, bookmarkID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, models.ErrURLExists
	}

	bkm.Body = req.Body
	bkm.URL = req.URL

	err = s.db.UpdateBookmark(ctx, bkm, nil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return bkm, nil
}

// DeleteBookmark removes the user's bookmark or returns ErrNotFound.
func (s *Service) DeleteBookmark(ctx context.Context, userID string, bookmarkID int64) error {
	deleted, err := s.db.DeleteBookmark(ctx, userID, bookmarkID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}

	return nil
}

// GetStats shapes all of the user's bookmarks into the visit statistics view.
func (s *Service) GetStats(ctx context.Context, userID string) (models.StatsResponse, error) {
	items, err := s.db.FindAllBookmarksByUser(ctx, userID)
	if err != nil {
		return models.StatsResponse{}, err
	}

	stats := funk.Map(items, func(bkm bookmark.Bookmark) models.StatsItem {
		return models.StatsItem{
			ID:       bkm.ID,
			Visited:  bkm.Visited,
			ShortURL: bkm.ShortCode,
			URL:      bkm.URL,
		}
	}).([]models.StatsItem)

	return models.StatsResponse{Stats: stats}, nil
}

// Resolve looks up the bookmark by short code, registers the visit, and
// returns the stored URL for the caller to redirect to. The visit counter
// update is atomic: N concurrent resolves increase it by exactly N.
func (s *Service) Resolve(ctx context.Context, code string) (string, error) {
	targetURL, found, err := s.db.RegisterVisit(ctx, code)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrNotFound
	}

	return targetURL, nil
}

// Ping checks the health of the database/storage layer.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func buildPageMeta(page, perPage int, totalCount int64) models.PageMeta {
	pages := int((totalCount + int64(perPage) - 1) / int64(perPage))

	meta := models.PageMeta{
		Page:       page,
		Pages:      pages,
		HasNext:    page < pages,
		HasPrev:    page > 1,
		TotalCount: totalCount,
	}

	if meta.HasNext {
		next := page + 1
		meta.NextPage = &next
	}
	if meta.HasPrev {
		prev := page - 1
		meta.PrevPage = &prev
	}

	return meta
}

func isValidURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil &&
		(u.Scheme == "http" || u.Scheme == "https") &&
		u.Host != ""
}
