// Package postgresdb provides a PostgreSQL-based implementation of the storage
// interface for persisting users and bookmarks. It supports transactional
// operations, owner-scoped bookmark queries, and the atomic visit counter
// update used by the redirect path.
package postgresdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/shpagin/bookmarker/internal/bookmark"
	"github.com/shpagin/bookmarker/internal/models"
	"github.com/shpagin/bookmarker/internal/user"
)

const uniqueViolationCode = "23505"

// PostgresDB is a PostgreSQL-backed implementation of the bookmarker storage.
// It handles all persistence operations via a PostgreSQL database connection.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type initOptions struct {
	DBPreReset bool
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset enables or disables resetting the database schema before migration.
// It can be used for test setups or development purposes.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// New establishes a connection to the PostgreSQL database,
// runs schema migrations, and returns a configured PostgresDB instance.
// Optionally accepts initialization options, such as WithDBPreReset.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	migrationsDir string,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			return nil, fmt.Errorf("error while `result.resetDB()` calling: %w", err)
		}
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("error while `goose.SetDialect()` calling: %w", err)
	}

	if err := goose.Up(result.database, migrationsDir); err != nil {
		return nil, fmt.Errorf("error while `goose.Up()` calling: %w", err)
	}

	return result, nil
}

// mapUniqueViolation translates a PostgreSQL unique-index violation into the
// matching domain error. Any other error is returned as is.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return err
	}

	switch pgErr.ConstraintName {
	case "users_username_key":
		return models.ErrUsernameExists
	case "users_email_key":
		return models.ErrEmailExists
	case "bookmarks_url_key":
		return models.ErrURLExists
	case "bookmarks_short_code_key":
		return models.ErrShortCodeExists
	}

	return err
}

// CreateUser inserts a new user record into the database and fills in the
// row-creation timestamps. The created_at value is computed by the database at
// insert time, never as a shared default bound once at process start.
func (db *PostgresDB) CreateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) error {
	var database queryer
	if transaction == nil {
		database = db.database
	} else {
		database = transaction
	}

	row := database.QueryRowContext(
		ctx,
		`
			INSERT INTO users (id, username, email, password_hash)
				VALUES ($1, $2, $3, $4)
				RETURNING created_at, updated_at
		`,
		usr.ID,
		usr.Username,
		usr.Email,
		usr.PasswordHash,
	)
	if err := row.Scan(&usr.CreatedAt, &usr.UpdatedAt); err != nil {
		return mapUniqueViolation(err)
	}

	return nil
}

// GetUserByID fetches a user by their UUID from the database.
func (db *PostgresDB) GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, bool, error) {
	return db.findUser(ctx, transaction, `id = $1`, userID)
}

// FindUserByEmail fetches a user by their unique email.
func (db *PostgresDB) FindUserByEmail(ctx context.Context, email string, transaction *sql.Tx) (*user.User, bool, error) {
	return db.findUser(ctx, transaction, `email = $1`, email)
}

// FindUserByUsername fetches a user by their unique username.
func (db *PostgresDB) FindUserByUsername(ctx context.Context, username string, transaction *sql.Tx) (*user.User, bool, error) {
	return db.findUser(ctx, transaction, `username = $1`, username)
}

func (db *PostgresDB) findUser(
	ctx context.Context,
	transaction *sql.Tx,
	condition string,
	arg interface{},
) (*user.User, bool, error) {
	var database queryer
	if transaction == nil {
		database = db.database
	} else {
		database = transaction
	}

	row := database.QueryRowContext(
		ctx,
		`
			SELECT id, username, email, password_hash, created_at, updated_at
				FROM users
				WHERE `+condition,
		arg,
	)

	usr := &user.User{}
	err := row.Scan(
		&usr.ID,
		&usr.Username,
		&usr.Email,
		&usr.PasswordHash,
		&usr.CreatedAt,
		&usr.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return usr, true, nil
}

// InsertBookmark creates a new bookmark row and fills in the generated ID and
// timestamps. Uniqueness violations on url or short_code come back as the
// corresponding domain errors, which lets the caller retry code generation.
func (db *PostgresDB) InsertBookmark(ctx context.Context, bkm *bookmark.Bookmark, transaction *sql.Tx) error {
	var database queryer
	if transaction == nil {
		database = db.database
	} else {
		database = transaction
	}

	row := database.QueryRowContext(
		ctx,
		`
			INSERT INTO bookmarks (body, url, short_code, user_id)
				VALUES ($1, $2, $3, $4)
				RETURNING id, visited, created_at, updated_at
		`,
		bkm.Body,
		bkm.URL,
		bkm.ShortCode,
		bkm.UserID,
	)
	if err := row.Scan(&bkm.ID, &bkm.Visited, &bkm.CreatedAt, &bkm.UpdatedAt); err != nil {
		return mapUniqueViolation(err)
	}

	return nil
}

// IsShortCodeTaken checks if the specified short code exists in the database.
func (db *PostgresDB) IsShortCodeTaken(ctx context.Context, code string) (bool, error) {
	return db.exists(
		ctx,
		db.database,
		`SELECT COUNT(*) FROM bookmarks WHERE short_code = $1`,
		code,
	)
}

// IsURLTaken checks if any bookmark of any user already stores the given URL.
func (db *PostgresDB) IsURLTaken(ctx context.Context, url string, transaction *sql.Tx) (bool, error) {
	var database queryer
	if transaction == nil {
		database = db.database
	} else {
		database = transaction
	}

	return db.exists(
		ctx,
		database,
		`SELECT COUNT(*) FROM bookmarks WHERE url = $1`,
		url,
	)
}

// IsURLTakenByOtherBookmark checks whether another bookmark of the same user
// already stores the given URL. The bookmark being updated is excluded.
func (db *PostgresDB) IsURLTakenByOtherBookmark(
	ctx context.Context,
	url string,
	userID string,
	excludeBookmarkID int64,
) (bool, error) {
	return db.exists(
		ctx,
		db.database,
		`SELECT COUNT(*) FROM bookmarks WHERE url = $1 AND user_id = $2 AND id <> $3`,
		url,
		userID,
		excludeBookmarkID,
	)
}

func (db *PostgresDB) exists(
	ctx context.Context,
	database queryer,
	query string,
	args ...interface{},
) (bool, error) {
	row := database.QueryRowContext(ctx, query, args...)

	var count int
	err := row.Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	return count > 0, nil
}

// FindBookmarkByID fetches a single bookmark scoped to its owner.
// A bookmark owned by another user is reported as not found.
func (db *PostgresDB) FindBookmarkByID(
	ctx context.Context,
	userID string,
	bookmarkID int64,
) (*bookmark.Bookmark, bool, error) {
	row := db.database.QueryRowContext(
		ctx,
		`
			SELECT id, body, url, short_code, visited, user_id, created_at, updated_at
				FROM bookmarks
				WHERE user_id = $1 AND id = $2
		`,
		userID,
		bookmarkID,
	)

	bkm := &bookmark.Bookmark{}
	err := scanBookmarkRow(row, bkm)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return bkm, true, nil
}

// FindBookmarksByUser retrieves a page of the user's bookmarks ordered by ID.
func (db *PostgresDB) FindBookmarksByUser(
	ctx context.Context,
	userID string,
	limit,
	offset int,
) ([]bookmark.Bookmark, error) {
	return db.queryBookmarks(
		ctx,
		`
			SELECT id, body, url, short_code, visited, user_id, created_at, updated_at
				FROM bookmarks
				WHERE user_id = $1
				ORDER BY id
				LIMIT $2 OFFSET $3
		`,
		userID,
		limit,
		offset,
	)
}

// FindAllBookmarksByUser retrieves every bookmark of the user ordered by ID.
func (db *PostgresDB) FindAllBookmarksByUser(ctx context.Context, userID string) ([]bookmark.Bookmark, error) {
	return db.queryBookmarks(
		ctx,
		`
			SELECT id, body, url, short_code, visited, user_id, created_at, updated_at
				FROM bookmarks
				WHERE user_id = $1
				ORDER BY id
		`,
		userID,
	)
}

func (db *PostgresDB) queryBookmarks(
	ctx context.Context,
	query string,
	args ...interface{},
) ([]bookmark.Bookmark, error) {
	rows, err := db.database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []bookmark.Bookmark{}
	for rows.Next() {
		bkm := bookmark.Bookmark{}
		err = rows.Scan(
			&bkm.ID,
			&bkm.Body,
			&bkm.URL,
			&bkm.ShortCode,
			&bkm.Visited,
			&bkm.UserID,
			&bkm.CreatedAt,
			&bkm.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		result = append(result, bkm)
	}

	err = rows.Err()
	if err != nil {
		return nil, err
	}

	return result, nil
}

// CountBookmarksByUser returns the total number of bookmarks owned by the user.
func (db *PostgresDB) CountBookmarksByUser(ctx context.Context, userID string) (int64, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM bookmarks WHERE user_id = $1`,
		userID,
	)

	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

// UpdateBookmark mutates the body and url of a bookmark; the short code and
// visit counter are never touched by the update path. The updated_at value is
// computed by the database at update time.
func (db *PostgresDB) UpdateBookmark(ctx context.Context, bkm *bookmark.Bookmark, transaction *sql.Tx) error {
	var database queryer
	if transaction == nil {
		database = db.database
	} else {
		database = transaction
	}

	row := database.QueryRowContext(
		ctx,
		`
			UPDATE bookmarks
				SET body = $1, url = $2, updated_at = now()
				WHERE id = $3 AND user_id = $4
				RETURNING updated_at
		`,
		bkm.Body,
		bkm.URL,
		bkm.ID,
		bkm.UserID,
	)
	if err := row.Scan(&bkm.UpdatedAt); err != nil {
		return mapUniqueViolation(err)
	}

	return nil
}

// DeleteBookmark removes the bookmark scoped to its owner.
// It reports whether a row was actually deleted.
func (db *PostgresDB) DeleteBookmark(ctx context.Context, userID string, bookmarkID int64) (bool, error) {
	result, err := db.database.ExecContext(
		ctx,
		`DELETE FROM bookmarks WHERE user_id = $1 AND id = $2`,
		userID,
		bookmarkID,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// RegisterVisit atomically increments the visit counter of the bookmark with
// the given short code and returns its stored URL. The single UPDATE statement
// guarantees that N concurrent redirects increase the counter by exactly N.
func (db *PostgresDB) RegisterVisit(ctx context.Context, code string) (string, bool, error) {
	row := db.database.QueryRowContext(
		ctx,
		`
			UPDATE bookmarks
				SET visited = visited + 1
				WHERE short_code = $1
				RETURNING url
		`,
		code,
	)

	var url string
	err := row.Scan(&url)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}

	return url, true, nil
}

// CommitTransaction commits the given SQL transaction.
// Returns an error if the commit operation fails.
func (db *PostgresDB) CommitTransaction(transaction *sql.Tx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic occurred while committing transaction: %v", r)
		}
	}()

	return transaction.Commit()
}

// RollbackTransaction rolls back the given SQL transaction.
// If rollback fails, the returned error describes the issue.
func (db *PostgresDB) RollbackTransaction(transaction *sql.Tx) error {
	return transaction.Rollback()
}

// BeginTransaction starts a new SQL transaction and returns it.
// The caller is responsible for committing or rolling it back.
func (db *PostgresDB) BeginTransaction() (*sql.Tx, error) {
	return db.database.Begin()
}

// Ping verifies connectivity with the PostgreSQL database within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the database connection and releases any associated resources.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf("error while `db.database.ExecContext()` calling: %w", err)
	}
	return nil
}

type bookmarkRowScanner interface {
	Scan(dest ...any) error
}

func scanBookmarkRow(row bookmarkRowScanner, bkm *bookmark.Bookmark) error {
	return row.Scan(
		&bkm.ID,
		&bkm.Body,
		&bkm.URL,
		&bkm.ShortCode,
		&bkm.Visited,
		&bkm.UserID,
		&bkm.CreatedAt,
		&bkm.UpdatedAt,
	)
}
