package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpagin/bookmarker/internal/bookmark"
	"github.com/shpagin/bookmarker/internal/db/memorystorage"
	"github.com/shpagin/bookmarker/internal/models"
	"github.com/shpagin/bookmarker/internal/shortcode"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := memorystorage.New()
	require.NoError(t, err)

	return New(db)
}

func registerTestUser(t *testing.T, svc *Service, username, email string) string {
	t.Helper()

	usr, err := svc.Register(context.Background(), models.RegisterRequest{
		Username: username,
		Email:    email,
		Password: "secret123",
	})
	require.NoError(t, err)

	return usr.ID
}

func createTestBookmark(t *testing.T, svc *Service, userID, body, url string) *bookmark.Bookmark {
	t.Helper()

	bkm, err := svc.CreateBookmark(context.Background(), userID, models.BookmarkRequest{
		Body: body,
		URL:  url,
	})
	require.NoError(t, err)

	return bkm
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name            string
		request         models.RegisterRequest
		expectedMessage string
	}{
		{
			name: "password of 5 characters",
			request: models.RegisterRequest{
				Username: "alice",
				Email:    "alice@example.com",
				Password: "12345",
			},
			expectedMessage: "Password too short",
		},
		{
			name: "username of 2 characters",
			request: models.RegisterRequest{
				Username: "al",
				Email:    "alice@example.com",
				Password: "secret123",
			},
			expectedMessage: "Username too short",
		},
		{
			name: "username of 11 characters",
			request: models.RegisterRequest{
				Username: "abcdefghijk",
				Email:    "alice@example.com",
				Password: "secret123",
			},
			expectedMessage: "Username too long",
		},
		{
			name: "username with spaces",
			request: models.RegisterRequest{
				Username: "al ice",
				Email:    "alice@example.com",
				Password: "secret123",
			},
			expectedMessage: "Username must be alphaNumeric and spaces are not allowed",
		},
		{
			name: "malformed email",
			request: models.RegisterRequest{
				Username: "alice",
				Email:    "not-an-email",
				Password: "secret123",
			},
			expectedMessage: "Only valid email addresses are allowed",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := svc.Register(ctx, test.request)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, test.expectedMessage, validationErr.Message)
		})
	}
}

func TestRegisterBoundaryValuesAccepted(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	usr, err := svc.Register(ctx, models.RegisterRequest{
		Username: "abc",
		Email:    "abc@example.com",
		Password: "123456",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.NotEqual(t, "123456", usr.PasswordHash)

	usr, err = svc.Register(ctx, models.RegisterRequest{
		Username: "abcdefghij",
		Email:    "long@example.com",
		Password: "123456",
	})
	require.NoError(t, err)
	assert.Equal(t, "abcdefghij", usr.Username)
}

func TestRegisterConflicts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc, "alice", "alice@example.com")

	_, err := svc.Register(ctx, models.RegisterRequest{
		Username: "alice",
		Email:    "other@example.com",
		Password: "secret123",
	})
	assert.ErrorIs(t, err, models.ErrUsernameExists)

	_, err = svc.Register(ctx, models.RegisterRequest{
		Username: "bob",
		Email:    "alice@example.com",
		Password: "secret123",
	})
	assert.ErrorIs(t, err, models.ErrEmailExists)
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc, "alice", "alice@example.com")

	usr, err := svc.Authenticate(ctx, models.LoginRequest{
		Email:    "alice@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", usr.Username)

	// An unknown email and a wrong password fail identically.
	_, err = svc.Authenticate(ctx, models.LoginRequest{
		Email:    "nobody@example.com",
		Password: "secret123",
	})
	assert.ErrorIs(t, err, ErrWrongCredentials)

	_, err = svc.Authenticate(ctx, models.LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong-password",
	})
	assert.ErrorIs(t, err, ErrWrongCredentials)

	_, err = svc.Authenticate(ctx, models.LoginRequest{Email: "alice@example.com"})
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestCreateBookmark(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	userID := registerTestUser(t, svc, "alice", "alice@example.com")

	bkm := createTestBookmark(t, svc, userID, "Go docs", "https://go.dev/doc")
	assert.Len(t, bkm.ShortCode, shortcode.Length)
	assert.Equal(t, int64(0), bkm.Visited)
	assert.Equal(t, userID, bkm.UserID)

	tests := []struct {
		name            string
		request         models.BookmarkRequest
		expectedMessage string
	}{
		{
			name:            "missing body",
			request:         models.BookmarkRequest{URL: "https://example.com"},
			expectedMessage: "All fields are required",
		},
		{
			name:            "missing url",
			request:         models.BookmarkRequest{Body: "note"},
			expectedMessage: "All fields are required",
		},
		{
			name:            "not a url",
			request:         models.BookmarkRequest{Body: "note", URL: "definitely not a url"},
			expectedMessage: "Valid url required",
		},
		{
			name:            "unsupported scheme",
			request:         models.BookmarkRequest{Body: "note", URL: "ftp://example.com/file"},
			expectedMessage: "Valid url required",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := svc.CreateBookmark(ctx, userID, test.request)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, test.expectedMessage, validationErr.Message)
		})
	}
}

func TestCreateBookmarkURLIsGloballyUnique(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	aliceID := registerTestUser(t, svc, "alice", "alice@example.com")
	bobID := registerTestUser(t, svc, "bob", "bob@example.com")

	createTestBookmark(t, svc, aliceID, "Go docs", "https://go.dev/doc")

	// The same URL conflicts even when stored by a different user.
	_, err := svc.CreateBookmark(ctx, bobID, models.BookmarkRequest{
		Body: "also Go docs",
		URL:  "https://go.dev/doc",
	})
	assert.ErrorIs(t, err, models.ErrURLExists)
}

func TestCreateBookmarkAssignsDistinctShortCodes(t *testing.T) {
	svc := newTestService(t)

	userID := registerTestUser(t, svc, "alice", "alice@example.com")

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		bkm := createTestBookmark(
			t,
			svc,
			userID,
			fmt.Sprintf("note %d", i),
			fmt.Sprintf("https://example.com/page/%d", i),
		)
		assert.False(t, seen[bkm.ShortCode], "short code %q assigned twice", bkm.ShortCode)
		seen[bkm.ShortCode] = true
	}
}

func TestListBookmarksPagination(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	userID := registerTestUser(t, svc, "alice", "alice@example.com")

	for i := 0; i < 7; i++ {
		createTestBookmark(t, svc, userID, fmt.Sprintf("note %d", i), fmt.Sprintf("https://example.com/%d", i))
	}

	firstPage, err := svc.ListBookmarks(ctx, userID, 1, 5)
	require.NoError(t, err)
	assert.Len(t, firstPage.Bookmarks, 5)
	assert.Equal(t, 1, firstPage.Meta.Page)
	assert.Equal(t, 2, firstPage.Meta.Pages)
	assert.True(t, firstPage.Meta.HasNext)
	assert.False(t, firstPage.Meta.HasPrev)
	require.NotNil(t, firstPage.Meta.NextPage)
	assert.Equal(t, 2, *firstPage.Meta.NextPage)
	assert.Nil(t, firstPage.Meta.PrevPage)
	assert.Equal(t, int64(7), firstPage.Meta.TotalCount)

	secondPage, err := svc.ListBookmarks(ctx, userID, 2, 5)
	require.NoError(t, err)
	assert.Len(t, secondPage.Bookmarks, 2)
	assert.False(t, secondPage.Meta.HasNext)
	assert.True(t, secondPage.Meta.HasPrev)
	assert.Nil(t, secondPage.Meta.NextPage)
	require.NotNil(t, secondPage.Meta.PrevPage)
	assert.Equal(t, 1, *secondPage.Meta.PrevPage)

	// Out-of-range and nonsense parameters degrade gracefully.
	emptyPage, err := svc.ListBookmarks(ctx, userID, 5, 5)
	require.NoError(t, err)
	assert.Empty(t, emptyPage.Bookmarks)

	defaulted, err := svc.ListBookmarks(ctx, userID, -1, 0)
	require.NoError(t, err)
	assert.Len(t, defaulted.Bookmarks, 5)
	assert.Equal(t, 1, defaulted.Meta.Page)
}

func TestUpdateBookmark(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	userID := registerTestUser(t, svc, "alice", "alice@example.com")

	first := createTestBookmark(t, svc, userID, "first", "https://example.com/first")
	second := createTestBookmark(t, svc, userID, "second", "https://example.com/second")

	updated, err := svc.UpdateBookmark(ctx, userID, second.ID, models.BookmarkRequest{
		Body: "renamed",
		URL:  "https://example.com/renamed",
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Body)
	assert.Equal(t, second.ShortCode, updated.ShortCode)

	// Another bookmark of the same user already stores this URL.
	_, err = svc.UpdateBookmark(ctx, userID, second.ID, models.BookmarkRequest{
		Body: "steal",
		URL:  first.URL,
	})
	assert.ErrorIs(t, err, models.ErrURLExists)

	// Re-submitting the bookmark's own URL is not a conflict.
	_, err = svc.UpdateBookmark(ctx, userID, first.ID, models.BookmarkRequest{
		Body: "same url",
		URL:  first.URL,
	})
	require.NoError(t, err)

	_, err = svc.UpdateBookmark(ctx, userID, 9999, models.BookmarkRequest{
		Body: "ghost",
		URL:  "https://example.com/ghost",
	})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.UpdateBookmark(ctx, userID, first.ID, models.BookmarkRequest{URL: "https://example.com/x"})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "All fields are required", validationErr.Message)

	_, err = svc.UpdateBookmark(ctx, userID, first.ID, models.BookmarkRequest{Body: "x", URL: "nope"})
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "Enter a valid url", validationErr.Message)
}

func TestDeleteBookmark(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	userID := registerTestUser(t, svc, "alice", "alice@example.com")
	strangerID := registerTestUser(t, svc, "bob", "bob@example.com")

	bkm := createTestBookmark(t, svc, userID, "note", "https://example.com/note")

	assert.ErrorIs(t, svc.DeleteBookmark(ctx, strangerID, bkm.ID), ErrNotFound)

	require.NoError(t, svc.DeleteBookmark(ctx, userID, bkm.ID))

	// The second delete finds nothing.
	assert.ErrorIs(t, svc.DeleteBookmark(ctx, userID, bkm.ID), ErrNotFound)
}

func TestGetStats(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	userID := registerTestUser(t, svc, "alice", "alice@example.com")

	bkm := createTestBookmark(t, svc, userID, "note", "https://example.com/note")

	for i := 0; i < 3; i++ {
		_, err := svc.Resolve(ctx, bkm.ShortCode)
		require.NoError(t, err)
	}

	stats, err := svc.GetStats(ctx, userID)
	require.NoError(t, err)
	require.Len(t, stats.Stats, 1)
	assert.Equal(t, bkm.ID, stats.Stats[0].ID)
	assert.Equal(t, int64(3), stats.Stats[0].Visited)
	assert.Equal(t, bkm.ShortCode, stats.Stats[0].ShortURL)
	assert.Equal(t, "https://example.com/note", stats.Stats[0].URL)
}

func TestResolveCountsConcurrentVisits(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	userID := registerTestUser(t, svc, "alice", "alice@example.com")
	bkm := createTestBookmark(t, svc, userID, "hot", "https://example.com/hot")

	const visits = 100

	var wg sync.WaitGroup
	wg.Add(visits)
	for i := 0; i < visits; i++ {
		go func() {
			defer wg.Done()

			targetURL, resolveErr := svc.Resolve(ctx, bkm.ShortCode)
			assert.NoError(t, resolveErr)
			assert.Equal(t, "https://example.com/hot", targetURL)
		}()
	}
	wg.Wait()

	updated, err := svc.GetBookmark(ctx, userID, bkm.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(visits), updated.Visited)
}

func TestResolveUnknownCode(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Resolve(context.Background(), "nah")
	assert.ErrorIs(t, err, ErrNotFound)
}
