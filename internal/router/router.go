// Package router wires the HTTP surface of the bookmarker: the auth and
// bookmark endpoints under /api/v1, the unauthenticated short-code redirect at
// the root, and the generic JSON handlers for unmatched routes and panics.
package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shpagin/bookmarker/internal/gzippedhttp"
	"github.com/shpagin/bookmarker/internal/logger"
	"github.com/shpagin/bookmarker/internal/models"
	"github.com/shpagin/bookmarker/internal/service"
	"github.com/shpagin/bookmarker/internal/shortcode"

	"github.com/shpagin/bookmarker/internal/auth"
)

type authenticator interface {
	Authenticate(h http.Handler) http.Handler

	AuthenticateRefresh(h http.Handler) http.Handler

	NewTokenPair(userID string) (models.TokenPair, error)

	NewAccessToken(userID string) (string, error)
}

// Router holds the dependencies of the HTTP handlers.
type Router struct {
	svc  *service.Service
	auth authenticator
}

// New builds the chi mux with all middleware and routes attached.
func New(svc *service.Service, authManager authenticator) *chi.Mux {
	rt := &Router{
		svc:  svc,
		auth: authManager,
	}

	router := chi.NewRouter()
	router.Use(logger.WithLoggingHTTPMiddleware)
	router.Use(withRecover)
	router.Use(gzippedhttp.UngzipRequest)
	router.Use(gzippedhttp.GzipResponse)

	router.NotFound(rt.handleUnmatchedRoute)
	router.MethodNotAllowed(rt.handleUnmatchedRoute)

	router.Get(`/ping`, rt.getPing)
	router.Get(`/{short}`, rt.getRedirectToURL)

	router.Route(`/api/v1`, func(api chi.Router) {
		api.Route(`/auth`, func(authRoutes chi.Router) {
			authRoutes.Post(`/register`, rt.postRegister)
			authRoutes.Post(`/login`, rt.postLogin)
			authRoutes.With(authManager.AuthenticateRefresh).Get(`/token/refresh`, rt.getTokenRefresh)
			authRoutes.With(authManager.Authenticate).Get(`/me`, rt.getMe)
		})

		api.Route(`/bookmarks`, func(bookmarkRoutes chi.Router) {
			bookmarkRoutes.Use(authManager.Authenticate)
			bookmarkRoutes.Post(`/`, rt.postCreateBookmark)
			bookmarkRoutes.Get(`/`, rt.getBookmarks)
			bookmarkRoutes.Get(`/stats`, rt.getStats)
			bookmarkRoutes.Get(`/{id}`, rt.getBookmark)
			bookmarkRoutes.Patch(`/{id}`, rt.patchBookmark)
			bookmarkRoutes.Delete(`/{id}`, rt.deleteBookmark)
		})
	})

	return router
}

func (rt *Router) getRedirectToURL(response http.ResponseWriter, request *http.Request) {
	short := chi.URLParam(request, "short")

	targetURL, err := rt.svc.Resolve(request.Context(), short)
	if errors.Is(err, service.ErrNotFound) {
		rt.handleUnmatchedRoute(response, request)

		return
	}
	if err != nil {
		rt.writeInternalError(response, err)

		return
	}

	http.Redirect(response, request, targetURL, http.StatusFound)
}

func (rt *Router) postRegister(response http.ResponseWriter, request *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(request.Body).Decode(&req); err != nil {
		writeJSON(response, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})

		return
	}

	usr, err := rt.svc.Register(request.Context(), req)

	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(response, http.StatusBadRequest, map[string]string{"error": validationErr.Message})

	case errors.Is(err, models.ErrUsernameExists):
		writeJSON(response, http.StatusConflict, map[string]string{"error": "Username already exist"})

	case errors.Is(err, models.ErrEmailExists):
		writeJSON(response, http.StatusConflict, map[string]string{"error": "email already exist"})

	case err != nil:
		rt.writeInternalError(response, err)

	default:
		writeJSON(response, http.StatusCreated, map[string]interface{}{
			"message": "User created",
			"user": models.UserResponse{
				Username: usr.Username,
				Email:    usr.Email,
			},
		})
	}
}

func (rt *Router) postLogin(response http.ResponseWriter, request *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(request.Body).Decode(&req); err != nil {
		writeJSON(response, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})

		return
	}

	usr, err := rt.svc.Authenticate(request.Context(), req)

	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(response, http.StatusBadRequest, map[string]string{"error": validationErr.Message})

		return

	case errors.Is(err, service.ErrWrongCredentials):
		writeJSON(response, http.StatusBadRequest, map[string]string{"error": "Wrong credentials"})

		return

	case err != nil:
		rt.writeInternalError(response, err)

		return
	}

	tokens, err := rt.auth.NewTokenPair(usr.ID)
	if err != nil {
		rt.writeInternalError(response, err)

		return
	}

	writeJSON(response, http.StatusOK, models.LoginResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		User: models.UserResponse{
			Username: usr.Username,
			Email:    usr.Email,
		},
	})
}

func (rt *Router) getTokenRefresh(response http.ResponseWriter, request *http.Request) {
	userID, ok := auth.UserIDFromContext(request.Context())
	if !ok {
		rt.writeUnauthorized(response)

		return
	}

	accessToken, err := rt.auth.NewAccessToken(userID)
	if err != nil {
		rt.writeInternalError(response, err)

		return
	}

	writeJSON(response, http.StatusOK, map[string]string{"access_token": accessToken})
}

func (rt *Router) getMe(response http.ResponseWriter, request *http.Request) {
	userID, ok := auth.UserIDFromContext(request.Context())
	if !ok {
		rt.writeUnauthorized(response)

		return
	}

	usr, err := rt.svc.GetUser(request.Context(), userID)
	if errors.Is(err, service.ErrNotFound) {
		rt.handleUnmatchedRoute(response, request)

		return
	}
	if err != nil {
		rt.writeInternalError(response, err)

		return
	}

	writeJSON(response, http.StatusOK, models.UserResponse{
		Username: usr.Username,
		Email:    usr.Email,
	})
}

func (rt *Router) postCreateBookmark(response http.ResponseWriter, request *http.Request) {
	userID, ok := auth.UserIDFromContext(request.Context())
	if !ok {
		rt.writeUnauthorized(response)

		return
	}

	var req models.BookmarkRequest
	if err := json.NewDecoder(request.Body).Decode(&req); err != nil {
		writeJSON(response, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})

		return
	}

	_, err := rt.svc.CreateBookmark(request.Context(), userID, req)

	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(response, http.StatusBadRequest, map[string]string{"error": validationErr.Message})

	case errors.Is(err, models.ErrURLExists):
		writeJSON(response, http.StatusConflict, map[string]string{"error": "url already exist"})

	case errors.Is(err, shortcode.ErrSpaceExhausted):
		rt.writeInternalError(response, err)

	case err != nil:
		rt.writeInternalError(response, err)

	default:
		writeJSON(response, http.StatusCreated, map[string]string{"message": "bookmark created"})
	}
}

func (rt *Router) getBookmarks(response http.ResponseWriter, request *http.Request) {
	userID, ok := auth.UserIDFromContext(request.Context())
	if !ok {
		rt.writeUnauthorized(response)

		return
	}

	page := queryParamAsInt(request, "page", 1)
	perPage := queryParamAsInt(request, "per_page", 5)

	list, err := rt.svc.ListBookmarks(request.Context(), userID, page, perPage)
	if err != nil {
		rt.writeInternalError(response, err)

		return
	}

	writeJSON(response, http.StatusOK, list)
}

func (rt *Router) getBookmark(response http.ResponseWriter, request *http.Request) {
	userID, ok := auth.UserIDFromContext(request.Context())
	if !ok {
		rt.writeUnauthorized(response)

		return
	}

	bookmarkID, err := bookmarkIDFromRequest(request)
	if err != nil {
		rt.handleUnmatchedRoute(response, request)

		return
	}

	bkm, err := rt.svc.GetBookmark(request.Context(), userID, bookmarkID)
	if errors.Is(err, service.ErrNotFound) {
		writeJSON(response, http.StatusNotFound, map[string]string{"message": "Bookmark not found"})

		return
	}
	if err != nil {
		rt.writeInternalError(response, err)

		return
	}

	writeJSON(response, http.StatusOK, models.NewBookmarkResponse(bkm))
}

func (rt *Router) patchBookmark(response http.ResponseWriter, request *http.Request) {
	userID, ok := auth.UserIDFromContext(request.Context())
	if !ok {
		rt.writeUnauthorized(response)

		return
	}

	bookmarkID, err := bookmarkIDFromRequest(request)
	if err != nil {
		rt.handleUnmatchedRoute(response, request)

		return
	}

	var req models.BookmarkRequest
	if err := json.NewDecoder(request.Body).Decode(&req); err != nil {
		writeJSON(response, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})

		return
	}

	bkm, err := rt.svc.UpdateBookmark(request.Context(), userID, bookmarkID, req)

	var validationErr *service.ValidationError
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeJSON(response, http.StatusNotFound, map[string]string{"message": "Bookmark not found"})

	case errors.As(err, &validationErr):
		writeJSON(response, http.StatusBadRequest, map[string]string{"error": validationErr.Message})

	case errors.Is(err, models.ErrURLExists):
		writeJSON(response, http.StatusConflict, map[string]string{"message": "Url already exist"})

	case err != nil:
		rt.writeInternalError(response, err)

	default:
		writeJSON(response, http.StatusOK, models.NewBookmarkResponse(bkm))
	}
}

func (rt *Router) deleteBookmark(response http.ResponseWriter, request *http.Request) {
	userID, ok := auth.UserIDFromContext(request.Context())
	if !ok {
		rt.writeUnauthorized(response)

		return
	}

	bookmarkID, err := bookmarkIDFromRequest(request)
	if err != nil {
		rt.handleUnmatchedRoute(response, request)

		return
	}

	err = rt.svc.DeleteBookmark(request.Context(), userID, bookmarkID)
	if errors.Is(err, service.ErrNotFound) {
		writeJSON(response, http.StatusNotFound, map[string]string{"message": "Bookmark not found"})

		return
	}
	if err != nil {
		rt.writeInternalError(response, err)

		return
	}

	response.WriteHeader(http.StatusNoContent)
}

func (rt *Router) getStats(response http.ResponseWriter, request *http.Request) {
	userID, ok := auth.UserIDFromContext(request.Context())
	if !ok {
		rt.writeUnauthorized(response)

		return
	}

	stats, err := rt.svc.GetStats(request.Context(), userID)
	if err != nil {
		rt.writeInternalError(response, err)

		return
	}

	writeJSON(response, http.StatusOK, stats)
}

func (rt *Router) getPing(response http.ResponseWriter, request *http.Request) {
	if err := rt.svc.Ping(request.Context()); err != nil {
		rt.writeInternalError(response, err)

		return
	}

	response.WriteHeader(http.StatusOK)
}

func (rt *Router) handleUnmatchedRoute(response http.ResponseWriter, request *http.Request) {
	writeJSON(response, http.StatusNotFound, map[string]string{"error": "404 NOT FOUND"})
}

func (rt *Router) writeUnauthorized(response http.ResponseWriter) {
	writeJSON(response, http.StatusUnauthorized, map[string]string{"error": "Missing or invalid token"})
}

func (rt *Router) writeInternalError(response http.ResponseWriter, err error) {
	logger.Log.Errorln("internal error:", err)
	writeJSON(
		response,
		http.StatusInternalServerError,
		map[string]string{"error": "Internal server error, we are currently working on it"},
	)
}

// withRecover converts an unhandled panic into the generic 500 JSON response
// so that no internal detail leaks to the caller.
func withRecover(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Log.Errorln("panic recovered:", rec)
				writeJSON(
					response,
					http.StatusInternalServerError,
					map[string]string{"error": "Internal server error, we are currently working on it"},
				)
			}
		}()

		h.ServeHTTP(response, request)
	}

	return http.HandlerFunc(middleware)
}

func writeJSON(response http.ResponseWriter, statusCode int, payload interface{}) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(statusCode)
	_ = json.NewEncoder(response).Encode(payload)
}

func queryParamAsInt(request *http.Request, name string, defaultValue int) int {
	raw := request.URL.Query().Get(name)
	if raw == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}

	return value
}

func bookmarkIDFromRequest(request *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(request, "id"), 10, 64)
}
