// Package api exposes the catalog over HTTP: book CRUD, authentication,
// and the recommendation endpoints the refresher invokes remotely.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	restful "github.com/emicklei/go-restful/v3"

	"booklib/auth"
	"booklib/catalog"
	"booklib/recommend"
)

// Recommender is the recommendation surface the API depends on.
type Recommender interface {
	// Refresh recomputes and caches the recommendation set, returning a job id.
	Refresh(ctx context.Context) (string, error)
	// Current returns the active recommendation set.
	Current(ctx context.Context) ([]recommend.Recommendation, error)
}

// API wires the catalog store, recommender and token issuer into REST routes.
type API struct {
	store  catalog.Store
	recs   Recommender
	issuer *auth.TokenIssuer
	users  auth.UserStore
}

// New creates the API over its collaborators.
func New(store catalog.Store, recs Recommender, issuer *auth.TokenIssuer, users auth.UserStore) *API {
	return &API{
		store:  store,
		recs:   recs,
		issuer: issuer,
		users:  users,
	}
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Detail string `json:"detail"`
}

// loginRequest is the credential payload for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse carries the issued access token.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Role        string `json:"role"`
}

// refreshAck acknowledges a recommendation refresh trigger.
type refreshAck struct {
	JobID string `json:"job_id"`
}

// rateRequest is the payload for POST /books/{id}/rate.
type rateRequest struct {
	Rating float64 `json:"rating"`
}

// favoriteAck reports the favorite state after a toggle.
type favoriteAck struct {
	BookID    int64 `json:"book_id"`
	Favorited bool  `json:"favorited"`
}

// claimsAttribute is the request attribute holding verified claims.
const claimsAttribute = "auth.claims"

// Register adds all web services to the container.
func (a *API) Register(c *restful.Container) {
	c.Add(a.booksWebService())
	c.Add(a.authWebService())
	c.Add(a.recommendationsWebService())
}

// Handler returns an http.Handler serving all routes.
func (a *API) Handler() http.Handler {
	c := restful.NewContainer()
	a.Register(c)
	return c
}

func (a *API) booksWebService() *restful.WebService {
	ws := new(restful.WebService)
	ws.Path("/books").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)

	ws.Route(ws.GET("").To(a.listBooks))
	ws.Route(ws.GET("/{id}").To(a.getBook))
	ws.Route(ws.POST("").Filter(a.authFilter).To(a.createBook))
	ws.Route(ws.PUT("/{id}").Filter(a.authFilter).To(a.updateBook))
	ws.Route(ws.DELETE("/{id}").Filter(a.authFilter).Filter(a.adminFilter).To(a.deleteBook))
	ws.Route(ws.POST("/{id}/rate").Filter(a.authFilter).To(a.rateBook))
	ws.Route(ws.POST("/{id}/favorite").Filter(a.authFilter).To(a.toggleFavorite))

	return ws
}

func (a *API) authWebService() *restful.WebService {
	ws := new(restful.WebService)
	ws.Path("/auth").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)

	ws.Route(ws.POST("/login").To(a.login))

	return ws
}

func (a *API) recommendationsWebService() *restful.WebService {
	ws := new(restful.WebService)
	ws.Path("/recommendations").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)

	ws.Route(ws.GET("").To(a.getRecommendations))
	ws.Route(ws.POST("/refresh").To(a.triggerRefresh))

	return ws
}

// ============================================================================
// Filters
// ============================================================================

// authFilter verifies the bearer token and stores the claims on the request.
func (a *API) authFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	header := req.HeaderParameter("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		writeError(resp, http.StatusUnauthorized, "missing bearer token")
		return
	}

	claims, err := a.issuer.Verify(header[len(prefix):])
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			writeError(resp, http.StatusUnauthorized, "token expired")
			return
		}
		writeError(resp, http.StatusUnauthorized, "invalid token")
		return
	}

	req.SetAttribute(claimsAttribute, claims)
	chain.ProcessFilter(req, resp)
}

// adminFilter requires the admin role. Must run after authFilter.
func (a *API) adminFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	claims, ok := req.Attribute(claimsAttribute).(*auth.Claims)
	if !ok || claims.RequireRole(auth.RoleAdmin) != nil {
		writeError(resp, http.StatusForbidden, "admin role required")
		return
	}
	chain.ProcessFilter(req, resp)
}

// ============================================================================
// Book handlers
// ============================================================================

func (a *API) listBooks(req *restful.Request, resp *restful.Response) {
	books, err := a.store.List(req.Request.Context())
	if err != nil {
		writeError(resp, http.StatusInternalServerError, "failed to list books")
		return
	}
	if books == nil {
		books = []catalog.Book{}
	}
	resp.WriteHeaderAndJson(http.StatusOK, books, restful.MIME_JSON)
}

func (a *API) getBook(req *restful.Request, resp *restful.Response) {
	id, ok := bookID(req, resp)
	if !ok {
		return
	}

	book, err := a.store.Get(req.Request.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrBookNotFound) {
			writeError(resp, http.StatusNotFound, "book not found")
			return
		}
		writeError(resp, http.StatusInternalServerError, "failed to get book")
		return
	}
	resp.WriteHeaderAndJson(http.StatusOK, book, restful.MIME_JSON)
}

func (a *API) createBook(req *restful.Request, resp *restful.Response) {
	var in catalog.BookInput
	if err := req.ReadEntity(&in); err != nil {
		writeError(resp, http.StatusBadRequest, "malformed book payload")
		return
	}

	book, err := a.store.Create(req.Request.Context(), in)
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidBook) {
			writeError(resp, http.StatusBadRequest, err.Error())
			return
		}
		writeError(resp, http.StatusInternalServerError, "failed to create book")
		return
	}
	resp.WriteHeaderAndJson(http.StatusCreated, book, restful.MIME_JSON)
}

func (a *API) updateBook(req *restful.Request, resp *restful.Response) {
	id, ok := bookID(req, resp)
	if !ok {
		return
	}

	var in catalog.BookInput
	if err := req.ReadEntity(&in); err != nil {
		writeError(resp, http.StatusBadRequest, "malformed book payload")
		return
	}

	book, err := a.store.Update(req.Request.Context(), id, in)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrBookNotFound):
			writeError(resp, http.StatusNotFound, "book not found")
		case errors.Is(err, catalog.ErrInvalidBook):
			writeError(resp, http.StatusBadRequest, err.Error())
		default:
			writeError(resp, http.StatusInternalServerError, "failed to update book")
		}
		return
	}
	resp.WriteHeaderAndJson(http.StatusOK, book, restful.MIME_JSON)
}

func (a *API) deleteBook(req *restful.Request, resp *restful.Response) {
	id, ok := bookID(req, resp)
	if !ok {
		return
	}

	if err := a.store.Delete(req.Request.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrBookNotFound) {
			writeError(resp, http.StatusNotFound, "book not found")
			return
		}
		writeError(resp, http.StatusInternalServerError, "failed to delete book")
		return
	}
	resp.WriteHeader(http.StatusNoContent)
}

func (a *API) rateBook(req *restful.Request, resp *restful.Response) {
	id, ok := bookID(req, resp)
	if !ok {
		return
	}

	var in rateRequest
	if err := req.ReadEntity(&in); err != nil {
		writeError(resp, http.StatusBadRequest, "malformed rating payload")
		return
	}

	book, err := a.store.Rate(req.Request.Context(), id, in.Rating)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrBookNotFound):
			writeError(resp, http.StatusNotFound, "book not found")
		case errors.Is(err, catalog.ErrInvalidBook):
			writeError(resp, http.StatusBadRequest, err.Error())
		default:
			writeError(resp, http.StatusInternalServerError, "failed to rate book")
		}
		return
	}
	resp.WriteHeaderAndJson(http.StatusOK, book, restful.MIME_JSON)
}

func (a *API) toggleFavorite(req *restful.Request, resp *restful.Response) {
	id, ok := bookID(req, resp)
	if !ok {
		return
	}

	claims, ok := req.Attribute(claimsAttribute).(*auth.Claims)
	if !ok {
		writeError(resp, http.StatusUnauthorized, "missing bearer token")
		return
	}

	favorited, err := a.store.ToggleFavorite(req.Request.Context(), id, claims.Subject)
	if err != nil {
		if errors.Is(err, catalog.ErrBookNotFound) {
			writeError(resp, http.StatusNotFound, "book not found")
			return
		}
		writeError(resp, http.StatusInternalServerError, "failed to toggle favorite")
		return
	}
	resp.WriteHeaderAndJson(http.StatusOK, favoriteAck{BookID: id, Favorited: favorited}, restful.MIME_JSON)
}

// ============================================================================
// Auth handlers
// ============================================================================

func (a *API) login(req *restful.Request, resp *restful.Response) {
	var in loginRequest
	if err := req.ReadEntity(&in); err != nil {
		writeError(resp, http.StatusBadRequest, "malformed login payload")
		return
	}

	token, user, err := a.issuer.Authenticate(a.users, in.Username, in.Password)
	if err != nil {
		writeError(resp, http.StatusUnauthorized, "invalid credentials")
		return
	}

	resp.WriteHeaderAndJson(http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		Role:        string(user.Role),
	}, restful.MIME_JSON)
}

// ============================================================================
// Recommendation handlers
// ============================================================================

func (a *API) getRecommendations(req *restful.Request, resp *restful.Response) {
	recs, err := a.recs.Current(req.Request.Context())
	if err != nil {
		writeError(resp, http.StatusInternalServerError, "failed to load recommendations")
		return
	}
	if recs == nil {
		recs = []recommend.Recommendation{}
	}
	resp.WriteHeaderAndJson(http.StatusOK, recs, restful.MIME_JSON)
}

func (a *API) triggerRefresh(req *restful.Request, resp *restful.Response) {
	jobID, err := a.recs.Refresh(req.Request.Context())
	if err != nil {
		writeError(resp, http.StatusInternalServerError, "failed to refresh recommendations")
		return
	}
	resp.WriteHeaderAndJson(http.StatusOK, refreshAck{JobID: jobID}, restful.MIME_JSON)
}

// ============================================================================
// Helpers
// ============================================================================

// bookID parses the id path parameter, writing a 400 on failure.
func bookID(req *restful.Request, resp *restful.Response) (int64, bool) {
	id, err := strconv.ParseInt(req.PathParameter("id"), 10, 64)
	if err != nil {
		writeError(resp, http.StatusBadRequest, "invalid book id")
		return 0, false
	}
	return id, true
}

func writeError(resp *restful.Response, status int, detail string) {
	resp.WriteHeaderAndJson(status, errorBody{Detail: detail}, restful.MIME_JSON)
}
