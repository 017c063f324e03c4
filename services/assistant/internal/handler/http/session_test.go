package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/shopassist/pkg/errors"
	"github.com/utafrali/shopassist/pkg/health"
	"github.com/utafrali/shopassist/pkg/httputil"
	"github.com/utafrali/shopassist/pkg/middleware"
	"github.com/utafrali/shopassist/services/assistant/internal/domain"
	"github.com/utafrali/shopassist/services/assistant/internal/gateway"
	"github.com/utafrali/shopassist/services/assistant/internal/repository"
	redisrepo "github.com/utafrali/shopassist/services/assistant/internal/repository/redis"
	"github.com/utafrali/shopassist/services/assistant/internal/session"
)

// --- Mock Gateway ---

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) QueryByText(ctx context.Context, prompt string) (domain.SearchResult, error) {
	args := m.Called(ctx, prompt)
	return args.Get(0).(domain.SearchResult), args.Error(1)
}

func (m *mockGateway) QueryByImage(ctx context.Context, img domain.ImageUpload, prompt string) (domain.SearchResult, error) {
	args := m.Called(ctx, img, prompt)
	return args.Get(0).(domain.SearchResult), args.Error(1)
}

func (m *mockGateway) GetSessionIdentity(ctx context.Context) (*domain.Identity, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

func (m *mockGateway) GetCart(ctx context.Context) ([]domain.CartLine, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CartLine), args.Error(1)
}

func (m *mockGateway) GetWishlist(ctx context.Context) ([]domain.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *mockGateway) MutateCart(ctx context.Context, productID string, desired bool) ([]string, error) {
	args := m.Called(ctx, productID, desired)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockGateway) MutateWishlist(ctx context.Context, productID string, desired bool) ([]string, error) {
	args := m.Called(ctx, productID, desired)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockGateway) Checkout(ctx context.Context, lines []domain.CheckoutLine) (domain.Receipt, error) {
	args := m.Called(ctx, lines)
	return args.Get(0).(domain.Receipt), args.Error(1)
}

func (m *mockGateway) Login(ctx context.Context, creds domain.Credentials) (*domain.Identity, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

func (m *mockGateway) Signup(ctx context.Context, reg domain.Registration) (*domain.Identity, error) {
	args := m.Called(ctx, reg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

func (m *mockGateway) Logout(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockGateway) UpdatePreference(ctx context.Context, pref domain.Preference) error {
	return m.Called(ctx, pref).Error(0)
}

// --- Test Helpers ---

type envelope struct {
	Data  json.RawMessage         `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

type testEnv struct {
	router   http.Handler
	sessions *session.Manager
	gw       *mockGateway
}

func newTestEnv(t *testing.T, repo repository.SnapshotRepository, cfg RouterConfig) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := new(mockGateway)
	factory := func(string) (gateway.RemoteGateway, error) { return gw, nil }

	var mgr *session.Manager
	if repo == nil {
		mgr = session.NewManager(session.Config{}, factory, nil, nil, logger)
	} else {
		mgr = session.NewManager(session.Config{}, factory, nil, repo, logger)
	}
	t.Cleanup(mgr.Close)

	return &testEnv{
		router:   NewRouter(mgr, health.NewHandler(), logger, cfg),
		sessions: mgr,
		gw:       gw,
	}
}

func product(id string) domain.Product {
	return domain.Product{
		ID:       id,
		Name:     "Product " + id,
		Price:    domain.MustParsePrice("$10.00"),
		Category: "shirts",
		Images:   []string{id + ".jpg"},
	}
}

func result(ids ...string) domain.SearchResult {
	recs := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		recs = append(recs, product(id))
	}
	return domain.SearchResult{Recommendations: recs, Insight: domain.AbsentInsight()}
}

// createSession bootstraps an anonymous session and returns its id.
func (e *testEnv) createSession(t *testing.T, ids ...string) string {
	t.Helper()
	e.gw.On("GetSessionIdentity", mock.Anything).Return(nil, nil).Once()
	e.gw.On("QueryByText", mock.Anything, domain.DefaultPrompt).Return(result(ids...), nil).Once()

	w := e.do(t, http.MethodPost, "/api/v1/sessions", nil, "")
	require.Equal(t, http.StatusCreated, w.Code)
	id := w.Header().Get(middleware.SessionHeader)
	require.NotEmpty(t, id)
	return id
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postJSON(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, http.MethodPost, path, strings.NewReader(body), "application/json")
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	require.Nil(t, env.Error, "unexpected error: %+v", env.Error)
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *httputil.ErrorResponse {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	require.NotNil(t, env.Error)
	return env.Error
}

func recIDs(snap domain.Snapshot) []string {
	ids := make([]string, 0, len(snap.Recommendations))
	for _, c := range snap.Recommendations {
		ids = append(ids, c.ID)
	}
	return ids
}

func base(id string) string { return "/api/v1/sessions/" + id }

// ============================================================================
// Sessions
// ============================================================================

func TestCreateSession(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	e.gw.On("GetSessionIdentity", mock.Anything).Return(nil, nil).Once()
	e.gw.On("QueryByText", mock.Anything, domain.DefaultPrompt).Return(result("a", "b"), nil).Once()

	w := e.do(t, http.MethodPost, "/api/v1/sessions", nil, "")
	require.Equal(t, http.StatusCreated, w.Code)

	snap := decode[domain.Snapshot](t, w)
	assert.Equal(t, w.Header().Get(middleware.SessionHeader), snap.SessionID)
	assert.Equal(t, []string{"a", "b"}, recIDs(snap))
	assert.Nil(t, snap.Identity)
	assert.Empty(t, snap.Prompt)
	e.gw.AssertExpectations(t)
}

func TestGetSession(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t, "a")

	w := e.do(t, http.MethodGet, base(id), nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[snapshotResponse](t, w)
	assert.Equal(t, id, got.SessionID)
	assert.False(t, got.Stale)
	assert.Equal(t, []string{"a"}, recIDs(got.Snapshot))
}

func TestGetSession_NotFound(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})

	w := e.do(t, http.MethodGet, base("missing"), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, w).Code)
}

func TestGetSession_StaleFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	repo := redisrepo.NewSnapshotRepository(client, time.Hour)

	require.NoError(t, repo.Save(context.Background(), domain.Snapshot{
		Version:         4,
		SessionID:       "gone",
		Recommendations: []domain.ProductCard{{Product: product("a")}},
		Prompt:          "linen",
	}))

	e := newTestEnv(t, repo, RouterConfig{})

	w := e.do(t, http.MethodGet, base("gone"), nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[snapshotResponse](t, w)
	assert.True(t, got.Stale)
	assert.Equal(t, uint64(4), got.Version)
	assert.Equal(t, "linen", got.Prompt)
}

func TestDeleteSession(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t)

	w := e.do(t, http.MethodDelete, base(id), nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(t, http.MethodGet, base(id), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodDelete, base(id), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ============================================================================
// Search
// ============================================================================

func TestSearch_Text(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t, "a")
	e.gw.On("QueryByText", mock.Anything, "red dress").Return(result("x", "y"), nil).Once()

	w := e.postJSON(t, base(id)+"/search", `{"prompt":"red dress"}`)
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[searchResponse](t, w)
	assert.Equal(t, "text", got.Payload)
	assert.False(t, got.Superseded)
	assert.False(t, got.Empty)
	assert.Equal(t, []string{"x", "y"}, recIDs(got.Snapshot))
	assert.Equal(t, "red dress", got.Snapshot.Prompt)
}

func TestSearch_NothingToSend(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t)

	w := e.postJSON(t, base(id)+"/search", `{"prompt":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.KindValidationRejected, decodeError(t, w).Kind)
}

func TestSearch_InvalidBody(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t)

	w := e.postJSON(t, base(id)+"/search", `{"prompt":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Message, "invalid request body")
}

func TestSearch_PromptTooLong(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t)

	w := e.postJSON(t, base(id)+"/search", `{"prompt":"`+strings.Repeat("a", 501)+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	errResp := decodeError(t, w)
	assert.Equal(t, "VALIDATION_ERROR", errResp.Code)
	assert.Contains(t, errResp.Fields, "prompt")
}

func TestSearch_BackendDown(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t, "a")
	e.gw.On("QueryByText", mock.Anything, "shoes").
		Return(domain.SearchResult{}, apperrors.Unreachable(assert.AnError)).Once()

	w := e.postJSON(t, base(id)+"/search", `{"prompt":"shoes"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, apperrors.KindUnreachable, decodeError(t, w).Kind)

	s, err := e.sessions.Get(id)
	require.NoError(t, err)
	snap := s.Snapshot()
	assert.Empty(t, snap.Recommendations)
	assert.Equal(t, domain.InsightFailed, snap.Insight.Kind)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))))
	return buf.Bytes()
}

func multipartBody(t *testing.T, filename string, data []byte, prompt string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
		hdr.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	if prompt != "" {
		require.NoError(t, mw.WriteField("prompt", prompt))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestSearchImage(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t, "a")

	data := pngBytes(t)
	res := result("c")
	res.PreviewURL = "/static/uploads/look.png"
	e.gw.On("QueryByImage", mock.Anything, mock.MatchedBy(func(u domain.ImageUpload) bool {
		return u.Filename == "look.png" && u.ContentType == "image/png" && bytes.Equal(u.Data, data)
	}), "formal").Return(res, nil).Once()

	body, ct := multipartBody(t, "look.png", data, "formal")
	w := e.do(t, http.MethodPost, base(id)+"/search/image", body, ct)
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[searchResponse](t, w)
	assert.Equal(t, "image", got.Payload)
	assert.Equal(t, []string{"c"}, recIDs(got.Snapshot))
	assert.Equal(t, domain.SearchModeImage, got.Snapshot.SearchMode)
	assert.Equal(t, "/static/uploads/look.png", got.Snapshot.PreviewURL)
	e.gw.AssertExpectations(t)
}

func TestSearchImage_MissingFile(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t)

	body, ct := multipartBody(t, "", nil, "formal")
	w := e.do(t, http.MethodPost, base(id)+"/search/image", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "image file is required", decodeError(t, w).Message)
}

func TestSearchImage_RejectsUnsupportedType(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t)

	body, ct := multipartBody(t, "notes.txt", []byte("hello"), "")
	w := e.do(t, http.MethodPost, base(id)+"/search/image", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	e.gw.AssertNotCalled(t, "QueryByImage", mock.Anything, mock.Anything, mock.Anything)
}

func TestClearSearch(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t, "a")
	e.gw.On("QueryByText", mock.Anything, domain.DefaultPrompt).Return(result("z"), nil).Once()

	w := e.do(t, http.MethodDelete, base(id)+"/search", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[searchResponse](t, w)
	assert.Equal(t, []string{"z"}, recIDs(got.Snapshot))
	assert.Empty(t, got.Snapshot.Prompt)
}

// ============================================================================
// Collections, detail, identity, checkout
// ============================================================================

func TestToggleCart_Anonymous(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t, "p1")

	w := e.do(t, http.MethodPost, base(id)+"/cart/p1/toggle", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperrors.KindUnauthenticated, decodeError(t, w).Kind)
	e.gw.AssertNotCalled(t, "MutateCart", mock.Anything, mock.Anything, mock.Anything)
}

func logIn(t *testing.T, e *testEnv, id string) {
	t.Helper()
	ana := &domain.Identity{Username: "ana"}
	creds := domain.Credentials{Username: "ana", Password: "secret"}
	e.gw.On("Login", mock.Anything, creds).Return(ana, nil).Once()
	e.gw.On("GetSessionIdentity", mock.Anything).Return(ana, nil).Once()
	e.gw.On("GetCart", mock.Anything).Return([]domain.CartLine{}, nil).Once()
	e.gw.On("GetWishlist", mock.Anything).Return([]domain.Product{}, nil).Once()

	w := e.postJSON(t, base(id)+"/login", `{"username":"ana","password":"secret"}`)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[domain.Snapshot](t, w)
	require.NotNil(t, snap.Identity)
	assert.Equal(t, "ana", snap.Identity.Username)
}

func TestToggleCart_LoggedIn(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t, "p1", "p2")
	logIn(t, e, id)

	e.gw.On("MutateCart", mock.Anything, "p1", true).Return([]string{"p1"}, nil).Once()
	e.gw.On("GetCart", mock.Anything).Return([]domain.CartLine{{Product: product("p1"), Quantity: 1}}, nil).Once()

	w := e.do(t, http.MethodPost, base(id)+"/cart/p1/toggle", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[toggleResponse](t, w)
	assert.Equal(t, "cart", got.Collection)
	assert.Equal(t, "p1", got.ProductID)
	assert.True(t, got.Added)
	require.Len(t, got.Snapshot.Cart, 1)
	assert.Equal(t, 1, got.Snapshot.CartCount)
	assert.True(t, got.Snapshot.Recommendations[0].InCart)
	assert.False(t, got.Snapshot.Recommendations[1].InCart)
	e.gw.AssertExpectations(t)
}

func TestToggleWishlist_LoggedIn(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t, "p1")
	logIn(t, e, id)

	e.gw.On("MutateWishlist", mock.Anything, "p1", true).Return([]string{"p1"}, nil).Once()
	e.gw.On("GetWishlist", mock.Anything).Return([]domain.Product{product("p1")}, nil).Once()

	w := e.do(t, http.MethodPost, base(id)+"/wishlist/p1/toggle", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[toggleResponse](t, w)
	assert.Equal(t, "wishlist", got.Collection)
	assert.True(t, got.Added)
	assert.True(t, got.Snapshot.Recommendations[0].InWishlist)
}

func TestLogin_ValidationError(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t)

	w := e.postJSON(t, base(id)+"/login", `{"username":"  ","password":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	errResp := decodeError(t, w)
	assert.Equal(t, "VALIDATION_ERROR", errResp.Code)
	assert.Contains(t, errResp.Fields, "username")
	assert.Contains(t, errResp.Fields, "password")
	e.gw.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
}

func TestLogin_Rejected(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t)
	e.gw.On("Login", mock.Anything, mock.Anything).
		Return(nil, apperrors.Unauthenticated("Invalid username or password")).Once()

	w := e.postJSON(t, base(id)+"/login", `{"username":"ana","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid username or password", decodeError(t, w).Message)
}

func TestSignup(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t)

	bo := &domain.Identity{Username: "bo", Email: "bo@example.com"}
	e.gw.On("Signup", mock.Anything, domain.Registration{Username: "bo", Email: "bo@example.com", Password: "secret1"}).
		Return(bo, nil).Once()
	e.gw.On("GetSessionIdentity", mock.Anything).Return(bo, nil).Once()
	e.gw.On("GetCart", mock.Anything).Return([]domain.CartLine{}, nil).Once()
	e.gw.On("GetWishlist", mock.Anything).Return([]domain.Product{}, nil).Once()

	w := e.postJSON(t, base(id)+"/signup", `{"username":"bo","email":"bo@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	snap := decode[domain.Snapshot](t, w)
	require.NotNil(t, snap.Identity)
	assert.Equal(t, "bo", snap.Identity.Username)
}

func TestLogout(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t)
	logIn(t, e, id)
	e.gw.On("Logout", mock.Anything).Return(nil).Once()

	w := e.do(t, http.MethodPost, base(id)+"/logout", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[domain.Snapshot](t, w).Identity)
}

func TestDetail_OpenAndClose(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t, "p1")

	w := e.do(t, http.MethodPut, base(id)+"/detail/p1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[domain.Snapshot](t, w)
	require.NotNil(t, snap.Detail)
	assert.Equal(t, "p1", snap.Detail.ID)

	w = e.do(t, http.MethodDelete, base(id)+"/detail", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[domain.Snapshot](t, w).Detail)

	e.gw.AssertNotCalled(t, "UpdatePreference", mock.Anything, mock.Anything)
}

func TestDetail_UnknownProduct(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t, "p1")

	w := e.do(t, http.MethodPut, base(id)+"/detail/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckout_Anonymous(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t)

	w := e.do(t, http.MethodPost, base(id)+"/checkout", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	e.gw.AssertNotCalled(t, "Checkout", mock.Anything, mock.Anything)
}

func TestCheckout_EmptyCart(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t)
	logIn(t, e, id)

	w := e.do(t, http.MethodPost, base(id)+"/checkout", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "your cart is empty", decodeError(t, w).Message)
}

func TestCheckout(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})
	id := e.createSession(t, "p1")
	logIn(t, e, id)

	e.gw.On("MutateCart", mock.Anything, "p1", true).Return([]string{"p1"}, nil).Once()
	e.gw.On("GetCart", mock.Anything).Return([]domain.CartLine{{Product: product("p1"), Quantity: 2}}, nil).Once()
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, base(id)+"/cart/p1/toggle", nil, "").Code)

	e.gw.On("Checkout", mock.Anything, mock.Anything).
		Return(domain.Receipt{Message: "Order placed", OrderID: "10422"}, nil).Once()
	e.gw.On("GetCart", mock.Anything).Return([]domain.CartLine{}, nil).Once()

	w := e.do(t, http.MethodPost, base(id)+"/checkout", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[checkoutResponse](t, w)
	assert.Equal(t, "10422", got.Receipt.OrderID)
	assert.Empty(t, got.Snapshot.Cart)
	e.gw.AssertExpectations(t)
}

// ============================================================================
// Misc
// ============================================================================

func TestPrompts(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})

	w := e.do(t, http.MethodGet, "/api/v1/prompts", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.ExamplePrompts, decode[[]string](t, w))
}

func TestHealthLive(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})

	w := e.do(t, http.MethodGet, "/health/live", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_PerSession(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{RateLimitRPS: 0.001, RateLimitBurst: 1})
	first := e.createSession(t)
	second := e.createSession(t)

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, base(first), nil, "").Code)

	w := e.do(t, http.MethodGet, base(first), nil, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, w).Code)

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, base(second), nil, "").Code)
}

func TestEvents_StreamsSnapshots(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{Heartbeat: 10 * time.Millisecond})
	id := e.createSession(t, "a")

	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+base(id)+"/events", nil)
	require.NoError(t, err)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	next := func() string {
		select {
		case l, ok := <-lines:
			require.True(t, ok, "stream ended")
			return l
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
			return ""
		}
	}
	waitData := func() domain.Snapshot {
		for {
			l := next()
			if data, ok := strings.CutPrefix(l, "data: "); ok {
				var snap domain.Snapshot
				require.NoError(t, json.Unmarshal([]byte(data), &snap))
				return snap
			}
		}
	}

	initial := waitData()
	assert.Equal(t, []string{"a"}, recIDs(initial))

	e.gw.On("QueryByText", mock.Anything, "boots").Return(result("b"), nil).Once()
	require.Equal(t, http.StatusOK, e.postJSON(t, base(id)+"/search", `{"prompt":"boots"}`).Code)

	for {
		snap := waitData()
		if snap.Prompt == "boots" {
			assert.Equal(t, []string{"b"}, recIDs(snap))
			break
		}
	}
}

func TestEvents_UnknownSession(t *testing.T) {
	e := newTestEnv(t, nil, RouterConfig{})

	w := e.do(t, http.MethodGet, base("missing")+"/events", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
