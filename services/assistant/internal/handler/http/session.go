package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/utafrali/shopassist/pkg/errors"
	"github.com/utafrali/shopassist/pkg/httputil"
	"github.com/utafrali/shopassist/pkg/middleware"
	"github.com/utafrali/shopassist/pkg/validator"
	"github.com/utafrali/shopassist/services/assistant/internal/domain"
	"github.com/utafrali/shopassist/services/assistant/internal/service"
	"github.com/utafrali/shopassist/services/assistant/internal/session"
)

const maxJSONBody = 1 << 20

// SessionHandler handles HTTP requests for assistant sessions.
type SessionHandler struct {
	sessions *session.Manager
	logger   *slog.Logger
}

// NewSessionHandler creates a new session HTTP handler.
func NewSessionHandler(sessions *session.Manager, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// --- Request DTOs ---

// SearchRequest is the JSON request body for a text search.
type SearchRequest struct {
	Prompt string `json:"prompt" validate:"max=500"`
}

// LoginRequest is the JSON request body for a login.
type LoginRequest struct {
	Username string `json:"username" validate:"notblank,max=80"`
	Password string `json:"password" validate:"required"`
}

// SignupRequest is the JSON request body for a signup.
type SignupRequest struct {
	Username string `json:"username" validate:"notblank,max=80"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// --- Response DTOs ---

type snapshotResponse struct {
	domain.Snapshot
	Stale bool `json:"stale,omitempty"`
}

type searchResponse struct {
	Token      uint64          `json:"token"`
	Payload    string          `json:"payload"`
	Superseded bool            `json:"superseded"`
	Empty      bool            `json:"empty"`
	Snapshot   domain.Snapshot `json:"snapshot"`
}

type toggleResponse struct {
	Collection   string          `json:"collection"`
	ProductID    string          `json:"product_id"`
	Added        bool            `json:"added"`
	DetailClosed bool            `json:"detail_closed"`
	Snapshot     domain.Snapshot `json:"snapshot"`
}

type checkoutResponse struct {
	Receipt  domain.Receipt  `json:"receipt"`
	Snapshot domain.Snapshot `json:"snapshot"`
}

func newSearchResponse(out service.SearchOutcome) searchResponse {
	return searchResponse{
		Token:      out.Token,
		Payload:    out.Payload.String(),
		Superseded: out.Superseded,
		Empty:      out.Empty,
		Snapshot:   out.Snapshot,
	}
}

func newToggleResponse(out service.ToggleOutcome) toggleResponse {
	return toggleResponse{
		Collection:   string(out.Collection),
		ProductID:    out.ProductID,
		Added:        out.Added,
		DetailClosed: out.DetailClosed,
		Snapshot:     out.Snapshot,
	}
}

// --- Sessions ---

// CreateSession handles POST /api/v1/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, snap, err := h.sessions.Create(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set(middleware.SessionHeader, s.SessionID())
	httputil.WriteData(w, http.StatusCreated, snap)
}

// GetSession handles GET /api/v1/sessions/{sessionId}. A session that is no
// longer live is served from the snapshot cache and marked stale.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")

	s, err := h.sessions.Get(id)
	if err == nil {
		httputil.WriteData(w, http.StatusOK, snapshotResponse{Snapshot: s.Snapshot()})
		return
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	cached, cerr := h.sessions.Cached(r.Context(), id)
	if cerr != nil {
		if !errors.Is(cerr, apperrors.ErrNotFound) {
			h.logger.WarnContext(r.Context(), "snapshot cache lookup failed",
				slog.String("session_id", id),
				slog.String("error", cerr.Error()),
			)
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, snapshotResponse{Snapshot: *cached, Stale: true})
}

// DeleteSession handles DELETE /api/v1/sessions/{sessionId}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), chi.URLParam(r, "sessionId")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Search ---

// Search handles POST /api/v1/sessions/{sessionId}/search
func (h *SessionHandler) Search(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req SearchRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := s.Search(r.Context(), service.SearchRequest{Prompt: req.Prompt})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newSearchResponse(out))
}

// SearchImage handles POST /api/v1/sessions/{sessionId}/search/image with a
// multipart "image" file and an optional "prompt" field.
func (h *SessionHandler) SearchImage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, domain.MaxImageBytes+maxJSONBody)
	if err := r.ParseMultipartForm(domain.MaxImageBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, r, apperrors.InvalidInput("image is too large"), h.logger)
			return
		}
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid multipart form: "+err.Error()), h.logger)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("image")
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("image file is required"), h.logger)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("could not read image"), h.logger)
		return
	}

	upload := &domain.ImageUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	out, err := s.Search(r.Context(), service.SearchRequest{Prompt: r.FormValue("prompt"), Image: upload})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newSearchResponse(out))
}

// ClearSearch handles DELETE /api/v1/sessions/{sessionId}/search
func (h *SessionHandler) ClearSearch(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	out, err := s.ClearPrompt(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newSearchResponse(out))
}

// --- Collections ---

// ToggleCart handles POST /api/v1/sessions/{sessionId}/cart/{productId}/toggle
func (h *SessionHandler) ToggleCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	out, err := s.ToggleCart(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newToggleResponse(out))
}

// ToggleWishlist handles POST /api/v1/sessions/{sessionId}/wishlist/{productId}/toggle
func (h *SessionHandler) ToggleWishlist(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	out, err := s.ToggleWishlist(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newToggleResponse(out))
}

// --- Detail ---

// OpenDetail handles PUT /api/v1/sessions/{sessionId}/detail/{productId}
func (h *SessionHandler) OpenDetail(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	snap, err := s.OpenDetail(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, snap)
}

// CloseDetail handles DELETE /api/v1/sessions/{sessionId}/detail
func (h *SessionHandler) CloseDetail(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	httputil.WriteData(w, http.StatusOK, s.CloseDetail())
}

// --- Identity ---

// Login handles POST /api/v1/sessions/{sessionId}/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	snap, err := s.Login(r.Context(), domain.Credentials{Username: req.Username, Password: req.Password})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, snap)
}

// Signup handles POST /api/v1/sessions/{sessionId}/signup
func (h *SessionHandler) Signup(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req SignupRequest
	if !h.decode(w, r, &req) {
		return
	}

	snap, err := s.Signup(r.Context(), domain.Registration{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, snap)
}

// Logout handles POST /api/v1/sessions/{sessionId}/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	snap, err := s.Logout(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, snap)
}

// --- Checkout ---

// Checkout handles POST /api/v1/sessions/{sessionId}/checkout
func (h *SessionHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	out, err := s.Checkout(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, checkoutResponse{Receipt: out.Receipt, Snapshot: out.Snapshot})
}

// --- Prompts ---

// Prompts handles GET /api/v1/prompts
func (h *SessionHandler) Prompts(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteData(w, http.StatusOK, domain.ExamplePrompts)
}

// --- Helpers ---

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return nil, false
	}
	return s, true
}

func (h *SessionHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	err := validator.DecodeAndValidate(r, dst)
	if err == nil {
		return true
	}
	var decErr *validator.DecodeError
	if errors.As(err, &decErr) {
		err = apperrors.InvalidInput("invalid request body: " + decErr.Err.Error())
	}
	httputil.WriteError(w, r, err, h.logger)
	return false
}
