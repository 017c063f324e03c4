// Package gateway is the only boundary between the assistant and the
// recommendation backend.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/utafrali/shopassist/pkg/errors"
	"github.com/utafrali/shopassist/pkg/httpclient"
	"github.com/utafrali/shopassist/pkg/tracing"
	"github.com/utafrali/shopassist/services/assistant/internal/domain"
)

// RemoteGateway is the backend as seen by the orchestrator. Every error it
// returns classifies through apperrors.KindOf.
type RemoteGateway interface {
	QueryByText(ctx context.Context, prompt string) (domain.SearchResult, error)
	QueryByImage(ctx context.Context, image domain.ImageUpload, prompt string) (domain.SearchResult, error)

	// GetSessionIdentity returns nil, nil for an anonymous session.
	GetSessionIdentity(ctx context.Context) (*domain.Identity, error)
	GetCart(ctx context.Context) ([]domain.CartLine, error)
	GetWishlist(ctx context.Context) ([]domain.Product, error)

	// MutateCart and MutateWishlist set membership of productID to desired
	// and return the server's membership ids.
	MutateCart(ctx context.Context, productID string, desired bool) ([]string, error)
	MutateWishlist(ctx context.Context, productID string, desired bool) ([]string, error)

	Checkout(ctx context.Context, lines []domain.CheckoutLine) (domain.Receipt, error)
	Login(ctx context.Context, creds domain.Credentials) (*domain.Identity, error)
	Signup(ctx context.Context, reg domain.Registration) (*domain.Identity, error)
	Logout(ctx context.Context) error
	UpdatePreference(ctx context.Context, pref domain.Preference) error
}

// HTTPDoer executes HTTP requests. Both httpclient.Client and
// httpclient.CircuitBreakerClient satisfy it.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// maxResponseBody caps decoded backend responses.
const maxResponseBody = 32 << 20

// HTTPGateway speaks the backend's JSON and multipart wire format.
type HTTPGateway struct {
	doer    HTTPDoer
	baseURL string
	tracer  trace.Tracer
	logger  *slog.Logger
}

var _ RemoteGateway = (*HTTPGateway)(nil)

// NewHTTPGateway creates a gateway for the backend at baseURL.
func NewHTTPGateway(doer HTTPDoer, baseURL string, logger *slog.Logger) *HTTPGateway {
	return &HTTPGateway{
		doer:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		tracer:  tracing.Tracer("github.com/utafrali/shopassist/services/assistant/gateway"),
		logger:  logger,
	}
}

// QueryByText runs a text-only recommendation query.
func (g *HTTPGateway) QueryByText(ctx context.Context, prompt string) (domain.SearchResult, error) {
	var resp searchResponse
	if err := g.doJSON(ctx, "gateway.query_by_text", http.MethodPost, "/get_recommendations", promptRequest{Prompt: prompt}, &resp); err != nil {
		return domain.SearchResult{}, err
	}
	return resp.toDomain(ctx, g.logger), nil
}

// QueryByImage uploads the anchor image with an optional prompt.
func (g *HTTPGateway) QueryByImage(ctx context.Context, image domain.ImageUpload, prompt string) (domain.SearchResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="imageFile"; filename=%q`, image.Filename))
	contentType := image.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(image.Data); err != nil {
		return domain.SearchResult{}, fmt.Errorf("write image part: %w", err)
	}
	if prompt != "" {
		if err := mw.WriteField("prompt", prompt); err != nil {
			return domain.SearchResult{}, fmt.Errorf("write prompt field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return domain.SearchResult{}, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := g.newRequest(ctx, http.MethodPost, "/upload_image", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return domain.SearchResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp searchResponse
	if err := g.do(ctx, "gateway.query_by_image", req, &resp); err != nil {
		return domain.SearchResult{}, err
	}
	return resp.toDomain(ctx, g.logger), nil
}

// GetSessionIdentity reads the backend's login status.
func (g *HTTPGateway) GetSessionIdentity(ctx context.Context) (*domain.Identity, error) {
	var resp userStatusResponse
	if err := g.doJSON(ctx, "gateway.get_session_identity", http.MethodGet, "/api/current_user_status", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.LoggedIn || resp.User == nil {
		return nil, nil
	}
	return resp.User.toDomain(), nil
}

// GetCart reads the authoritative cart.
func (g *HTTPGateway) GetCart(ctx context.Context) ([]domain.CartLine, error) {
	var resp cartResponse
	if err := g.doJSON(ctx, "gateway.get_cart", http.MethodGet, "/api/cart", nil, &resp); err != nil {
		return nil, err
	}
	return decodeCartLines(ctx, g.logger, resp.Cart), nil
}

// GetWishlist reads the authoritative wishlist.
func (g *HTTPGateway) GetWishlist(ctx context.Context) ([]domain.Product, error) {
	var resp wishlistResponse
	if err := g.doJSON(ctx, "gateway.get_wishlist", http.MethodGet, "/api/wishlist", nil, &resp); err != nil {
		return nil, err
	}
	return decodeProducts(ctx, g.logger, resp.Wishlist), nil
}

// MutateCart adds (desired) or removes productID.
func (g *HTTPGateway) MutateCart(ctx context.Context, productID string, desired bool) ([]string, error) {
	var resp cartMutationResponse
	if err := g.doJSON(ctx, "gateway.mutate_cart", membershipMethod(desired), "/api/cart", productRequest{ProductID: productID}, &resp); err != nil {
		return nil, err
	}
	return resp.CartItems, nil
}

// MutateWishlist adds (desired) or removes productID.
func (g *HTTPGateway) MutateWishlist(ctx context.Context, productID string, desired bool) ([]string, error) {
	var resp wishlistMutationResponse
	if err := g.doJSON(ctx, "gateway.mutate_wishlist", membershipMethod(desired), "/api/wishlist", productRequest{ProductID: productID}, &resp); err != nil {
		return nil, err
	}
	return resp.WishlistIDs, nil
}

// Checkout runs the backend's mocked checkout.
func (g *HTTPGateway) Checkout(ctx context.Context, lines []domain.CheckoutLine) (domain.Receipt, error) {
	var resp checkoutResponse
	if err := g.doJSON(ctx, "gateway.checkout", http.MethodPost, "/api/mock_checkout_process", checkoutRequest{CartItems: lines}, &resp); err != nil {
		return domain.Receipt{}, err
	}
	return domain.Receipt{Message: resp.Message, OrderID: resp.OrderID.String()}, nil
}

// Login authenticates the session; the backend sets its session cookie.
func (g *HTTPGateway) Login(ctx context.Context, creds domain.Credentials) (*domain.Identity, error) {
	var resp authResponse
	if err := g.doJSON(ctx, "gateway.login", http.MethodPost, "/api/login", creds, &resp); err != nil {
		return nil, err
	}
	return resp.identity(creds.Username), nil
}

// Signup registers and logs in a new user.
func (g *HTTPGateway) Signup(ctx context.Context, reg domain.Registration) (*domain.Identity, error) {
	var resp authResponse
	if err := g.doJSON(ctx, "gateway.signup", http.MethodPost, "/api/signup", reg, &resp); err != nil {
		return nil, err
	}
	id := resp.identity(reg.Username)
	if id.Email == "" {
		id.Email = reg.Email
	}
	return id, nil
}

// Logout ends the backend session.
func (g *HTTPGateway) Logout(ctx context.Context) error {
	return g.doJSON(ctx, "gateway.logout", http.MethodGet, "/api/logout", nil, nil)
}

// UpdatePreference sends a taste signal.
func (g *HTTPGateway) UpdatePreference(ctx context.Context, pref domain.Preference) error {
	return g.doJSON(ctx, "gateway.update_preference", http.MethodPost, "/api/preferences/update", pref, nil)
}

func membershipMethod(desired bool) string {
	if desired {
		return http.MethodPost
	}
	return http.MethodDelete
}

func (g *HTTPGateway) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// doJSON sends in (if non-nil) as a JSON body and decodes the reply into out
// (if non-nil).
func (g *HTTPGateway) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := g.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return g.do(ctx, op, req, out)
}

func (g *HTTPGateway) do(ctx context.Context, op string, req *http.Request, out any) (err error) {
	ctx, span := tracing.StartClientSpan(ctx, g.tracer, op, req)
	defer func() { tracing.EndSpan(span, err) }()

	resp, err := g.doer.Do(ctx, req)
	if err != nil {
		err = httpclient.Classify(err)
		g.logger.WarnContext(ctx, "backend call failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp)
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		g.logger.WarnContext(ctx, "undecodable backend response",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return apperrors.ServerError(resp.StatusCode, "the recommendation service sent an unreadable response")
	}
	return nil
}
