package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/shopassist/pkg/validator"
	"github.com/utafrali/shopassist/services/assistant/internal/domain"
)

// --- Requests ---

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type productRequest struct {
	ProductID string `json:"productId"`
}

type checkoutRequest struct {
	CartItems []domain.CheckoutLine `json:"cartItems"`
}

// --- Responses ---

type searchResponse struct {
	Recommendations   []json.RawMessage `json:"recommendations"`
	GeminiRefinement  json.RawMessage   `json:"gemini_refinement"`
	OpenAIDescription string            `json:"openai_description"`
	ImagePreviewURL   string            `json:"image_preview_url"`
}

func (r searchResponse) toDomain(ctx context.Context, logger *slog.Logger) domain.SearchResult {
	return domain.SearchResult{
		Recommendations:  decodeProducts(ctx, logger, r.Recommendations),
		Insight:          normalizeInsight(r.GeminiRefinement),
		ImageDescription: strings.TrimSpace(r.OpenAIDescription),
		PreviewURL:       r.ImagePreviewURL,
	}
}

type wireUser struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (u wireUser) toDomain() *domain.Identity {
	return &domain.Identity{Username: u.Username, Email: u.Email}
}

type userStatusResponse struct {
	LoggedIn bool      `json:"logged_in"`
	User     *wireUser `json:"user"`
}

type authResponse struct {
	Message string    `json:"message"`
	User    *wireUser `json:"user"`
}

// identity prefers the user the backend echoed back.
func (r authResponse) identity(fallbackUsername string) *domain.Identity {
	if r.User != nil && r.User.Username != "" {
		return r.User.toDomain()
	}
	return &domain.Identity{Username: fallbackUsername}
}

type cartResponse struct {
	Cart []json.RawMessage `json:"cart"`
}

type wishlistResponse struct {
	Wishlist []json.RawMessage `json:"wishlist"`
}

type cartMutationResponse struct {
	CartItems flexIDList `json:"cart_items_data"`
}

type wishlistMutationResponse struct {
	WishlistIDs flexIDList `json:"wishlist_ids"`
}

type checkoutResponse struct {
	Message string `json:"message"`
	OrderID flexID `json:"orderId"`
}

// --- Products ---

type wireProduct struct {
	ID                   flexID          `json:"id"`
	Name                 string          `json:"name"`
	Price                json.RawMessage `json:"price"`
	Type                 string          `json:"type"`
	Category             string          `json:"category"`
	Style                stringList      `json:"style"`
	Description          string          `json:"description"`
	Images               stringList      `json:"images"`
	ImageURL             string          `json:"imageUrl"`
	Sizes                stringList      `json:"sizes"`
	Colors               stringList      `json:"colors"`
	Material             stringList      `json:"material"`
	ColorTags            stringList      `json:"color_tags"`
	RecommendationReason string          `json:"recommendationReason"`
	DetailedReasons      stringList      `json:"detailedReasons"`
	Quantity             int             `json:"quantity"`
}

func (w wireProduct) toDomain() (domain.Product, error) {
	var price domain.Price
	if len(w.Price) > 0 {
		if err := json.Unmarshal(w.Price, &price); err != nil {
			return domain.Product{}, err
		}
	}

	images := nonBlank(w.Images)
	if len(images) == 0 && strings.TrimSpace(w.ImageURL) != "" {
		images = []string{strings.TrimSpace(w.ImageURL)}
	}
	if len(images) == 0 {
		images = []string{domain.PlaceholderImageURL}
	}

	p := domain.Product{
		ID:                   strings.TrimSpace(w.ID.String()),
		Name:                 strings.TrimSpace(w.Name),
		Price:                price,
		Type:                 w.Type,
		Category:             w.Category,
		Style:                strings.Join(w.Style, ", "),
		Description:          w.Description,
		Images:               images,
		Sizes:                nonBlank(w.Sizes),
		Colors:               nonBlank(w.Colors),
		Materials:            nonBlank(w.Material),
		ColorTags:            nonBlank(w.ColorTags),
		RecommendationReason: w.RecommendationReason,
		DetailedReasons:      nonBlank(w.DetailedReasons),
	}
	if err := validator.Validate(p); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

// decodeProduct decodes one product record and its optional quantity.
func decodeProduct(raw json.RawMessage) (domain.Product, int, error) {
	var w wireProduct
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Product{}, 0, err
	}
	p, err := w.toDomain()
	if err != nil {
		return domain.Product{}, 0, err
	}
	return p, w.Quantity, nil
}

// decodeProducts decodes records one at a time, dropping malformed ones.
func decodeProducts(ctx context.Context, logger *slog.Logger, raws []json.RawMessage) []domain.Product {
	out := make([]domain.Product, 0, len(raws))
	for i, raw := range raws {
		p, _, err := decodeProduct(raw)
		if err != nil {
			logMalformed(ctx, logger, i, err)
			continue
		}
		out = append(out, p)
	}
	return out
}

// decodeCartLines is decodeProducts for cart records. A missing quantity is one.
func decodeCartLines(ctx context.Context, logger *slog.Logger, raws []json.RawMessage) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(raws))
	for i, raw := range raws {
		p, qty, err := decodeProduct(raw)
		if err != nil {
			logMalformed(ctx, logger, i, err)
			continue
		}
		if qty < 1 {
			qty = 1
		}
		out = append(out, domain.CartLine{Product: p, Quantity: qty})
	}
	return out
}

func logMalformed(ctx context.Context, logger *slog.Logger, index int, err error) {
	logger.WarnContext(ctx, "dropping malformed product record",
		slog.Int("index", index),
		slog.String("error", err.Error()),
	)
}

// --- Insight ---

type wireRefinement struct {
	Error                       json.RawMessage `json:"error"`
	KeyAttributes               stringList      `json:"key_attributes"`
	RefinedSearchQuery          string          `json:"refined_search_query"`
	ComplementaryItemCategories stringList      `json:"complementary_item_categories"`
	UserIntentSummary           string          `json:"user_intent_summary"`
	RawText                     string          `json:"raw_text"`
	Message                     string          `json:"message"`
}

// normalizeInsight turns the backend's loosely shaped refinement into the
// tagged Insight variant.
func normalizeInsight(raw json.RawMessage) domain.Insight {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return domain.AbsentInsight()
	}

	var text string
	if json.Unmarshal(raw, &text) == nil {
		if text = strings.TrimSpace(text); text == "" {
			return domain.AbsentInsight()
		}
		return domain.PlainTextInsight(text)
	}

	var r wireRefinement
	if err := json.Unmarshal(raw, &r); err != nil {
		return domain.FailedInsight("insight response was not understood")
	}

	if msg, ok := refinementError(r.Error); ok {
		return domain.FailedInsight(msg)
	}

	attrs := nonBlank(r.KeyAttributes)
	query := strings.TrimSpace(r.RefinedSearchQuery)
	summary := strings.TrimSpace(r.UserIntentSummary)
	if len(attrs) > 0 || query != "" || summary != "" {
		return domain.StructuredInsight(attrs, query, summary, nonBlank(r.ComplementaryItemCategories))
	}

	for _, s := range []string{r.Message, r.RawText} {
		if s = strings.TrimSpace(s); s != "" {
			return domain.PlainTextInsight(s)
		}
	}
	return domain.AbsentInsight()
}

// refinementError extracts the message of an "error" member that is either a
// string or an object with a "message".
func refinementError(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("false")) {
		return "", false
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		if s = strings.TrimSpace(s); s == "" {
			return "", false
		}
		return s, true
	}

	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil && strings.TrimSpace(obj.Message) != "" {
		return strings.TrimSpace(obj.Message), true
	}
	return "insight generation failed", true
}

// --- Flexible scalars ---

// stringList accepts a JSON string, an array of strings, or null.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = stringList{s}
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*l = items
	return nil
}

// flexID accepts a JSON string or number.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) String() string { return string(f) }

// flexIDList accepts a list of ids given as strings, numbers, or objects
// carrying an "id".
type flexIDList []string

func (l *flexIDList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		var id flexID
		if err := json.Unmarshal(raw, &id); err == nil {
			out = append(out, id.String())
			continue
		}
		var obj struct {
			ID flexID `json:"id"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return err
		}
		out = append(out, obj.ID.String())
	}
	*l = out
	return nil
}

func nonBlank(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
