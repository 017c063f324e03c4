package domain

// PlaceholderImageURL is shown for products the backend sends without images.
const PlaceholderImageURL = "https://via.placeholder.com/260x250/CCCCCC/000000?Text=NoImg"

// Product is a catalog item as returned by the recommendation backend. It is
// never mutated after decoding; membership lives in the collection store.
type Product struct {
	ID                   string   `json:"id" validate:"notblank"`
	Name                 string   `json:"name" validate:"notblank"`
	Price                Price    `json:"price"`
	Type                 string   `json:"type,omitempty"`
	Category             string   `json:"category,omitempty"`
	Style                string   `json:"style,omitempty"`
	Description          string   `json:"description,omitempty"`
	Images               []string `json:"images" validate:"min=1,dive,notblank"`
	Sizes                []string `json:"sizes,omitempty"`
	Colors               []string `json:"colors,omitempty"`
	Materials            []string `json:"materials,omitempty"`
	ColorTags            []string `json:"color_tags,omitempty"`
	RecommendationReason string   `json:"recommendation_reason,omitempty"`
	DetailedReasons      []string `json:"detailed_reasons,omitempty"`
}

// PrimaryImage returns the first image URL, or the placeholder.
func (p Product) PrimaryImage() string {
	if len(p.Images) > 0 && p.Images[0] != "" {
		return p.Images[0]
	}
	return PlaceholderImageURL
}

// CartLine is a product reference in the cart together with its quantity.
type CartLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Subtotal returns price times quantity.
func (l CartLine) Subtotal() Price {
	return l.Product.Price.Times(l.Quantity)
}

// Identity is the logged-in backend user.
type Identity struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Credentials are forwarded to the backend login endpoint.
type Credentials struct {
	Username string `json:"username" validate:"notblank,max=80"`
	Password string `json:"password" validate:"required"`
}

// Registration is forwarded to the backend signup endpoint.
type Registration struct {
	Username string `json:"username" validate:"notblank,max=80"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Preference actions understood by the backend.
const (
	PreferenceInteractedCategory = "interacted_category"
	PreferenceLikedColor         = "liked_color"
)

// Preference is a best-effort taste signal sent to the backend.
type Preference struct {
	Action string `json:"action" validate:"oneof=interacted_category liked_color"`
	Value  string `json:"value" validate:"notblank"`
}

// CheckoutLine is the per-item payload of a checkout request.
type CheckoutLine struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price Price  `json:"price"`
}

// Receipt is the backend's confirmation of a mocked checkout.
type Receipt struct {
	Message string `json:"message"`
	OrderID string `json:"order_id"`
}
