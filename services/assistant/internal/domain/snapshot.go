package domain

import "time"

// Flags are computed per read from collection membership.
type Flags struct {
	InCart     bool `json:"in_cart"`
	InWishlist bool `json:"in_wishlist"`
}

// ProductCard is a product as rendered in any view.
type ProductCard struct {
	Product
	Flags
}

// CartLineView is a cart line as rendered in the cart view.
type CartLineView struct {
	ProductCard
	Quantity int   `json:"quantity"`
	Subtotal Price `json:"subtotal"`
}

// Snapshot is one immutable, internally consistent view of a session. Every
// view a client renders derives from a single Snapshot.
type Snapshot struct {
	Version          uint64         `json:"version"`
	SessionID        string         `json:"session_id"`
	Identity         *Identity      `json:"identity"`
	Recommendations  []ProductCard  `json:"recommendations"`
	Cart             []CartLineView `json:"cart"`
	CartCount        int            `json:"cart_count"`
	CartTotal        Price          `json:"cart_total"`
	Wishlist         []ProductCard  `json:"wishlist"`
	Detail           *ProductCard   `json:"detail"`
	Insight          Insight        `json:"insight"`
	ImageDescription string         `json:"image_description,omitempty"`
	SearchMode       SearchMode     `json:"search_mode"`
	PreviewURL       string         `json:"preview_url,omitempty"`
	Prompt           string         `json:"prompt"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// LoggedIn reports whether the snapshot carries an identity.
func (s Snapshot) LoggedIn() bool { return s.Identity != nil }
