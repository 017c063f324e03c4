package store

import (
	"slices"
	"time"

	"github.com/utafrali/shopassist/services/assistant/internal/domain"
)

// Tx is the mutable collection state, reachable only inside Store.Apply.
type Tx struct {
	identity         *domain.Identity
	recommendations  []domain.Product
	cart             []domain.CartLine
	wishlist         []domain.Product
	detail           *domain.Product
	insight          domain.Insight
	imageDescription string
	mode             domain.SearchMode
	previewURL       string
	prompt           string
}

// ReplaceRecommendations swaps the grid for exactly list, in order.
func (tx *Tx) ReplaceRecommendations(list []domain.Product) {
	tx.recommendations = slices.Clone(list)
}

// ClearRecommendations empties the grid.
func (tx *Tx) ClearRecommendations() {
	tx.recommendations = nil
}

// SetCart replaces the cart. Duplicate ids collapse onto the first
// occurrence with quantities summed; a non-positive quantity counts as one.
// It reports false, changing nothing, when no identity is present.
func (tx *Tx) SetCart(lines []domain.CartLine) bool {
	if tx.identity == nil {
		return false
	}

	out := make([]domain.CartLine, 0, len(lines))
	pos := make(map[string]int, len(lines))
	for _, l := range lines {
		qty := l.Quantity
		if qty < 1 {
			qty = 1
		}
		if i, ok := pos[l.Product.ID]; ok {
			out[i].Quantity += qty
			continue
		}
		pos[l.Product.ID] = len(out)
		out = append(out, domain.CartLine{Product: l.Product, Quantity: qty})
	}
	tx.cart = out
	return true
}

// SetWishlist replaces the wishlist, keeping the first of any duplicate ids.
// It reports false, changing nothing, when no identity is present.
func (tx *Tx) SetWishlist(list []domain.Product) bool {
	if tx.identity == nil {
		return false
	}

	out := make([]domain.Product, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, p := range list {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	tx.wishlist = out
	return true
}

// SetDetail sets or clears the detail selection.
func (tx *Tx) SetDetail(p *domain.Product) {
	if p == nil {
		tx.detail = nil
		return
	}
	cp := *p
	tx.detail = &cp
}

// Detail returns the detail selection.
func (tx *Tx) Detail() *domain.Product {
	return tx.detail
}

// SetIdentity records the identity. Clearing it empties cart and wishlist.
func (tx *Tx) SetIdentity(id *domain.Identity) {
	if id == nil {
		tx.identity = nil
		tx.cart = nil
		tx.wishlist = nil
		return
	}
	cp := *id
	tx.identity = &cp
}

// Identity returns the current identity.
func (tx *Tx) Identity() *domain.Identity {
	if tx.identity == nil {
		return nil
	}
	cp := *tx.identity
	return &cp
}

// SetInsight replaces the insight and the image description together.
func (tx *Tx) SetInsight(in domain.Insight, imageDescription string) {
	if in.Kind == "" {
		in.Kind = domain.InsightAbsent
	}
	tx.insight = in
	tx.imageDescription = imageDescription
}

// SetSearchState records how the current grid was produced.
func (tx *Tx) SetSearchState(mode domain.SearchMode, previewURL, prompt string) {
	tx.mode = mode
	tx.previewURL = previewURL
	tx.prompt = prompt
}

// InCart reports cart membership.
func (tx *Tx) InCart(id string) bool {
	return slices.ContainsFunc(tx.cart, func(l domain.CartLine) bool { return l.Product.ID == id })
}

// InWishlist reports wishlist membership.
func (tx *Tx) InWishlist(id string) bool {
	return slices.ContainsFunc(tx.wishlist, func(p domain.Product) bool { return p.ID == id })
}

// Flags derives both membership flags.
func (tx *Tx) Flags(id string) domain.Flags {
	return domain.Flags{InCart: tx.InCart(id), InWishlist: tx.InWishlist(id)}
}

// CartLines returns a copy of the cart.
func (tx *Tx) CartLines() []domain.CartLine {
	return slices.Clone(tx.cart)
}

func (tx *Tx) buildIndex() ProductIndex {
	return NewProductIndex(tx.detail, tx.recommendations, tx.wishlist, tx.cart)
}

func (tx *Tx) snapshot(sessionID string, version uint64, now time.Time) domain.Snapshot {
	inCart := make(map[string]struct{}, len(tx.cart))
	for _, l := range tx.cart {
		inCart[l.Product.ID] = struct{}{}
	}
	inWishlist := make(map[string]struct{}, len(tx.wishlist))
	for _, p := range tx.wishlist {
		inWishlist[p.ID] = struct{}{}
	}
	card := func(p domain.Product) domain.ProductCard {
		_, c := inCart[p.ID]
		_, w := inWishlist[p.ID]
		return domain.ProductCard{Product: p, Flags: domain.Flags{InCart: c, InWishlist: w}}
	}

	snap := domain.Snapshot{
		Version:          version,
		SessionID:        sessionID,
		Identity:         tx.Identity(),
		Recommendations:  make([]domain.ProductCard, 0, len(tx.recommendations)),
		Cart:             make([]domain.CartLineView, 0, len(tx.cart)),
		Wishlist:         make([]domain.ProductCard, 0, len(tx.wishlist)),
		Insight:          tx.insight,
		ImageDescription: tx.imageDescription,
		SearchMode:       tx.mode,
		PreviewURL:       tx.previewURL,
		Prompt:           tx.prompt,
		UpdatedAt:        now.UTC(),
	}

	for _, p := range tx.recommendations {
		snap.Recommendations = append(snap.Recommendations, card(p))
	}
	for _, l := range tx.cart {
		snap.Cart = append(snap.Cart, domain.CartLineView{
			ProductCard: card(l.Product),
			Quantity:    l.Quantity,
			Subtotal:    l.Subtotal(),
		})
		snap.CartCount += l.Quantity
		snap.CartTotal = snap.CartTotal.Add(l.Subtotal())
	}
	for _, p := range tx.wishlist {
		snap.Wishlist = append(snap.Wishlist, card(p))
	}
	if tx.detail != nil {
		d := card(*tx.detail)
		snap.Detail = &d
	}
	return snap
}
