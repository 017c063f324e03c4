package store

import "github.com/utafrali/shopassist/services/assistant/internal/domain"

// ProductIndex resolves a product id to the richest product record known to
// the session. Sources are consulted in priority order: the detail target,
// then recommendations, wishlist and cart.
type ProductIndex struct {
	byID map[string]domain.Product
}

// NewProductIndex builds an index over the given collections.
func NewProductIndex(detail *domain.Product, recommendations, wishlist []domain.Product, cart []domain.CartLine) ProductIndex {
	ix := ProductIndex{byID: make(map[string]domain.Product, len(recommendations)+len(wishlist)+len(cart)+1)}
	if detail != nil {
		ix.add(*detail)
	}
	for _, p := range recommendations {
		ix.add(p)
	}
	for _, p := range wishlist {
		ix.add(p)
	}
	for _, l := range cart {
		ix.add(l.Product)
	}
	return ix
}

func (ix ProductIndex) add(p domain.Product) {
	if _, ok := ix.byID[p.ID]; !ok {
		ix.byID[p.ID] = p
	}
}

// Lookup returns the product for id.
func (ix ProductIndex) Lookup(id string) (domain.Product, bool) {
	p, ok := ix.byID[id]
	return p, ok
}

// Len is the number of distinct products.
func (ix ProductIndex) Len() int { return len(ix.byID) }
