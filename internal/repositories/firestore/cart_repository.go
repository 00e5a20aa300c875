package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/shopapp/api/internal/domain"
	pfirestore "github.com/shopapp/api/internal/platform/firestore"
	"github.com/shopapp/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists one cart document per owner key within Firestore.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection)
	return &CartRepository{base: base, provider: provider}, nil
}

// Get loads the cart document for the owner.
func (r *CartRepository) Get(ctx context.Context, owner domain.Owner) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	if owner.IsZero() {
		return domain.Cart{}, errors.New("cart repository: owner is required")
	}

	doc, err := r.base.Get(ctx, owner.Key())
	if err != nil {
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(owner, doc.UpdateTime), nil
}

// Save writes the full line set for the owner, replacing any previous document.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	if cart.Owner.IsZero() {
		return domain.Cart{}, errors.New("cart repository: owner is required")
	}

	now := time.Now().UTC()
	if !cart.UpdatedAt.IsZero() {
		now = cart.UpdatedAt.UTC()
	}
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := newCartDocument(cart, createdAt, now)
	result, err := r.base.Set(ctx, cart.Owner.Key(), doc)
	if err != nil {
		return domain.Cart{}, err
	}

	saved := cart
	saved.Lines = cloneLines(cart.Lines)
	saved.CreatedAt = createdAt
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// Delete removes the owner's cart document. Missing documents are treated as already deleted.
func (r *CartRepository) Delete(ctx context.Context, owner domain.Owner) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	if owner.IsZero() {
		return errors.New("cart repository: owner is required")
	}

	ref, err := r.base.DocumentRef(ctx, owner.Key())
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		wrapped := pfirestore.WrapError("carts.delete", err)
		if repositories.IsNotFound(wrapped) {
			return nil
		}
		return wrapped
	}
	return nil
}

type cartDocument struct {
	OwnerKind string             `firestore:"ownerKind"`
	OwnerID   string             `firestore:"ownerId"`
	Lines     []cartLineDocument `firestore:"lines"`
	Units     int64              `firestore:"units"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartLineDocument struct {
	ProductID string `firestore:"productId"`
	Quantity  int64  `firestore:"qty"`
}

func newCartDocument(cart domain.Cart, createdAt, updatedAt time.Time) cartDocument {
	lines := make([]cartLineDocument, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" || line.Quantity <= 0 {
			continue
		}
		lines = append(lines, cartLineDocument{ProductID: productID, Quantity: line.Quantity})
	}
	return cartDocument{
		OwnerKind: string(cart.Owner.Kind),
		OwnerID:   cart.Owner.ID,
		Lines:     lines,
		Units:     cart.Length(),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

func (d cartDocument) toDomain(owner domain.Owner, updateTime time.Time) domain.Cart {
	lines := make([]domain.CartLine, 0, len(d.Lines))
	for _, line := range d.Lines {
		if line.ProductID == "" || line.Quantity <= 0 {
			continue
		}
		lines = append(lines, domain.CartLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	updatedAt := d.UpdatedAt
	if !updateTime.IsZero() {
		updatedAt = updateTime
	}
	return domain.Cart{
		Owner:     owner,
		Lines:     lines,
		CreatedAt: d.CreatedAt,
		UpdatedAt: updatedAt,
	}
}

func cloneLines(lines []domain.CartLine) []domain.CartLine {
	if lines == nil {
		return nil
	}
	dup := make([]domain.CartLine, len(lines))
	copy(dup, lines)
	return dup
}

var _ repositories.CartRepository = (*CartRepository)(nil)
