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

// BuyerRepository persists account profiles and their order history.
type BuyerRepository struct {
	base     *pfirestore.BaseRepository[buyerDocument]
	provider *pfirestore.Provider
}

// NewBuyerRepository constructs a Firestore-backed buyer repository.
func NewBuyerRepository(provider *pfirestore.Provider) (*BuyerRepository, error) {
	if provider == nil {
		return nil, errors.New("buyer repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[buyerDocument](provider, buyerCollection)
	return &BuyerRepository{base: base, provider: provider}, nil
}

// Get loads a buyer profile.
func (r *BuyerRepository) Get(ctx context.Context, buyerID string) (domain.Buyer, error) {
	if r == nil || r.base == nil {
		return domain.Buyer{}, errors.New("buyer repository not initialised")
	}
	id := strings.TrimSpace(buyerID)
	if id == "" {
		return domain.Buyer{}, errors.New("buyer repository: buyer id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Buyer{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Upsert writes the buyer profile.
func (r *BuyerRepository) Upsert(ctx context.Context, buyer domain.Buyer) (domain.Buyer, error) {
	if r == nil || r.base == nil {
		return domain.Buyer{}, errors.New("buyer repository not initialised")
	}
	id := strings.TrimSpace(buyer.ID)
	if id == "" {
		return domain.Buyer{}, errors.New("buyer repository: buyer id is required")
	}

	doc := buyerDocument{
		Email:     strings.TrimSpace(buyer.Email),
		Name:      strings.TrimSpace(buyer.Name),
		OrderIDs:  append([]string(nil), buyer.OrderIDs...),
		UpdatedAt: time.Now().UTC(),
	}
	if _, err := r.base.Set(ctx, id, doc); err != nil {
		return domain.Buyer{}, err
	}
	return doc.toDomain(id), nil
}

type buyerDocument struct {
	Email     string    `firestore:"email,omitempty"`
	Name      string    `firestore:"name,omitempty"`
	OrderIDs  []string  `firestore:"orderIds"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d buyerDocument) toDomain(id string) domain.Buyer {
	return domain.Buyer{
		ID:       id,
		Email:    d.Email,
		Name:     d.Name,
		OrderIDs: append([]string(nil), d.OrderIDs...),
	}
}

var _ repositories.BuyerRepository = (*BuyerRepository)(nil)
