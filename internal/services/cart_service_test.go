package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/shopapp/api/internal/domain"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return "stub repository error" }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

type stubCartRepo struct {
	carts     map[string]domain.Cart
	saveCalls int
	getErr    error
	saveErr   error
	deleteErr error
}

func newStubCartRepo() *stubCartRepo {
	return &stubCartRepo{carts: map[string]domain.Cart{}}
}

func (r *stubCartRepo) Get(_ context.Context, owner domain.Owner) (domain.Cart, error) {
	if r.getErr != nil {
		return domain.Cart{}, r.getErr
	}
	cart, ok := r.carts[owner.Key()]
	if !ok {
		return domain.Cart{}, &stubRepoError{notFound: true}
	}
	return cart, nil
}

func (r *stubCartRepo) Save(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	if r.saveErr != nil {
		return domain.Cart{}, r.saveErr
	}
	r.saveCalls++
	r.carts[cart.Owner.Key()] = cart
	return cart, nil
}

func (r *stubCartRepo) Delete(_ context.Context, owner domain.Owner) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.carts, owner.Key())
	return nil
}

type stubProductRepo struct {
	products map[string]domain.Product
	findErr  error
	listErr  error
}

func newStubProductRepo(products ...domain.Product) *stubProductRepo {
	repo := &stubProductRepo{products: map[string]domain.Product{}}
	for _, p := range products {
		repo.products[p.ID] = p
	}
	return repo
}

func (r *stubProductRepo) FindByID(_ context.Context, productID string) (domain.Product, error) {
	if r.findErr != nil {
		return domain.Product{}, r.findErr
	}
	product, ok := r.products[productID]
	if !ok {
		return domain.Product{}, &stubRepoError{notFound: true}
	}
	return product, nil
}

func (r *stubProductRepo) FindByIDs(_ context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	out := map[string]domain.Product{}
	for _, id := range productIDs {
		if product, ok := r.products[id]; ok {
			out[id] = product
		}
	}
	return out, nil
}

func (r *stubProductRepo) List(_ context.Context) ([]domain.Product, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]domain.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	return out, nil
}

func fixedClock() time.Time {
	return time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
}

func newTestCartService(t *testing.T, carts *stubCartRepo, products *stubProductRepo) CartService {
	t.Helper()
	svc, err := NewCartService(CartServiceDeps{
		Carts:           carts,
		Products:        products,
		Clock:           fixedClock,
		MaxLineQuantity: 99,
	})
	if err != nil {
		t.Fatalf("NewCartService returned error: %v", err)
	}
	return svc
}

func testOwner() domain.Owner {
	return domain.Owner{Kind: domain.OwnerKindAccount, ID: "buyer-1"}
}

func TestNewCartServiceRequiresDependencies(t *testing.T) {
	if _, err := NewCartService(CartServiceDeps{Products: newStubProductRepo(), Clock: fixedClock}); err == nil {
		t.Fatal("expected error when cart repository is missing")
	}
	if _, err := NewCartService(CartServiceDeps{Carts: newStubCartRepo(), Clock: fixedClock}); err == nil {
		t.Fatal("expected error when product repository is missing")
	}
	if _, err := NewCartService(CartServiceDeps{Carts: newStubCartRepo(), Products: newStubProductRepo()}); err == nil {
		t.Fatal("expected error when clock is missing")
	}
}

func TestCartServiceAddItemCreatesLine(t *testing.T) {
	carts := newStubCartRepo()
	products := newStubProductRepo(domain.Product{ID: "p1", Name: "Mug", Price: 12.50, Stock: 3})
	svc := newTestCartService(t, carts, products)

	cart, err := svc.AddItem(context.Background(), testOwner(), "p1")
	if err != nil {
		t.Fatalf("AddItem returned error: %v", err)
	}
	if len(cart.Lines) != 1 || cart.Lines[0].Quantity != 1 {
		t.Fatalf("unexpected cart lines: %+v", cart.Lines)
	}
	if carts.saveCalls != 1 {
		t.Fatalf("expected one save, got %d", carts.saveCalls)
	}

	cart, err = svc.AddItem(context.Background(), testOwner(), "p1")
	if err != nil {
		t.Fatalf("second AddItem returned error: %v", err)
	}
	if cart.Lines[0].Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", cart.Lines[0].Quantity)
	}
}

func TestCartServiceAddItemFailsWithoutTouchingCart(t *testing.T) {
	carts := newStubCartRepo()
	products := newStubProductRepo(
		domain.Product{ID: "empty", Name: "Sold out", Stock: 0},
		domain.Product{ID: "scarce", Name: "Scarce", Stock: 1},
	)
	svc := newTestCartService(t, carts, products)

	if _, err := svc.AddItem(context.Background(), testOwner(), "missing"); !errors.Is(err, ErrCartProductNotFound) {
		t.Fatalf("expected ErrCartProductNotFound, got %v", err)
	}
	if _, err := svc.AddItem(context.Background(), testOwner(), "empty"); !errors.Is(err, ErrCartOutOfStock) {
		t.Fatalf("expected ErrCartOutOfStock, got %v", err)
	}

	if _, err := svc.AddItem(context.Background(), testOwner(), "scarce"); err != nil {
		t.Fatalf("AddItem returned error: %v", err)
	}
	saves := carts.saveCalls
	cart, err := svc.AddItem(context.Background(), testOwner(), "scarce")
	if !errors.Is(err, ErrCartLimitExceeded) {
		t.Fatalf("expected ErrCartLimitExceeded, got %v", err)
	}
	if cart.Lines[0].Quantity != 1 {
		t.Fatalf("cart should be unchanged, got quantity %d", cart.Lines[0].Quantity)
	}
	if carts.saveCalls != saves {
		t.Fatalf("limit failure must not persist, saves went %d -> %d", saves, carts.saveCalls)
	}
}

func TestCartServiceModifyItemClampsAndPersists(t *testing.T) {
	owner := testOwner()
	carts := newStubCartRepo()
	carts.carts[owner.Key()] = domain.Cart{
		Owner: owner,
		Lines: []domain.CartLine{{ProductID: "p1", Quantity: 5}},
	}
	products := newStubProductRepo(domain.Product{ID: "p1", Name: "Mug", Stock: 3})
	svc := newTestCartService(t, carts, products)

	cart, err := svc.ModifyItem(context.Background(), owner, "p1", QuantityIncrement)
	if !errors.Is(err, ErrCartLimitExceeded) {
		t.Fatalf("expected ErrCartLimitExceeded, got %v", err)
	}
	if cart.Lines[0].Quantity != 3 {
		t.Fatalf("expected clamp to 3, got %d", cart.Lines[0].Quantity)
	}
	if stored := carts.carts[owner.Key()]; stored.Lines[0].Quantity != 3 {
		t.Fatalf("clamped value must be persisted, stored %d", stored.Lines[0].Quantity)
	}
}

func TestCartServiceModifyItemRemovesAtZero(t *testing.T) {
	owner := testOwner()
	carts := newStubCartRepo()
	carts.carts[owner.Key()] = domain.Cart{
		Owner: owner,
		Lines: []domain.CartLine{{ProductID: "p1", Quantity: 1}},
	}
	products := newStubProductRepo(domain.Product{ID: "p1", Name: "Mug", Stock: 3})
	svc := newTestCartService(t, carts, products)

	cart, err := svc.ModifyItem(context.Background(), owner, "p1", QuantityDecrement)
	if err != nil {
		t.Fatalf("ModifyItem returned error: %v", err)
	}
	if len(cart.Lines) != 0 {
		t.Fatalf("expected line removed, got %+v", cart.Lines)
	}

	if _, err := svc.ModifyItem(context.Background(), owner, "p1", QuantityDecrement); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got %v", err)
	}
}

func TestCartServiceModifyItemDropsVanishedProduct(t *testing.T) {
	owner := testOwner()
	carts := newStubCartRepo()
	carts.carts[owner.Key()] = domain.Cart{
		Owner: owner,
		Lines: []domain.CartLine{{ProductID: "gone", Quantity: 2}},
	}
	svc := newTestCartService(t, carts, newStubProductRepo())

	cart, err := svc.ModifyItem(context.Background(), owner, "gone", QuantityIncrement)
	if !errors.Is(err, ErrCartProductRemoved) {
		t.Fatalf("expected ErrCartProductRemoved, got %v", err)
	}
	if len(cart.Lines) != 0 {
		t.Fatalf("expected line dropped, got %+v", cart.Lines)
	}
}

func TestCartServiceRemoveItemIsIdempotent(t *testing.T) {
	owner := testOwner()
	carts := newStubCartRepo()
	carts.carts[owner.Key()] = domain.Cart{
		Owner: owner,
		Lines: []domain.CartLine{{ProductID: "p1", Quantity: 2}},
	}
	svc := newTestCartService(t, carts, newStubProductRepo())

	cart, err := svc.RemoveItem(context.Background(), owner, "p1")
	if err != nil {
		t.Fatalf("RemoveItem returned error: %v", err)
	}
	if len(cart.Lines) != 0 {
		t.Fatalf("expected empty cart, got %+v", cart.Lines)
	}

	if _, err := svc.RemoveItem(context.Background(), owner, "p1"); err != nil {
		t.Fatalf("removing an absent line must succeed, got %v", err)
	}
	if carts.saveCalls != 2 {
		t.Fatalf("both removals must persist, got %d saves", carts.saveCalls)
	}
}

func TestCartServiceValidateCorrectsAllLinesOnce(t *testing.T) {
	owner := testOwner()
	carts := newStubCartRepo()
	carts.carts[owner.Key()] = domain.Cart{
		Owner: owner,
		Lines: []domain.CartLine{
			{ProductID: "fine", Quantity: 1},
			{ProductID: "over", Quantity: 9},
			{ProductID: "gone", Quantity: 2},
		},
	}
	products := newStubProductRepo(
		domain.Product{ID: "fine", Name: "Fine", Stock: 5},
		domain.Product{ID: "over", Name: "Over", Stock: 4},
	)
	svc := newTestCartService(t, carts, products)

	cart, err := svc.Validate(context.Background(), owner)
	if err == nil {
		t.Fatal("expected joined validation error")
	}
	if !errors.Is(err, ErrCartQuantityReduced) || !errors.Is(err, ErrCartProductRemoved) {
		t.Fatalf("expected both correction errors, got %v", err)
	}
	if len(cart.Lines) != 2 {
		t.Fatalf("expected two surviving lines, got %+v", cart.Lines)
	}
	if idx := cart.Find("over"); cart.Lines[idx].Quantity != 4 {
		t.Fatalf("expected clamp to 4, got %d", cart.Lines[idx].Quantity)
	}
	if carts.saveCalls != 1 {
		t.Fatalf("corrections must persist in one save, got %d", carts.saveCalls)
	}

	// Stock unchanged, so a second pass reports nothing.
	if _, err := svc.Validate(context.Background(), owner); err != nil {
		t.Fatalf("second Validate must be clean, got %v", err)
	}
}

func TestCartServiceGetPopulatesTotals(t *testing.T) {
	owner := testOwner()
	carts := newStubCartRepo()
	carts.carts[owner.Key()] = domain.Cart{
		Owner: owner,
		Lines: []domain.CartLine{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
	}
	products := newStubProductRepo(
		domain.Product{ID: "p1", Name: "Mug", Price: 12.50, Stock: 5},
		domain.Product{ID: "p2", Name: "Tee", Price: 20, Discounted: true, DiscountedPrice: 15, Stock: 5},
	)
	svc := newTestCartService(t, carts, products)

	detail, err := svc.Get(context.Background(), owner)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if len(detail.Items) != 2 {
		t.Fatalf("expected two populated lines, got %d", len(detail.Items))
	}
	// 2 * 1250 + 1 * 1500 in pence.
	if detail.Total != 4000 {
		t.Fatalf("expected total 4000, got %d", detail.Total)
	}
}

func TestCartServiceMergeSumsAndDeletesSource(t *testing.T) {
	guest := domain.Owner{Kind: domain.OwnerKindSession, ID: "sess-9"}
	account := testOwner()
	carts := newStubCartRepo()
	carts.carts[guest.Key()] = domain.Cart{
		Owner: guest,
		Lines: []domain.CartLine{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p3", Quantity: 1},
		},
	}
	carts.carts[account.Key()] = domain.Cart{
		Owner: account,
		Lines: []domain.CartLine{{ProductID: "p1", Quantity: 1}},
	}
	svc := newTestCartService(t, carts, newStubProductRepo())

	cart, err := svc.Merge(context.Background(), guest, account)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	if idx := cart.Find("p1"); cart.Lines[idx].Quantity != 3 {
		t.Fatalf("expected summed quantity 3, got %d", cart.Lines[idx].Quantity)
	}
	if cart.Find("p3") < 0 {
		t.Fatal("expected p3 carried over")
	}
	if _, ok := carts.carts[guest.Key()]; ok {
		t.Fatal("expected source cart deleted")
	}
}

func TestCartServiceLengthOnAbsentCart(t *testing.T) {
	svc := newTestCartService(t, newStubCartRepo(), newStubProductRepo())
	length, err := svc.Length(context.Background(), testOwner())
	if err != nil {
		t.Fatalf("Length returned error: %v", err)
	}
	if length != 0 {
		t.Fatalf("expected zero length, got %d", length)
	}
}

func TestCartServiceTranslatesBackendFailures(t *testing.T) {
	carts := newStubCartRepo()
	carts.getErr = &stubRepoError{unavailable: true}
	svc := newTestCartService(t, carts, newStubProductRepo(domain.Product{ID: "p1", Stock: 1}))

	if _, err := svc.AddItem(context.Background(), testOwner(), "p1"); !errors.Is(err, ErrCartUnavailable) {
		t.Fatalf("expected ErrCartUnavailable, got %v", err)
	}
}
