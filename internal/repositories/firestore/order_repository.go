package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/shopapp/api/internal/domain"
	pfirestore "github.com/shopapp/api/internal/platform/firestore"
	"github.com/shopapp/api/internal/platform/pagination"
	"github.com/shopapp/api/internal/repositories"
)

const (
	orderCollection       = "orders"
	correlationCollection = "orderCorrelations"
	buyerCollection       = "buyers"
)

// OrderRepository owns order documents and the per-session correlation keys
// that make reconciliation idempotent.
type OrderRepository struct {
	provider     *pfirestore.Provider
	orders       *pfirestore.BaseRepository[orderDocument]
	correlations *pfirestore.BaseRepository[correlationDocument]
	products     *pfirestore.BaseRepository[productDocument]
	carts        *pfirestore.BaseRepository[cartDocument]
	buyers       *pfirestore.BaseRepository[buyerDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider:     provider,
		orders:       pfirestore.NewBaseRepository[orderDocument](provider, orderCollection),
		correlations: pfirestore.NewBaseRepository[correlationDocument](provider, correlationCollection),
		products:     pfirestore.NewBaseRepository[productDocument](provider, productCollection),
		carts:        pfirestore.NewBaseRepository[cartDocument](provider, cartCollection),
		buyers:       pfirestore.NewBaseRepository[buyerDocument](provider, buyerCollection),
	}, nil
}

// CreateReconciled applies every durable side effect of one payment event in a
// single transaction keyed by the checkout session. The correlation document is
// the serialization point: the first delivery claims it, later deliveries find
// it and report AlreadyReconciled without touching stock, cart, or history.
func (r *OrderRepository) CreateReconciled(ctx context.Context, write repositories.ReconcileWrite) (repositories.ReconcileOutcome, error) {
	if r == nil || r.provider == nil {
		return repositories.ReconcileOutcome{}, errors.New("order repository not initialised")
	}
	order := write.Order
	if strings.TrimSpace(order.ID) == "" {
		return repositories.ReconcileOutcome{}, repositories.NewOrderError(repositories.OrderErrorInvalidWrite, "order reconcile: order id is required", nil)
	}
	if strings.TrimSpace(order.SessionID) == "" {
		return repositories.ReconcileOutcome{}, repositories.NewOrderError(repositories.OrderErrorInvalidWrite, "order reconcile: session id is required", nil)
	}

	now := write.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var outcome repositories.ReconcileOutcome
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		corrRef, err := r.correlations.DocumentRef(ctx, order.SessionID)
		if err != nil {
			return err
		}

		// Firestore transactions require all reads before any write, so the
		// duplicate check, product reads, and buyer read happen up front.
		corrSnap, err := tx.Get(corrRef)
		if err == nil {
			var corr correlationDocument
			if err := corrSnap.DataTo(&corr); err != nil {
				return fmt.Errorf("decode order correlation %s: %w", order.SessionID, err)
			}
			existing, err := r.readOrderTx(ctx, tx, corr.OrderID)
			if err != nil {
				return err
			}
			outcome = repositories.ReconcileOutcome{Order: existing, AlreadyReconciled: true}
			return nil
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		type stockWrite struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		stockWrites := make([]stockWrite, 0, len(write.Adjustments))
		for _, adj := range write.Adjustments {
			productID := strings.TrimSpace(adj.ProductID)
			if productID == "" || adj.Quantity <= 0 {
				continue
			}
			productRef, err := r.products.DocumentRef(ctx, productID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(productRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					// The product was removed after payment capture. The order
					// still records the line; only the counters are skipped.
					continue
				}
				return err
			}
			var productDoc productDocument
			if err := snap.DataTo(&productDoc); err != nil {
				return fmt.Errorf("decode product %s: %w", productID, err)
			}
			// Stock may go negative on oversell. The payment is already
			// captured, so the decrement is applied as-is.
			productDoc.Stock -= adj.Quantity
			productDoc.Sales += adj.Quantity
			stockWrites = append(stockWrites, stockWrite{ref: productRef, doc: productDoc})
		}

		var buyerRef *firestore.DocumentRef
		var buyerDoc buyerDocument
		appendBuyer := false
		if buyerID := strings.TrimSpace(order.BuyerID); buyerID != "" {
			buyerRef, err = r.buyers.DocumentRef(ctx, buyerID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(buyerRef)
			if err == nil {
				if err := snap.DataTo(&buyerDoc); err != nil {
					return fmt.Errorf("decode buyer %s: %w", buyerID, err)
				}
				appendBuyer = true
			} else if status.Code(err) != codes.NotFound {
				return err
			}
		}

		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}

		if err := tx.Create(corrRef, correlationDocument{
			OrderID:   order.ID,
			SessionID: order.SessionID,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		orderDoc := newOrderDocument(order)
		if orderDoc.Date.IsZero() {
			orderDoc.Date = now
		}
		if err := tx.Create(orderRef, orderDoc); err != nil {
			return err
		}

		for _, sw := range stockWrites {
			if err := tx.Set(sw.ref, sw.doc); err != nil {
				return err
			}
		}

		if !write.ClearCart.IsZero() {
			cartRef, err := r.carts.DocumentRef(ctx, write.ClearCart.Key())
			if err != nil {
				return err
			}
			if err := tx.Delete(cartRef); err != nil {
				return err
			}
		}

		if appendBuyer {
			buyerDoc.OrderIDs = appendOrderID(buyerDoc.OrderIDs, order.ID)
			buyerDoc.UpdatedAt = now
			if err := tx.Set(buyerRef, buyerDoc); err != nil {
				return err
			}
		}

		outcome = repositories.ReconcileOutcome{Order: orderDoc.toDomain(order.ID)}
		return nil
	})
	if err != nil {
		return repositories.ReconcileOutcome{}, wrapOrderError("orders.reconcile", err)
	}
	return outcome, nil
}

// FindBySession resolves the correlation key and loads the order it points at.
func (r *OrderRepository) FindBySession(ctx context.Context, sessionID string) (domain.Order, error) {
	if r == nil || r.correlations == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Order{}, errors.New("order repository: session id is required")
	}

	corr, err := r.correlations.Get(ctx, sessionID)
	if err != nil {
		return domain.Order{}, err
	}
	return r.FindByID(ctx, corr.Data.OrderID)
}

// FindByID retrieves a single order document.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByBuyer returns one page of the buyer's orders, newest first. The cursor
// pairs the order date with the document ID so pages stay stable when orders
// share a timestamp.
func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID string, page pagination.Params) (repositories.OrderPage, error) {
	if r == nil || r.orders == nil {
		return repositories.OrderPage{}, errors.New("order repository not initialised")
	}
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return repositories.OrderPage{}, errors.New("order repository: buyer id is required")
	}

	page = pagination.Must(page)
	startAfter, err := decodeOrderCursor(page.Cursor)
	if err != nil {
		return repositories.OrderPage{}, err
	}

	docs, err := r.orders.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.Where("buyerId", "==", buyerID).
			OrderBy("date", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc).
			Limit(page.PageSize + 1)
		if startAfter != nil {
			query = query.StartAfter(startAfter...)
		}
		return query
	})
	if err != nil {
		return repositories.OrderPage{}, err
	}

	result := repositories.OrderPage{Orders: make([]domain.Order, 0, len(docs))}
	hasMore := len(docs) > page.PageSize
	if hasMore {
		docs = docs[:page.PageSize]
	}
	for _, doc := range docs {
		result.Orders = append(result.Orders, doc.Data.toDomain(doc.ID))
	}

	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{
			last.Data.Date.UTC().Format(time.RFC3339Nano),
			last.ID,
		}})
		if err != nil {
			return repositories.OrderPage{}, err
		}
		result.NextPageToken = token
	}
	return result, nil
}

// decodeOrderCursor turns the JSON cursor values back into the typed start-after
// arguments the date ordering requires.
func decodeOrderCursor(cursor pagination.Cursor) ([]any, error) {
	if len(cursor.StartAfter) == 0 {
		return nil, nil
	}
	if len(cursor.StartAfter) != 2 {
		return nil, fmt.Errorf("%w: unexpected cursor shape", pagination.ErrInvalidPageToken)
	}
	rawDate, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: cursor date must be a string", pagination.ErrInvalidPageToken)
	}
	docID, ok := cursor.StartAfter[1].(string)
	if !ok || strings.TrimSpace(docID) == "" {
		return nil, fmt.Errorf("%w: cursor document id must be a string", pagination.ErrInvalidPageToken)
	}
	date, err := time.Parse(time.RFC3339Nano, rawDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	return []any{date, docID}, nil
}

// MarkFulfilled transitions a pending order to fulfilled with a tracking number.
func (r *OrderRepository) MarkFulfilled(ctx context.Context, orderID, trackingNumber string, now time.Time) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorInvalidWrite, "order fulfil: tracking number is required", nil)
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
			}
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		if doc.Status != string(domain.OrderStatusPending) {
			return repositories.NewOrderError(repositories.OrderErrorInvalidState, fmt.Sprintf("order %s is not pending", orderID), nil)
		}
		doc.Status = string(domain.OrderStatusFulfilled)
		doc.TrackingNumber = trackingNumber
		doc.FulfilledAt = &now
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.fulfil", err)
	}
	return updated, nil
}

// CountPending reports how many of the buyer's orders remain pending.
func (r *OrderRepository) CountPending(ctx context.Context, buyerID string) (int64, error) {
	if r == nil || r.orders == nil {
		return 0, errors.New("order repository not initialised")
	}
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return 0, errors.New("order repository: buyer id is required")
	}

	docs, err := r.orders.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("buyerId", "==", buyerID).Where("status", "==", string(domain.OrderStatusPending))
	})
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (r *OrderRepository) readOrderTx(ctx context.Context, tx *firestore.Transaction, orderID string) (domain.Order, error) {
	ref, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	snap, err := tx.Get(ref)
	if err != nil {
		return domain.Order{}, err
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	return doc.toDomain(orderID), nil
}

// Helper structures ---------------------------------------------------------

type orderDocument struct {
	BuyerID          string              `firestore:"buyerId"`
	Lines            []orderLineDocument `firestore:"lines"`
	Date             time.Time           `firestore:"date"`
	Total            int64               `firestore:"total"`
	Currency         string              `firestore:"currency"`
	ShippingName     string              `firestore:"shippingName,omitempty"`
	ShippingAddress  addressDocument     `firestore:"shippingAddress,omitempty"`
	PaymentReference string              `firestore:"paymentRef,omitempty"`
	SessionID        string              `firestore:"sessionId"`
	Status           string              `firestore:"status"`
	TrackingNumber   string              `firestore:"trackingNumber,omitempty"`
	FulfilledAt      *time.Time          `firestore:"fulfilledAt,omitempty"`
}

type orderLineDocument struct {
	ProductID string `firestore:"productId"`
	Quantity  int64  `firestore:"qty"`
}

type addressDocument struct {
	City       string `firestore:"city,omitempty"`
	Country    string `firestore:"country,omitempty"`
	Line1      string `firestore:"line1,omitempty"`
	Line2      string `firestore:"line2,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty"`
}

type correlationDocument struct {
	OrderID   string    `firestore:"orderId"`
	SessionID string    `firestore:"sessionId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	lines := make([]orderLineDocument, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineDocument{
			ProductID: strings.TrimSpace(line.ProductID),
			Quantity:  line.Quantity,
		})
	}
	statusValue := string(order.Status)
	if statusValue == "" {
		statusValue = string(domain.OrderStatusPending)
	}
	return orderDocument{
		BuyerID:          strings.TrimSpace(order.BuyerID),
		Lines:            lines,
		Date:             order.Date.UTC(),
		Total:            order.Total,
		Currency:         strings.ToLower(strings.TrimSpace(order.Currency)),
		ShippingName:     strings.TrimSpace(order.ShippingName),
		ShippingAddress:  newAddressDocument(order.ShippingAddress),
		PaymentReference: strings.TrimSpace(order.PaymentReference),
		SessionID:        strings.TrimSpace(order.SessionID),
		Status:           statusValue,
		TrackingNumber:   strings.TrimSpace(order.TrackingNumber),
	}
}

func newAddressDocument(addr domain.OrderAddress) addressDocument {
	return addressDocument{
		City:       strings.TrimSpace(addr.City),
		Country:    strings.TrimSpace(addr.Country),
		Line1:      strings.TrimSpace(addr.Line1),
		Line2:      strings.TrimSpace(addr.Line2),
		PostalCode: strings.TrimSpace(addr.PostalCode),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	lines := make([]domain.OrderLine, 0, len(d.Lines))
	for _, line := range d.Lines {
		lines = append(lines, domain.OrderLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return domain.Order{
		ID:               id,
		BuyerID:          d.BuyerID,
		Lines:            lines,
		Date:             d.Date,
		Total:            d.Total,
		Currency:         d.Currency,
		ShippingName:     d.ShippingName,
		ShippingAddress:  d.ShippingAddress.toDomain(),
		PaymentReference: d.PaymentReference,
		SessionID:        d.SessionID,
		Status:           domain.OrderStatus(d.Status),
		TrackingNumber:   d.TrackingNumber,
	}
}

func (d addressDocument) toDomain() domain.OrderAddress {
	return domain.OrderAddress{
		City:       d.City,
		Country:    d.Country,
		Line1:      d.Line1,
		Line2:      d.Line2,
		PostalCode: d.PostalCode,
	}
}

func appendOrderID(ids []string, orderID string) []string {
	for _, id := range ids {
		if id == orderID {
			return ids
		}
	}
	return append(ids, orderID)
}

func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		if orderErr.Op == "" {
			orderErr.Op = op
		}
		return orderErr
	}
	return pfirestore.WrapError(op, err)
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
