package orders

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/toolyard/marketplace-backend/pkg/db/models"
	"github.com/toolyard/marketplace-backend/pkg/enums"
	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/logger"
	"github.com/toolyard/marketplace-backend/pkg/money"
	"github.com/toolyard/marketplace-backend/pkg/pagination"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

var demoOrderID = regexp.MustCompile(`^(demo|mock)[-_][A-Za-z0-9-]+$`)

// IsDemoOrderID reports whether id names a synthesized demo order.
func IsDemoOrderID(id string) bool {
	return demoOrderID.MatchString(id)
}

type reader struct {
	repo     Repository
	logg     *logger.Logger
	taxRate  decimal.Decimal
	currency string
	loads    singleflight.Group
	now      func() time.Time
}

// NewReader builds the order confirmation reader.
func NewReader(repo Repository, taxRate decimal.Decimal, currency string, logg *logger.Logger) (Reader, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &reader{repo: repo, logg: logg, taxRate: taxRate, currency: currency, now: time.Now}, nil
}

// LoadOrder returns the order if principal may see it. Demo ids never touch storage.
func (r *reader) LoadOrder(ctx context.Context, orderID string, principal types.Principal) (*OrderView, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if IsDemoOrderID(orderID) {
		return r.demoOrder(orderID), nil
	}
	id, err := uuid.Parse(orderID)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	// Concurrent loads of the same order (confirmation page refresh storms) share one query. The
	// query outlives any single caller; each caller still stops waiting when its own ctx ends.
	shared := r.loads.DoChan(id.String(), func() (any, error) {
		return r.repo.FindByID(context.WithoutCancel(ctx), id)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "load order")
	case res = <-shared:
	}
	result, err := res.Val, res.Err
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	order := result.(*models.Order)

	if !canView(order, principal) {
		r.logg.Warn(r.logg.WithField(ctx, "order_id", orderID), "order access denied")
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "you do not have access to this order")
	}
	return viewFromModel(order), nil
}

func (r *reader) ListOrders(ctx context.Context, principal types.Principal, params pagination.Params) (*OrderList, error) {
	if principal.IsGuest() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to view order history")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := r.repo.ListByOwner(ctx, *principal.UserID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	out := &OrderList{Orders: make([]OrderView, 0, len(rows)), NextCursor: next}
	for idx := range rows {
		out.Orders = append(out.Orders, *viewFromModel(&rows[idx]))
	}
	return out, nil
}

func canView(order *models.Order, principal types.Principal) bool {
	if order.OwnerID != nil {
		return !principal.IsGuest() && *principal.UserID == *order.OwnerID
	}
	if order.GuestEmail == nil {
		return false
	}
	email := principal.ContactEmail()
	return email != "" && strings.EqualFold(email, strings.TrimSpace(*order.GuestEmail))
}

func (r *reader) demoOrder(orderID string) *OrderView {
	lines := []types.CartLine{{
		ListingID: "demo-listing",
		Name:      "Cordless drill (demo)",
		UnitPrice: decimal.RequireFromString("149.99"),
		Quantity:  1,
	}}
	breakdown := money.Price(money.Sum(lines), r.taxRate)
	address := types.PostalAddress{
		FirstName:  "Demo",
		LastName:   "Buyer",
		Street:     "100 Example St",
		City:       "Austin",
		State:      "TX",
		PostalCode: "78701",
		Country:    "US",
	}
	return &OrderView{
		ID:                   orderID,
		Status:               enums.OrderStatusPaid,
		Items:                lines,
		Subtotal:             breakdown.Subtotal,
		Tax:                  breakdown.Tax,
		TotalAmount:          breakdown.Total,
		Currency:             r.currency,
		ShippingAddress:      address,
		BillingAddress:       address,
		PaymentMethodSummary: "demo card ending 4242",
		CreatedAt:            r.now().UTC(),
		Synthetic:            true,
	}
}
