package orders

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolyard/marketplace-backend/pkg/db/dbtest"
	"github.com/toolyard/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
	"github.com/toolyard/marketplace-backend/pkg/logger"
	"github.com/toolyard/marketplace-backend/pkg/pagination"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

var taxRate = decimal.RequireFromString("0.0825")

func newTestReader(t *testing.T) (Reader, Repository) {
	t.Helper()
	repo := NewRepository(dbtest.Open(t))
	r, err := NewReader(repo, taxRate, "usd", logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	require.NoError(t, err)
	return r, repo
}

func TestLoadOrderDemoIDsAreSynthesized(t *testing.T) {
	r, _ := newTestReader(t)
	for _, id := range []string{"demo-123", "mock_abc-9", "demo_X"} {
		view, err := r.LoadOrder(context.Background(), id, types.Principal{})
		require.NoError(t, err, id)
		assert.True(t, view.Synthetic)
		assert.Equal(t, id, view.ID)
		assert.True(t, view.TotalAmount.Equal(decimal.RequireFromString("162.36")))
	}
	assert.False(t, IsDemoOrderID("demo"))
	assert.False(t, IsDemoOrderID("demo-"))
	assert.False(t, IsDemoOrderID("xdemo-1"))
	assert.False(t, IsDemoOrderID("demo-1;drop"))
}

func TestLoadOrderOwnerCheck(t *testing.T) {
	r, repo := newTestReader(t)
	ctx := context.Background()
	ownerID := uuid.New()
	order, _, err := repo.CreateOnce(ctx, newOrder("pi_owner", &ownerID, nil, time.Now().UTC()))
	require.NoError(t, err)

	view, err := r.LoadOrder(ctx, order.ID.String(), types.Principal{UserID: &ownerID})
	require.NoError(t, err)
	assert.False(t, view.Synthetic)
	assert.Equal(t, order.ID.String(), view.ID)

	stranger := uuid.New()
	_, err = r.LoadOrder(ctx, order.ID.String(), types.Principal{UserID: &stranger})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = r.LoadOrder(ctx, order.ID.String(), types.Principal{GuestID: "device", GuestEmail: "x@example.com"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestLoadOrderGuestEmailIsCaseInsensitive(t *testing.T) {
	r, repo := newTestReader(t)
	ctx := context.Background()
	email := "Buyer@Example.com"
	order, _, err := repo.CreateOnce(ctx, newOrder("pi_guest", nil, &email, time.Now().UTC()))
	require.NoError(t, err)

	_, err = r.LoadOrder(ctx, order.ID.String(), types.Principal{GuestID: "d", GuestEmail: "buyer@example.COM"})
	require.NoError(t, err)

	_, err = r.LoadOrder(ctx, order.ID.String(), types.Principal{GuestID: "d", GuestEmail: "someone@example.com"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestLoadOrderNotFound(t *testing.T) {
	r, _ := newTestReader(t)
	_, err := r.LoadOrder(context.Background(), uuid.NewString(), types.Principal{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = r.LoadOrder(context.Background(), "not-a-uuid", types.Principal{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = r.LoadOrder(context.Background(), "  ", types.Principal{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestLoadOrderConcurrentCallers(t *testing.T) {
	r, repo := newTestReader(t)
	ctx := context.Background()
	ownerID := uuid.New()
	order, _, err := repo.CreateOnce(ctx, newOrder("pi_many", &ownerID, nil, time.Now().UTC()))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.LoadOrder(ctx, order.ID.String(), types.Principal{UserID: &ownerID})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

// gatedRepo holds FindByID until release closes, then fails if the query ctx was cancelled.
type gatedRepo struct {
	Repository
	started chan struct{}
	once    sync.Once
	release chan struct{}
}

func (g *gatedRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Repository.FindByID(ctx, id)
}

func TestLoadOrderCancelledCallerDoesNotFailOthers(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ownerID := uuid.New()
	order, _, err := repo.CreateOnce(context.Background(), newOrder("pi_shared", &ownerID, nil, time.Now().UTC()))
	require.NoError(t, err)

	gated := &gatedRepo{Repository: repo, started: make(chan struct{}), release: make(chan struct{})}
	r, err := NewReader(gated, taxRate, "usd", logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	require.NoError(t, err)
	owner := types.Principal{UserID: &ownerID}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.LoadOrder(firstCtx, order.ID.String(), owner)
		firstErr <- err
	}()
	<-gated.started

	secondErr := make(chan error, 1)
	go func() {
		_, err := r.LoadOrder(context.Background(), order.ID.String(), owner)
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	err = <-firstErr
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	close(gated.release)
	assert.NoError(t, <-secondErr)
}

func TestListOrdersRequiresSignedInUser(t *testing.T) {
	r, _ := newTestReader(t)
	_, err := r.ListOrders(context.Background(), types.Principal{GuestID: "d"}, pagination.Params{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	userID := uuid.New()
	_, err = r.ListOrders(context.Background(), types.Principal{UserID: &userID}, pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	list, err := r.ListOrders(context.Background(), types.Principal{UserID: &userID}, pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, list.Orders)
}
