package checkout

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/toolyard/marketplace-backend/internal/accounts"
	"github.com/toolyard/marketplace-backend/internal/address"
	"github.com/toolyard/marketplace-backend/internal/cart"
	"github.com/toolyard/marketplace-backend/internal/orders"
	"github.com/toolyard/marketplace-backend/internal/payments"
	"github.com/toolyard/marketplace-backend/internal/users"
	"github.com/toolyard/marketplace-backend/pkg/config"
	"github.com/toolyard/marketplace-backend/pkg/db/dbtest"
	"github.com/toolyard/marketplace-backend/pkg/eventbus"
	"github.com/toolyard/marketplace-backend/pkg/logger"
	"github.com/toolyard/marketplace-backend/pkg/redis"
	"github.com/toolyard/marketplace-backend/pkg/types"
)

var testTaxRate = decimal.RequireFromString("0.0825")

type recordedEvents struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recordedEvents) record(_ context.Context, event eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordedEvents) ofTopic(topic eventbus.Topic) []eventbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []eventbus.Event
	for _, event := range r.events {
		if event.Topic() == topic {
			out = append(out, event)
		}
	}
	return out
}

type testEnv struct {
	conn     *gorm.DB
	mr       *miniredis.Miniredis
	gateway  *payments.MockGateway
	attempts *AttemptRepository
	orders   orders.Repository
	carts    cart.Service
	addrs    address.Service
	events   *recordedEvents
	orch     *Orchestrator
	flow     *Flow
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	client, conn := dbtest.Client(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	mr := miniredis.RunT(t)
	rdb := redis.NewFromRedis(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rdb.Close() })

	userCarts, err := cart.NewPersistentStore(cart.NewRepository(conn), client)
	require.NoError(t, err)
	guestCarts, err := cart.NewLocalStore(rdb, time.Hour)
	require.NoError(t, err)
	carts, err := cart.NewService(userCarts, guestCarts, logg)
	require.NoError(t, err)

	addrs, err := address.NewService(address.NewRepository(conn), client, logg)
	require.NoError(t, err)

	acct, err := accounts.NewService(accounts.ServiceParams{
		Users: users.NewRepository(conn),
		Tx:    client,
		PasswordConfig: config.PasswordConfig{
			ArgonMemoryKB:    8192,
			ArgonTime:        1,
			ArgonParallelism: 1,
			ArgonSaltLen:     16,
			ArgonKeyLen:      32,
		},
		JWTConfig: config.JWTConfig{Secret: "test-secret", Issuer: "toolyard-test"},
	})
	require.NoError(t, err)

	events := &recordedEvents{}
	bus := eventbus.New()
	bus.Subscribe(eventbus.TopicOrderConfirmed, events.record)
	bus.Subscribe(eventbus.TopicPaymentFailed, events.record)
	bus.Subscribe(eventbus.TopicSignInRequested, events.record)

	env := &testEnv{
		conn:     conn,
		mr:       mr,
		gateway:  payments.NewMockGateway(false),
		attempts: NewAttemptRepository(conn),
		orders:   orders.NewRepository(conn),
		carts:    carts,
		addrs:    addrs,
		events:   events,
	}
	env.orch, err = NewOrchestrator(OrchestratorParams{
		Attempts:       env.attempts,
		Orders:         env.orders,
		Tx:             client,
		Gateway:        env.gateway,
		Carts:          carts,
		Addresses:      addrs,
		Locker:         rdb,
		Events:         bus,
		Logger:         logg,
		ConfirmLockTTL: 5 * time.Second,
	})
	require.NoError(t, err)

	env.flow, err = NewFlow(FlowParams{
		Sessions:     rdb,
		Carts:        carts,
		Addresses:    addrs,
		Accounts:     acct,
		Orchestrator: env.orch,
		Events:       bus,
		Logger:       logg,
		TaxRate:      testTaxRate,
		Currency:     "usd",
		SessionTTL:   time.Hour,
	})
	require.NoError(t, err)
	return env
}

func (e *testEnv) fillCart(t *testing.T, principal types.Principal, listings ...cart.Listing) *cart.Cart {
	t.Helper()
	var c *cart.Cart
	var err error
	for _, listing := range listings {
		c, err = e.carts.AddItem(context.Background(), principal, listing, 1)
		require.NoError(t, err)
	}
	return c
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func drill() cart.Listing {
	return cart.Listing{ID: "drill-18v", Name: "18V cordless drill", Price: dec("149.99")}
}

func saw() cart.Listing {
	return cart.Listing{ID: "saw-circular", Name: "Circular saw", Price: dec("89.50")}
}

func guestPrincipal() types.Principal {
	return types.Principal{GuestID: "device-1", GuestEmail: "buyer@example.com"}
}

func userPrincipal() types.Principal {
	id := uuid.New()
	return types.Principal{UserID: &id, Email: "owner@example.com"}
}

func shippingAddress() types.PostalAddress {
	email := "buyer@example.com"
	return types.PostalAddress{
		FirstName:  "Robin",
		LastName:   "Hale",
		Street:     "500 Lamar Blvd",
		City:       "Austin",
		State:      "TX",
		PostalCode: "78701",
		Country:    "US",
		Email:      &email,
	}
}

func billingAddress() types.PostalAddress {
	addr := shippingAddress()
	addr.Street = "22 Congress Ave"
	addr.PostalCode = "78702"
	return addr
}

func snapshotOf(t *testing.T, c *cart.Cart) CartSnapshot {
	t.Helper()
	snapshot, err := NewSnapshot(c.ID, c.Lines(), testTaxRate, "usd")
	require.NoError(t, err)
	return snapshot
}
