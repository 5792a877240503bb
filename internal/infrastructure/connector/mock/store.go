// Package mock is an in-memory connector seeded with a demo catalog,
// customers and orders. Each tenant gets its own store; nothing is
// shared between connectors.
package mock

import (
	"fmt"
	"sync"
	"time"

	"github.com/coccinelle/backend/internal/domain/customer"
	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/coccinelle/backend/internal/domain/order"
	"github.com/google/uuid"
)

// Store holds one tenant's mock data behind a single mutex
type Store struct {
	mu       sync.Mutex
	tenantID uuid.UUID
	currency string
	location string
	now      func() time.Time
	seq      int

	products     map[string]*inventory.Product
	productOrder []string
	reservations map[uuid.UUID]*inventory.Reservation

	customers     map[string]*customer.Customer
	customerOrder []string

	orders     map[string]*order.Order
	orderOrder []string
	exchanges  map[string]*order.Exchange
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithClock sets the time source used for holds and timestamps
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store loaded with the embedded seed
func NewStore(tenantID uuid.UUID, opts ...StoreOption) (*Store, error) {
	return NewStoreFromSeed(tenantID, defaultSeed, opts...)
}

// NewStoreFromSeed creates a store loaded with YAML seed data
func NewStoreFromSeed(tenantID uuid.UUID, data []byte, opts ...StoreOption) (*Store, error) {
	seed, err := parseSeed(data)
	if err != nil {
		return nil, err
	}
	s := &Store{
		tenantID:     tenantID,
		currency:     seed.Currency,
		location:     seed.Location,
		now:          time.Now,
		products:     make(map[string]*inventory.Product),
		reservations: make(map[uuid.UUID]*inventory.Reservation),
		customers:    make(map[string]*customer.Customer),
		orders:       make(map[string]*order.Order),
		exchanges:    make(map[string]*order.Exchange),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, p := range seed.products(tenantID) {
		s.products[p.ID] = &p
		s.productOrder = append(s.productOrder, p.ID)
	}
	for _, c := range seed.customers(tenantID) {
		s.customers[c.ID] = &c
		s.customerOrder = append(s.customerOrder, c.ID)
	}
	for _, o := range seed.orders() {
		s.orders[o.ID] = &o
		s.orderOrder = append(s.orderOrder, o.ID)
	}
	return s, nil
}

// nextID returns a store-unique identifier with prefix
func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s_%d%03d", prefix, s.now().Unix(), s.seq)
}

// counts is reported in health details
func (s *Store) counts() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"products":     len(s.products),
		"reservations": len(s.reservations),
		"customers":    len(s.customers),
		"orders":       len(s.orders),
		"exchanges":    len(s.exchanges),
	}
}
