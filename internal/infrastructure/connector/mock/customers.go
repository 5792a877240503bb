package mock

import (
	"context"
	"strings"

	"github.com/coccinelle/backend/internal/domain/customer"
	"github.com/coccinelle/backend/internal/domain/integration"
)

// Customers implements integration.CustomerSystem over a Store
type Customers struct {
	store *Store
}

// Compile-time interface check
var _ integration.CustomerSystem = (*Customers)(nil)

// NewCustomers creates the customer capability of a store
func NewCustomers(store *Store) *Customers {
	return &Customers{store: store}
}

// GetCustomer returns a customer by id
func (c *Customers) GetCustomer(_ context.Context, id string) (*customer.Customer, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()

	cust, ok := s.customers[id]
	if !ok {
		return nil, customer.ErrCustomerNotFound
	}
	return cloneCustomer(cust), nil
}

// GetCustomerByEmail returns nil, nil when no customer has the address
func (c *Customers) GetCustomerByEmail(_ context.Context, email string) (*customer.Customer, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if cust := s.customerByEmailLocked(email); cust != nil {
		return cloneCustomer(cust), nil
	}
	return nil, nil
}

// SearchCustomers matches names, email and phone ignoring case and accents
func (c *Customers) SearchCustomers(_ context.Context, query string, limit int) ([]customer.Customer, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()

	folded := fold(query)
	out := []customer.Customer{}
	for _, id := range s.customerOrder {
		cust := s.customers[id]
		if folded != "" &&
			!strings.Contains(fold(cust.FirstName), folded) &&
			!strings.Contains(fold(cust.LastName), folded) &&
			!strings.Contains(cust.Email, folded) &&
			!strings.Contains(cust.Phone, strings.TrimSpace(query)) {
			continue
		}
		out = append(out, *cloneCustomer(cust))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// CreateCustomer adds a customer. The email must not be in use.
func (c *Customers) CreateCustomer(_ context.Context, in customer.Input) (*customer.Customer, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.Email != "" && s.customerByEmailLocked(in.Email) != nil {
		return nil, customer.ErrDuplicateEmail
	}
	cust, err := customer.New(s.tenantID, in)
	if err != nil {
		return nil, err
	}
	now := s.now()
	cust.ID = s.nextID("cust")
	cust.CreatedAt = now
	cust.UpdatedAt = now
	s.customers[cust.ID] = cust
	s.customerOrder = append(s.customerOrder, cust.ID)
	return cloneCustomer(cust), nil
}

// UpdateCustomer overwrites a customer's writable fields
func (c *Customers) UpdateCustomer(_ context.Context, id string, in customer.Input) (*customer.Customer, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()

	cust, ok := s.customers[id]
	if !ok {
		return nil, customer.ErrCustomerNotFound
	}
	if other := s.customerByEmailLocked(in.Email); other != nil && other.ID != id {
		return nil, customer.ErrDuplicateEmail
	}
	cust.Apply(in, s.now())
	return cloneCustomer(cust), nil
}

// CheckHealth always reports connected
func (c *Customers) CheckHealth(context.Context) integration.Health {
	return integration.Healthy(integration.SystemMock, c.store.counts())
}

// TestConnection always succeeds
func (c *Customers) TestConnection(context.Context) error { return nil }

func (s *Store) customerByEmailLocked(email string) *customer.Customer {
	email = customer.NormalizeEmail(email)
	if email == "" {
		return nil
	}
	for _, id := range s.customerOrder {
		if cust := s.customers[id]; cust.Email == email {
			return cust
		}
	}
	return nil
}

func cloneCustomer(c *customer.Customer) *customer.Customer {
	out := *c
	out.Tags = append([]string{}, c.Tags...)
	if c.Metadata != nil {
		out.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
