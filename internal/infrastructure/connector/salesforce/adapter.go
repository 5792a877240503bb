package salesforce

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coccinelle/backend/internal/domain/customer"
	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/coccinelle/backend/internal/infrastructure/connector/httpx"
)

const (
	contactPath        = "/sobjects/Contact"
	queryPath          = "/query"
	defaultSearchLimit = 100
	maxSearchLimit     = 2000
)

// Adapter implements integration.CustomerSystem for Salesforce Contacts
type Adapter struct {
	client *httpx.Client
	now    func() time.Time
}

// Compile-time interface check
var _ integration.CustomerSystem = (*Adapter)(nil)

// NewAdapter creates a Salesforce adapter
func NewAdapter(cfg *Config, base httpx.Config, opts ...httpx.Option) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base.System = integration.SystemSalesforce
	base.BaseURL = cfg.BaseURL()
	base.Authorize = httpx.BearerToken(cfg.AccessToken)
	return &Adapter{
		client: httpx.New(base, opts...),
		now:    time.Now,
	}, nil
}

// Builder returns a connector builder for the factory
func Builder(base httpx.Config, opts ...httpx.Option) func(ctx context.Context, cfg *integration.IntegrationConfig) (integration.Connector, error) {
	return func(_ context.Context, ic *integration.IntegrationConfig) (integration.Connector, error) {
		adapter, err := NewAdapter(ConfigFrom(ic), base, opts...)
		if err != nil {
			return nil, err
		}
		return integration.NewConnector(integration.SystemSalesforce, adapter, integration.Capabilities{
			Customers: adapter,
		}), nil
	}
}

// GetCustomer retrieves a Contact by record ID
func (a *Adapter) GetCustomer(ctx context.Context, id string) (*customer.Customer, error) {
	if strings.TrimSpace(id) == "" {
		return nil, shared.NewValidationError("salesforce: contact id is required")
	}
	var c contact
	err := a.client.Do(ctx, httpx.Request{
		Operation: "get_contact",
		Method:    http.MethodGet,
		Path:      contactPath + "/" + url.PathEscape(id),
		Query:     url.Values{"fields": {strings.Join(contactFields, ",")}},
	}, &c)
	if err != nil {
		return nil, err
	}
	return toCustomer(&c), nil
}

// GetCustomerByEmail runs a SOQL lookup on Email
func (a *Adapter) GetCustomerByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	email = customer.NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	records, err := a.query(ctx, "get_contact_by_email", selectContacts("WHERE Email = "+soqlString(email), 1))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return toCustomer(&records[0]), nil
}

// SearchCustomers matches the query against names, email and phones.
// An empty query lists the most recent contacts.
func (a *Adapter) SearchCustomers(ctx context.Context, query string, limit int) ([]customer.Customer, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	where := ""
	if q := strings.TrimSpace(query); q != "" {
		pattern := soqlLike(q)
		where = fmt.Sprintf("WHERE FirstName LIKE %[1]s OR LastName LIKE %[1]s OR Email LIKE %[1]s OR Phone LIKE %[1]s OR MobilePhone LIKE %[1]s", pattern)
	}
	records, err := a.query(ctx, "search_contacts", selectContacts(where, limit))
	if err != nil {
		return nil, err
	}
	customers := make([]customer.Customer, 0, len(records))
	for i := range records {
		customers = append(customers, *toCustomer(&records[i]))
	}
	return customers, nil
}

// CreateCustomer creates a Contact and reads it back. An address already
// used by another Contact returns customer.ErrDuplicateEmail.
func (a *Adapter) CreateCustomer(ctx context.Context, in customer.Input) (*customer.Customer, error) {
	if in.Email != "" {
		existing, err := a.GetCustomerByEmail(ctx, in.Email)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: salesforce contact %s", customer.ErrDuplicateEmail, existing.ID)
		}
	}
	var created createResponse
	err := a.client.Do(ctx, httpx.Request{
		Operation: "create_contact",
		Method:    http.MethodPost,
		Path:      contactPath,
		Body:      toContactWrite(in),
	}, &created)
	if err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, &integration.ExternalSystemError{
			System:    integration.SystemSalesforce,
			Operation: "create_contact",
			Err:       fmt.Errorf("%w: no id returned", integration.ErrInvalidResponse),
		}
	}
	return a.GetCustomer(ctx, created.ID)
}

// UpdateCustomer patches a Contact and reads it back
func (a *Adapter) UpdateCustomer(ctx context.Context, id string, in customer.Input) (*customer.Customer, error) {
	if strings.TrimSpace(id) == "" {
		return nil, shared.NewValidationError("salesforce: contact id is required")
	}
	err := a.client.Do(ctx, httpx.Request{
		Operation: "update_contact",
		Method:    http.MethodPatch,
		Path:      contactPath + "/" + url.PathEscape(id),
		Body:      toContactWrite(in),
	}, nil)
	if err != nil {
		return nil, err
	}
	return a.GetCustomer(ctx, id)
}

// TestConnection describes the Contact object
func (a *Adapter) TestConnection(ctx context.Context) error {
	return a.client.Do(ctx, httpx.Request{
		Operation: "test_connection",
		Method:    http.MethodGet,
		Path:      contactPath + "/describe",
	}, nil)
}

// CheckHealth reports the API reachability
func (a *Adapter) CheckHealth(ctx context.Context) integration.Health {
	started := a.now()
	var h integration.Health
	if err := a.TestConnection(ctx); err != nil {
		h = integration.Unhealthy(integration.SystemSalesforce, err)
	} else {
		h = integration.Healthy(integration.SystemSalesforce, nil)
	}
	h.Latency = a.now().Sub(started)
	return h
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

func (a *Adapter) query(ctx context.Context, operation, soql string) ([]contact, error) {
	var resp queryResponse
	err := a.client.Do(ctx, httpx.Request{
		Operation: operation,
		Method:    http.MethodGet,
		Path:      queryPath,
		Query:     url.Values{"q": {soql}},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Records, nil
}

func selectContacts(where string, limit int) string {
	soql := "SELECT " + strings.Join(contactFields, ", ") + " FROM Contact"
	if where != "" {
		soql += " " + where
	}
	return fmt.Sprintf("%s ORDER BY CreatedDate DESC LIMIT %d", soql, limit)
}
