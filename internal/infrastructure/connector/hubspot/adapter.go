package hubspot

import (
	"context"
	"errors"
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
	contactsPath       = "/crm/v3/objects/contacts"
	defaultSearchLimit = 100
	// HubSpot rejects search pages above this size
	maxSearchLimit = 200
)

// Adapter implements integration.CustomerSystem for HubSpot contacts
type Adapter struct {
	client *httpx.Client
	now    func() time.Time
}

// Compile-time interface check
var _ integration.CustomerSystem = (*Adapter)(nil)

// NewAdapter creates a HubSpot adapter. base carries timeouts, retries
// and rate limits; System, BaseURL and Authorize are set from cfg.
func NewAdapter(cfg *Config, base httpx.Config, opts ...httpx.Option) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base.System = integration.SystemHubSpot
	base.BaseURL = cfg.BaseURL
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
		return integration.NewConnector(integration.SystemHubSpot, adapter, integration.Capabilities{
			Customers: adapter,
		}), nil
	}
}

// GetCustomer retrieves a contact by HubSpot ID
func (a *Adapter) GetCustomer(ctx context.Context, id string) (*customer.Customer, error) {
	if strings.TrimSpace(id) == "" {
		return nil, shared.NewValidationError("hubspot: contact id is required")
	}
	var c contact
	err := a.client.Do(ctx, httpx.Request{
		Operation: "get_contact",
		Method:    http.MethodGet,
		Path:      contactsPath + "/" + url.PathEscape(id),
		Query:     propertiesQuery(),
	}, &c)
	if err != nil {
		return nil, err
	}
	return toCustomer(&c), nil
}

// GetCustomerByEmail looks a contact up by its email property
func (a *Adapter) GetCustomerByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	email = customer.NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	query := propertiesQuery()
	query.Set("idProperty", "email")
	var c contact
	err := a.client.Do(ctx, httpx.Request{
		Operation: "get_contact_by_email",
		Method:    http.MethodGet,
		Path:      contactsPath + "/" + url.PathEscape(email),
		Query:     query,
	}, &c)
	if errors.Is(err, integration.ErrExternalNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toCustomer(&c), nil
}

// SearchCustomers runs a full-text contact search
func (a *Adapter) SearchCustomers(ctx context.Context, query string, limit int) ([]customer.Customer, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	var resp searchResponse
	err := a.client.Do(ctx, httpx.Request{
		Operation: "search_contacts",
		Method:    http.MethodPost,
		Path:      contactsPath + "/search",
		Body: searchRequest{
			Query:      strings.TrimSpace(query),
			Properties: contactProperties,
			Limit:      limit,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	customers := make([]customer.Customer, 0, len(resp.Results))
	for i := range resp.Results {
		customers = append(customers, *toCustomer(&resp.Results[i]))
	}
	return customers, nil
}

// CreateCustomer creates a contact. An address already used by another
// contact returns customer.ErrDuplicateEmail.
func (a *Adapter) CreateCustomer(ctx context.Context, in customer.Input) (*customer.Customer, error) {
	if in.Email != "" {
		existing, err := a.GetCustomerByEmail(ctx, in.Email)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: hubspot contact %s", customer.ErrDuplicateEmail, existing.ID)
		}
	}
	var c contact
	err := a.client.Do(ctx, httpx.Request{
		Operation: "create_contact",
		Method:    http.MethodPost,
		Path:      contactsPath,
		Body:      contactWrite{Properties: toProperties(in)},
	}, &c)
	if err != nil {
		return nil, err
	}
	return toCustomer(&c), nil
}

// UpdateCustomer patches a contact
func (a *Adapter) UpdateCustomer(ctx context.Context, id string, in customer.Input) (*customer.Customer, error) {
	if strings.TrimSpace(id) == "" {
		return nil, shared.NewValidationError("hubspot: contact id is required")
	}
	var c contact
	err := a.client.Do(ctx, httpx.Request{
		Operation: "update_contact",
		Method:    http.MethodPatch,
		Path:      contactsPath + "/" + url.PathEscape(id),
		Body:      contactWrite{Properties: toProperties(in)},
	}, &c)
	if err != nil {
		return nil, err
	}
	return toCustomer(&c), nil
}

// TestConnection lists a single contact
func (a *Adapter) TestConnection(ctx context.Context) error {
	return a.client.Do(ctx, httpx.Request{
		Operation: "test_connection",
		Method:    http.MethodGet,
		Path:      contactsPath,
		Query:     url.Values{"limit": {"1"}},
	}, &listResponse{})
}

// CheckHealth reports the API reachability
func (a *Adapter) CheckHealth(ctx context.Context) integration.Health {
	started := a.now()
	if err := a.TestConnection(ctx); err != nil {
		h := integration.Unhealthy(integration.SystemHubSpot, err)
		h.Latency = a.now().Sub(started)
		return h
	}
	h := integration.Healthy(integration.SystemHubSpot, map[string]any{"api": "crm/v3"})
	h.Latency = a.now().Sub(started)
	return h
}

func propertiesQuery() url.Values {
	return url.Values{"properties": {strings.Join(contactProperties, ",")}}
}
