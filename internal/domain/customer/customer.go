package customer

import (
	"strings"
	"time"

	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Channel is the customer's preferred contact channel
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelPhone    Channel = "phone"
)

// IsValid reports whether c is a known channel
func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelPhone:
		return true
	}
	return false
}

// Segments used by the CRM adapters
const (
	SegmentProspect  = "prospect"
	SegmentQualified = "qualified"
	SegmentActive    = "active"
	SegmentVIP       = "vip"
	SegmentStandard  = "standard"
)

// ImportedFromExternal is stored in metadata["importedFrom"] on pulled records
const ImportedFromExternal = "external-crm"

// Address is a postal address
type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// IsZero reports whether no field is set
func (a Address) IsZero() bool {
	return a == Address{}
}

// Customer is a CRM contact as seen by this service, whichever system
// holds it. ID is the identifier inside the owning system.
type Customer struct {
	ID               string         `json:"id"`
	TenantID         uuid.UUID      `json:"tenant_id"`
	ExternalID       string         `json:"external_id,omitempty"`
	FirstName        string         `json:"first_name"`
	LastName         string         `json:"last_name"`
	Email            string         `json:"email,omitempty"`
	Phone            string         `json:"phone,omitempty"`
	Address          Address        `json:"address"`
	PreferredChannel Channel        `json:"preferred_channel,omitempty"`
	Language         string         `json:"language,omitempty"`
	Tags             []string       `json:"tags"`
	Segment          string         `json:"segment,omitempty"`
	Notes            string         `json:"notes,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// FullName joins first and last name
func (c *Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Input carries the writable fields of a customer for create and update
// calls against any system.
type Input struct {
	FirstName        string         `json:"first_name" validate:"max=100"`
	LastName         string         `json:"last_name" validate:"max=100"`
	Email            string         `json:"email,omitempty" validate:"omitempty,email"`
	Phone            string         `json:"phone,omitempty" validate:"max=50"`
	Address          Address        `json:"address"`
	PreferredChannel Channel        `json:"preferred_channel,omitempty" validate:"omitempty,oneof=email sms whatsapp phone"`
	Language         string         `json:"language,omitempty"`
	Tags             []string       `json:"tags"`
	Segment          string         `json:"segment,omitempty"`
	Notes            string         `json:"notes,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// New creates a local customer from input
func New(tenantID uuid.UUID, in Input) (*Customer, error) {
	if strings.TrimSpace(in.Email) == "" && strings.TrimSpace(in.Phone) == "" {
		return nil, ErrContactRequired
	}
	now := time.Now()
	c := &Customer{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		CreatedAt: now,
	}
	c.Apply(in, now)
	return c, nil
}

// Apply overwrites c's writable fields with in
func (c *Customer) Apply(in Input, now time.Time) {
	c.FirstName = in.FirstName
	c.LastName = in.LastName
	c.Email = NormalizeEmail(in.Email)
	c.Phone = strings.TrimSpace(in.Phone)
	c.Address = in.Address
	c.PreferredChannel = in.PreferredChannel
	c.Language = in.Language
	c.Tags = append([]string{}, in.Tags...)
	c.Segment = in.Segment
	c.Notes = in.Notes
	c.Metadata = in.Metadata
	c.UpdatedAt = now
}

// NormalizeEmail lowercases and trims an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ToExternal builds the push payload for a local customer
func ToExternal(c *Customer) Input {
	return Input{
		FirstName:        c.FirstName,
		LastName:         c.LastName,
		Email:            c.Email,
		Phone:            c.Phone,
		Address:          c.Address,
		PreferredChannel: c.PreferredChannel,
		Language:         c.Language,
		Tags:             append([]string{}, c.Tags...),
		Segment:          c.Segment,
		Notes:            c.Notes,
		Metadata:         c.Metadata,
	}
}

// FromExternal builds the local write for a record pulled from an
// external CRM. Fields the platform does not carry take defaults.
func FromExternal(ext *Customer) Input {
	in := Input{
		FirstName:        ext.FirstName,
		LastName:         ext.LastName,
		Email:            ext.Email,
		Phone:            ext.Phone,
		Address:          ext.Address,
		PreferredChannel: ext.PreferredChannel,
		Language:         ext.Language,
		Tags:             append([]string{}, ext.Tags...),
		Segment:          ext.Segment,
		Notes:            ext.Notes,
		Metadata:         make(map[string]any, len(ext.Metadata)+1),
	}
	if in.Segment == "" {
		in.Segment = SegmentProspect
	}
	if !in.PreferredChannel.IsValid() {
		in.PreferredChannel = ChannelEmail
	}
	for k, v := range ext.Metadata {
		in.Metadata[k] = v
	}
	in.Metadata["importedFrom"] = ImportedFromExternal
	return in
}

var (
	ErrCustomerNotFound = shared.NewDomainError(shared.CodeNotFound, "customer: not found")
	ErrContactRequired  = shared.NewDomainError(shared.CodeValidation, "customer: email or phone is required")
	ErrDuplicateEmail   = shared.NewDomainError(shared.CodeAlreadyExists, "customer: email already in use")
)
