package hubspot

import (
	"strings"
	"time"

	"github.com/coccinelle/backend/internal/domain/customer"
)

// Contact property names
const (
	propEmail          = "email"
	propFirstName      = "firstname"
	propLastName       = "lastname"
	propPhone          = "phone"
	propMobilePhone    = "mobilephone"
	propAddress        = "address"
	propCity           = "city"
	propZip            = "zip"
	propCountry        = "country"
	propLanguage       = "hs_language"
	propLifecycleStage = "lifecyclestage"
	propLeadStatus     = "hs_lead_status"
	propChannel        = "preferred_communication_channel"
	propCreateDate     = "createdate"
	propLastModified   = "lastmodifieddate"
)

// contactProperties are requested on every read
var contactProperties = []string{
	propEmail, propFirstName, propLastName, propPhone, propMobilePhone,
	propAddress, propCity, propZip, propCountry, propLanguage,
	propLifecycleStage, propLeadStatus, propChannel, propCreateDate, propLastModified,
}

// contact is a CRM v3 contact object
type contact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	Archived   bool              `json:"archived"`
}

type contactWrite struct {
	Properties map[string]string `json:"properties"`
}

type searchRequest struct {
	Query      string   `json:"query,omitempty"`
	Properties []string `json:"properties"`
	Limit      int      `json:"limit"`
}

type searchResponse struct {
	Total   int       `json:"total"`
	Results []contact `json:"results"`
}

type listResponse struct {
	Results []contact `json:"results"`
}

// toCustomer maps a contact. Fields HubSpot does not carry keep their
// zero values; FromExternal applies the import defaults.
func toCustomer(c *contact) *customer.Customer {
	p := c.Properties
	phone := p[propPhone]
	if phone == "" {
		phone = p[propMobilePhone]
	}
	tags := []string{}
	if status := p[propLeadStatus]; status != "" {
		tags = append(tags, status)
	}
	channel := customer.Channel(p[propChannel])
	if !channel.IsValid() {
		channel = customer.ChannelEmail
	}
	return &customer.Customer{
		ID:         c.ID,
		ExternalID: c.ID,
		FirstName:  p[propFirstName],
		LastName:   p[propLastName],
		Email:      customer.NormalizeEmail(p[propEmail]),
		Phone:      phone,
		Address: customer.Address{
			Street:     p[propAddress],
			City:       p[propCity],
			PostalCode: p[propZip],
			Country:    p[propCountry],
		},
		PreferredChannel: channel,
		Language:         p[propLanguage],
		Tags:             tags,
		Segment:          SegmentForLifecycleStage(p[propLifecycleStage]),
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

// toProperties maps a customer write. The first tag becomes the lead
// status; HubSpot has no other place for tags.
func toProperties(in customer.Input) map[string]string {
	props := map[string]string{
		propFirstName: in.FirstName,
		propLastName:  in.LastName,
	}
	set := func(key, value string) {
		if value != "" {
			props[key] = value
		}
	}
	set(propEmail, customer.NormalizeEmail(in.Email))
	set(propPhone, in.Phone)
	set(propAddress, in.Address.Street)
	set(propCity, in.Address.City)
	set(propZip, in.Address.PostalCode)
	set(propCountry, in.Address.Country)
	set(propLanguage, in.Language)
	set(propChannel, string(in.PreferredChannel))
	if len(in.Tags) > 0 {
		set(propLeadStatus, in.Tags[0])
	}
	return props
}

// SegmentForLifecycleStage maps a HubSpot lifecycle stage to a segment
func SegmentForLifecycleStage(stage string) string {
	switch strings.ToLower(stage) {
	case "lead", "marketingqualifiedlead":
		return customer.SegmentProspect
	case "salesqualifiedlead":
		return customer.SegmentQualified
	case "opportunity":
		return customer.SegmentActive
	case "customer", "evangelist":
		return customer.SegmentVIP
	default:
		return customer.SegmentStandard
	}
}
