package salesforce

import (
	"strings"
	"time"

	"github.com/coccinelle/backend/internal/domain/customer"
)

// contactFields is the SOQL select list for Contact reads
var contactFields = []string{
	"Id", "FirstName", "LastName", "Email", "Phone", "MobilePhone",
	"MailingStreet", "MailingCity", "MailingState", "MailingPostalCode", "MailingCountry",
	"LeadSource", "Description", "CreatedDate", "LastModifiedDate",
	"Preferred_Channel__c", "Customer_Segment__c",
}

// Salesforce requires a last name on every Contact
const placeholderLastName = "[not provided]"

// dateLayout is the format of Salesforce datetime fields
const dateLayout = "2006-01-02T15:04:05.000-0700"

// contact is a Contact sObject
type contact struct {
	ID                string `json:"Id"`
	FirstName         string `json:"FirstName"`
	LastName          string `json:"LastName"`
	Email             string `json:"Email"`
	Phone             string `json:"Phone"`
	MobilePhone       string `json:"MobilePhone"`
	MailingStreet     string `json:"MailingStreet"`
	MailingCity       string `json:"MailingCity"`
	MailingState      string `json:"MailingState"`
	MailingPostalCode string `json:"MailingPostalCode"`
	MailingCountry    string `json:"MailingCountry"`
	LeadSource        string `json:"LeadSource"`
	Description       string `json:"Description"`
	CreatedDate       string `json:"CreatedDate"`
	LastModifiedDate  string `json:"LastModifiedDate"`
	PreferredChannel  string `json:"Preferred_Channel__c"`
	Segment           string `json:"Customer_Segment__c"`
}

// contactWrite is the body of Contact create and update. Empty optional
// fields are omitted so an update never blanks a value it does not carry.
type contactWrite struct {
	FirstName         string `json:"FirstName,omitempty"`
	LastName          string `json:"LastName"`
	Email             string `json:"Email,omitempty"`
	Phone             string `json:"Phone,omitempty"`
	MailingStreet     string `json:"MailingStreet,omitempty"`
	MailingCity       string `json:"MailingCity,omitempty"`
	MailingState      string `json:"MailingState,omitempty"`
	MailingPostalCode string `json:"MailingPostalCode,omitempty"`
	MailingCountry    string `json:"MailingCountry,omitempty"`
	LeadSource        string `json:"LeadSource,omitempty"`
	Description       string `json:"Description,omitempty"`
	PreferredChannel  string `json:"Preferred_Channel__c,omitempty"`
	Segment           string `json:"Customer_Segment__c,omitempty"`
}

type createResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

type queryResponse struct {
	TotalSize int       `json:"totalSize"`
	Done      bool      `json:"done"`
	Records   []contact `json:"records"`
}

func toCustomer(c *contact) *customer.Customer {
	phone := c.Phone
	if phone == "" {
		phone = c.MobilePhone
	}
	channel := customer.Channel(strings.ToLower(c.PreferredChannel))
	if !channel.IsValid() {
		channel = customer.ChannelEmail
	}
	segment := c.Segment
	if segment == "" {
		segment = customer.SegmentStandard
	}
	tags := []string{}
	if c.LeadSource != "" {
		tags = append(tags, c.LeadSource)
	}
	lastName := c.LastName
	if lastName == placeholderLastName {
		lastName = ""
	}
	return &customer.Customer{
		ID:         c.ID,
		ExternalID: c.ID,
		FirstName:  c.FirstName,
		LastName:   lastName,
		Email:      customer.NormalizeEmail(c.Email),
		Phone:      phone,
		Address: customer.Address{
			Street:     c.MailingStreet,
			City:       c.MailingCity,
			State:      c.MailingState,
			PostalCode: c.MailingPostalCode,
			Country:    c.MailingCountry,
		},
		PreferredChannel: channel,
		Tags:             tags,
		Segment:          segment,
		Notes:            c.Description,
		CreatedAt:        parseDate(c.CreatedDate),
		UpdatedAt:        parseDate(c.LastModifiedDate),
	}
}

func toContactWrite(in customer.Input) contactWrite {
	w := contactWrite{
		FirstName:         in.FirstName,
		LastName:          in.LastName,
		Email:             customer.NormalizeEmail(in.Email),
		Phone:             in.Phone,
		MailingStreet:     in.Address.Street,
		MailingCity:       in.Address.City,
		MailingState:      in.Address.State,
		MailingPostalCode: in.Address.PostalCode,
		MailingCountry:    in.Address.Country,
		Description:       in.Notes,
		PreferredChannel:  string(in.PreferredChannel),
		Segment:           in.Segment,
	}
	if w.LastName == "" {
		w.LastName = placeholderLastName
	}
	if len(in.Tags) > 0 {
		w.LeadSource = in.Tags[0]
	}
	return w
}

func parseDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}

// soqlString quotes a value as a SOQL string literal
func soqlString(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	return "'" + r.Replace(value) + "'"
}

// soqlLike quotes a value as a contains pattern, escaping the wildcards
func soqlLike(value string) string {
	quoted := soqlString(value)
	inner := strings.NewReplacer(`%`, `\%`, `_`, `\_`).Replace(quoted[1 : len(quoted)-1])
	return "'%" + inner + "%'"
}
