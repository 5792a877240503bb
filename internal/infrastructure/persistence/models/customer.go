package models

import (
	"time"

	"github.com/coccinelle/backend/internal/domain/customer"
	"github.com/google/uuid"
)

// CustomerModel is the persistence model for the local CRM record
type CustomerModel struct {
	ID               string    `gorm:"type:varchar(64);primaryKey"`
	TenantID         uuid.UUID `gorm:"type:uuid;not null;index:idx_customer_tenant_email,priority:1"`
	ExternalID       string    `gorm:"type:varchar(100)"`
	FirstName        string    `gorm:"type:varchar(100)"`
	LastName         string    `gorm:"type:varchar(100)"`
	Email            string    `gorm:"type:varchar(200);index:idx_customer_tenant_email,priority:2"`
	Phone            string    `gorm:"type:varchar(50)"`
	Street           string    `gorm:"type:varchar(200)"`
	City             string    `gorm:"type:varchar(100)"`
	State            string    `gorm:"type:varchar(100)"`
	PostalCode       string    `gorm:"type:varchar(20)"`
	Country          string    `gorm:"type:varchar(100)"`
	PreferredChannel string    `gorm:"type:varchar(20);not null;default:'email'"`
	Language         string    `gorm:"type:varchar(10)"`
	Tags             string    `gorm:"type:jsonb"`
	Segment          string    `gorm:"type:varchar(50)"`
	Notes            string    `gorm:"type:text"`
	Metadata         string    `gorm:"type:jsonb"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// ToDomain converts the persistence model to a domain Customer
func (m *CustomerModel) ToDomain() *customer.Customer {
	return &customer.Customer{
		ID:         m.ID,
		TenantID:   m.TenantID,
		ExternalID: m.ExternalID,
		FirstName:  m.FirstName,
		LastName:   m.LastName,
		Email:      m.Email,
		Phone:      m.Phone,
		Address: customer.Address{
			Street:     m.Street,
			City:       m.City,
			State:      m.State,
			PostalCode: m.PostalCode,
			Country:    m.Country,
		},
		PreferredChannel: customer.Channel(m.PreferredChannel),
		Language:         m.Language,
		Tags:             decodeStrings(m.Tags),
		Segment:          m.Segment,
		Notes:            m.Notes,
		Metadata:         decodeAnyMap(m.Metadata),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// CustomerModelFromDomain creates a persistence model from a domain Customer
func CustomerModelFromDomain(c *customer.Customer) *CustomerModel {
	channel := string(c.PreferredChannel)
	if channel == "" {
		channel = string(customer.ChannelEmail)
	}
	return &CustomerModel{
		ID:               c.ID,
		TenantID:         c.TenantID,
		ExternalID:       c.ExternalID,
		FirstName:        c.FirstName,
		LastName:         c.LastName,
		Email:            c.Email,
		Phone:            c.Phone,
		Street:           c.Address.Street,
		City:             c.Address.City,
		State:            c.Address.State,
		PostalCode:       c.Address.PostalCode,
		Country:          c.Address.Country,
		PreferredChannel: channel,
		Language:         c.Language,
		Tags:             encodeJSON(nonNil(c.Tags)),
		Segment:          c.Segment,
		Notes:            c.Notes,
		Metadata:         encodeJSON(c.Metadata),
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}
