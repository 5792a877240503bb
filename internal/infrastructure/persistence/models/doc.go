// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
// - base.go: Base persistence models (BaseModel, TenantModel) and JSON column helpers
// - inventory.go: products, product_variants, reservations
// - customer.go: customers
// - integration.go: crm_integrations, crm_sync_mappings
package models
