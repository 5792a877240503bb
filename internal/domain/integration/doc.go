// Package integration contains the Integration bounded context.
// It defines how a tenant's customers, catalog and orders are reached,
// whichever system holds them.
//
// Key concepts:
//   - SystemType: the platforms a tenant can plug in (mock, native, HubSpot, Salesforce, WooCommerce...)
//   - CustomerSystem, InventorySystem, OrderSystem: capability ports
//   - Connector: one platform instance exposing the capabilities it supports
//   - IntegrationConfig: a tenant's credentials and settings for one platform
//   - SyncMapping: the durable link between a local record and its external twin
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in infrastructure/connector
package integration
