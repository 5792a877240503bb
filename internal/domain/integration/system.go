package integration

import "time"

// ---------------------------------------------------------------------------
// SystemType
// ---------------------------------------------------------------------------

// SystemType identifies an external or built-in system
type SystemType string

const (
	SystemMock        SystemType = "mock"
	SystemNative      SystemType = "native"
	SystemHubSpot     SystemType = "hubspot"
	SystemSalesforce  SystemType = "salesforce"
	SystemWooCommerce SystemType = "woocommerce"
	SystemShopify     SystemType = "shopify"
	SystemPrestaShop  SystemType = "prestashop"
	SystemMagento     SystemType = "magento"
	SystemCustom      SystemType = "custom"
)

// AllSystemTypes lists every known system
var AllSystemTypes = []SystemType{
	SystemMock, SystemNative, SystemHubSpot, SystemSalesforce,
	SystemWooCommerce, SystemShopify, SystemPrestaShop, SystemMagento, SystemCustom,
}

// IsKnown returns true if the system type is recognized
func (s SystemType) IsKnown() bool {
	for _, known := range AllSystemTypes {
		if s == known {
			return true
		}
	}
	return false
}

// IsImplemented returns true if a connector exists for the system
func (s SystemType) IsImplemented() bool {
	switch s {
	case SystemMock, SystemNative, SystemHubSpot, SystemSalesforce, SystemWooCommerce:
		return true
	default:
		return false
	}
}

// IsExternalCRM reports whether the system is a third-party CRM that
// customers can be synchronized with
func (s SystemType) IsExternalCRM() bool {
	return s == SystemHubSpot || s == SystemSalesforce
}

// String returns the string representation of SystemType
func (s SystemType) String() string {
	return string(s)
}

// DisplayName returns a human-readable name for the system
func (s SystemType) DisplayName() string {
	switch s {
	case SystemMock:
		return "Mock"
	case SystemNative:
		return "Coccinelle CRM"
	case SystemHubSpot:
		return "HubSpot"
	case SystemSalesforce:
		return "Salesforce"
	case SystemWooCommerce:
		return "WooCommerce"
	case SystemShopify:
		return "Shopify"
	case SystemPrestaShop:
		return "PrestaShop"
	case SystemMagento:
		return "Magento"
	default:
		return string(s)
	}
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

// HealthStatus is the connection state of an integration
type HealthStatus string

const (
	HealthConnected    HealthStatus = "connected"
	HealthDisconnected HealthStatus = "disconnected"
	HealthError        HealthStatus = "error"
	HealthPending      HealthStatus = "pending"
)

// Health is the result of a health check
type Health struct {
	System    SystemType     `json:"system"`
	Status    HealthStatus   `json:"status"`
	Message   string         `json:"message,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
	Latency   time.Duration  `json:"latency_ns,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Healthy builds a connected Health
func Healthy(system SystemType, details map[string]any) Health {
	return Health{System: system, Status: HealthConnected, CheckedAt: time.Now(), Details: details}
}

// Unhealthy builds an error Health from err
func Unhealthy(system SystemType, err error) Health {
	return Health{System: system, Status: HealthError, Message: err.Error(), CheckedAt: time.Now()}
}
