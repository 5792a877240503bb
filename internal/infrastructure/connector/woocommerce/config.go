package woocommerce

import (
	"fmt"
	"strings"

	"github.com/coccinelle/backend/internal/domain/integration"
)

// apiPath is the REST v3 root under the store URL
const apiPath = "/wp-json/wc/v3"

// Credential and setting keys read from the integration configuration
const (
	CredentialConsumerKey    = "consumer_key"
	CredentialConsumerSecret = "consumer_secret"
	SettingStoreURL          = "store_url"
	SettingCurrency          = "currency"
)

// Sentinel errors for configuration validation
var (
	ErrMissingStoreURL    = fmt.Errorf("%w: woocommerce store url is required", integration.ErrMissingCredentials)
	ErrMissingConsumerKey = fmt.Errorf("%w: woocommerce consumer key and secret are required", integration.ErrMissingCredentials)
)

// Config holds configuration for the WooCommerce REST API
type Config struct {
	// StoreURL is the WordPress site root, e.g. https://shop.example.fr
	StoreURL       string
	ConsumerKey    string
	ConsumerSecret string
	// Currency is used when an order carries none
	Currency string
}

// ConfigFrom reads a Config from a tenant's integration configuration
func ConfigFrom(cfg *integration.IntegrationConfig) *Config {
	return &Config{
		StoreURL:       strings.TrimRight(cfg.Setting(SettingStoreURL, ""), "/"),
		ConsumerKey:    cfg.Credential(CredentialConsumerKey),
		ConsumerSecret: cfg.Credential(CredentialConsumerSecret),
		Currency:       cfg.Setting(SettingCurrency, "EUR"),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.StoreURL == "" {
		return ErrMissingStoreURL
	}
	if c.ConsumerKey == "" || c.ConsumerSecret == "" {
		return ErrMissingConsumerKey
	}
	return nil
}

// BaseURL returns the REST v3 root
func (c *Config) BaseURL() string {
	return c.StoreURL + apiPath
}
