package hubspot

import (
	"fmt"

	"github.com/coccinelle/backend/internal/domain/integration"
)

// DefaultBaseURL is the HubSpot API endpoint
const DefaultBaseURL = "https://api.hubapi.com"

// Credential and setting keys read from the integration configuration
const (
	CredentialAccessToken = "access_token"
	CredentialAPIKey      = "api_key"
	SettingAPIURL         = "api_url"
)

// ErrMissingAccessToken is returned when neither token nor key is configured
var ErrMissingAccessToken = fmt.Errorf("%w: hubspot access token or api key is required", integration.ErrMissingCredentials)

// Config holds configuration for the HubSpot CRM v3 API
type Config struct {
	// AccessToken is a private app or OAuth token
	AccessToken string
	// BaseURL is the API base URL
	BaseURL string
}

// ConfigFrom reads a Config from a tenant's integration configuration.
// A legacy api_key is accepted when no access token is set.
func ConfigFrom(cfg *integration.IntegrationConfig) *Config {
	token := cfg.Credential(CredentialAccessToken)
	if token == "" {
		token = cfg.Credential(CredentialAPIKey)
	}
	return &Config{
		AccessToken: token,
		BaseURL:     cfg.Setting(SettingAPIURL, DefaultBaseURL),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.AccessToken == "" {
		return ErrMissingAccessToken
	}
	return nil
}
