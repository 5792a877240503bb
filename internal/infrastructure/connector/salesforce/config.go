package salesforce

import (
	"fmt"
	"strings"

	"github.com/coccinelle/backend/internal/domain/integration"
)

// DefaultAPIVersion is the REST API version used when none is configured
const DefaultAPIVersion = "v58.0"

// Credential and setting keys read from the integration configuration
const (
	CredentialInstanceURL = "instance_url"
	CredentialAccessToken = "access_token"
	SettingAPIVersion     = "api_version"
)

// Sentinel errors for configuration validation
var (
	ErrMissingInstanceURL = fmt.Errorf("%w: salesforce instance url is required", integration.ErrMissingCredentials)
	ErrMissingAccessToken = fmt.Errorf("%w: salesforce access token is required", integration.ErrMissingCredentials)
)

// Config holds configuration for the Salesforce REST API
type Config struct {
	// InstanceURL is the org's instance, e.g. https://acme.my.salesforce.com
	InstanceURL string
	// AccessToken is an OAuth2 access token
	AccessToken string
	// APIVersion is the REST version segment, e.g. v58.0
	APIVersion string
}

// ConfigFrom reads a Config from a tenant's integration configuration
func ConfigFrom(cfg *integration.IntegrationConfig) *Config {
	version := cfg.Setting(SettingAPIVersion, DefaultAPIVersion)
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	return &Config{
		InstanceURL: strings.TrimRight(cfg.Credential(CredentialInstanceURL), "/"),
		AccessToken: cfg.Credential(CredentialAccessToken),
		APIVersion:  version,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.InstanceURL == "" {
		return ErrMissingInstanceURL
	}
	if c.AccessToken == "" {
		return ErrMissingAccessToken
	}
	return nil
}

// BaseURL returns the versioned REST root
func (c *Config) BaseURL() string {
	return c.InstanceURL + "/services/data/" + c.APIVersion
}
