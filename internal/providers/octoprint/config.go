package octoprint

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopfloor-io/shopfloor-core/internal/machine"
	"github.com/shopfloor-io/shopfloor-core/internal/provider"
)

// Config holds the connection settings for one OctoPrint instance,
// extracted from the machine registration's config blob.
type Config struct {
	// BaseURL is the OctoPrint server root, e.g. "http://printer.local".
	BaseURL string

	// APIKey is the OctoPrint application API key, sent as X-Api-Key.
	APIKey string
}

// parseConfig extracts and validates OctoPrint settings from a machine
// registration.
func parseConfig(m machine.Machine) (Config, error) {
	var cfg Config

	baseURL, ok := m.Config["base_url"].(string)
	if !ok || baseURL == "" {
		return cfg, fmt.Errorf("%w: octoprint machine %d missing base_url", provider.ErrInvalidConfig, m.ID)
	}

	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return cfg, fmt.Errorf("%w: octoprint machine %d has malformed base_url %q", provider.ErrInvalidConfig, m.ID, baseURL)
	}

	apiKey, ok := m.Config["api_key"].(string)
	if !ok || apiKey == "" {
		return cfg, fmt.Errorf("%w: octoprint machine %d missing api_key", provider.ErrInvalidConfig, m.ID)
	}

	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	cfg.APIKey = apiKey
	return cfg, nil
}
