package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *RelayConfig) Validate() error {
	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr is required")
	}

	if c.Upstream.Endpoint == "" {
		return errors.New("upstream.endpoint is required")
	}
	if !strings.HasPrefix(c.Upstream.Endpoint, "ws://") && !strings.HasPrefix(c.Upstream.Endpoint, "wss://") {
		return fmt.Errorf("upstream.endpoint must be a ws:// or wss:// URL, got %q", c.Upstream.Endpoint)
	}
	if c.Upstream.AppID < 1 {
		return errors.New("upstream.app_id must be >= 1")
	}
	if c.Upstream.BufferSize < 1 {
		return errors.New("upstream.buffer_size must be >= 1")
	}
	if c.Upstream.CatalogTimeout <= 0 {
		return errors.New("upstream.catalog_timeout must be positive")
	}
	if c.Upstream.LoginTimeout <= 0 {
		return errors.New("upstream.login_timeout must be positive")
	}

	if c.Hub.SendBufferSize < 1 {
		return errors.New("hub.send_buffer_size must be >= 1")
	}

	return nil
}
