package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultListenAddr      = ":5000"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	DefaultUpstreamEndpoint = "wss://ws.binaryws.com/websockets/v3"
	DefaultAppID            = 64508
	DefaultPingInterval     = 30 * time.Second
	DefaultPingTimeout      = 90 * time.Second
	DefaultUpstreamWrite    = 5 * time.Second
	DefaultBufferSize       = 256
	DefaultCatalogTimeout   = 15 * time.Second
	DefaultLoginTimeout     = 15 * time.Second

	DefaultSendBufferSize = 128
	DefaultHubWrite       = 10 * time.Second
)

func (c *RelayConfig) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Upstream.Endpoint == "" {
		c.Upstream.Endpoint = DefaultUpstreamEndpoint
	}
	if c.Upstream.AppID == 0 {
		c.Upstream.AppID = DefaultAppID
	}
	if c.Upstream.PingInterval == 0 {
		c.Upstream.PingInterval = DefaultPingInterval
	}
	if c.Upstream.PingTimeout == 0 {
		c.Upstream.PingTimeout = DefaultPingTimeout
	}
	if c.Upstream.WriteTimeout == 0 {
		c.Upstream.WriteTimeout = DefaultUpstreamWrite
	}
	if c.Upstream.BufferSize == 0 {
		c.Upstream.BufferSize = DefaultBufferSize
	}
	if c.Upstream.CatalogTimeout == 0 {
		c.Upstream.CatalogTimeout = DefaultCatalogTimeout
	}
	if c.Upstream.LoginTimeout == 0 {
		c.Upstream.LoginTimeout = DefaultLoginTimeout
	}

	if c.Hub.SendBufferSize == 0 {
		c.Hub.SendBufferSize = DefaultSendBufferSize
	}
	if c.Hub.WriteTimeout == 0 {
		c.Hub.WriteTimeout = DefaultHubWrite
	}
}
