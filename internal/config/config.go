package config

import "time"

// RelayConfig is the root configuration for the relay process.
type RelayConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Hub      HubConfig      `yaml:"hub"`
}

// ServerConfig configures the downstream HTTP/WebSocket listener.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UpstreamConfig configures sessions to the Deriv API.
type UpstreamConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	AppID          int           `yaml:"app_id"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PingTimeout    time.Duration `yaml:"ping_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	BufferSize     int           `yaml:"buffer_size"`
	CatalogTimeout time.Duration `yaml:"catalog_timeout"`
	LoginTimeout   time.Duration `yaml:"login_timeout"`
}

// HubConfig configures the downstream broadcast hub.
type HubConfig struct {
	SendBufferSize int           `yaml:"send_buffer_size"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// Default returns a configuration with every default applied.
func Default() *RelayConfig {
	cfg := &RelayConfig{}
	cfg.applyDefaults()
	return cfg
}
