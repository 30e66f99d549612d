// Package config holds the echo server settings and loads overrides from a
// TOML file.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/cyberinferno/go-echoserver/logger"
)

const (
	DefaultName          = "echo"
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 6000
	DefaultReadBufferCap = 64 * 1024
	DefaultLogLevel      = "info"
	DefaultSessionTTL    = 5 * time.Minute
)

// Config holds the settings of one echo server instance.
type Config struct {
	// Name is used as the service field of every log entry.
	Name string
	// Host is the IPv4 address to bind; 0.0.0.0 binds all interfaces.
	Host string
	// Port is the TCP port to listen on.
	Port int
	// ReadBufferCap bounds how many bytes one readable event may deliver,
	// and therefore the largest message echoed in one exchange.
	ReadBufferCap int
	// MaxConnections limits concurrently open connections; 0 means no limit.
	MaxConnections int
	// SocketSendBuffer sets SO_SNDBUF on accepted sockets; 0 keeps the
	// kernel default.
	SocketSendBuffer int
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// SessionTTL is how long closed sessions stay in the stats journal.
	SessionTTL time.Duration
}

// Default returns the built-in configuration: all interfaces, port 6000.
func Default() Config {
	return Config{
		Name:          DefaultName,
		Host:          DefaultHost,
		Port:          DefaultPort,
		ReadBufferCap: DefaultReadBufferCap,
		LogLevel:      DefaultLogLevel,
		SessionTTL:    DefaultSessionTTL,
	}
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ProtoAddr returns the reactor listen address, e.g. tcp4://0.0.0.0:6000.
func (c Config) ProtoAddr() string {
	return "tcp4://" + c.Addr()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("config missing name")
	}
	ip := net.ParseIP(strings.TrimSpace(c.Host))
	if ip == nil || ip.To4() == nil {
		return fmt.Errorf("config host %q is not an IPv4 address", c.Host)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config port %d out of range", c.Port)
	}
	if c.ReadBufferCap <= 0 {
		return fmt.Errorf("config read_buffer_cap must be positive, got %d", c.ReadBufferCap)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("config max_connections must not be negative, got %d", c.MaxConnections)
	}
	if c.SocketSendBuffer < 0 {
		return fmt.Errorf("config socket_send_buffer must not be negative, got %d", c.SocketSendBuffer)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config log_level: %w", err)
	}
	return nil
}

type fileConfig struct {
	Name           string `toml:"name"`
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	ReadBufferCap  int    `toml:"read_buffer_cap"`
	MaxConnections int    `toml:"max_connections"`
	SocketSendBuf  int    `toml:"socket_send_buffer"`
	LogLevel       string `toml:"log_level"`
	SessionTTL     string `toml:"session_ttl"`
}

// Load reads a TOML file and applies the keys it defines on top of Default.
//
// Parameters:
//   - path: Path to the TOML file
//
// Returns:
//   - The merged, validated Config, or an error if the file cannot be
//     decoded or a value is invalid
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config (%s): %w", path, err)
	}

	return apply(Default(), raw, meta)
}

// Parse is Load for TOML held in memory.
func Parse(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	return apply(Default(), raw, meta)
}

func apply(cfg Config, raw fileConfig, meta toml.MetaData) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config has unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("read_buffer_cap") {
		cfg.ReadBufferCap = raw.ReadBufferCap
	}
	if meta.IsDefined("max_connections") {
		cfg.MaxConnections = raw.MaxConnections
	}
	if meta.IsDefined("socket_send_buffer") {
		cfg.SocketSendBuffer = raw.SocketSendBuf
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("session_ttl") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.SessionTTL))
		if err != nil {
			return Config{}, fmt.Errorf("parse session_ttl: %w", err)
		}
		cfg.SessionTTL = d
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
