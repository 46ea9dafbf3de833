// Package config loads sdapctl client settings and the document and schema
// files a room is created from.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/sdapctl/internal/protocol/session"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ClientConfig is the resolved configuration of one sdapctl process.
type ClientConfig struct {
	URL             string
	Username        string
	Room            string
	Create          bool
	ValueFile       string
	SchemaFile      string
	RejectPolicy    string
	HistoryCapacity int
	MetricsAddr     string
	LogLevel        string
	Session         session.Config
}

type fileConfig struct {
	URL                string        `toml:"url"`
	Username           string        `toml:"username"`
	Room               string        `toml:"room"`
	Create             bool          `toml:"create"`
	ValueFile          string        `toml:"value_file"`
	SchemaFile         string        `toml:"schema_file"`
	RejectPolicy       string        `toml:"reject_policy"`
	HistoryCapacity    int           `toml:"history_capacity"`
	MetricsAddr        string        `toml:"metrics_addr"`
	LogLevel           string        `toml:"log_level"`
	ConnectTimeout     string        `toml:"connect_timeout"`
	HandshakeTimeout   string        `toml:"handshake_timeout"`
	WriteTimeout       string        `toml:"write_timeout"`
	PingInterval       string        `toml:"ping_interval"`
	PongTimeout        string        `toml:"pong_timeout"`
	SendQueueSize      int           `toml:"send_queue_size"`
	MaxMessageBytes    int64         `toml:"max_message_bytes"`
	MaxConnectAttempts int           `toml:"max_connect_attempts"`
	SecurityMode       string        `toml:"security_mode"`
	BackoffInitial     string        `toml:"backoff_initial"`
	BackoffMax         string        `toml:"backoff_max"`
	TLS                fileTLSConfig `toml:"tls"`
}

type fileTLSConfig struct {
	CAFile             string `toml:"ca_file"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		URL:          "ws://localhost:8080",
		Username:     "anonymous",
		RejectPolicy: "keep",
		Session:      session.DefaultConfig(),
	}
}

// LoadClientConfig reads path over DefaultClientConfig. Keys missing from
// the file keep their defaults.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("load client config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return ClientConfig{}, fmt.Errorf("load client config: unknown key %q", undecoded[0].String())
	}

	setString := func(key string, value string, dst *string) {
		if meta.IsDefined(key) {
			*dst = strings.TrimSpace(value)
		}
	}
	setString("url", raw.URL, &cfg.URL)
	setString("username", raw.Username, &cfg.Username)
	setString("room", raw.Room, &cfg.Room)
	setString("value_file", raw.ValueFile, &cfg.ValueFile)
	setString("schema_file", raw.SchemaFile, &cfg.SchemaFile)
	setString("reject_policy", raw.RejectPolicy, &cfg.RejectPolicy)
	setString("metrics_addr", raw.MetricsAddr, &cfg.MetricsAddr)
	setString("log_level", raw.LogLevel, &cfg.LogLevel)
	if meta.IsDefined("create") {
		cfg.Create = raw.Create
	}
	if meta.IsDefined("history_capacity") {
		cfg.HistoryCapacity = raw.HistoryCapacity
	}

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.Session.HandshakeTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
		{"ping_interval", raw.PingInterval, &cfg.Session.PingInterval},
		{"pong_timeout", raw.PongTimeout, &cfg.Session.PongTimeout},
		{"backoff_initial", raw.BackoffInitial, &cfg.Session.Backoff.InitialDelay},
		{"backoff_max", raw.BackoffMax, &cfg.Session.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.value))
		if err != nil {
			return ClientConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	if meta.IsDefined("send_queue_size") {
		cfg.Session.SendQueueSize = raw.SendQueueSize
	}
	if meta.IsDefined("max_message_bytes") {
		cfg.Session.MaxMessageBytes = raw.MaxMessageBytes
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.Session.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("security_mode") {
		cfg.Session.SecurityMode = session.NormalizeSecurityMode(session.SecurityMode(raw.SecurityMode))
	}
	if meta.IsDefined("tls") {
		cfg.Session.TLS = session.TLSConfig{
			CAFile:             strings.TrimSpace(raw.TLS.CAFile),
			CertFile:           strings.TrimSpace(raw.TLS.CertFile),
			KeyFile:            strings.TrimSpace(raw.TLS.KeyFile),
			ServerName:         strings.TrimSpace(raw.TLS.ServerName),
			InsecureSkipVerify: raw.TLS.InsecureSkipVerify,
		}
	}

	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return fmt.Errorf("client config missing url")
	}
	if _, err := cfg.Session.WithDefaults().ValidateEndpoint(cfg.URL); err != nil {
		return fmt.Errorf("client config url: %w", err)
	}
	if cfg.HistoryCapacity < 0 {
		return fmt.Errorf("client config history_capacity must not be negative")
	}
	if _, err := cfg.EngineConfig(); err != nil {
		return fmt.Errorf("client config: %w", err)
	}
	return nil
}

// LoadDocumentFile reads an initial room value. Comments and trailing commas
// are accepted.
func LoadDocumentFile(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("document load failed (%s): %w", path, err)
	}
	var out any
	if err := json.Unmarshal(jsonc.ToJSON(data), &out); err != nil {
		return nil, fmt.Errorf("document parse failed (%s): %w", path, err)
	}
	return out, nil
}

// LoadSchemaFile reads a JSON schema written as YAML or JSON. The result uses
// the same value shapes as a decoded JSON document.
func LoadSchemaFile(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema load failed (%s): %w", path, err)
	}
	var out any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("schema parse failed (%s): %w", path, err)
	}
	if out == nil {
		return nil, fmt.Errorf("schema parse failed (%s): empty document", path)
	}
	return normalizeYAML(out), nil
}
