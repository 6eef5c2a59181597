// Package config loads the logcrypt configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	LogLevel    string           `yaml:"log_level" env:"LOGCRYPT_LOG_LEVEL"`
	MetricsAddr string           `yaml:"metrics_addr" env:"LOGCRYPT_METRICS_ADDR"` // if set, serve /metrics and /healthz here
	Encryption  EncryptionConfig `yaml:"encryption"`
	Reader      ReaderConfig     `yaml:"reader"`
	Audit       AuditConfig      `yaml:"audit"`
}

// EncryptionConfig holds cipher selection and key sourcing. Exactly one of
// key_hex, key_file, or passphrase must be provided.
type EncryptionConfig struct {
	Algorithm  string       `yaml:"algorithm" env:"LOGCRYPT_ALGORITHM"`
	Mode       string       `yaml:"mode" env:"LOGCRYPT_MODE"`
	KeyHex     string       `yaml:"key_hex" env:"LOGCRYPT_KEY_HEX"`
	KeyFile    string       `yaml:"key_file" env:"LOGCRYPT_KEY_FILE"`
	Passphrase string       `yaml:"passphrase" env:"LOGCRYPT_PASSPHRASE"`
	PBKDF2     PBKDF2Config `yaml:"pbkdf2"`
}

// PBKDF2Config parameterizes passphrase-based key derivation.
type PBKDF2Config struct {
	Salt       string `yaml:"salt" env:"LOGCRYPT_PBKDF2_SALT"`
	Iterations int    `yaml:"iterations" env:"LOGCRYPT_PBKDF2_ITERATIONS"`
}

// ReaderConfig holds decrypt-side settings.
type ReaderConfig struct {
	// PollInterval is the wait granularity while a reader waits for the
	// side file to be created by the writer.
	PollInterval time.Duration `yaml:"poll_interval" env:"LOGCRYPT_POLL_INTERVAL"`
	// WaitTimeout bounds the wait for side-file creation. Zero means wait
	// forever, matching the legacy behavior.
	WaitTimeout time.Duration `yaml:"wait_timeout" env:"LOGCRYPT_WAIT_TIMEOUT"`
}

// AuditConfig holds audit trail configuration.
type AuditConfig struct {
	Enabled   bool `yaml:"enabled" env:"LOGCRYPT_AUDIT_ENABLED"`
	MaxEvents int  `yaml:"max_events" env:"LOGCRYPT_AUDIT_MAX_EVENTS"`
}

// Load loads configuration from a file and environment variables.
func Load(path string) (*Config, error) {
	config := &Config{
		LogLevel: "info",
		Encryption: EncryptionConfig{
			Algorithm: "aes128",
			Mode:      "cbc",
		},
		Reader: ReaderConfig{
			PollInterval: 10 * time.Millisecond,
		},
		Audit: AuditConfig{
			Enabled:   false,
			MaxEvents: 10000,
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	loadFromEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromEnv loads configuration values from environment variables.
func loadFromEnv(config *Config) {
	if v := os.Getenv("LOGCRYPT_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv("LOGCRYPT_METRICS_ADDR"); v != "" {
		config.MetricsAddr = v
	}
	if v := os.Getenv("LOGCRYPT_ALGORITHM"); v != "" {
		config.Encryption.Algorithm = v
	}
	if v := os.Getenv("LOGCRYPT_MODE"); v != "" {
		config.Encryption.Mode = v
	}
	if v := os.Getenv("LOGCRYPT_KEY_HEX"); v != "" {
		config.Encryption.KeyHex = v
	}
	if v := os.Getenv("LOGCRYPT_KEY_FILE"); v != "" {
		config.Encryption.KeyFile = v
	}
	if v := os.Getenv("LOGCRYPT_PASSPHRASE"); v != "" {
		config.Encryption.Passphrase = v
	}
	if v := os.Getenv("LOGCRYPT_PBKDF2_SALT"); v != "" {
		config.Encryption.PBKDF2.Salt = v
	}
	if v := os.Getenv("LOGCRYPT_PBKDF2_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Encryption.PBKDF2.Iterations = n
		}
	}
	if v := os.Getenv("LOGCRYPT_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Reader.PollInterval = d
		}
	}
	if v := os.Getenv("LOGCRYPT_WAIT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Reader.WaitTimeout = d
		}
	}
	if v := os.Getenv("LOGCRYPT_AUDIT_ENABLED"); v != "" {
		config.Audit.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("LOGCRYPT_AUDIT_MAX_EVENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Audit.MaxEvents = n
		}
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.LogLevel != "" {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[c.LogLevel] {
			return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", c.LogLevel)
		}
	}

	validAlgorithms := map[string]bool{
		"aes128": true,
		"aes192": true,
		"aes256": true,
	}
	if !validAlgorithms[c.Encryption.Algorithm] {
		return fmt.Errorf("invalid encryption.algorithm: %s", c.Encryption.Algorithm)
	}

	validModes := map[string]bool{
		"cbc": true,
		"ecb": true,
		"cfb": true,
		"ofb": true,
		"ctr": true,
	}
	if !validModes[c.Encryption.Mode] {
		return fmt.Errorf("invalid encryption.mode: %s", c.Encryption.Mode)
	}

	sources := 0
	if c.Encryption.KeyHex != "" {
		sources++
	}
	if c.Encryption.KeyFile != "" {
		sources++
	}
	if c.Encryption.Passphrase != "" {
		sources++
	}
	if sources == 0 {
		return fmt.Errorf("one of encryption.key_hex, encryption.key_file, or encryption.passphrase is required")
	}
	if sources > 1 {
		return fmt.Errorf("encryption.key_hex, encryption.key_file, and encryption.passphrase are mutually exclusive")
	}

	if c.Encryption.Passphrase != "" && c.Encryption.PBKDF2.Salt == "" {
		return fmt.Errorf("encryption.pbkdf2.salt is required when using a passphrase")
	}

	if c.Reader.PollInterval < 0 {
		return fmt.Errorf("reader.poll_interval must not be negative")
	}

	return nil
}
