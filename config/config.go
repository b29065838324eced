// Package config loads client configuration and credentials.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Licensing modes.
const (
	LicensingAuto   = "auto"
	LicensingManual = "manual"
)

// Environment variables consulted when no credentials file exists.
const (
	EnvUsername = "OTII_USERNAME"
	EnvPassword = "OTII_PASSWORD"
)

// Config holds the settings for one client connection.
type Config struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	LogLevel       string        `yaml:"log_level"`

	// Licensing is "auto" to log in and reserve wanted licenses on connect,
	// or "manual" to leave license handling to the caller.
	Licensing   string   `yaml:"licensing"`
	Credentials string   `yaml:"credentials"`
	Licenses    []string `yaml:"licenses"`

	// RateLimit caps outgoing commands per second; zero disables the limiter.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	Registry RegistryConfig `yaml:"registry"`
}

// RegistryConfig selects the etcd cluster used for server discovery.
// Leave Endpoints empty to connect directly to Host:Port.
type RegistryConfig struct {
	Endpoints []string `yaml:"endpoints"`
	Farm      string   `yaml:"farm"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Host:           "127.0.0.1",
		Port:           1905,
		ConnectTimeout: 10 * time.Second,
		Licensing:      LicensingAuto,
		Credentials:    "./credentials.json",
		Licenses:       []string{"Automation"},
	}
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Address returns the host:port dial target.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Credentials authenticate a user for automatic login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoadCredentials reads credentials from the JSON file at path, falling back
// to the OTII_USERNAME and OTII_PASSWORD environment variables when the file
// does not exist. It reports false when neither source is usable.
func LoadCredentials(path string) (Credentials, bool) {
	if b, err := os.ReadFile(path); err == nil {
		var creds Credentials
		if err := json.Unmarshal(b, &creds); err != nil {
			return Credentials{}, false
		}
		return creds, creds.Username != ""
	}
	username, okU := os.LookupEnv(EnvUsername)
	password, okP := os.LookupEnv(EnvPassword)
	if !okU || !okP {
		return Credentials{}, false
	}
	return Credentials{Username: username, Password: password}, true
}
