// Package config handles configuration loading, validation, and
// persistence for the Colony Relay server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"

	DefaultGamePort      = 8888
	DefaultAPIPort       = 5000
	DefaultIdleTimeoutMS = 5000
)

// Config is the root configuration structure for the relay.
type Config struct {
	mu   sync.RWMutex
	path string

	Relay       RelayData       `json:"relay"`
	Application ApplicationData `json:"application"`
}

// RelayData contains the game-facing listener and room settings.
type RelayData struct {
	// Listener
	BindAddress string `json:"bind_address"`
	GamePort    int    `json:"game_port"`

	// Session timing
	IdleTimeoutMS   int `json:"idle_timeout_ms"`
	GreetingDelayMS int `json:"greeting_delay_ms"`

	// Tick intervals
	LobbyPingIntervalMS  int `json:"lobby_ping_interval_ms"`
	ReapIntervalMS       int `json:"reap_interval_ms"`
	BattlePingIntervalMS int `json:"battle_ping_interval_ms"`
	BattlePingTimeoutMS  int `json:"battle_ping_timeout_ms"`

	// Default map offered to every room
	MapType        string `json:"map_type"`
	MapPlayerCount string `json:"map_player_count"`
	MapFilename    string `json:"map_filename"`
	MapDisplayName string `json:"map_display_name"`
}

// ApplicationData contains the observation-surface configuration.
type ApplicationData struct {
	APIPort int           `json:"api_port"`
	CLI     bool          `json:"cli"`
	History HistoryConfig `json:"history"`
	MQTT    MQTTConfig    `json:"mqtt"`
	Logging LoggingConfig `json:"logging"`
}

// HistoryConfig holds the connection/battle history database settings.
type HistoryConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	ClientID  string `json:"client_id"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Relay: RelayData{
			BindAddress:          "0.0.0.0",
			GamePort:             DefaultGamePort,
			IdleTimeoutMS:        DefaultIdleTimeoutMS,
			GreetingDelayMS:      2000,
			LobbyPingIntervalMS:  300,
			ReapIntervalMS:       10000,
			BattlePingIntervalMS: 33,
			BattlePingTimeoutMS:  5000,
			MapType:              "D",
			MapPlayerCount:       "8",
			MapFilename:          "PLAY01.SCN",
			MapDisplayName:       defaultMapDisplayName,
		},
		Application: ApplicationData{
			APIPort: DefaultAPIPort,
			CLI:     true,
			History: HistoryConfig{
				Enabled: true,
				Path:    "config/history.db",
			},
			MQTT: MQTTConfig{
				Enabled: false,
				Port:    8883,
				UseTLS:  true,
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxBackups: 5,
			},
		},
	}
}

// defaultMapDisplayName is the name shown in the game's map box. The
// original client expects the padding spaces after the newline; they
// position the parenthesized description on the second line.
const defaultMapDisplayName = "Armageddon\n" +
	"                                 " +
	"(8 Player Desert Map )"

// Load reads configuration from a JSON file and applies environment
// overrides. A missing file is replaced with defaults and saved.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	cfg := DefaultConfig()
	cfg.path = configPath

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		log.Info().Str("path", configPath).Msg("config file not found, creating default")
		if saveErr := cfg.Save(); saveErr != nil {
			return nil, fmt.Errorf("failed to save default config: %w", saveErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
		log.Info().Str("path", configPath).Msg("configuration loaded")
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies the environment overrides: PORT and
// IDLE_TIMEOUT_MS as the original deployment used them, plus API_PORT
// and NO_CLI for the monitor API and console. The environment wins
// over the config file.
func (c *Config) applyEnvOverrides() {
	if v, ok := envInt("PORT"); ok {
		c.Relay.GamePort = v
	}
	if v, ok := envInt("IDLE_TIMEOUT_MS"); ok {
		c.Relay.IdleTimeoutMS = v
	}
	if v, ok := envInt("API_PORT"); ok {
		c.Application.APIPort = v
	}
	if os.Getenv("NO_CLI") != "" {
		c.Application.CLI = false
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("var", key).Str("value", v).Msg("ignoring non-numeric environment override")
		return 0, false
	}
	return n, true
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetRelay returns a copy of the relay configuration.
func (c *Config) GetRelay() RelayData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Relay
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}
