package daemon

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/htttp-net/htttp/internal/domain"
)

// Config is the on-disk TOML shape for one peer process.
type Config struct {
	Player    PlayerConfig    `toml:"player"`
	API       APIConfig       `toml:"api"`
	Heartbeat HeartbeatConfig `toml:"heartbeat"`
}

// PlayerConfig identifies this peer and the game it joins.
type PlayerConfig struct {
	PlayerID string `toml:"player_id"`
	Exchange string `toml:"exchange"`
	Spectate bool   `toml:"spectate"`
}

// APIConfig controls the debug/introspection HTTP surface.
type APIConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	EnableMetrics bool   `toml:"enable_metrics"`
}

// HeartbeatConfig overrides the wire protocol's default timing constants.
type HeartbeatConfig struct {
	FrequencyMS int `toml:"frequency_ms"`
	LifetimeMS  int `toml:"lifetime_ms"`
}

// DefaultConfig returns the out-of-box settings for a single local peer.
func DefaultConfig() Config {
	return Config{
		Player: PlayerConfig{
			Exchange: "default",
		},
		API: APIConfig{
			Host:          "127.0.0.1",
			Port:          8780,
			EnableMetrics: true,
		},
		Heartbeat: HeartbeatConfig{
			FrequencyMS: int(domain.HeartbeatFrequency / time.Millisecond),
			LifetimeMS:  int(domain.HeartbeatLifetime / time.Millisecond),
		},
	}
}

// LoadConfig reads and decodes a TOML config file, filling any field the
// file omits with the corresponding DefaultConfig value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

func (c HeartbeatConfig) frequency() time.Duration {
	return time.Duration(c.FrequencyMS) * time.Millisecond
}

func (c HeartbeatConfig) lifetime() time.Duration {
	return time.Duration(c.LifetimeMS) * time.Millisecond
}
