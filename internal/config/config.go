package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" env:"PORT"`
	} `yaml:"server" envPrefix:"SERVER_"`
	Log struct {
		Level  string `yaml:"level" env:"LEVEL"`
		Format string `yaml:"format" env:"FORMAT"` // text or json
	} `yaml:"log" envPrefix:"LOG_"`
	Redis struct {
		Addr     string `yaml:"addr" env:"ADDR"`
		Password string `yaml:"password" env:"PASSWORD"`
		DB       int    `yaml:"db" env:"DB"`
		TTL      string `yaml:"ttl" env:"TTL"`
	} `yaml:"redis" envPrefix:"REDIS_"`
	Postgres struct {
		URL string `yaml:"url" env:"URL"`
	} `yaml:"postgres" envPrefix:"POSTGRES_"`
	SQLite struct {
		Path string `yaml:"path" env:"PATH"`
	} `yaml:"sqlite" envPrefix:"SQLITE_"`
	Quiz struct {
		TTL     string `yaml:"ttl" env:"TTL"`
		Dir     string `yaml:"dir" env:"DIR"`
		Catalog string `yaml:"catalog" env:"CATALOG"`
	} `yaml:"quiz" envPrefix:"QUIZ_"`
	Game struct {
		SweepInterval    string  `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
		SnapshotInterval string  `yaml:"snapshot_interval" env:"SNAPSHOT_INTERVAL"`
		TimeoutGrace     string  `yaml:"timeout_grace" env:"TIMEOUT_GRACE"`
		PowerPlay        string  `yaml:"power_play" env:"POWER_PLAY"`
		Glitch           string  `yaml:"glitch" env:"GLITCH"`
		StarterInventory int     `yaml:"starter_inventory" env:"STARTER_INVENTORY"`
		InventoryCap     int     `yaml:"inventory_cap" env:"INVENTORY_CAP"`
		LootChance       float64 `yaml:"loot_chance" env:"LOOT_CHANCE"`
	} `yaml:"game" envPrefix:"GAME_"`
	Telemetry struct {
		Endpoint    string  `yaml:"endpoint" env:"ENDPOINT"`
		ServiceName string  `yaml:"service_name" env:"SERVICE_NAME"`
		SampleRatio float64 `yaml:"sample_ratio" env:"SAMPLE_RATIO"`
	} `yaml:"telemetry" envPrefix:"OTEL_"`
}

// EnvPrefix scopes every environment override, e.g. TRIVIA_REDIS_ADDR.
const EnvPrefix = "TRIVIA_"

// Load reads YAML config from path, then applies TRIVIA_* environment overrides.
// A missing file is not an error when path is empty.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ParseEnv overlays TRIVIA_* environment variables onto target. Unset variables keep the
// values already in target.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
