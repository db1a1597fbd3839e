package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// SourceConfig holds one upstream provider's settings. A source with
// Enabled=false (or a missing required API key) is skipped without error.
type SourceConfig struct {
	Enabled bool
	URL     string
	APIKey  string
	Weight  float64 // static trust, [0,1]
	Timeout time.Duration
}

// Spot is a location prefetched by the cache warmer.
type Spot struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort     string
	RequestTimeout time.Duration
	RateLimitRPS   int
	RateLimitBurst int
	ShutdownTimeout time.Duration

	OpenMeteo  SourceConfig
	Amedas     SourceConfig
	ERA5       SourceConfig
	MSM        SourceConfig
	Satellite  SourceConfig
	Radiosonde SourceConfig

	// OpenMeteoArchiveURL serves windows entirely in the past.
	OpenMeteoArchiveURL string
	// AmedasMaxStationKm bounds the nearest-station search radius.
	AmedasMaxStationKm float64

	AggregateTimeout time.Duration

	CacheBackend   string // "in_memory" or "memcached"
	CacheTTL       time.Duration
	CachePrecision int // decimal places of lat/lon in cache keys

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	MinQualityDefault float64
	MaxWindow         time.Duration

	WarmingInterval time.Duration
	WarmingWindow   time.Duration
	WarmingSpots    []Spot
}

type fileSource struct {
	Enabled *bool   `yaml:"enabled"`
	URL     string  `yaml:"url"`
	Weight  float64 `yaml:"weight"`
	Timeout string  `yaml:"timeout"`
}

type fileConfig struct {
	Server struct {
		Port            string `yaml:"port"`
		RequestTimeout  string `yaml:"request_timeout"`
		RateLimitRPS    int    `yaml:"rate_limit_rps"`
		RateLimitBurst  int    `yaml:"rate_limit_burst"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Sources struct {
		OpenMeteo  fileSource `yaml:"openmeteo"`
		ArchiveURL string     `yaml:"openmeteo_archive_url"`
		Amedas     fileSource `yaml:"amedas"`
		MaxStationKm float64  `yaml:"amedas_max_station_km"`
		ERA5       fileSource `yaml:"era5"`
		MSM        fileSource `yaml:"msm"`
		Satellite  fileSource `yaml:"satellite"`
		Radiosonde fileSource `yaml:"radiosonde"`
	} `yaml:"sources"`

	Fetch struct {
		AggregateTimeout string `yaml:"aggregate_timeout"`
	} `yaml:"fetch"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Precision *int   `yaml:"precision"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Fusion struct {
		MinQuality *float64 `yaml:"min_quality"`
		MaxWindow  string   `yaml:"max_window"`
	} `yaml:"fusion"`

	Warming struct {
		Interval string `yaml:"interval"`
		Window   string `yaml:"window"`
		Spots    []struct {
			Name      string  `yaml:"name"`
			Latitude  float64 `yaml:"latitude"`
			Longitude float64 `yaml:"longitude"`
		} `yaml:"spots"`
	} `yaml:"warming"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev).
// A .env file, when present, is loaded first; env always wins over YAML.
// API keys come only from env: ERA5_API_KEY, AMEDAS_API_KEY, SATELLITE_API_KEY.
func Load() (*Config, error) {
	// Missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.RequestTimeout = parseDuration(fc.Server.RequestTimeout, 45*time.Second)
	cfg.RateLimitRPS = fc.Server.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 60
	}
	cfg.RateLimitBurst = fc.Server.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 120
	}
	cfg.ShutdownTimeout = parseDuration(fc.Server.ShutdownTimeout, 30*time.Second)

	cfg.OpenMeteo = loadSource(fc.Sources.OpenMeteo, "https://api.open-meteo.com/v1/forecast", 0.8, "")
	cfg.OpenMeteoArchiveURL = fc.Sources.ArchiveURL
	if cfg.OpenMeteoArchiveURL == "" {
		cfg.OpenMeteoArchiveURL = "https://archive-api.open-meteo.com/v1/archive"
	}
	cfg.Amedas = loadSource(fc.Sources.Amedas, "https://www.jma.go.jp/bosai/amedas/data/point", 0.95, "AMEDAS_API_KEY")
	cfg.AmedasMaxStationKm = fc.Sources.MaxStationKm
	if cfg.AmedasMaxStationKm <= 0 {
		cfg.AmedasMaxStationKm = 50
	}
	cfg.ERA5 = loadSource(fc.Sources.ERA5, "", 0.9, "ERA5_API_KEY")
	cfg.MSM = loadSource(fc.Sources.MSM, "", 0.9, "")
	cfg.Satellite = loadSource(fc.Sources.Satellite, "", 0.85, "SATELLITE_API_KEY")
	cfg.Radiosonde = loadSource(fc.Sources.Radiosonde, "", 0.98, "")

	cfg.AggregateTimeout = parseDuration(fc.Fetch.AggregateTimeout, 30*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 10*time.Minute)
	cfg.CachePrecision = 2
	if fc.Cache.Precision != nil && *fc.Cache.Precision >= 0 {
		cfg.CachePrecision = *fc.Cache.Precision
	}

	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.MinQualityDefault = 0.5
	if fc.Fusion.MinQuality != nil {
		cfg.MinQualityDefault = *fc.Fusion.MinQuality
	}
	cfg.MaxWindow = parseDuration(fc.Fusion.MaxWindow, 14*24*time.Hour)

	cfg.WarmingInterval = parseDuration(fc.Warming.Interval, 0)
	cfg.WarmingWindow = parseDuration(fc.Warming.Window, 24*time.Hour)
	for _, s := range fc.Warming.Spots {
		cfg.WarmingSpots = append(cfg.WarmingSpots, Spot{
			Name:      s.Name,
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
		})
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSource fills a SourceConfig from YAML with defaults; the API key comes
// from env only. A source needing a key but lacking one stays configured and
// reports itself unavailable at the adapter layer.
func loadSource(fs fileSource, defaultURL string, defaultWeight float64, keyEnv string) SourceConfig {
	sc := SourceConfig{
		Enabled: true,
		URL:     fs.URL,
		Weight:  fs.Weight,
		Timeout: parseDuration(fs.Timeout, 20*time.Second),
	}
	if fs.Enabled != nil {
		sc.Enabled = *fs.Enabled
	}
	if sc.URL == "" {
		sc.URL = defaultURL
	}
	if sc.Weight <= 0 || sc.Weight > 1 {
		sc.Weight = defaultWeight
	}
	if keyEnv != "" {
		sc.APIKey = os.Getenv(keyEnv)
	}
	return sc
}

// parseDuration parses a duration string and returns defaultVal if the string
// is empty, malformed, or non-positive.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.MinQualityDefault < 0 || cfg.MinQualityDefault > 1 {
		return fmt.Errorf("fusion.min_quality must be within [0,1], got %v", cfg.MinQualityDefault)
	}
	if cfg.AggregateTimeout <= 0 {
		return fmt.Errorf("fetch.aggregate_timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.AggregateTimeout {
		cfg.RequestTimeout = cfg.AggregateTimeout + 5*time.Second
	}
	for _, s := range []struct {
		name string
		sc   SourceConfig
	}{
		{"openmeteo", cfg.OpenMeteo},
		{"amedas", cfg.Amedas},
		{"era5", cfg.ERA5},
		{"msm", cfg.MSM},
		{"satellite", cfg.Satellite},
		{"radiosonde", cfg.Radiosonde},
	} {
		if s.sc.Weight <= 0 || s.sc.Weight > 1 {
			return fmt.Errorf("sources.%s.weight must be within (0,1], got %v", s.name, s.sc.Weight)
		}
	}
	return nil
}
