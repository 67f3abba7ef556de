package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robertozimek/eco-tiling/tiling"
)

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type (
	Config struct {
		Port               string        `env:"PORT" envDefault:"8095"`
		AllowedOrigins     []string      `env:"ALLOWED_ORIGINS" envSeparator:" " envDefault:"https://* http://*"`
		CacheControlHeader string        `env:"CACHE_CONTROL_HEADER" envDefault:"private, max-age=300"`
		ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

		Cache    Cache
		Postgres Postgres `envPrefix:"POSTGRES_"`
		Upstream Upstream
		Tiles    Tiles
	}

	Cache struct {
		Backend      string `env:"CACHE_BACKEND" envDefault:"redis"`
		RedisURL     string `env:"REDIS_URL"`
		MemorySize   int    `env:"MEMORY_CACHE_SIZE" envDefault:"10000"`
		SpatialIndex string `env:"SPATIAL_INDEX" envDefault:"geohash"`
		// Lifespan is how long a resolved tile source stays cached.
		Lifespan         time.Duration            `env:"LIFESPAN_URL" envDefault:"24h"`
		LifespanByPeriod map[string]time.Duration `env:"LIFESPAN_URL_BY_PERIOD"`

		TileCacheEnabled  bool          `env:"TILE_CACHE_ENABLED" envDefault:"false"`
		TileCacheDuration time.Duration `env:"TILE_CACHE_DURATION" envDefault:"1h"`
	}

	Postgres struct {
		Host     string `env:"HOST" envDefault:"localhost"`
		Port     string `env:"PORT" envDefault:"5432"`
		User     string `env:"USER"`
		Pass     string `env:"PASS"`
		Database string `env:"DB_NAME"`
		SSLMode  string `env:"SSL_MODE" envDefault:"require"`
	}

	Upstream struct {
		URL            string        `env:"UPSTREAM_URL,required"`
		Token          string        `env:"UPSTREAM_TOKEN"`
		Timeout        time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"35s"`
		ResolveTimeout time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"40s"`
		FetchTimeout   time.Duration `env:"FETCH_TIMEOUT" envDefault:"20s"`
	}

	Tiles struct {
		MinZoom            int      `env:"MIN_ZOOM" envDefault:"10"`
		MaxZoom            int      `env:"MAX_ZOOM" envDefault:"18"`
		S2VisParams        []string `env:"S2_VISPARAMS" envSeparator:" " envDefault:"s2-green s2-red s2-rgb"`
		LandsatVisParams   []string `env:"LANDSAT_VISPARAMS" envSeparator:" " envDefault:"landsat-true landsat-agri landsat-false"`
		BuildingsVisParams []string `env:"BUILDINGS_VISPARAMS" envSeparator:" " envDefault:"building_presence building_height"`
	}
)

// Parse reads the configuration from the environment. .env files are
// expected to be loaded already.
func Parse() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (cfg *Config) validate() error {
	switch cfg.Cache.Backend {
	case BackendRedis:
		if cfg.Cache.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when CACHE_BACKEND is %s", BackendRedis)
		}
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", cfg.Cache.Backend)
	}

	if cfg.Tiles.MinZoom < 0 || cfg.Tiles.MinZoom > cfg.Tiles.MaxZoom || cfg.Tiles.MaxZoom > tiling.MaxSupportedZoom {
		return fmt.Errorf("invalid zoom bounds %d-%d, must lie within 0-%d",
			cfg.Tiles.MinZoom, cfg.Tiles.MaxZoom, tiling.MaxSupportedZoom)
	}
	if cfg.Cache.Lifespan <= 0 {
		return fmt.Errorf("LIFESPAN_URL must be positive, got %s", cfg.Cache.Lifespan)
	}
	if _, err := cfg.LifespanOverrides(); err != nil {
		return err
	}
	if _, err := tiling.NewSpatialIndex(cfg.Cache.SpatialIndex); err != nil {
		return err
	}

	return nil
}

// LifespanOverrides returns LIFESPAN_URL_BY_PERIOD keyed by period, for
// example "MONTH:6h,CUSTOM:72h".
func (cfg *Config) LifespanOverrides() (map[tiling.Period]time.Duration, error) {
	overrides := make(map[tiling.Period]time.Duration, len(cfg.Cache.LifespanByPeriod))
	for name, lifespan := range cfg.Cache.LifespanByPeriod {
		period, err := tiling.ParsePeriod(name)
		if err != nil {
			return nil, fmt.Errorf("LIFESPAN_URL_BY_PERIOD: %w", err)
		}
		if lifespan <= 0 {
			return nil, fmt.Errorf("LIFESPAN_URL_BY_PERIOD: %s must be positive", period)
		}
		overrides[period] = lifespan
	}
	return overrides, nil
}

func (cfg *Config) Rules() tiling.Rules {
	rules := tiling.DefaultRules()
	rules.MinZoom = cfg.Tiles.MinZoom
	rules.MaxZoom = cfg.Tiles.MaxZoom
	rules.VisParams = map[tiling.Family][]string{
		tiling.FamilySentinel2: cfg.Tiles.S2VisParams,
		tiling.FamilyLandsat:   cfg.Tiles.LandsatVisParams,
		tiling.FamilyBuildings: cfg.Tiles.BuildingsVisParams,
	}
	return rules
}
