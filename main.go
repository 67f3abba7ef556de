package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robertozimek/eco-tiling/cache"
	"github.com/robertozimek/eco-tiling/internal/config"
	"github.com/robertozimek/eco-tiling/internal/utils"
	"github.com/robertozimek/eco-tiling/postgres"
	"github.com/robertozimek/eco-tiling/resolver"
	"github.com/robertozimek/eco-tiling/responder"
	"github.com/robertozimek/eco-tiling/tiling"
	"github.com/robertozimek/eco-tiling/upstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const purgeInterval = time.Hour

func loadEnvironment() {
	environment := flag.String("env", "", "environment to use")
	flag.Parse()

	environmentFile := ".env"
	if utils.IsFlagSet("env") {
		environmentFile = fmt.Sprintf(".env.%s", *environment)
	}

	err := godotenv.Load(environmentFile)

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if utils.IsDebug() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err != nil {
		log.Debug().Err(err).Msg("Error loading .env file")
	}
}

func main() {
	loadEnvironment()

	cfg, err := config.Parse()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Cache.Backend).Msg("Failed to set up tile source cache")
	}
	defer store.Close()

	// validated by config.Parse
	index, _ := tiling.NewSpatialIndex(cfg.Cache.SpatialIndex)
	overrides, _ := cfg.LifespanOverrides()

	tileResolver := resolver.New(store, upstream.NewClient(cfg.Upstream.URL, cfg.Upstream.Token, &http.Client{}), resolver.Options{
		Rules:           cfg.Rules(),
		Encoder:         tiling.NewKeyEncoder(index),
		TTL:             resolver.PeriodTTL(cfg.Cache.Lifespan, overrides),
		ResolveTimeout:  cfg.Upstream.ResolveTimeout,
		UpstreamTimeout: cfg.Upstream.Timeout,
	})

	tileResponder := responder.New(tileResolver, responder.Options{
		FetchTimeout: cfg.Upstream.FetchTimeout,
		TileCache:    newTileCacheProvider(cfg, store),
		Debug:        utils.IsDebug(),
	})

	router := NewRouter(RouterOptions{
		AllowedOrigins:     cfg.AllowedOrigins,
		CacheControlHeader: cfg.CacheControlHeader,
		Resolver:           tileResolver,
		Responder:          tileResponder,
		Store:              store,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Msg("Eco Tiling Server Started on PORT: " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := tileResolver.Drain(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Abandoned in-flight upstream resolutions")
	}

	log.Info().Msg("Server exited")
}

func newStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		return cache.NewRedisStore(cfg.Cache.RedisURL)
	case config.BackendPostgres:
		db, err := postgres.NewDBConnection(&postgres.DBConnectionOptions{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Pass:     cfg.Postgres.Pass,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		})
		if err != nil {
			return nil, err
		}

		store := postgres.NewSourceStore(db)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		go purgeExpired(ctx, store)
		return store, nil
	default:
		return cache.NewMemoryStore(cfg.Cache.MemorySize), nil
	}
}

func purgeExpired(ctx context.Context, store *postgres.SourceStore) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := store.PurgeExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to purge expired tile sources")
				continue
			}
			log.Debug().Int64("rows", purged).Msg("Purged expired tile sources")
		}
	}
}

// newTileCacheProvider returns the tile byte cache, sharing the redis
// connection of the tile source cache when there is one.
func newTileCacheProvider(cfg *config.Config, store cache.Store) *cache.TileCacheProvider {
	if !cfg.Cache.TileCacheEnabled {
		return nil
	}

	if redisStore, ok := store.(*cache.RedisStore); ok {
		return cache.NewTileCacheProvider(redisStore.Client(), cfg.Cache.TileCacheDuration)
	}

	redisURL := cfg.Cache.RedisURL
	if redisURL == "" {
		log.Warn().Msg("TILE_CACHE_ENABLED requires REDIS_URL, tile bytes will not be cached")
		return nil
	}
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to parse REDIS_URL, tile bytes will not be cached")
		return nil
	}
	return cache.NewTileCacheProvider(redis.NewClient(options), cfg.Cache.TileCacheDuration)
}
