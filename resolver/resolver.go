// Package resolver turns tile requests into tile sources, reading through the
// tile source cache and collapsing concurrent upstream calls per cache key.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robertozimek/eco-tiling/cache"
	"github.com/robertozimek/eco-tiling/flight"
	"github.com/robertozimek/eco-tiling/metrics"
	"github.com/robertozimek/eco-tiling/tiling"
	"github.com/robertozimek/eco-tiling/upstream"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTTL             = 24 * time.Hour
	DefaultResolveTimeout  = 40 * time.Second
	DefaultUpstreamTimeout = 35 * time.Second
)

// TTLPolicy chooses how long a resolved tile source stays cached.
type TTLPolicy func(request tiling.TileRequest) time.Duration

// PeriodTTL uses the override for the request's period when there is one.
func PeriodTTL(defaultTTL time.Duration, overrides map[tiling.Period]time.Duration) TTLPolicy {
	return func(request tiling.TileRequest) time.Duration {
		if ttl, ok := overrides[request.Period]; ok && ttl > 0 {
			return ttl
		}
		return defaultTTL
	}
}

type Options struct {
	Rules   tiling.Rules
	Encoder *tiling.KeyEncoder
	TTL     TTLPolicy
	// ResolveTimeout bounds a caller's total wait, cache lookup included.
	ResolveTimeout time.Duration
	// UpstreamTimeout bounds one upstream call, independently of its callers.
	UpstreamTimeout time.Duration
}

type Resolver struct {
	store           cache.Store
	imagery         upstream.Imagery
	flights         *flight.Coordinator[tiling.TileSourceDescriptor]
	rules           tiling.Rules
	encoder         *tiling.KeyEncoder
	ttl             TTLPolicy
	resolveTimeout  time.Duration
	upstreamTimeout time.Duration
}

func New(store cache.Store, imagery upstream.Imagery, options Options) *Resolver {
	if options.Encoder == nil {
		options.Encoder = tiling.NewKeyEncoder(tiling.GeohashIndex{})
	}
	if options.TTL == nil {
		options.TTL = PeriodTTL(DefaultTTL, nil)
	}
	if options.ResolveTimeout <= 0 {
		options.ResolveTimeout = DefaultResolveTimeout
	}
	if options.UpstreamTimeout <= 0 {
		options.UpstreamTimeout = DefaultUpstreamTimeout
	}
	if options.Rules.MaxZoom == 0 {
		options.Rules = tiling.DefaultRules()
	}

	return &Resolver{
		store:           store,
		imagery:         imagery,
		flights:         flight.NewCoordinator[tiling.TileSourceDescriptor](),
		rules:           options.Rules,
		encoder:         options.Encoder,
		ttl:             options.TTL,
		resolveTimeout:  options.ResolveTimeout,
		upstreamTimeout: options.UpstreamTimeout,
	}
}

func (r *Resolver) Rules() tiling.Rules {
	return r.rules
}

func (r *Resolver) Key(request tiling.TileRequest) tiling.CacheKey {
	return r.encoder.Encode(request)
}

// Resolve returns the tile source for request. Errors wrap
// tiling.ErrInvalidRequest, tiling.ErrUpstream or tiling.ErrInternalFault, or
// are the caller's own context cancellation. Cache failures are never returned.
func (r *Resolver) Resolve(ctx context.Context, request tiling.TileRequest) (tiling.TileSourceDescriptor, error) {
	if err := request.Validate(r.rules); err != nil {
		return tiling.TileSourceDescriptor{}, err
	}

	key := r.encoder.Encode(request)
	ctx, cancel := context.WithTimeout(ctx, r.resolveTimeout)
	defer cancel()

	descriptor, found, err := r.store.Get(ctx, key)
	switch {
	case err != nil:
		metrics.ResolverLookups.WithLabelValues("unavailable").Inc()
		log.Warn().Err(err).Str("key", key.String()).Msg("Tile source cache unavailable, bypassing")
	case found:
		metrics.ResolverLookups.WithLabelValues("hit").Inc()
		log.Debug().Str("key", key.String()).Msg("Tile source cache hit")
		return descriptor, nil
	default:
		metrics.ResolverLookups.WithLabelValues("miss").Inc()
	}

	detached := context.WithoutCancel(ctx)
	leader := false
	descriptor, _, err = r.flights.Do(ctx, key.String(), func() (tiling.TileSourceDescriptor, error) {
		leader = true
		return r.resolveUpstream(detached, key, request)
	})
	if err != nil {
		return tiling.TileSourceDescriptor{}, r.classify(ctx, err)
	}
	if !leader {
		metrics.CoalescedWaits.Inc()
	}
	return descriptor, nil
}

func (r *Resolver) resolveUpstream(ctx context.Context, key tiling.CacheKey, request tiling.TileRequest) (tiling.TileSourceDescriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, r.upstreamTimeout)
	defer cancel()

	query := upstream.NewQuery(request, r.encoder.Cell(request))
	descriptor, err := r.imagery.Resolve(ctx, query)
	if err != nil {
		if !errors.Is(err, tiling.ErrUpstream) && !errors.Is(err, tiling.ErrInternalFault) {
			err = fmt.Errorf("%w: %w", tiling.ErrUpstream, err)
		}
		log.Debug().Err(err).Str("key", key.String()).Msg("Upstream resolution failed")
		return tiling.TileSourceDescriptor{}, err
	}

	if err := r.store.Set(ctx, key, descriptor, r.ttl(request)); err != nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache tile source")
	}
	return descriptor, nil
}

// classify maps coordinator errors onto the resolver's error taxonomy.
func (r *Resolver) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, tiling.ErrUpstream), errors.Is(err, tiling.ErrInternalFault):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: resolution timed out after %s", tiling.ErrUpstream, r.resolveTimeout)
	case errors.Is(err, flight.ErrDraining):
		return fmt.Errorf("%w: %w", tiling.ErrUpstream, err)
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return err
	default:
		return fmt.Errorf("%w: %w", tiling.ErrInternalFault, err)
	}
}

// Invalidate drops the cached tile source of request, so the next call
// resolves it again.
func (r *Resolver) Invalidate(ctx context.Context, request tiling.TileRequest) error {
	return r.store.Delete(ctx, r.encoder.Encode(request))
}

// Drain waits for in-flight upstream calls and rejects new ones.
func (r *Resolver) Drain(ctx context.Context) error {
	return r.flights.Drain(ctx)
}
