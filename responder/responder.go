// Package responder turns a resolution outcome into the HTTP payload of a
// tile: imagery bytes, a placeholder, or a structured client error.
package responder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/robertozimek/eco-tiling/cache"
	"github.com/robertozimek/eco-tiling/metrics"
	"github.com/robertozimek/eco-tiling/tiling"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	ContentTypePNG  = "image/png"
	ContentTypeJSON = "application/json"

	DefaultFetchTimeout = 20 * time.Second
	DefaultMaxTileBytes = 16 << 20
)

type Tile struct {
	Status      int
	ContentType string
	Body        []byte
	// Placeholder is set when Body stands in for imagery that could not be
	// served.
	Placeholder bool
}

type ErrorResponse struct {
	StatusCode int      `json:"status_code"`
	Messages   []string `json:"messages"`
}

// Sources is the part of the resolver the responder needs to name and expire
// tile sources.
type Sources interface {
	Key(request tiling.TileRequest) tiling.CacheKey
	Invalidate(ctx context.Context, request tiling.TileRequest) error
}

type Options struct {
	HTTPClient   *http.Client
	FetchTimeout time.Duration
	// TileCache caches fetched tile bytes. Nil disables byte caching.
	TileCache *cache.TileCacheProvider
	// MaxTileBytes bounds a fetched tile; larger bodies are a fetch failure.
	MaxTileBytes int64
	// Debug labels placeholders with the reason they were served.
	Debug bool
}

type Responder struct {
	sources      Sources
	httpClient   *http.Client
	fetchTimeout time.Duration
	tileCache    *cache.TileCacheProvider
	maxTileBytes int64
	debug        bool
}

func New(sources Sources, options Options) *Responder {
	if options.HTTPClient == nil {
		options.HTTPClient = &http.Client{}
	}
	if options.FetchTimeout <= 0 {
		options.FetchTimeout = DefaultFetchTimeout
	}
	if options.MaxTileBytes <= 0 {
		options.MaxTileBytes = DefaultMaxTileBytes
	}

	return &Responder{
		sources:      sources,
		httpClient:   options.HTTPClient,
		fetchTimeout: options.FetchTimeout,
		tileCache:    options.TileCache,
		maxTileBytes: options.MaxTileBytes,
		debug:        options.Debug,
	}
}

// fetchError is a non-200 answer from the tile URL.
type fetchError struct {
	status int
}

func (e *fetchError) Error() string {
	return fmt.Sprintf("tile fetch returned status %d", e.status)
}

// Respond builds the tile for the outcome of resolving request. Upstream and
// fetch failures degrade to a placeholder and are logged here, once.
func (responder *Responder) Respond(ctx context.Context, request tiling.TileRequest, descriptor tiling.TileSourceDescriptor, err error) Tile {
	if err != nil {
		return responder.failure(ctx, request, err)
	}

	body, err := responder.tileBytes(ctx, request, descriptor)
	if err != nil {
		var statusErr *fetchError
		if errors.As(err, &statusErr) && (statusErr.status == http.StatusNotFound || statusErr.status == http.StatusForbidden) {
			// the map id behind the cached url has expired upstream
			if err := responder.sources.Invalidate(context.WithoutCancel(ctx), request); err != nil {
				log.Warn().Err(err).Msg("Failed to invalidate expired tile source")
			}
		}
		return responder.placeholder(ctx, request, "fetch", err)
	}

	return Tile{Status: http.StatusOK, ContentType: ContentTypePNG, Body: body}
}

func (responder *Responder) failure(ctx context.Context, request tiling.TileRequest, err error) Tile {
	switch {
	case errors.Is(err, tiling.ErrInvalidRequest):
		return errorTile(http.StatusBadRequest, err)
	case errors.Is(err, tiling.ErrUpstream):
		return responder.placeholder(ctx, request, "upstream", err)
	case errors.Is(err, context.Canceled):
		return responder.placeholder(ctx, request, "cancelled", err)
	default:
		logEvent(log.Error(), request).Err(err).Msg("Failed to resolve tile")
		return errorTile(http.StatusInternalServerError, err)
	}
}

func (responder *Responder) placeholder(ctx context.Context, request tiling.TileRequest, reason string, err error) Tile {
	level := zerolog.ErrorLevel
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		level = zerolog.DebugLevel
	}
	logEvent(log.WithLevel(level), request).Str("reason", reason).Err(err).Msg("Serving placeholder tile")
	metrics.PlaceholdersServed.WithLabelValues(reason).Inc()

	body := placeholder()
	if responder.debug {
		body = placeholder(reason, fmt.Sprintf("%d/%d/%d", request.Zoom, request.X, request.Y))
	}
	return Tile{Status: http.StatusOK, ContentType: ContentTypePNG, Body: body, Placeholder: true}
}

func (responder *Responder) tileBytes(ctx context.Context, request tiling.TileRequest, descriptor tiling.TileSourceDescriptor) ([]byte, error) {
	url := descriptor.TileURL(request.X, request.Y, request.Zoom)
	if responder.tileCache == nil {
		return responder.fetch(ctx, url)
	}

	key := fmt.Sprintf("%s/%d/%d_%d", responder.sources.Key(request), request.Zoom, request.X, request.Y)
	return responder.tileCache.GetBytes(ctx, key, func() ([]byte, error) {
		return responder.fetch(ctx, url)
	})
}

func (responder *Responder) fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, responder.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := responder.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &fetchError{status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, responder.maxTileBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > responder.maxTileBytes {
		return nil, fmt.Errorf("tile body exceeds %d bytes", responder.maxTileBytes)
	}
	return body, nil
}

func logEvent(event *zerolog.Event, request tiling.TileRequest) *zerolog.Event {
	event = event.
		Str("collection", string(request.Collection)).
		Str("period", string(request.Period)).
		Int("year", request.Year).
		Str("visparam", request.VisParam).
		Int("z", request.Zoom).
		Int("x", request.X).
		Int("y", request.Y)
	if month, err := request.Month.Get(); err == nil {
		event = event.Int("month", month)
	}
	if request.Period == tiling.PeriodCustom {
		event = event.
			Str("start", request.Start.Format(tiling.DateLayout)).
			Str("end", request.End.Format(tiling.DateLayout))
	}
	return event
}

func errorTile(status int, err error) Tile {
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}

	body, _ := json.Marshal(ErrorResponse{StatusCode: status, Messages: []string{message}})
	return Tile{Status: status, ContentType: ContentTypeJSON, Body: body}
}
