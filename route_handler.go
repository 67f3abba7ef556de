package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertozimek/eco-tiling/cache"
	"github.com/robertozimek/eco-tiling/internal/utils"
	"github.com/robertozimek/eco-tiling/metrics"
	"github.com/robertozimek/eco-tiling/resolver"
	"github.com/robertozimek/eco-tiling/responder"
	"github.com/robertozimek/eco-tiling/tiling"
	"github.com/rs/zerolog/log"
)

type RouterOptions struct {
	AllowedOrigins     []string
	CacheControlHeader string
	Resolver           *resolver.Resolver
	Responder          *responder.Responder
	Store              cache.Store
}

func NewRouter(options RouterOptions) *chi.Mux {
	router := chi.NewRouter()

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   options.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "ETag"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/api/capabilities", GetCapabilities(options.Resolver.Rules()))
	router.Get("/api/{collection}/{x:[0-9]+}/{y:[0-9]+}/{z:[0-9]+}",
		GetImageryTile(options.Resolver, options.Responder, options.CacheControlHeader))
	router.Get("/healthz", GetHealth(options.Store))
	router.Handle("/metrics", promhttp.Handler())

	return router
}

func GetImageryTile(tileResolver *resolver.Resolver, tileResponder *responder.Responder, cacheControlHeader string) func(http.ResponseWriter, *http.Request) {
	if cacheControlHeader == "" {
		cacheControlHeader = "private, max-age=300"
	}

	return func(w http.ResponseWriter, r *http.Request) {
		route := chi.URLParam(r, "collection")

		var (
			request    tiling.TileRequest
			descriptor tiling.TileSourceDescriptor
		)
		x, y, z, err := tileCoordinates(r)
		if err == nil {
			request, err = tiling.ParseTileRequest(route, x, y, z, r.URL.Query(), tileResolver.Rules())
		}
		if err == nil {
			descriptor, err = tileResolver.Resolve(r.Context(), request)
		}

		tile := tileResponder.Respond(r.Context(), request, descriptor, err)
		metrics.TileRequests.WithLabelValues(collectionLabel(request), outcome(tile)).Inc()

		w.Header().Set("Content-Type", tile.ContentType)
		if tile.Status == http.StatusOK {
			if tile.Placeholder {
				w.Header().Set("Cache-Control", "no-store")
			} else {
				etag := utils.ETag(tile.Body)
				w.Header().Set("Cache-Control", cacheControlHeader)
				w.Header().Set("ETag", etag)
				if r.Header.Get("If-None-Match") == etag {
					w.WriteHeader(http.StatusNotModified)
					return
				}
			}
		}

		w.WriteHeader(tile.Status)
		if _, err := w.Write(tile.Body); err != nil {
			log.Err(err).Msg("Error writing response")
		}
	}
}

func tileCoordinates(r *http.Request) (int, int, int, error) {
	coordinates := make([]int, 0, 3)
	for _, name := range []string{"x", "y", "z"} {
		value, err := strconv.Atoi(chi.URLParam(r, name))
		if err != nil {
			return 0, 0, 0, &tiling.RequestError{Field: name, Reason: "must be an integer"}
		}
		coordinates = append(coordinates, value)
	}
	return coordinates[0], coordinates[1], coordinates[2], nil
}

func collectionLabel(request tiling.TileRequest) string {
	if request.Collection.Valid() {
		return string(request.Collection)
	}
	return "unknown"
}

func outcome(tile responder.Tile) string {
	switch {
	case tile.Placeholder:
		return "placeholder"
	case tile.Status == http.StatusOK:
		return "ok"
	case tile.Status < http.StatusInternalServerError:
		return "invalid"
	default:
		return "error"
	}
}

type collectionCapabilities struct {
	Collection tiling.Collection `json:"collection"`
	Family     tiling.Family     `json:"family"`
	AssetID    string            `json:"asset_id"`
	MinYear    int               `json:"min_year"`
	MaxYear    int               `json:"max_year,omitempty"`
	Periods    []tiling.Period   `json:"periods"`
	VisParams  []string          `json:"visparams"`
}

type capabilities struct {
	Routes      []string                 `json:"routes"`
	Periods     []tiling.Period          `json:"periods"`
	MinZoom     int                      `json:"min_zoom"`
	MaxZoom     int                      `json:"max_zoom"`
	Collections []collectionCapabilities `json:"collections"`
}

func GetCapabilities(rules tiling.Rules) func(http.ResponseWriter, *http.Request) {
	body := capabilities{
		Routes:  tiling.Routes(),
		Periods: tiling.Periods(),
		MinZoom: rules.MinZoom,
		MaxZoom: rules.MaxZoom,
	}
	for _, collection := range tiling.Collections() {
		minYear, maxYear := collection.YearRange()
		body.Collections = append(body.Collections, collectionCapabilities{
			Collection: collection,
			Family:     collection.Family(),
			AssetID:    collection.AssetID(),
			MinYear:    minYear,
			MaxYear:    maxYear,
			Periods:    collection.Family().Periods(),
			VisParams:  rules.VisParams[collection.Family()],
		})
	}

	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, body)
	}
}

type health struct {
	Status string `json:"status"`
	Cache  string `json:"cache"`
}

func GetHealth(store cache.Store) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			// tiles are still served without a cache
			log.Warn().Err(err).Msg("Health check failed to reach cache")
			writeJSON(w, http.StatusOK, health{Status: "degraded", Cache: "error"})
			return
		}
		writeJSON(w, http.StatusOK, health{Status: "ok", Cache: "connected"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", responder.ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("Error writing response")
	}
}
