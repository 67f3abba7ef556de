// Package upstream talks to the Earth-observation map service that turns a
// collection, date window and visualization preset into a tile URL template.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/robertozimek/eco-tiling/metrics"
	"github.com/robertozimek/eco-tiling/tiling"
	"github.com/rs/zerolog/log"
)

// Query is one upstream resolution. Region is the area the returned layer
// must cover.
type Query struct {
	Collection tiling.Collection
	Start      time.Time
	End        time.Time
	VisParam   string
	Region     orb.Bound
	Zoom       int
}

func NewQuery(request tiling.TileRequest, cell tiling.Cell) Query {
	start, end := request.DateRange()
	return Query{
		Collection: request.Collection,
		Start:      start,
		End:        end,
		VisParam:   request.VisParam,
		Region:     cell.Region,
		Zoom:       request.Zoom,
	}
}

// Imagery resolves queries into tile sources. Failures wrap tiling.ErrUpstream.
type Imagery interface {
	Resolve(ctx context.Context, query Query) (tiling.TileSourceDescriptor, error)
}

type mapIDRequest struct {
	Collection string     `json:"collection"`
	Start      string     `json:"start"`
	End        string     `json:"end"`
	VisParam   string     `json:"visparam"`
	Region     [4]float64 `json:"region"`
	Zoom       int        `json:"zoom"`
}

type mapIDResponse struct {
	URLFormat string `json:"url_format"`
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(baseURL string, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
		now:        time.Now,
	}
}

func (client *Client) Resolve(ctx context.Context, query Query) (tiling.TileSourceDescriptor, error) {
	start := time.Now()
	descriptor, err := client.resolve(ctx, query)
	metrics.UpstreamLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("error").Inc()
		return tiling.TileSourceDescriptor{}, err
	}
	metrics.UpstreamRequests.WithLabelValues("ok").Inc()
	return descriptor, nil
}

func (client *Client) resolve(ctx context.Context, query Query) (tiling.TileSourceDescriptor, error) {
	body, err := json.Marshal(mapIDRequest{
		Collection: query.Collection.AssetID(),
		Start:      query.Start.Format(tiling.DateLayout),
		End:        query.End.Format(tiling.DateLayout),
		VisParam:   query.VisParam,
		Region:     [4]float64{query.Region.Min.X(), query.Region.Min.Y(), query.Region.Max.X(), query.Region.Max.Y()},
		Zoom:       query.Zoom,
	})
	if err != nil {
		return tiling.TileSourceDescriptor{}, fmt.Errorf("%w: encode query: %v", tiling.ErrInternalFault, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+"/v1/map-ids", bytes.NewReader(body))
	if err != nil {
		return tiling.TileSourceDescriptor{}, fmt.Errorf("%w: build request: %v", tiling.ErrInternalFault, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if client.token != "" {
		req.Header.Set("Authorization", "Bearer "+client.token)
	}

	log.Debug().
		Str("collection", string(query.Collection)).
		Str("visparam", query.VisParam).
		Str("start", query.Start.Format(tiling.DateLayout)).
		Str("end", query.End.Format(tiling.DateLayout)).
		Msg("Resolving map id")

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return tiling.TileSourceDescriptor{}, fmt.Errorf("%w: %w", tiling.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return tiling.TileSourceDescriptor{}, noImagery(query)
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return tiling.TileSourceDescriptor{}, fmt.Errorf("%w: status %d: %s", tiling.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var payload mapIDResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return tiling.TileSourceDescriptor{}, fmt.Errorf("%w: decode response: %v", tiling.ErrUpstream, err)
	}
	if payload.URLFormat == "" {
		return tiling.TileSourceDescriptor{}, noImagery(query)
	}

	return tiling.TileSourceDescriptor{
		URL:        payload.URLFormat,
		ResolvedAt: client.now().UTC(),
		Collection: query.Collection,
		VisParam:   query.VisParam,
	}, nil
}

func noImagery(query Query) error {
	return fmt.Errorf("%w: no imagery for %s between %s and %s", tiling.ErrUpstream,
		query.Collection, query.Start.Format(tiling.DateLayout), query.End.Format(tiling.DateLayout))
}
