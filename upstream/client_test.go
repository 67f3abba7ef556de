package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/markphelps/optional"
	"github.com/robertozimek/eco-tiling/tiling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monthQuery() Query {
	request := tiling.TileRequest{
		Collection: tiling.Landsat8,
		Period:     tiling.PeriodMonth,
		Year:       2022,
		Month:      optional.NewInt(6),
		VisParam:   "landsat-false",
		Zoom:       14,
		X:          5,
		Y:          5,
	}
	return NewQuery(request, tiling.GeohashIndex{}.Cell(request.X, request.Y, request.Zoom))
}

func TestClientResolve(t *testing.T) {
	assert := assert.New(t)
	var received mapIDRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(http.MethodPost, r.Method)
		assert.Equal("/v1/map-ids", r.URL.Path)
		assert.Equal("Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"url_format":"https://earthengine.example/v1/maps/xyz/tiles/{z}/{x}/{y}"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "secret", server.Client())
	resolvedAt := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return resolvedAt }

	descriptor, err := client.Resolve(context.Background(), monthQuery())

	require.NoError(t, err)
	assert.Equal("https://earthengine.example/v1/maps/xyz/tiles/{z}/{x}/{y}", descriptor.URL)
	assert.Equal(resolvedAt, descriptor.ResolvedAt)
	assert.Equal(tiling.Landsat8, descriptor.Collection)
	assert.Equal("landsat-false", descriptor.VisParam)

	assert.Equal("LANDSAT/LC08/C02/T1_L2", received.Collection)
	assert.Equal("2022-06-01", received.Start)
	assert.Equal("2022-07-01", received.End)
	assert.Equal(14, received.Zoom)
	assert.Less(received.Region[0], received.Region[2])
	assert.Less(received.Region[1], received.Region[3])
}

func TestClientResolveFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"not found": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		},
		"empty url": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"url_format":""}`))
		},
		"garbage": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		},
	}

	for name, handler := range cases {
		server := httptest.NewServer(handler)
		client := NewClient(server.URL, "", server.Client())

		_, err := client.Resolve(context.Background(), monthQuery())

		assert.ErrorIs(t, err, tiling.ErrUpstream, name)
		server.Close()
	}
}

func TestClientResolveHonoursContext(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient(server.URL, "", server.Client()).Resolve(ctx, monthQuery())

	assert.ErrorIs(t, err, tiling.ErrUpstream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
