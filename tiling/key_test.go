package tiling

import (
	"strings"
	"testing"
	"time"

	"github.com/markphelps/optional"
	"github.com/stretchr/testify/assert"
)

func wetRequest() TileRequest {
	return TileRequest{
		Collection: Sentinel2Harmonized,
		Period:     PeriodWet,
		Year:       2023,
		VisParam:   "s2-red",
		Zoom:       12,
		X:          100,
		Y:          200,
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	assert := assert.New(t)
	request := wetRequest()

	first := NewKeyEncoder(GeohashIndex{}).Encode(request)
	second := NewKeyEncoder(GeohashIndex{}).Encode(request)

	assert.Equal(first, second)
	assert.True(strings.HasPrefix(first.String(), "tilesrc:sentinel-2-harmonized:WET-2023:s2-red:geohash:"))
}

func TestEncodeSeparatesContentFields(t *testing.T) {
	assert := assert.New(t)
	encoder := NewKeyEncoder(nil)
	base := wetRequest()

	variants := map[string]func(r *TileRequest){
		"collection": func(r *TileRequest) { r.Collection = Landsat8; r.VisParam = "s2-red" },
		"period":     func(r *TileRequest) { r.Period = PeriodDry },
		"year":       func(r *TileRequest) { r.Year = 2022 },
		"visparam":   func(r *TileRequest) { r.VisParam = "s2-rgb" },
		"month": func(r *TileRequest) {
			r.Period = PeriodMonth
			r.Month = optional.NewInt(6)
		},
		"custom": func(r *TileRequest) {
			r.Period = PeriodCustom
			r.Start = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
			r.End = time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
		},
		"far tile": func(r *TileRequest) { r.X = 3000; r.Y = 1000 },
	}

	seen := map[CacheKey]string{encoder.Encode(base): "base"}
	for name, mutate := range variants {
		request := base
		mutate(&request)
		key := encoder.Encode(request)
		previous, exists := seen[key]
		assert.False(exists, "%s collides with %s: %s", name, previous, key)
		seen[key] = name
	}
}

func TestEncodeMonthTokens(t *testing.T) {
	assert := assert.New(t)
	encoder := NewKeyEncoder(nil)
	request := wetRequest()
	request.Period = PeriodMonth

	request.Month = optional.NewInt(1)
	january := encoder.Encode(request)
	request.Month = optional.NewInt(11)
	november := encoder.Encode(request)

	assert.Contains(january.String(), ":MONTH-2023-01:")
	assert.Contains(november.String(), ":MONTH-2023-11:")
}

func TestNeighbouringTilesShareKey(t *testing.T) {
	assert := assert.New(t)
	encoder := NewKeyEncoder(GeohashIndex{})
	request := wetRequest()
	neighbour := request
	neighbour.X++

	assert.Equal(encoder.Encode(request), encoder.Encode(neighbour))
	assert.Equal(encoder.Prefix(request), encoder.Prefix(neighbour))
}

func TestGeohashPrecisionGrowsWithZoom(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(uint(3), geohashPrecision(10))
	assert.Equal(uint(4), geohashPrecision(12))
	assert.Equal(uint(5), geohashPrecision(14))
	assert.Equal(uint(7), geohashPrecision(18))
	assert.Equal(uint(7), geohashPrecision(22))

	coarse := GeohashIndex{}.Cell(100, 200, 10)
	fine := GeohashIndex{}.Cell(100<<8, 200<<8, 18)
	assert.Len(coarse.Token, 3)
	assert.Len(fine.Token, 7)
}

func TestGeohashRegionCoversTile(t *testing.T) {
	assert := assert.New(t)

	for z := 10; z <= 18; z++ {
		x, y := 380<<uint(z-10), 560<<uint(z-10)
		cell := GeohashIndex{}.Cell(x, y, z)
		center := tileCenter(x, y, z)
		assert.True(cell.Region.Contains(center), "zoom %d", z)
		assert.True(cell.Region.Max.X() > cell.Region.Min.X())
	}
}

func TestH3IndexKeys(t *testing.T) {
	assert := assert.New(t)
	encoder := NewKeyEncoder(H3Index{})
	request := wetRequest()

	key := encoder.Encode(request)
	assert.True(strings.HasPrefix(key.String(), "tilesrc:sentinel-2-harmonized:WET-2023:s2-red:h3:"))
	assert.Equal(key, encoder.Encode(request))
	assert.True(encoder.Cell(request).Region.Contains(tileCenter(request.X, request.Y, request.Zoom)))
}

func TestNewSpatialIndex(t *testing.T) {
	assert := assert.New(t)

	index, err := NewSpatialIndex("")
	assert.NoError(err)
	assert.Equal("geohash", index.Name())

	index, err = NewSpatialIndex("h3")
	assert.NoError(err)
	assert.Equal("h3", index.Name())

	_, err = NewSpatialIndex("s2")
	assert.Error(err)
}

func TestTileURL(t *testing.T) {
	descriptor := TileSourceDescriptor{URL: "https://earthengine.example/v1/maps/abc/tiles/{z}/{x}/{y}"}

	assert.Equal(t, "https://earthengine.example/v1/maps/abc/tiles/12/100/200", descriptor.TileURL(100, 200, 12))
}

func TestEncodeIgnoresZoomWithinCell(t *testing.T) {
	encoder := NewKeyEncoder(GeohashIndex{})
	coarse := wetRequest()
	coarse.Zoom, coarse.X, coarse.Y = 10, 100, 200
	fine := coarse
	fine.Zoom, fine.X, fine.Y = 11, 200, 400

	assert.Equal(t, encoder.Encode(coarse), encoder.Encode(fine))
}

func TestGeohashRegionStaysOnGlobe(t *testing.T) {
	assert := assert.New(t)

	for _, tile := range [][3]int{{1023, 0, 10}, {0, 1023, 10}, {0, 0, 10}, {1023, 1023, 10}} {
		region := GeohashIndex{}.Cell(tile[0], tile[1], tile[2]).Region

		assert.LessOrEqual(region.Max.X(), 180.0, "tile %v", tile)
		assert.GreaterOrEqual(region.Min.X(), -180.0, "tile %v", tile)
		assert.LessOrEqual(region.Max.Y(), 90.0, "tile %v", tile)
		assert.GreaterOrEqual(region.Min.Y(), -90.0, "tile %v", tile)
		assert.True(region.Contains(tileCenter(tile[0], tile[1], tile[2])), "tile %v", tile)
	}
}

func TestEncodeYearToken(t *testing.T) {
	request := TileRequest{
		Collection: OpenBuildings,
		Period:     PeriodYear,
		Year:       2020,
		VisParam:   "building_height",
		Zoom:       14,
		X:          9000,
		Y:          7000,
	}

	key := NewKeyEncoder(nil).Encode(request)

	assert.True(t, strings.HasPrefix(key.String(), "tilesrc:open-buildings:YEAR-2020:building_height:geohash:"))
}
