package tiling

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/markphelps/optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRules() Rules {
	rules := DefaultRules()
	rules.Now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	return rules
}

func TestParseTileRequestWet(t *testing.T) {
	query := url.Values{"period": {"wet"}, "year": {"2023"}, "visparam": {"s2-red"}, "month": {"4"}}

	request, err := ParseTileRequest("s2_harmonized", 100, 200, 12, query, testRules())

	require.NoError(t, err)
	assert.Equal(t, Sentinel2Harmonized, request.Collection)
	assert.Equal(t, PeriodWet, request.Period)
	assert.Equal(t, 2023, request.Year)
	assert.False(t, request.Month.Present(), "month is dropped outside MONTH periods")
}

func TestParseTileRequestMonth(t *testing.T) {
	query := url.Values{"period": {"MONTH"}, "year": {"2022"}, "visparam": {"landsat-false"}, "month": {"06"}}

	request, err := ParseTileRequest("landsat-8", 5, 5, 14, query, testRules())

	require.NoError(t, err)
	assert.Equal(t, Landsat8, request.Collection)
	assert.Equal(t, 6, request.Month.MustGet())

	start, end := request.DateRange()
	assert.Equal(t, time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2022, 7, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestParseTileRequestMonthWithoutMonth(t *testing.T) {
	query := url.Values{"period": {"MONTH"}, "year": {"2022"}, "visparam": {"landsat-false"}}

	_, err := ParseTileRequest("landsat-8", 5, 5, 14, query, testRules())

	assert.ErrorIs(t, err, ErrInvalidRequest)
	var requestErr *RequestError
	require.True(t, errors.As(err, &requestErr))
	assert.Equal(t, "month", requestErr.Field)
}

func TestParseTileRequestCustom(t *testing.T) {
	query := url.Values{"period": {"custom"}, "start": {"2023-01-15"}, "end": {"2023-02-15"}, "visparam": {"s2-rgb"}}

	request, err := ParseTileRequest("s2_harmonized", 100, 200, 12, query, testRules())

	require.NoError(t, err)
	assert.Equal(t, 2023, request.Year)
	start, end := request.DateRange()
	assert.Equal(t, time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2023, 2, 16, 0, 0, 0, 0, time.UTC), end)
}

func TestParseTileRequestLandsatByYear(t *testing.T) {
	rules := testRules()
	cases := map[string]Collection{
		"1990": Landsat5,
		"2012": Landsat7,
		"2015": Landsat8,
		"2023": Landsat9,
	}

	for year, expected := range cases {
		query := url.Values{"period": {"DRY"}, "year": {year}, "visparam": {"landsat-true"}}
		request, err := ParseTileRequest("landsat", 300, 500, 10, query, rules)
		if assert.NoError(t, err, year) {
			assert.Equal(t, expected, request.Collection, year)
		}
	}
}

func TestParseTileRequestRejects(t *testing.T) {
	rules := testRules()
	cases := []struct {
		name  string
		route string
		z     int
		x     int
		query url.Values
		field string
	}{
		{"unknown route", "modis", 12, 1, url.Values{"period": {"DRY"}, "year": {"2023"}, "visparam": {"s2-red"}}, "collection"},
		{"missing period", "s2_harmonized", 12, 1, url.Values{"year": {"2023"}, "visparam": {"s2-red"}}, "period"},
		{"bad year", "s2_harmonized", 12, 1, url.Values{"period": {"DRY"}, "year": {"twenty"}, "visparam": {"s2-red"}}, "year"},
		{"year before collection", "s2_harmonized", 12, 1, url.Values{"period": {"DRY"}, "year": {"2015"}, "visparam": {"s2-red"}}, "year"},
		{"future year", "s2_harmonized", 12, 1, url.Values{"period": {"DRY"}, "year": {"2030"}, "visparam": {"s2-red"}}, "year"},
		{"visparam of other family", "s2_harmonized", 12, 1, url.Values{"period": {"DRY"}, "year": {"2023"}, "visparam": {"landsat-true"}}, "visparam"},
		{"missing visparam", "s2_harmonized", 12, 1, url.Values{"period": {"DRY"}, "year": {"2023"}}, "visparam"},
		{"zoom too low", "s2_harmonized", 9, 1, url.Values{"period": {"DRY"}, "year": {"2023"}, "visparam": {"s2-red"}}, "z"},
		{"zoom too high", "s2_harmonized", 19, 1, url.Values{"period": {"DRY"}, "year": {"2023"}, "visparam": {"s2-red"}}, "z"},
		{"x outside grid", "s2_harmonized", 10, 1024, url.Values{"period": {"DRY"}, "year": {"2023"}, "visparam": {"s2-red"}}, "x"},
		{"month out of range", "s2_harmonized", 12, 1, url.Values{"period": {"MONTH"}, "year": {"2023"}, "month": {"13"}, "visparam": {"s2-red"}}, "month"},
		{"custom without end", "s2_harmonized", 12, 1, url.Values{"period": {"CUSTOM"}, "start": {"2023-01-01"}, "visparam": {"s2-red"}}, "end"},
		{"custom reversed", "s2_harmonized", 12, 1, url.Values{"period": {"CUSTOM"}, "start": {"2023-03-01"}, "end": {"2023-01-01"}, "visparam": {"s2-red"}}, "end"},
		{"landsat 5 after retirement", "landsat-5", 12, 1, url.Values{"period": {"DRY"}, "year": {"2015"}, "visparam": {"landsat-true"}}, "year"},
		{"season for buildings", "open_buildings", 12, 1, url.Values{"period": {"DRY"}, "year": {"2020"}, "visparam": {"building_height"}}, "period"},
		{"year period for imagery", "s2_harmonized", 12, 1, url.Values{"period": {"YEAR"}, "year": {"2023"}, "visparam": {"s2-red"}}, "period"},
		{"buildings after last release", "open_buildings", 12, 1, url.Values{"year": {"2024"}, "visparam": {"building_height"}}, "year"},
		{"imagery visparam for buildings", "open_buildings", 12, 1, url.Values{"year": {"2020"}, "visparam": {"s2-red"}}, "visparam"},
	}

	for _, tc := range cases {
		_, err := ParseTileRequest(tc.route, tc.x, 1, tc.z, tc.query, rules)
		var requestErr *RequestError
		if assert.True(t, errors.As(err, &requestErr), tc.name) {
			assert.Equal(t, tc.field, requestErr.Field, tc.name)
			assert.ErrorIs(t, err, ErrInvalidRequest, tc.name)
		}
	}
}

func TestValidateRejectsStrayFields(t *testing.T) {
	rules := testRules()

	request := wetRequest()
	request.Month = optional.NewInt(3)
	assert.ErrorIs(t, request.Validate(rules), ErrInvalidRequest)

	request = wetRequest()
	request.Start = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.ErrorIs(t, request.Validate(rules), ErrInvalidRequest)

	assert.NoError(t, wetRequest().Validate(rules))
}

func TestDateRangeSeasons(t *testing.T) {
	request := wetRequest()
	start, end := request.DateRange()
	assert.Equal(t, time.Date(2022, 10, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC), end)

	request.Period = PeriodDry
	start, end = request.DateRange()
	assert.Equal(t, time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestParseTileRequestOpenBuildings(t *testing.T) {
	query := url.Values{"year": {"2020"}, "visparam": {"building_presence"}}

	request, err := ParseTileRequest("open_buildings", 9000, 7000, 14, query, testRules())

	require.NoError(t, err)
	assert.Equal(t, OpenBuildings, request.Collection)
	assert.Equal(t, PeriodYear, request.Period)
	start, end := request.DateRange()
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestValidateCapsZoomAtGrid(t *testing.T) {
	rules := testRules()
	rules.MaxZoom = 40

	request := wetRequest()
	request.Zoom = 33
	request.X = 5 + 1<<32

	var requestErr *RequestError
	require.True(t, errors.As(request.Validate(rules), &requestErr))
	assert.Equal(t, "z", requestErr.Field)

	request.Zoom = MaxSupportedZoom
	request.X = 5
	assert.NoError(t, request.Validate(rules))
}
