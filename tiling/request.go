package tiling

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/markphelps/optional"
)

const DateLayout = "2006-01-02"

// MaxSupportedZoom is the deepest zoom the spatial indexes quantize; the
// geohash precision stops growing there.
const MaxSupportedZoom = 18

// TileRequest identifies one rendered tile. Values are immutable once parsed.
type TileRequest struct {
	Collection Collection
	Period     Period
	Year       int
	Month      optional.Int
	// Start and End bound a CUSTOM period, both days inclusive.
	Start    time.Time
	End      time.Time
	VisParam string
	Zoom     int
	X        int
	Y        int
}

// Rules holds the configurable limits a request is validated against.
type Rules struct {
	MinZoom   int
	MaxZoom   int
	VisParams map[Family][]string
	Now       func() time.Time
}

func DefaultRules() Rules {
	return Rules{
		MinZoom: 10,
		MaxZoom: 18,
		VisParams: map[Family][]string{
			FamilySentinel2: {"s2-green", "s2-red", "s2-rgb"},
			FamilyLandsat:   {"landsat-true", "landsat-agri", "landsat-false"},
			FamilyBuildings: {"building_presence", "building_height"},
		},
		Now: time.Now,
	}
}

func (rules Rules) currentYear() int {
	if rules.Now == nil {
		return time.Now().Year()
	}
	return rules.Now().Year()
}

func (rules Rules) allowsVisParam(family Family, name string) bool {
	for _, allowed := range rules.VisParams[family] {
		if allowed == name {
			return true
		}
	}
	return false
}

// Validate checks that every field required by the request's period is
// present and consistent with the collection.
func (r TileRequest) Validate(rules Rules) error {
	if !r.Collection.Valid() {
		return invalid("collection", "unknown collection %q", r.Collection)
	}

	if r.VisParam == "" {
		return invalid("visparam", "is required")
	}
	if !rules.allowsVisParam(r.Collection.Family(), r.VisParam) {
		return invalid("visparam", "%q is not available for %s", r.VisParam, r.Collection)
	}

	maxZoom := min(rules.MaxZoom, MaxSupportedZoom)
	if r.Zoom < max(rules.MinZoom, 0) || r.Zoom > maxZoom {
		return invalid("z", "must be between %d and %d, got %d", rules.MinZoom, maxZoom, r.Zoom)
	}
	limit := 1 << uint(r.Zoom)
	if r.X < 0 || r.X >= limit {
		return invalid("x", "must be in [0, %d), got %d", limit, r.X)
	}
	if r.Y < 0 || r.Y >= limit {
		return invalid("y", "must be in [0, %d), got %d", limit, r.Y)
	}

	if !r.Collection.Family().allows(r.Period) {
		return invalid("period", "%s is not available for %s", r.Period, r.Collection)
	}

	switch r.Period {
	case PeriodDry, PeriodWet, PeriodYear:
		if r.Month.Present() {
			return invalid("month", "only applies to MONTH periods")
		}
	case PeriodMonth:
		month, err := r.Month.Get()
		if err != nil {
			return invalid("month", "is required when period is MONTH")
		}
		if month < 1 || month > 12 {
			return invalid("month", "must be between 1 and 12, got %d", month)
		}
	case PeriodCustom:
		if r.Month.Present() {
			return invalid("month", "only applies to MONTH periods")
		}
		if r.Start.IsZero() || r.End.IsZero() {
			return invalid("start", "start and end are required when period is CUSTOM")
		}
		if r.End.Before(r.Start) {
			return invalid("end", "must not be before start")
		}
		if r.Year != r.Start.Year() {
			return invalid("year", "must match the start of a CUSTOM range")
		}
	default:
		return invalid("period", "unknown period %q", r.Period)
	}
	if r.Period != PeriodCustom && (!r.Start.IsZero() || !r.End.IsZero()) {
		return invalid("start", "only applies to CUSTOM periods")
	}

	minYear, maxYear := r.Collection.YearRange()
	if maxYear == 0 {
		maxYear = rules.currentYear()
	}
	if r.Year < minYear || r.Year > maxYear {
		return invalid("year", "must be between %d and %d for %s, got %d", minYear, maxYear, r.Collection, r.Year)
	}
	if r.Period == PeriodCustom && r.End.Year() > maxYear {
		return invalid("end", "is after the last acquisition year %d of %s", maxYear, r.Collection)
	}

	return nil
}

// ParseTileRequest builds a request from a collection route, tile coordinates
// and query parameters, then validates it. Parameters that do not apply to the
// chosen period are dropped so equal requests always compare equal.
func ParseTileRequest(route string, x, y, z int, query url.Values, rules Rules) (TileRequest, error) {
	request := TileRequest{
		VisParam: strings.TrimSpace(query.Get("visparam")),
		Zoom:     z,
		X:        x,
		Y:        y,
	}

	rawPeriod := query.Get("period")
	if rawPeriod == "" && route == openBuildingsRoute {
		rawPeriod = string(PeriodYear)
	}
	period, err := ParsePeriod(rawPeriod)
	if err != nil {
		return TileRequest{}, err
	}
	request.Period = period

	if period == PeriodCustom {
		request.Start, err = parseDate("start", query.Get("start"))
		if err != nil {
			return TileRequest{}, err
		}
		request.End, err = parseDate("end", query.Get("end"))
		if err != nil {
			return TileRequest{}, err
		}
		request.Year = request.Start.Year()
	} else {
		request.Year, err = parseInt("year", query.Get("year"))
		if err != nil {
			return TileRequest{}, err
		}
	}

	if period == PeriodMonth {
		raw := query.Get("month")
		if raw == "" {
			return TileRequest{}, invalid("month", "is required when period is MONTH")
		}
		month, err := parseInt("month", raw)
		if err != nil {
			return TileRequest{}, err
		}
		request.Month = optional.NewInt(month)
	}

	request.Collection, err = CollectionForRoute(route, request.Year)
	if err != nil {
		return TileRequest{}, err
	}

	if err := request.Validate(rules); err != nil {
		return TileRequest{}, err
	}
	return request, nil
}

func parseInt(field string, raw string) (int, error) {
	if raw == "" {
		return 0, invalid(field, "is required")
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, invalid(field, "must be an integer, got %q", raw)
	}
	return value, nil
}

func parseDate(field string, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, invalid(field, "is required")
	}
	value, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, invalid(field, "must be a %s date, got %q", DateLayout, raw)
	}
	return value, nil
}
