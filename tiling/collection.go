package tiling

import "sort"

type Family string

const (
	FamilySentinel2 Family = "sentinel2"
	FamilyLandsat   Family = "landsat"
	FamilyBuildings Family = "buildings"
)

// Periods lists the periods a family accepts. Building layers are annual
// composites, so they only take YEAR.
func (f Family) Periods() []Period {
	if f == FamilyBuildings {
		return []Period{PeriodYear}
	}
	return []Period{PeriodDry, PeriodWet, PeriodMonth, PeriodCustom}
}

func (f Family) allows(period Period) bool {
	for _, allowed := range f.Periods() {
		if allowed == period {
			return true
		}
	}
	return false
}

type Collection string

const (
	Sentinel2Harmonized Collection = "sentinel-2-harmonized"
	Landsat5            Collection = "landsat-5"
	Landsat7            Collection = "landsat-7"
	Landsat8            Collection = "landsat-8"
	Landsat9            Collection = "landsat-9"
	OpenBuildings       Collection = "open-buildings"
)

type collectionInfo struct {
	family  Family
	assetID string
	minYear int
	// zero means the collection is still acquiring
	maxYear int
}

var collections = map[Collection]collectionInfo{
	Sentinel2Harmonized: {family: FamilySentinel2, assetID: "COPERNICUS/S2_SR_HARMONIZED", minYear: 2017},
	Landsat5:            {family: FamilyLandsat, assetID: "LANDSAT/LT05/C02/T1_L2", minYear: 1985, maxYear: 2012},
	Landsat7:            {family: FamilyLandsat, assetID: "LANDSAT/LE07/C02/T1_L2", minYear: 1999},
	Landsat8:            {family: FamilyLandsat, assetID: "LANDSAT/LC08/C02/T1_L2", minYear: 2013},
	Landsat9:            {family: FamilyLandsat, assetID: "LANDSAT/LC09/C02/T1_L2", minYear: 2021},
	OpenBuildings:       {family: FamilyBuildings, assetID: "GOOGLE/Research/open-buildings-temporal/v1", minYear: 2016, maxYear: 2023},
}

func (c Collection) Valid() bool {
	_, ok := collections[c]
	return ok
}

func (c Collection) Family() Family {
	return collections[c].family
}

// AssetID is the upstream identifier of the image collection.
func (c Collection) AssetID() string {
	return collections[c].assetID
}

// YearRange returns the first and last acquisition year; last is zero when open ended.
func (c Collection) YearRange() (int, int) {
	info := collections[c]
	return info.minYear, info.maxYear
}

// Collections lists the known collections in a stable order.
func Collections() []Collection {
	list := make([]Collection, 0, len(collections))
	for c := range collections {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}

const (
	autoLandsatRoute   = "landsat"
	openBuildingsRoute = "open_buildings"
)

var routes = map[string]Collection{
	"s2_harmonized":    Sentinel2Harmonized,
	"landsat-5":        Landsat5,
	"landsat-7":        Landsat7,
	"landsat-8":        Landsat8,
	"landsat-9":        Landsat9,
	openBuildingsRoute: OpenBuildings,
}

// Routes lists the URL route segments accepted by CollectionForRoute.
func Routes() []string {
	list := []string{autoLandsatRoute}
	for route := range routes {
		list = append(list, route)
	}
	sort.Strings(list)
	return list
}

// CollectionForRoute maps a URL route segment to a collection. The plain
// "landsat" route picks the satellite that best covers the given year.
func CollectionForRoute(route string, year int) (Collection, error) {
	if route == autoLandsatRoute {
		return landsatForYear(year), nil
	}

	collection, ok := routes[route]
	if !ok {
		return "", invalid("collection", "unknown route %q", route)
	}
	return collection, nil
}

func landsatForYear(year int) Collection {
	switch {
	case year <= 2011:
		return Landsat5
	case year == 2012:
		return Landsat7
	case year <= 2021:
		return Landsat8
	default:
		return Landsat9
	}
}
