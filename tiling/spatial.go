package tiling

import (
	"fmt"
	"math"

	"github.com/mmcloughlin/geohash"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/uber/h3-go/v4"
)

// Cell is the spatial bucket a tile falls into. Region is the area whose
// imagery a cached tile source must cover; it depends only on Token.
type Cell struct {
	Token  string
	Region orb.Bound
}

// SpatialIndex quantizes a tile into a cell whose size shrinks as zoom grows.
type SpatialIndex interface {
	Name() string
	Cell(x, y, z int) Cell
}

func NewSpatialIndex(name string) (SpatialIndex, error) {
	switch name {
	case "", "geohash":
		return GeohashIndex{}, nil
	case "h3":
		return H3Index{}, nil
	default:
		return nil, fmt.Errorf("unknown spatial index %q", name)
	}
}

func tileCenter(x, y, z int) orb.Point {
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(z)).Center()
}

type GeohashIndex struct{}

func (GeohashIndex) Name() string {
	return "geohash"
}

func (GeohashIndex) Cell(x, y, z int) Cell {
	center := tileCenter(x, y, z)
	token := geohash.EncodeWithPrecision(center.Lat(), center.Lon(), geohashPrecision(z))
	box := geohash.BoundingBox(token)

	width := box.MaxLng - box.MinLng
	height := box.MaxLat - box.MinLat
	region := orb.Bound{
		Min: orb.Point{math.Max(box.MinLng-width, -180), math.Max(box.MinLat-height, -90)},
		Max: orb.Point{math.Min(box.MaxLng+width, 180), math.Min(box.MaxLat+height, 90)},
	}
	return Cell{Token: token, Region: region}
}

// geohashPrecision maps zoom 10 to 3 characters and zoom 18 to 7, so a
// cell is never smaller than the tiles it groups.
func geohashPrecision(z int) uint {
	precision := (z - 4) / 2
	if precision < 3 {
		precision = 3
	}
	if precision > 7 {
		precision = 7
	}
	return uint(precision)
}

type H3Index struct{}

func (H3Index) Name() string {
	return "h3"
}

func (H3Index) Cell(x, y, z int) Cell {
	center := tileCenter(x, y, z)
	cell := h3.LatLngToCell(h3.NewLatLng(center.Lat(), center.Lon()), translateZoomToH3Resolution(z))

	region := orb.Bound{Min: orb.Point{180, 90}, Max: orb.Point{-180, -90}}
	for _, neighbour := range cell.GridDisk(1) {
		for _, vertex := range neighbour.Boundary() {
			region = region.Extend(orb.Point{vertex.Lng, vertex.Lat})
		}
	}
	return Cell{Token: cell.String(), Region: region}
}

// translateZoomToH3Resolution keeps a cell and its ring at least as wide as
// the tile at that zoom.
func translateZoomToH3Resolution(z int) int {
	resolution := math.Floor(((1.8 / 3.0) * float64(z)) - 1)
	return int(math.Max(0, math.Min(float64(h3.MaxResolution), resolution)))
}
