package tiling

import (
	"fmt"
	"strings"
)

const keyPrefix = "tilesrc"

type CacheKey string

func (k CacheKey) String() string {
	return string(k)
}

// KeyEncoder derives cache keys from tile requests. Parameters come first and
// the spatial token last, so keys of nearby tiles share a prefix.
type KeyEncoder struct {
	index SpatialIndex
}

func NewKeyEncoder(index SpatialIndex) *KeyEncoder {
	if index == nil {
		index = GeohashIndex{}
	}
	return &KeyEncoder{index: index}
}

// Encode expects a validated request. Zoom is not part of the key: tiles of
// neighbouring zooms whose centers land in the same cell share one source,
// which is valid because the source is a layer template covering the cell's
// region rather than a single tile.
func (e *KeyEncoder) Encode(request TileRequest) CacheKey {
	return CacheKey(e.Prefix(request) + e.index.Cell(request.X, request.Y, request.Zoom).Token)
}

// Prefix is the part of the key shared by every tile of the same layer.
func (e *KeyEncoder) Prefix(request TileRequest) string {
	return strings.Join([]string{
		keyPrefix,
		string(request.Collection),
		periodToken(request),
		request.VisParam,
		e.index.Name(),
	}, ":") + ":"
}

func (e *KeyEncoder) Cell(request TileRequest) Cell {
	return e.index.Cell(request.X, request.Y, request.Zoom)
}

func periodToken(request TileRequest) string {
	switch request.Period {
	case PeriodMonth:
		return fmt.Sprintf("%s-%04d-%02d", request.Period, request.Year, request.Month.OrElse(0))
	case PeriodCustom:
		return fmt.Sprintf("%s-%s-%s", request.Period, request.Start.Format("20060102"), request.End.Format("20060102"))
	default:
		return fmt.Sprintf("%s-%04d", request.Period, request.Year)
	}
}
