package tiling

import (
	"strconv"
	"strings"
	"time"
)

// TileSourceDescriptor is what the cache holds: where to fetch the tiles of a
// resolved layer, not the tile bytes themselves.
type TileSourceDescriptor struct {
	URL        string     `json:"url"`
	ResolvedAt time.Time  `json:"resolved_at"`
	Collection Collection `json:"collection"`
	VisParam   string     `json:"visparam"`
}

// TileURL fills the {x}, {y} and {z} placeholders of the source URL.
func (d TileSourceDescriptor) TileURL(x, y, z int) string {
	return strings.NewReplacer(
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
		"{z}", strconv.Itoa(z),
	).Replace(d.URL)
}
