package responder

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const TileSize = 256

var blankTile = sync.OnceValue(func() []byte {
	return encodePNG(image.NewNRGBA(image.Rect(0, 0, TileSize, TileSize)))
})

// placeholder returns the transparent tile served when no imagery can be
// shown. With labels the tile carries the given lines over a faint frame so
// failures are visible on the map while debugging.
func placeholder(labels ...string) []byte {
	if len(labels) == 0 {
		return blankTile()
	}

	img := image.NewNRGBA(image.Rect(0, 0, TileSize, TileSize))
	frame := color.NRGBA{R: 200, G: 30, B: 30, A: 160}
	for _, edge := range []image.Rectangle{
		image.Rect(0, 0, TileSize, 1),
		image.Rect(0, TileSize-1, TileSize, TileSize),
		image.Rect(0, 0, 1, TileSize),
		image.Rect(TileSize-1, 0, TileSize, TileSize),
	} {
		draw.Draw(img, edge, image.NewUniform(frame), image.Point{}, draw.Src)
	}

	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil()
	top := (TileSize-lineHeight*len(labels))/2 + face.Metrics().Ascent.Ceil()
	for i, label := range labels {
		width := font.MeasureString(face, label).Ceil()
		drawer := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(color.NRGBA{R: 200, G: 30, B: 30, A: 255}),
			Face: face,
			Dot:  fixed.P((TileSize-width)/2, top+i*lineHeight),
		}
		drawer.DrawString(label)
	}

	return encodePNG(img)
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	// encoding an in-memory NRGBA image does not fail
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
