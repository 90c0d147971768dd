package terrain

import (
	"image"
	"image/color"
	"image/draw"
	"io"

	"github.com/gekko3d/planets/planetrt/rt/core"
	"golang.org/x/image/bmp"
)

// faceCells places each face on a 4x3 cube cross.
var faceCells = [core.NumOrientations]image.Point{
	core.XNeg: {0, 1},
	core.XPos: {2, 1},
	core.YNeg: {1, 2},
	core.YPos: {1, 0},
	core.ZNeg: {3, 1},
	core.ZPos: {1, 1},
}

var levelPalette = []color.RGBA{
	{0x1f, 0x3a, 0x93, 0xff},
	{0x2b, 0x6c, 0xb0, 0xff},
	{0x2f, 0x9e, 0x8f, 0xff},
	{0x5c, 0xb8, 0x5c, 0xff},
	{0xb5, 0xcc, 0x3d, 0xff},
	{0xf0, 0xc4, 0x2c, 0xff},
	{0xef, 0x8a, 0x24, 0xff},
	{0xd9, 0x48, 0x2b, 0xff},
	{0xa8, 0x24, 0x5c, 0xff},
	{0x6c, 0x25, 0x8c, 0xff},
}

// CoverageImage draws the drawn patches of dl onto an unfolded cube, one
// faceSize square per face, coloured by level. Useful to eyeball LOD.
func (p *Planet) CoverageImage(dl DrawList, faceSize int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4*faceSize, 3*faceSize))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{0x10, 0x10, 0x10, 0xff}), image.Point{}, draw.Src)

	for _, id := range dl.Patches {
		h := p.patches[id].Hash
		cell := faceCells[h.Orientation()].Mul(faceSize)
		size := h.Size() / 2 * float64(faceSize)
		x0 := int((h.Dim0() + 1) / 2 * float64(faceSize))
		// dim1 grows upwards.
		y1 := faceSize - int((h.Dim1()+1)/2*float64(faceSize))
		r := image.Rect(x0, y1-int(size+0.5), x0+int(size+0.5), y1).Add(cell)
		if r.Empty() {
			r = image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Min.Y+1)
		}
		c := levelPalette[h.Level()%len(levelPalette)]
		draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
	}
	return img
}

// WriteCoverage encodes img as a BMP.
func WriteCoverage(w io.Writer, img image.Image) error {
	return bmp.Encode(w, img)
}
