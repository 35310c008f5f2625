package charts

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"strconv"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

var (
	ColorFirst  = color.RGBA{0x87, 0xce, 0xeb, 0xff}
	ColorSecond = color.RGBA{0xfa, 0x80, 0x72, 0xff}

	colorBackground = color.RGBA{0xff, 0xff, 0xff, 0xff}
	colorText       = color.RGBA{0x20, 0x20, 0x20, 0xff}
	colorAxis       = color.RGBA{0x40, 0x40, 0x40, 0xff}
	colorGrid       = color.RGBA{0xe0, 0xe0, 0xe0, 0xff}
	colorEdge       = color.RGBA{0x00, 0x00, 0x00, 0xff}
)

const (
	titleSize = 16.0
	labelSize = 11.0
	tickSize  = 10.0
	gridLines = 5
)

var (
	fontOnce   sync.Once
	parsedFont *truetype.Font
	fontErr    error
)

// loadFont parses the Go regular font once. It covers Cyrillic, which every
// label in this bot needs.
func loadFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		parsedFont, fontErr = freetype.ParseFont(goregular.TTF)
	})
	return parsedFont, fontErr
}

type align int

const (
	alignLeft align = iota
	alignCenter
	alignRight
)

type margins struct {
	top, right, bottom, left int
}

type canvas struct {
	img   *image.RGBA
	font  *truetype.Font
	faces map[float64]font.Face
	plot  image.Rectangle
}

func newCanvas(width, height int, m margins) (*canvas, error) {
	f, err := loadFont()
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorBackground), image.Point{}, draw.Src)

	return &canvas{
		img:   img,
		font:  f,
		faces: make(map[float64]font.Face),
		plot:  image.Rect(m.left, m.top, width-m.right, height-m.bottom),
	}, nil
}

func (c *canvas) face(size float64) font.Face {
	if f, ok := c.faces[size]; ok {
		return f
	}
	f := truetype.NewFace(c.font, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	c.faces[size] = f
	return f
}

func (c *canvas) fill(r image.Rectangle, col color.Color) {
	draw.Draw(c.img, r.Intersect(c.img.Bounds()), image.NewUniform(col), image.Point{}, draw.Src)
}

// outline draws a one pixel border just inside r.
func (c *canvas) outline(r image.Rectangle, col color.Color) {
	if r.Empty() {
		return
	}
	c.fill(image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), col)
	c.fill(image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), col)
	c.fill(image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y), col)
	c.fill(image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y), col)
}

func (c *canvas) textWidth(s string, size float64) int {
	d := &font.Drawer{Face: c.face(size)}
	return d.MeasureString(s).Ceil()
}

// text draws s with its baseline at y, anchored at x according to a.
func (c *canvas) text(s string, x, y int, size float64, col color.Color, a align) {
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: c.face(size),
	}
	w := d.MeasureString(s).Ceil()
	switch a {
	case alignCenter:
		x -= w / 2
	case alignRight:
		x -= w
	}
	d.Dot = fixed.P(x, y)
	d.DrawString(s)
}

// fit shortens s rune by rune until it fits into width pixels.
func (c *canvas) fit(s string, width int, size float64) string {
	if c.textWidth(s, size) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 1 {
		r = r[:len(r)-1]
		candidate := string(r) + "…"
		if c.textWidth(candidate, size) <= width {
			return candidate
		}
	}
	return string(r)
}

func (c *canvas) title(s string) {
	if s == "" {
		return
	}
	b := c.img.Bounds()
	c.text(c.fit(s, b.Dx()-20, titleSize), b.Dx()/2, c.plot.Min.Y/2+int(titleSize/2), titleSize, colorText, alignCenter)
}

// axes draws gridlines with tick labels for [0, top] and the two axis lines.
func (c *canvas) axes(top float64) {
	for i := 0; i <= gridLines; i++ {
		v := top * float64(i) / gridLines
		y := c.y(v, top)
		if i > 0 {
			c.fill(image.Rect(c.plot.Min.X, y, c.plot.Max.X, y+1), colorGrid)
		}
		c.text(formatValue(v), c.plot.Min.X-6, y+int(tickSize/2)-1, tickSize, colorText, alignRight)
	}
	c.fill(image.Rect(c.plot.Min.X, c.plot.Max.Y, c.plot.Max.X, c.plot.Max.Y+1), colorAxis)
	c.fill(image.Rect(c.plot.Min.X-1, c.plot.Min.Y, c.plot.Min.X, c.plot.Max.Y+1), colorAxis)
}

// y maps a value onto the plot area, where top is the value at the upper edge.
func (c *canvas) y(v, top float64) int {
	if top <= 0 {
		return c.plot.Max.Y
	}
	if v < 0 {
		v = 0
	}
	h := float64(c.plot.Dy()) * v / top
	return c.plot.Max.Y - int(math.Round(h))
}

// bar draws a filled, outlined bar from the baseline up to v.
func (c *canvas) bar(x0, x1 int, v, top float64, col color.Color) {
	r := image.Rect(x0, c.y(v, top), x1, c.plot.Max.Y)
	c.fill(r, col)
	c.outline(r, colorEdge)
}

func (c *canvas) legend(entries []Series) {
	x := c.plot.Min.X + 8
	y := c.plot.Min.Y + 6
	for _, e := range entries {
		c.fill(image.Rect(x, y, x+12, y+12), toRGBA(e.Color))
		c.outline(image.Rect(x, y, x+12, y+12), colorEdge)
		c.text(e.Name, x+18, y+11, labelSize, colorText, alignLeft)
		y += 18
	}
}

func (c *canvas) save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	if err := png.Encode(f, c.img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode chart: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write chart file: %w", err)
	}
	return nil
}

// niceCeil rounds v up to 1, 2, 2.5, 5 or 10 times a power of ten.
func niceCeil(v float64) float64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 1
	}
	exp := math.Pow(10, math.Floor(math.Log10(v)))
	for _, m := range []float64{1, 2, 2.5, 5, 10} {
		if v <= m*exp {
			return m * exp
		}
	}
	return 10 * exp
}

func formatValue(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
