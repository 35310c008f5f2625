// Package charts renders the bot's bar charts and histograms as PNG files.
package charts

import (
	"errors"
	"fmt"
	"image/color"
	"math"
)

// Series is one named set of values drawn in a single colour.
type Series struct {
	Name   string
	Values []float64
	Color  color.Color
}

var ErrNoData = errors.New("no data to plot")

// Pair draws one bar per value, in the order given, and writes the PNG to path.
func Pair(path, title string, labels []string, values []float64, colors []color.Color) error {
	if len(values) == 0 {
		return ErrNoData
	}
	if len(labels) != len(values) {
		return fmt.Errorf("got %d labels for %d values", len(labels), len(values))
	}

	c, err := newCanvas(400, 300, margins{top: 40, right: 20, bottom: 40, left: 60})
	if err != nil {
		return err
	}
	c.title(title)

	top := niceCeil(maxOf(values))
	c.axes(top)

	slot := c.plot.Dx() / len(values)
	barWidth := slot * 3 / 5
	for i, v := range values {
		x0 := c.plot.Min.X + i*slot + (slot-barWidth)/2
		col := ColorFirst
		if len(colors) > 0 {
			col = toRGBA(colors[i%len(colors)])
		}
		c.bar(x0, x0+barWidth, v, top, col)
		c.text(formatValue(v), x0+barWidth/2, c.y(v, top)-4, tickSize, colorText, alignCenter)
		c.text(c.fit(labels[i], slot-4, labelSize), x0+barWidth/2, c.plot.Max.Y+16, labelSize, colorText, alignCenter)
	}

	return c.save(path)
}

// Grouped draws the series side by side for every category, with a legend.
func Grouped(path, title string, categories []string, series ...Series) error {
	if len(categories) == 0 || len(series) == 0 {
		return ErrNoData
	}
	for _, s := range series {
		if len(s.Values) != len(categories) {
			return fmt.Errorf("series %q has %d values for %d categories", s.Name, len(s.Values), len(categories))
		}
	}

	c, err := newCanvas(1000, 500, margins{top: 40, right: 20, bottom: 60, left: 70})
	if err != nil {
		return err
	}
	c.title(title)

	var all []float64
	for _, s := range series {
		all = append(all, s.Values...)
	}
	// Leave headroom for the legend.
	top := niceCeil(maxOf(all) * 1.15)
	c.axes(top)

	slot := c.plot.Dx() / len(categories)
	groupWidth := slot * 7 / 10
	barWidth := groupWidth / len(series)
	for i, cat := range categories {
		x := c.plot.Min.X + i*slot + (slot-groupWidth)/2
		for j, s := range series {
			x0 := x + j*barWidth
			c.bar(x0, x0+barWidth, s.Values[i], top, toRGBA(s.Color))
		}
		c.text(c.fit(cat, slot-4, labelSize), x+groupWidth/2, c.plot.Max.Y+16, labelSize, colorText, alignCenter)
	}
	c.legend(series)

	return c.save(path)
}

// Histogram counts values into bins of equal width over [lo, hi] and draws them.
func Histogram(path, title, xLabel, yLabel string, values []float64, bins int, lo, hi float64) error {
	if len(values) == 0 {
		return ErrNoData
	}
	counts, err := Bins(values, bins, lo, hi)
	if err != nil {
		return err
	}

	c, err := newCanvas(600, 400, margins{top: 40, right: 20, bottom: 55, left: 60})
	if err != nil {
		return err
	}
	c.title(title)

	maxCount := 0
	for _, n := range counts {
		if n > maxCount {
			maxCount = n
		}
	}
	top := niceCeil(float64(maxCount))
	c.axes(top)

	width := float64(c.plot.Dx()) / float64(bins)
	step := (hi - lo) / float64(bins)
	for i, n := range counts {
		x0 := c.plot.Min.X + int(math.Round(float64(i)*width))
		x1 := c.plot.Min.X + int(math.Round(float64(i+1)*width))
		c.bar(x0, x1, float64(n), top, ColorFirst)
		c.text(formatValue(lo+float64(i)*step), x0, c.plot.Max.Y+14, tickSize, colorText, alignCenter)
	}
	c.text(formatValue(hi), c.plot.Max.X, c.plot.Max.Y+14, tickSize, colorText, alignCenter)

	if xLabel != "" {
		c.text(xLabel, c.plot.Min.X+c.plot.Dx()/2, c.plot.Max.Y+40, labelSize, colorText, alignCenter)
	}
	if yLabel != "" {
		c.text(yLabel, c.plot.Min.X, c.plot.Min.Y-6, labelSize, colorText, alignLeft)
	}

	return c.save(path)
}

// Bins counts values into n equal-width bins over [lo, hi]. The last bin is
// closed so hi itself is counted; values outside the range are ignored.
func Bins(values []float64, n int, lo, hi float64) ([]int, error) {
	if n <= 0 {
		return nil, fmt.Errorf("bin count must be positive, got %d", n)
	}
	if !(hi > lo) {
		return nil, fmt.Errorf("invalid range [%v, %v]", lo, hi)
	}

	counts := make([]int, n)
	width := (hi - lo) / float64(n)
	for _, v := range values {
		if math.IsNaN(v) || v < lo || v > hi {
			continue
		}
		i := int((v - lo) / width)
		if i >= n {
			i = n - 1
		}
		counts[i]++
	}
	return counts, nil
}

func maxOf(values []float64) float64 {
	m := 0.0
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}

func toRGBA(c color.Color) color.RGBA {
	if c == nil {
		return ColorFirst
	}
	r, g, b, a := c.RGBA()
	return color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}
