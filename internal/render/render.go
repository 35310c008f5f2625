// Package render builds the comparison of two buildings: the field-by-field
// text, the chart files and the winner line.
package render

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"housebot/server/internal/charts"
	"housebot/server/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Winner int

const (
	Tie Winner = iota
	FirstWins
	SecondWins
)

func (w Winner) Line() string {
	switch w {
	case FirstWins:
		return "➡ Первый дом лучше."
	case SecondWins:
		return "➡ Второй дом лучше."
	default:
		return "➡ Рейтинги домов равны."
	}
}

// Decide compares total scores with a strict greater-than. Equal scores tie.
func Decide(a, b *models.Building) Winner {
	switch {
	case a.TotalScore > b.TotalScore:
		return FirstWins
	case a.TotalScore < b.TotalScore:
		return SecondWins
	default:
		return Tie
	}
}

const (
	CombinedCaption     = "Сравнительная аналитика"
	DistributionCaption = "Распределение рейтингов"
	combinedTitle       = "Сравнение домов по показателям"
	legendRunes         = 20
)

// Report holds everything the bot sends for one comparison. Its files live
// in a directory owned by the report; Close removes them.
type Report struct {
	Text     string
	Album    []models.Photo
	Combined models.Photo
	Summary  string
	Winner   Winner

	dir string
}

func (r *Report) Close() error {
	if r == nil || r.dir == "" {
		return nil
	}
	return os.RemoveAll(r.dir)
}

type Renderer struct {
	logger  *logrus.Logger
	tempDir string
}

// NewRenderer creates a renderer writing under tempDir, or the system temp
// directory when tempDir is empty.
func NewRenderer(logger *logrus.Logger, tempDir string) *Renderer {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Renderer{logger: logger, tempDir: tempDir}
}

func (r *Renderer) workspace() (string, error) {
	dir := filepath.Join(r.tempDir, "housebot-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create chart directory: %w", err)
	}
	return dir, nil
}

// Render compares a and b. labelA and labelB name the two sides in the
// summary and the combined chart legend.
func (r *Renderer) Render(ctx context.Context, a, b *models.Building, labelA, labelB string) (*Report, error) {
	if a == nil || b == nil {
		return nil, errors.New("both buildings are required")
	}

	dir, err := r.workspace()
	if err != nil {
		return nil, err
	}
	report := &Report{
		Text:    Text(a, b),
		Summary: Summary(a, b, labelA, labelB),
		Winner:  Decide(a, b),
		dir:     dir,
	}

	pairColors := []color.Color{charts.ColorFirst, charts.ColorSecond}
	for i, f := range Fields {
		if err := ctx.Err(); err != nil {
			report.Close()
			return nil, err
		}
		va, okA := f.Value(a)
		vb, okB := f.Value(b)
		if !okA || !okB {
			continue
		}

		path := filepath.Join(dir, fmt.Sprintf("compare_%02d_%s.png", i, f.Key))
		if err := charts.Pair(path, f.Label, []string{"Дом 1", "Дом 2"}, []float64{va, vb}, pairColors); err != nil {
			report.Close()
			return nil, fmt.Errorf("failed to draw %s chart: %w", f.Key, err)
		}
		report.Album = append(report.Album, models.Photo{Path: path, Caption: "Сравнение по: " + f.Label})
	}

	labels := make([]string, len(Fields))
	valsA := make([]float64, len(Fields))
	valsB := make([]float64, len(Fields))
	for i, f := range Fields {
		labels[i] = f.Label
		valsA[i], _ = f.Value(a)
		valsB[i], _ = f.Value(b)
	}

	combined := filepath.Join(dir, "house_comparison.png")
	err = charts.Grouped(combined, combinedTitle, labels,
		charts.Series{Name: truncate(labelA, legendRunes), Values: valsA, Color: charts.ColorFirst},
		charts.Series{Name: truncate(labelB, legendRunes), Values: valsB, Color: charts.ColorSecond},
	)
	if err != nil {
		report.Close()
		return nil, fmt.Errorf("failed to draw combined chart: %w", err)
	}
	report.Combined = models.Photo{Path: combined, Caption: CombinedCaption}

	r.logger.WithFields(logrus.Fields{
		"first_id":  a.ID,
		"second_id": b.ID,
		"charts":    len(report.Album) + 1,
		"dir":       dir,
	}).Debug("Rendered comparison")

	return report, nil
}

// Chart is a single rendered image that removes itself on Close.
type Chart struct {
	Photo models.Photo
	dir   string
}

func (c *Chart) Close() error {
	if c == nil || c.dir == "" {
		return nil
	}
	return os.RemoveAll(c.dir)
}

// Distribution draws the histogram of total scores in ten bins over 0..100.
func (r *Renderer) Distribution(ctx context.Context, scores []float64) (*Chart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := r.workspace()
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, "distribution.png")
	if err := charts.Histogram(path, DistributionCaption, "Рейтинг", "Количество домов", scores, 10, 0, 100); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to draw distribution: %w", err)
	}
	return &Chart{Photo: models.Photo{Path: path, Caption: DistributionCaption}, dir: dir}, nil
}

// Text is the field-by-field comparison, formatted for Markdown.
func Text(a, b *models.Building) string {
	lines := []string{"📊 *Сравнение домов по параметрам:*"}
	for _, f := range Fields {
		lines = append(lines, fmt.Sprintf("- %s: %s vs %s", f.Label, FormatValue(f.Value(a)), FormatValue(f.Value(b))))
	}
	return strings.Join(lines, "\n")
}

// Summary lists both sides' scores and ends with the winner line. It is
// plain text since labels may contain Markdown characters.
func Summary(a, b *models.Building, labelA, labelB string) string {
	side := func(n int, label string, bld *models.Building) []string {
		return []string{
			fmt.Sprintf("[%d] %s", n, label),
			fmt.Sprintf("  Рейтинг: %s", FormatValue(bld.TotalScore, true)),
			fmt.Sprintf("  Соц: %s, Качество: %s, Транспорт: %s",
				FormatValue(bld.SocialScore, true),
				FormatValue(bld.QualityScore, true),
				FormatValue(bld.TransportScore, true)),
		}
	}

	lines := []string{"Сравнение:"}
	lines = append(lines, side(1, labelA, a)...)
	lines = append(lines, "")
	lines = append(lines, side(2, labelB, b)...)
	lines = append(lines, Decide(a, b).Line())
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
