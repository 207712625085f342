package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"strings"
	"unicode"

	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"
	"github.com/park285/Squares-KakaoTalk-bot/internal/pool"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	cellSize     = 48
	sideMargin   = 56
	topMargin    = 92
	bottomMargin = 24
	rightMargin  = 24
	outlineWidth = 4
)

var (
	bgColor        = "#1c1f2e"
	gridLineColor  = "#3a3f58"
	emptyCellColor = "#f4f1ea"
	headerFill     = "#2a2e44"
	winnerStroke   = "#ffd54f"
	textPrimary    = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	textOnCell     = color.NRGBA{R: 20, G: 22, B: 30, A: 255}
	textWinner     = color.NRGBA{R: 255, G: 213, B: 79, A: 255}
)

// BoardRenderer draws a pool board as PNG.
type BoardRenderer interface {
	RenderPNG(ctx context.Context, b *pool.Board) ([]byte, error)
}

type svgBoardRenderer struct{}

func NewSVGBoardRenderer() BoardRenderer { return &svgBoardRenderer{} }

// Layout returns the image size for an n x n board.
func Layout(n int) (w, h int) {
	return sideMargin + n*cellSize + rightMargin, topMargin + n*cellSize + bottomMargin
}

// CellRect is the pixel rectangle of a raw cell.
func CellRect(c grid.Cell) image.Rectangle {
	x := sideMargin + c.Column*cellSize
	y := topMargin + c.Row*cellSize
	return image.Rect(x, y, x+cellSize, y+cellSize)
}

func (r *svgBoardRenderer) RenderPNG(ctx context.Context, b *pool.Board) ([]byte, error) {
	if b == nil || b.Pool == nil {
		return nil, fmt.Errorf("board is nil")
	}
	n := b.Snapshot.Size()
	if n < 2 {
		return nil, fmt.Errorf("invalid board size %d", n)
	}
	w, h := Layout(n)
	legend := BuildLegend(b.Snapshot.Claims())
	winners := winnersByCell(b.Results)

	svg := boardSVG(b.Snapshot, winners, w, h)
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("parse board svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	raster := rasterx.NewDasher(w, h, scanner)
	icon.Draw(raster, 1.0)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	drawer := &font.Drawer{Dst: img, Face: basicfont.Face7x13}
	drawHeader(drawer, b.Pool, w)
	drawAxisLabels(drawer, b.Snapshot)
	for _, pc := range b.Snapshot.Claims() {
		drawCentered(drawer, CellRect(pc.Cell), legend.Tag(pc.Claim.Owner), textOnCell)
	}
	for cell, periods := range winners {
		rect := CellRect(cell)
		drawer.Src = image.NewUniform(textWinner)
		drawer.Dot = fixed.P(rect.Min.X+3, rect.Max.Y-3)
		if _, claimed := b.Snapshot.ClaimAt(cell); claimed {
			drawer.Src = image.NewUniform(textOnCell)
		}
		drawer.DrawString(periodTag(periods))
	}

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return pngBuf.Bytes(), nil
}

func boardSVG(s grid.Snapshot, winners map[grid.Cell][]int, w, h int) []byte {
	n := s.Size()
	var sb strings.Builder
	fmt.Fprintf(&sb, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, w, h, w, h)
	fmt.Fprintf(&sb, `<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`, w, h, bgColor)
	// axis header strips
	fmt.Fprintf(&sb, `<rect x="%d" y="%d" width="%d" height="%d" fill="%s"/>`, sideMargin, topMargin-24, n*cellSize, 24, headerFill)
	fmt.Fprintf(&sb, `<rect x="%d" y="%d" width="%d" height="%d" fill="%s"/>`, sideMargin-24, topMargin, 24, n*cellSize, headerFill)
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			cell := grid.Cell{Row: row, Column: col}
			fill := emptyCellColor
			if c, ok := s.ClaimAt(cell); ok && validHex(c.DisplayColor) {
				fill = c.DisplayColor
			} else if ok {
				fill = pool.ColorFor(c.Owner)
			}
			r := CellRect(cell)
			fmt.Fprintf(&sb, `<rect x="%d" y="%d" width="%d" height="%d" fill="%s" stroke="%s" stroke-width="1"/>`,
				r.Min.X, r.Min.Y, cellSize, cellSize, fill, gridLineColor)
		}
	}
	for cell := range winners {
		r := CellRect(cell).Inset(outlineWidth / 2)
		fmt.Fprintf(&sb, `<rect x="%d" y="%d" width="%d" height="%d" fill="none" stroke="%s" stroke-width="%d"/>`,
			r.Min.X, r.Min.Y, r.Dx(), r.Dy(), winnerStroke, outlineWidth)
	}
	sb.WriteString(`</svg>`)
	return []byte(sb.String())
}

func drawHeader(d *font.Drawer, p *pool.Pool, w int) {
	title := asciiOnly(p.Name)
	if title == "" {
		title = "Squares"
	}
	if p.Code != "" {
		title += "  [" + p.Code + "]"
	}
	drawCentered(d, image.Rect(0, 8, w, 28), title, textPrimary)
	home, away := asciiOnly(p.HomeTeam), asciiOnly(p.AwayTeam)
	if home == "" {
		home = "HOME"
	}
	if away == "" {
		away = "AWAY"
	}
	drawCentered(d, image.Rect(sideMargin, 36, w-rightMargin, topMargin-28), home+" (columns) vs "+away+" (rows)", textPrimary)
}

// drawAxisLabels writes the home digits over the columns and the away digits
// down the rows.
func drawAxisLabels(d *font.Drawer, s grid.Snapshot) {
	for col, digit := range s.ColumnLabels() {
		r := CellRect(grid.Cell{Column: col})
		drawCentered(d, image.Rect(r.Min.X, topMargin-24, r.Max.X, topMargin), strconv.Itoa(digit), textPrimary)
	}
	for row, digit := range s.RowLabels() {
		r := CellRect(grid.Cell{Row: row})
		drawCentered(d, image.Rect(sideMargin-24, r.Min.Y, sideMargin, r.Max.Y), strconv.Itoa(digit), textPrimary)
	}
}

func drawCentered(d *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	metrics := d.Face.Metrics()
	width := d.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-width)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	d.Src = image.NewUniform(clr)
	d.Dot = fixed.P(x, baseline)
	d.DrawString(text)
}

func winnersByCell(results grid.Results) map[grid.Cell][]int {
	out := make(map[grid.Cell][]int)
	for _, res := range results {
		if res.Status == grid.StatusUnresolved {
			continue
		}
		out[res.Cell] = append(out[res.Cell], res.Period)
	}
	return out
}

func periodTag(periods []int) string {
	parts := make([]string, 0, len(periods))
	for _, p := range periods {
		if p > grid.RegulationPeriods {
			parts = append(parts, "OT")
			continue
		}
		parts = append(parts, "Q"+strconv.Itoa(p))
	}
	return strings.Join(parts, ",")
}

func validHex(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, r := range s[1:] {
		if !unicode.Is(unicode.ASCII_Hex_Digit, r) {
			return false
		}
	}
	return true
}

// asciiOnly drops runes the bitmap font cannot draw.
func asciiOnly(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if r >= 0x20 && r < 0x7f {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
