package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"
	"github.com/park285/Squares-KakaoTalk-bot/internal/pool"
)

func testBoard(t *testing.T) *pool.Board {
	t.Helper()
	g, err := grid.NewGrid(10, grid.AxisSequential)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	if _, err := g.ClaimCell(4, 7, grid.Claim{Owner: "u1", DisplayName: "Kim Min", DisplayColor: "#e57373"}); err != nil {
		t.Fatalf("ClaimCell: %v", err)
	}
	if _, err := g.ClaimCell(0, 0, grid.Claim{Owner: "u2", DisplayName: "김철수"}); err != nil {
		t.Fatalf("ClaimCell: %v", err)
	}
	snap := g.Snapshot()
	scores := []grid.QuarterScore{grid.Score(1, 17, 14), grid.Score(2, 21, 21)}
	return &pool.Board{
		Pool:     &pool.Pool{Name: "Big Game", Code: "SQ-ABCDEF", HomeTeam: "KC", AwayTeam: "SF", Size: 10},
		Snapshot: snap,
		Scores:   scores,
		Results:  grid.ResolveAllPeriods(snap, scores),
	}
}

func decode(t *testing.T, raw []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("png decode: %v", err)
	}
	return img
}

func near(c color.Color, r, g, b uint8) bool {
	cr, cg, cb, _ := c.RGBA()
	d := func(a uint32, b uint8) int {
		x := int(a>>8) - int(b)
		if x < 0 {
			x = -x
		}
		return x
	}
	return d(cr, r) <= 8 && d(cg, g) <= 8 && d(cb, b) <= 8
}

func TestRenderPNG(t *testing.T) {
	raw, err := NewSVGBoardRenderer().RenderPNG(context.Background(), testBoard(t))
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	img := decode(t, raw)
	w, h := Layout(10)
	if img.Bounds().Dx() != w || img.Bounds().Dy() != h {
		t.Fatalf("unexpected size %v, want %dx%d", img.Bounds(), w, h)
	}

	claimed := CellRect(grid.Cell{Row: 4, Column: 7})
	if c := img.At(claimed.Max.X-10, claimed.Min.Y+10); !near(c, 0xe5, 0x73, 0x73) {
		t.Fatalf("claimed cell not filled with claim color: %v", c)
	}
	empty := CellRect(grid.Cell{Row: 9, Column: 9})
	if c := img.At(empty.Max.X-10, empty.Min.Y+10); !near(c, 0xf4, 0xf1, 0xea) {
		t.Fatalf("empty cell has unexpected color: %v", c)
	}
	// period 1 winner is outlined
	if c := img.At(claimed.Min.X+2, claimed.Min.Y+cellSize/2); !near(c, 0xff, 0xd5, 0x4f) {
		t.Fatalf("winning cell not outlined: %v", c)
	}
}

func TestRenderPNGNilBoard(t *testing.T) {
	if _, err := NewSVGBoardRenderer().RenderPNG(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil board")
	}
}

func TestRenderPNGCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSVGBoardRenderer().RenderPNG(ctx, testBoard(t)); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestLegendTags(t *testing.T) {
	claims := []grid.PlacedClaim{
		{Cell: grid.Cell{Row: 0, Column: 0}, Claim: grid.Claim{Owner: "a", DisplayName: "Kim Min"}},
		{Cell: grid.Cell{Row: 0, Column: 1}, Claim: grid.Claim{Owner: "b", DisplayName: "김철수"}},
		{Cell: grid.Cell{Row: 0, Column: 2}, Claim: grid.Claim{Owner: "c", DisplayName: "Kate Moss"}},
		{Cell: grid.Cell{Row: 1, Column: 0}, Claim: grid.Claim{Owner: "a", DisplayName: "Kim Min"}},
	}
	l := BuildLegend(claims)
	if len(l.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %+v", l.Entries)
	}
	if l.Tag("a") != "KM" || l.Tag("b") != "P2" || l.Tag("c") != "P3" || l.Tag("zz") != "?" {
		t.Fatalf("unexpected tags %q %q %q", l.Tag("a"), l.Tag("b"), l.Tag("c"))
	}
	if l.Entries[0].Cells != 2 {
		t.Fatalf("expected 2 cells for a, got %d", l.Entries[0].Cells)
	}
}
