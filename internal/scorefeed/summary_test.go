package scorefeed

import (
	"os"
	"strings"
	"testing"

	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return b
}

func assertScores(t *testing.T, got []grid.QuarterScore, want [][2]int) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d periods, got %d", len(want), len(got))
	}
	for i, q := range got {
		if q.Period != i+1 || !q.Reported() || *q.Home != want[i][0] || *q.Away != want[i][1] {
			t.Fatalf("period %d: got %+v (home=%v away=%v), want %v", i+1, q, q.Home, q.Away, want[i])
		}
	}
}

func TestParseSummaryInProgress(t *testing.T) {
	s, err := ParseSummary(loadFixture(t, "summary_in.json"))
	if err != nil {
		t.Fatalf("ParseSummary: %v", err)
	}
	if s.HomeTeam != "KC" || s.AwayTeam != "SF" || s.State != StateIn || s.Final() {
		t.Fatalf("unexpected summary %+v", s)
	}
	// third period is still being played
	assertScores(t, s.Scores, [][2]int{{3, 0}, {17, 14}})
}

func TestParseSummaryBreakSettlesCurrentPeriod(t *testing.T) {
	raw := string(loadFixture(t, "summary_in.json"))
	for _, name := range []string{StatusEndPeriod, StatusHalftime} {
		doc := strings.Replace(raw, `"state": "in"`, `"name": "`+name+`", "state": "in"`, 1)
		s, err := ParseSummary([]byte(doc))
		if err != nil {
			t.Fatalf("%s: ParseSummary: %v", name, err)
		}
		if !s.Break() || s.Final() {
			t.Fatalf("%s: unexpected summary %+v", name, s)
		}
		// the third period just ended and is settled
		assertScores(t, s.Scores, [][2]int{{3, 0}, {17, 14}, {24, 17}})
	}
}

func TestParseSummaryFinalWithOvertime(t *testing.T) {
	s, err := ParseSummary(loadFixture(t, "summary_final.json"))
	if err != nil {
		t.Fatalf("ParseSummary: %v", err)
	}
	if !s.Final() {
		t.Fatalf("expected final")
	}
	assertScores(t, s.Scores, [][2]int{{0, 0}, {3, 10}, {13, 10}, {19, 19}, {25, 22}})
	if !s.Scores[4].Overtime() {
		t.Fatalf("period 5 should be overtime")
	}
}

func TestParseSummaryErrors(t *testing.T) {
	if _, err := ParseSummary([]byte("{")); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := ParseSummary([]byte(`{"header":{"id":"1","competitions":[]}}`)); err == nil {
		t.Fatalf("expected error for missing competitions")
	}
	if _, err := ParseSummary([]byte(`{"header":{"id":"1","competitions":[{"competitors":[{"homeAway":"home"}]}]}}`)); err == nil {
		t.Fatalf("expected error for missing away competitor")
	}
}

func TestParseLinescoresUnevenAndBad(t *testing.T) {
	v := func(n float64) Linescore { return Linescore{Value: &n} }
	home := []Linescore{v(7), v(3), v(0)}
	away := []Linescore{v(0), v(7)}
	assertScores(t, ParseLinescores(home, away, -1), [][2]int{{7, 0}, {10, 7}})

	bad := []Linescore{v(7), {DisplayValue: "-"}}
	assertScores(t, ParseLinescores(bad, away, -1), [][2]int{{7, 0}})
	if got := ParseLinescores(home, away, 0); len(got) != 0 {
		t.Fatalf("limit 0 should yield nothing, got %+v", got)
	}
}
