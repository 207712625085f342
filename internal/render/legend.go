package render

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"
)

// LegendEntry maps a cell tag to the player it stands for.
type LegendEntry struct {
	Tag   string
	Owner string
	Name  string
	Cells int
}

// Legend assigns each owner a short tag that fits in a cell. Owners are
// numbered in order of their first cell so tags stay stable for one board.
type Legend struct {
	Entries []LegendEntry
	byOwner map[string]int
}

func BuildLegend(claims []grid.PlacedClaim) Legend {
	l := Legend{byOwner: make(map[string]int)}
	used := make(map[string]bool)
	for _, pc := range claims {
		if i, ok := l.byOwner[pc.Claim.Owner]; ok {
			l.Entries[i].Cells++
			continue
		}
		num := len(l.Entries) + 1
		tag := initials(pc.Claim.Label())
		if tag == "" || used[tag] {
			tag = "P" + strconv.Itoa(num)
		}
		used[tag] = true
		l.byOwner[pc.Claim.Owner] = len(l.Entries)
		l.Entries = append(l.Entries, LegendEntry{Tag: tag, Owner: pc.Claim.Owner, Name: pc.Claim.Label(), Cells: 1})
	}
	return l
}

// Tag returns the owner's tag or "?" when the owner has no cell.
func (l Legend) Tag(owner string) string {
	if i, ok := l.byOwner[owner]; ok {
		return l.Entries[i].Tag
	}
	return "?"
}

// initials takes the first letter of up to three ASCII words.
func initials(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		r := rune(word[0])
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return ""
		}
		b.WriteRune(unicode.ToUpper(r))
		if b.Len() == 3 {
			break
		}
	}
	return b.String()
}
