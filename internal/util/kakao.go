package util

import "strings"

const (
	KakaoSeeMorePadding = 500
	KakaoZeroWidthSpace = "\u200b"
	// 이 줄 수를 넘으면 '전체보기'로 접는다.
	KakaoFoldLines = 12
)

// FoldLong keeps the first line visible and pushes the rest behind KakaoTalk's
// '전체보기' fold. Short messages pass through untouched.
func FoldLong(text string) string {
	text = strings.TrimRight(text, "\n")
	if strings.Count(text, "\n")+1 <= KakaoFoldLines {
		return text
	}
	head, body, _ := strings.Cut(text, "\n")
	return Fold(head, body)
}

// Fold writes header, then zero width padding, then body on a new line.
func Fold(header, body string) string {
	if strings.TrimSpace(body) == "" {
		return header
	}
	header = strings.TrimSpace(header)

	var b strings.Builder
	b.Grow(len(header) + KakaoSeeMorePadding*len(KakaoZeroWidthSpace) + len(body) + 1)
	b.WriteString(header)
	b.WriteString(strings.Repeat(KakaoZeroWidthSpace, KakaoSeeMorePadding))
	if !strings.HasPrefix(body, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(body)
	return b.String()
}
