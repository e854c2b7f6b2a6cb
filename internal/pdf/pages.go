package pdf

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// maxPageNumber は範囲展開で扱うページ番号の上限です。
const maxPageNumber = 100000

// ParsePages はページ指定文字列を重複なし・指定順のページ番号列に変換します。
//
// 対応形式: "1,2,3" / "1 2 3" / "2-6" / "1,3,5-8"。空文字列は空の列を返します。
func ParsePages(raw string) ([]int, error) {
	tokens := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})

	pages := make([]int, 0, len(tokens))
	seen := make(map[int]struct{})
	add := func(n int) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		pages = append(pages, n)
	}

	for _, token := range tokens {
		start, end, err := parsePageToken(token)
		if err != nil {
			return nil, err
		}
		for p := start; p <= end; p++ {
			add(p)
		}
	}

	return pages, nil
}

func parsePageToken(token string) (int, int, error) {
	if isDigits(token) {
		n, err := parsePageNumber(token)
		if err != nil {
			return 0, 0, err
		}
		return n, n, nil
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) != 2 || !isDigits(parts[0]) || !isDigits(parts[1]) {
		return 0, 0, newError(CodeInvalidPages, fmt.Sprintf("ページは数値と範囲で指定してください（例: \"1,3,5-8\"）。不正な指定: %q", token), nil)
	}
	start, err := parsePageNumber(parts[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := parsePageNumber(parts[1])
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, newError(CodePageRangeOrder, fmt.Sprintf("範囲は昇順で指定してください（例: \"2-6\"）。不正な範囲: %q", token), nil)
	}
	return start, end, nil
}

func parsePageNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n > maxPageNumber {
		return 0, newError(CodePageTooLarge, fmt.Sprintf("ページ番号は %d 以下で指定してください。", maxPageNumber), err)
	}
	if n < 1 {
		return 0, newError(CodePagesNotPositive, "ページ番号は1以上で指定してください。", nil)
	}
	return n, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
