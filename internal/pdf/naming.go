package pdf

import (
	"strings"
	"unicode"
)

const (
	// DefaultOutputBase はダウンロード名が指定されない場合の既定値です。
	DefaultOutputBase = "output"
	// OutputExtension はダウンロード名に必ず付与する拡張子です。
	OutputExtension = ".pdf"

	maxOutputBaseLength = 100
)

// CleanOutputName は利用者指定のダウンロード名を安全なファイル名にします。
// 拡張子は付けられず、常に ".pdf" が付与されます。
func CleanOutputName(raw string) (string, error) {
	base := strings.TrimSpace(raw)
	if base == "" {
		base = DefaultOutputBase
	}
	if strings.Contains(base, ".") {
		return "", newError(CodeInvalidOutputName, "出力名に \".\" は使えません。拡張子 \".pdf\" は自動で付与されます。", nil)
	}
	if strings.ContainsAny(base, `/\`) {
		return "", newError(CodeInvalidOutputName, "出力名にパス区切り文字は使えません。", nil)
	}

	base = sanitizeBase(base)
	if base == "" {
		base = DefaultOutputBase
	}
	return base + OutputExtension, nil
}

// sanitizeBase は空白を "_" に寄せ、英数字と "_" "-" 以外を取り除きます。
func sanitizeBase(s string) string {
	s = strings.Join(strings.Fields(s), "_")

	var b strings.Builder
	for _, r := range s {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '_' || r == '-':
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), "_")
	if len(out) > maxOutputBaseLength {
		out = out[:maxOutputBaseLength]
	}
	return out
}
