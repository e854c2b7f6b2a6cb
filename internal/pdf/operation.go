// Package pdf はPDF操作の種別・入力検証と、pdfcpu によるページ操作を提供します。
package pdf

import (
	"fmt"
	"strings"
)

// OperationType はPDF処理の種別を表します。
type OperationType string

const (
	OperationSwap   OperationType = "swap"
	OperationKeep   OperationType = "keep"
	OperationRemove OperationType = "remove"
	OperationMerge  OperationType = "merge"
)

// ParseOperation は入力文字列を OperationType に変換します。
func ParseOperation(raw string) (OperationType, error) {
	op := OperationType(strings.ToLower(strings.TrimSpace(raw)))
	switch op {
	case OperationSwap, OperationKeep, OperationRemove, OperationMerge:
		return op, nil
	default:
		return "", newError(CodeInvalidOperation, "有効な操作 (swap, keep, remove, merge) を選択してください。", nil)
	}
}

// Operation は操作ごとに必要な引数だけを持つ値です。
type Operation interface {
	Kind() OperationType
	// Pages は操作対象のページ番号（1始まり）を返します。merge は nil です。
	Pages() []int
}

// SwapOp は2ページを入れ替えます。
type SwapOp struct {
	First  int
	Second int
}

// KeepOp は指定ページだけを残します。
type KeepOp struct {
	Selected []int
}

// RemoveOp は指定ページを削除します。
type RemoveOp struct {
	Selected []int
}

// MergeOp は入力ファイルを順に結合します。
type MergeOp struct{}

func (SwapOp) Kind() OperationType   { return OperationSwap }
func (KeepOp) Kind() OperationType   { return OperationKeep }
func (RemoveOp) Kind() OperationType { return OperationRemove }
func (MergeOp) Kind() OperationType  { return OperationMerge }

func (o SwapOp) Pages() []int   { return []int{o.First, o.Second} }
func (o KeepOp) Pages() []int   { return append([]int(nil), o.Selected...) }
func (o RemoveOp) Pages() []int { return append([]int(nil), o.Selected...) }
func (MergeOp) Pages() []int    { return nil }

// NewOperation は種別とページ列から Operation を組み立て、ページ数の形を検証します。
func NewOperation(kind OperationType, pages []int) (Operation, error) {
	for _, p := range pages {
		if p < 1 {
			return nil, newError(CodePagesNotPositive, "ページ番号は1以上で指定してください。", nil)
		}
	}

	switch kind {
	case OperationMerge:
		return MergeOp{}, nil
	case OperationSwap:
		if len(pages) != 2 {
			return nil, newError(CodeInvalidPages, "swap には2つのページ番号をちょうど指定してください。", nil)
		}
		if pages[0] == pages[1] {
			return nil, newError(CodeInvalidPages, "swap には異なる2ページを指定してください。", nil)
		}
		return SwapOp{First: pages[0], Second: pages[1]}, nil
	case OperationKeep, OperationRemove:
		if len(pages) == 0 {
			return nil, newError(CodeInvalidPages, "この操作には1つ以上のページ番号を指定してください。", nil)
		}
		if kind == OperationKeep {
			return KeepOp{Selected: append([]int(nil), pages...)}, nil
		}
		return RemoveOp{Selected: append([]int(nil), pages...)}, nil
	default:
		return nil, newError(CodeInvalidOperation, fmt.Sprintf("未対応の操作です: %s", kind), nil)
	}
}

// Limits はリソース上限をまとめたものです。
type Limits struct {
	MaxPDFPages        int
	MaxMergeFiles      int
	MaxMergeTotalPages int
	MaxOperationPages  int
}

// CheckSelection は文書を開く前に判定できる上限を検証します。
func (l Limits) CheckSelection(op Operation) error {
	switch op.(type) {
	case KeepOp, RemoveOp:
		if l.MaxOperationPages > 0 && len(op.Pages()) > l.MaxOperationPages {
			return newError(CodeLimitExceeded, fmt.Sprintf("選択ページが多すぎます（上限 %d）。", l.MaxOperationPages), nil)
		}
	}
	return nil
}

// CheckFileCount は結合ファイル数の上限を検証します。
func (l Limits) CheckFileCount(n int) error {
	if l.MaxMergeFiles > 0 && n > l.MaxMergeFiles {
		return newError(CodeLimitExceeded, fmt.Sprintf("ファイル数が多すぎます（上限 %d）。", l.MaxMergeFiles), nil)
	}
	return nil
}

// CheckDocument は単一文書のページ数上限と、選択ページが文書内に収まるかを検証します。
func (l Limits) CheckDocument(op Operation, pageCount int) error {
	if l.MaxPDFPages > 0 && pageCount > l.MaxPDFPages {
		return newError(CodeLimitExceeded, fmt.Sprintf("PDFのページ数が上限（%d）を超えています。", l.MaxPDFPages), nil)
	}
	if op == nil {
		return nil
	}
	pages := op.Pages()
	maxRequested := 0
	for _, p := range pages {
		if p > maxRequested {
			maxRequested = p
		}
	}
	if maxRequested > pageCount {
		return newError(CodeInvalidPages, fmt.Sprintf("指定ページがPDFのページ数（%d）を超えています。", pageCount), nil)
	}
	if _, ok := op.(RemoveOp); ok && len(uniquePages(pages)) >= pageCount {
		return newError(CodeInvalidPages, "すべてのページを削除することはできません。", nil)
	}
	return nil
}

// MergeTally は結合対象の累計ページ数を数えます。
type MergeTally struct {
	limits Limits
	total  int
}

// NewMergeTally は上限付きの集計を開始します。
func (l Limits) NewMergeTally() *MergeTally {
	return &MergeTally{limits: l}
}

// Add は1ファイル分のページ数を加算し、単体上限・累計上限を超えたらエラーを返します。
func (t *MergeTally) Add(pageCount int) error {
	if t.limits.MaxPDFPages > 0 && pageCount > t.limits.MaxPDFPages {
		return newError(CodeLimitExceeded, fmt.Sprintf("PDFのページ数が上限（%d）を超えています。", t.limits.MaxPDFPages), nil)
	}
	t.total += pageCount
	if t.limits.MaxMergeTotalPages > 0 && t.total > t.limits.MaxMergeTotalPages {
		return newError(CodeLimitExceeded, fmt.Sprintf("結合後のページ数が上限（%d）を超えています。", t.limits.MaxMergeTotalPages), nil)
	}
	return nil
}

// Total は加算済みのページ数です。
func (t *MergeTally) Total() int {
	return t.total
}

func uniquePages(pages []int) []int {
	seen := make(map[int]struct{}, len(pages))
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
