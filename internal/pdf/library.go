package pdf

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Library はページ操作の実体です。ページ番号はすべて1始まりです。
type Library interface {
	PageCounter
	Swap(inPath, outPath string, first, second int) error
	Keep(inPath, outPath string, pages []int) error
	Remove(inPath, outPath string, pages []int) error
	Merge(inPaths []string, outPath string) error
}

// PDFCPU は pdfcpu による Library 実装です。
type PDFCPU struct{}

// NewPDFCPU は設定ディレクトリを作らないモードで pdfcpu を使う Library を返します。
func NewPDFCPU() *PDFCPU {
	pdfapi.DisableConfigDir()
	return &PDFCPU{}
}

// conf は呼び出しごとに新しい設定を返します（pdfcpu は処理中に設定を書き換えるため共有しない）。
func (p *PDFCPU) conf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount は xref とページツリーからページ数を読みます。
func (p *PDFCPU) PageCount(rs io.ReadSeeker) (int, error) {
	return pdfapi.PageCount(rs, p.conf())
}

func (p *PDFCPU) pageCountFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return p.PageCount(f)
}

// Swap は2ページを入れ替えた文書を書き出します。
func (p *PDFCPU) Swap(inPath, outPath string, first, second int) error {
	total, err := p.pageCountFile(inPath)
	if err != nil {
		return fmt.Errorf("count pages: %w", err)
	}
	if first < 1 || second < 1 || first > total || second > total {
		return fmt.Errorf("swap pages %d,%d out of range (1-%d)", first, second, total)
	}

	order := make([]string, total)
	for i := range order {
		page := i + 1
		switch page {
		case first:
			page = second
		case second:
			page = first
		}
		order[i] = strconv.Itoa(page)
	}
	return pdfapi.CollectFile(inPath, outPath, order, p.conf())
}

// Keep は指定ページを元の順序のまま残します。
func (p *PDFCPU) Keep(inPath, outPath string, pages []int) error {
	return pdfapi.CollectFile(inPath, outPath, selection(pages), p.conf())
}

// Remove は指定ページを削除します。
func (p *PDFCPU) Remove(inPath, outPath string, pages []int) error {
	return pdfapi.RemovePagesFile(inPath, outPath, selection(pages), p.conf())
}

// Merge は入力を指定順に結合します。
func (p *PDFCPU) Merge(inPaths []string, outPath string) error {
	if len(inPaths) == 0 {
		return fmt.Errorf("merge requires at least one input")
	}
	return pdfapi.MergeCreateFile(inPaths, outPath, false, p.conf())
}

// selection は昇順・重複なしの pdfcpu ページ指定を作ります。
func selection(pages []int) []string {
	sorted := uniquePages(pages)
	sort.Ints(sorted)
	out := make([]string, len(sorted))
	for i, n := range sorted {
		out[i] = strconv.Itoa(n)
	}
	return out
}
