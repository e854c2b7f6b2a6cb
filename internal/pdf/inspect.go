package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
)

// signatureWindow はPDFヘッダーを探す先頭バイト数です（ヘッダーの前に余分なバイトがあっても許容する）。
const signatureWindow = 1024

var pdfSignature = []byte("%PDF-")

// PageCounter は文書を完全には展開せずにページ数を数えます。
type PageCounter interface {
	PageCount(rs io.ReadSeeker) (int, error)
}

// Inspect はアップロードが本物のPDFかを確認し、ページ数を返します。
// 読み取り位置は先頭に戻した状態で返ります。
func Inspect(rs io.ReadSeeker, counter PageCounter) (int, error) {
	if rs == nil || counter == nil {
		return 0, errors.New("inspect: reader and counter are required")
	}

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return 0, newError(CodeInvalidPDF, "アップロードを読み取れませんでした。", err)
	}
	prefix := make([]byte, signatureWindow)
	n, err := io.ReadFull(rs, prefix)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return 0, newError(CodeInvalidPDF, "アップロードを読み取れませんでした。", err)
	}
	prefix = prefix[:n]

	offset := bytes.Index(prefix, pdfSignature)
	if offset < 0 {
		return 0, newError(CodeInvalidPDF, "有効なPDFファイルではありません。", nil)
	}
	if mt := mimetype.Detect(prefix[offset:]); !mt.Is("application/pdf") {
		return 0, newError(CodeInvalidPDF, "有効なPDFファイルではありません。", fmt.Errorf("detected %s", mt.String()))
	}

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return 0, newError(CodeInvalidPDF, "アップロードを読み取れませんでした。", err)
	}
	pages, err := counter.PageCount(rs)
	if _, seekErr := rs.Seek(0, io.SeekStart); seekErr != nil && err == nil {
		err = seekErr
	}
	if err != nil {
		return 0, newError(CodeInvalidPDF, "有効なPDFファイルではありません。", err)
	}
	if pages <= 0 {
		return 0, newError(CodeInvalidPDF, "有効なPDFファイルではありません。", nil)
	}
	return pages, nil
}
