package pdf

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/yourusername/quickpdf/internal/pdf/pdftest"
)

type stubCounter struct {
	pages int
	err   error
	calls int
}

func (s *stubCounter) PageCount(rs io.ReadSeeker) (int, error) {
	s.calls++
	return s.pages, s.err
}

func TestInspectAcceptsLeadingBytes(t *testing.T) {
	data := append([]byte("\xef\xbb\xbf\r\n  "), pdftest.Build(1)...)
	counter := &stubCounter{pages: 4}

	rs := bytes.NewReader(data)
	pages, err := Inspect(rs, counter)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if pages != 4 {
		t.Fatalf("pages = %d, want 4", pages)
	}
	if pos, _ := rs.Seek(0, io.SeekCurrent); pos != 0 {
		t.Fatalf("reader not rewound, pos=%d", pos)
	}
}

func TestInspectRejectsMissingSignature(t *testing.T) {
	counter := &stubCounter{pages: 1}
	_, err := Inspect(bytes.NewReader([]byte("PK\x03\x04 definitely a zip")), counter)
	if code := codeOf(t, err); code != CodeInvalidPDF {
		t.Fatalf("code = %s", code)
	}
	if counter.calls != 0 {
		t.Fatal("page counter must not run without a signature")
	}
}

func TestInspectRejectsSignatureOutsideWindow(t *testing.T) {
	data := append(bytes.Repeat([]byte{' '}, signatureWindow), pdftest.Build(1)...)
	_, err := Inspect(bytes.NewReader(data), &stubCounter{pages: 1})
	if code := codeOf(t, err); code != CodeInvalidPDF {
		t.Fatalf("code = %s", code)
	}
}

func TestInspectRejectsUnparsableDocument(t *testing.T) {
	_, err := Inspect(bytes.NewReader(pdftest.Build(1)), &stubCounter{err: errors.New("broken xref")})
	if code := codeOf(t, err); code != CodeInvalidPDF {
		t.Fatalf("code = %s", code)
	}
	_, err = Inspect(bytes.NewReader(pdftest.Build(1)), &stubCounter{pages: 0})
	if code := codeOf(t, err); code != CodeInvalidPDF {
		t.Fatalf("code = %s", code)
	}
}
