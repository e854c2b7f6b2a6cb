package storage

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveOpenRemove(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}

	name := NewName("pdf")
	if !strings.HasSuffix(name, ".pdf") || strings.Contains(name, "-") {
		t.Fatalf("unexpected generated name: %s", name)
	}

	n, err := l.Save(name, strings.NewReader("%PDF-1.4 body"))
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if n != int64(len("%PDF-1.4 body")) {
		t.Fatalf("Save wrote %d bytes", n)
	}
	if !l.Exists(name) {
		t.Fatal("expected artifact to exist")
	}

	f, err := l.Open(name)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	data, _ := io.ReadAll(f)
	f.Close()
	if string(data) != "%PDF-1.4 body" {
		t.Fatalf("unexpected content: %q", data)
	}

	names, err := l.List()
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(names) != 1 || names[0] != name {
		t.Fatalf("unexpected listing: %#v", names)
	}

	if err := l.Remove(name); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if l.Exists(name) {
		t.Fatal("expected artifact to be removed")
	}
	if err := l.Remove(name); err != nil {
		t.Fatalf("second Remove should be a no-op, got %v", err)
	}
}

func TestPathRejectsTraversal(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}
	for _, name := range []string{"", "..", "../etc/passwd", `a\b`, "dir/file.pdf"} {
		if _, err := l.Path(name); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("Path(%q) error = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestTempPathIsUniquePerCall(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}

	first, err := l.TempPath("out.pdf")
	if err != nil {
		t.Fatalf("TempPath returned error: %v", err)
	}
	second, err := l.TempPath("out.pdf")
	if err != nil {
		t.Fatalf("TempPath returned error: %v", err)
	}
	if first == second {
		t.Fatalf("TempPath returned the same path twice: %s", first)
	}
	if filepath.Dir(first) != l.Root() {
		t.Fatalf("temp file %s is outside the root", first)
	}

	names, err := l.List()
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("temp files must not be listed, got %v", names)
	}

	if _, err := l.TempPath("../out.pdf"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("TempPath with traversal error = %v, want ErrInvalidName", err)
	}
}
