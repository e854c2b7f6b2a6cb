// Package storage は入力/出力ファイル（アーティファクト）のローカル保存を提供します。
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidName はルート外を指す、または区切り文字を含む名前に対して返されます。
var ErrInvalidName = errors.New("storage: invalid artifact name")

const tempPattern = ".upload-*"

// Local はひとつのディレクトリ配下にアーティファクトを保存します。
type Local struct {
	root string
}

// NewLocal はルートディレクトリを作成（既存なら再利用）して Local を返します。
func NewLocal(root string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", abs, err)
	}
	return &Local{root: abs}, nil
}

// Root は保存先ディレクトリの絶対パスを返します。
func (l *Local) Root() string {
	return l.root
}

// NewName は衝突しない保存名を生成します（例: 3f2a...c1.pdf）。
func NewName(ext string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return id
	}
	return id + "." + ext
}

// Path は名前をルート配下の絶対パスに解決します。
func (l *Local) Path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	p := filepath.Join(l.root, name)
	if filepath.Dir(p) != l.root {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return p, nil
}

// Save は src の内容を一時ファイルに書き込み、rename で name に置き換えます。
func (l *Local) Save(name string, src io.Reader) (int64, error) {
	dst, err := l.Path(name)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(l.root, tempPattern)
	if err != nil {
		return 0, fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	n, err := io.Copy(tmp, src)
	if err != nil {
		_ = tmp.Close()
		cleanup()
		return 0, fmt.Errorf("write temp file for %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return 0, fmt.Errorf("close temp file for %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		cleanup()
		return 0, fmt.Errorf("atomic rename for %s: %w", name, err)
	}
	return n, nil
}

// TempPath は name の書き出し用に、呼び出しごとに異なる一時ファイルを作成してそのパスを返します。
// 一時ファイルは List に現れません。使い終わったら呼び出し側で削除してください。
func (l *Local) TempPath(name string) (string, error) {
	if _, err := l.Path(name); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(l.root, "."+name+".*.partial")
	if err != nil {
		return "", fmt.Errorf("create temp file for %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file for %s: %w", name, err)
	}
	return tmp.Name(), nil
}

// Exists は name が通常ファイルとして存在するかを返します。
func (l *Local) Exists(name string) bool {
	p, err := l.Path(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Open は name を読み取り用に開きます。
func (l *Local) Open(name string) (*os.File, error) {
	p, err := l.Path(name)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Remove は name を削除します。存在しない場合は nil を返します。
func (l *Local) Remove(name string) error {
	p, err := l.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// List は保存済みアーティファクト名を昇順で返します（一時ファイルは除外）。
func (l *Local) List() ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("read storage root %s: %w", l.root, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
