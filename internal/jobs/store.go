package jobs

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	recordSuffix = ".json"
	jobIDLength  = 32
)

// Store はジョブレコードを1ジョブ1ファイルで保存します。
// 書き込みは一時ファイル + rename なので、読み手が書きかけのレコードを見ることはありません。
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore は dir を作成して Store を返します。
func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("jobs dir is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve jobs dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create jobs dir %s: %w", abs, err)
	}
	return &Store{dir: abs, locks: make(map[string]*keyLock)}, nil
}

// ValidJobID はジョブIDが生成形式（32桁の16進小文字）かを返します。
func ValidJobID(id string) bool {
	if len(id) != jobIDLength || strings.ToLower(id) != id {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}

// Get はジョブ情報を取得します。存在しない場合は ErrNotFound を返します。
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	path, err := s.path(jobID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read job %s: %w", jobID, err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parse job %s: %w", jobID, err)
	}
	return &record, nil
}

// Exists はレコードファイルがあるかを返します。
func (s *Store) Exists(ctx context.Context, jobID string) bool {
	path, err := s.path(jobID)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Put はレコード全体を保存します。
func (s *Store) Put(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	unlock := s.lock(record.JobID)
	defer unlock()
	return s.write(record)
}

// Update はレコードを読み、mutate を適用してから全体を書き戻します。
// 同一プロセス内の同一ジョブへの更新は直列化されます。mutate がエラーを返した場合は何も書きません。
func (s *Store) Update(ctx context.Context, jobID string, mutate func(*Record) error) (*Record, error) {
	unlock := s.lock(jobID)
	defer unlock()

	record, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := mutate(record); err != nil {
		return nil, err
	}
	record.UpdatedAt = time.Now().UTC()
	if err := s.write(record); err != nil {
		return nil, err
	}
	return record, nil
}

// Delete はレコードを削除します。存在しない場合は nil を返します。
func (s *Store) Delete(ctx context.Context, jobID string) error {
	path, err := s.path(jobID)
	if err != nil {
		return err
	}
	unlock := s.lock(jobID)
	defer unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	return nil
}

// List は保存されているジョブIDを昇順で返します。
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read jobs dir %s: %w", s.dir, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		id := strings.TrimSuffix(name, recordSuffix)
		if ValidJobID(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) write(record *Record) error {
	path, err := s.path(record.JobID)
	if err != nil {
		return err
	}
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", record.JobID, err)
	}
	payload = append(payload, '\n')

	tmp, err := os.CreateTemp(s.dir, ".job-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for job %s: %w", record.JobID, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file for job %s: %w", record.JobID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file for job %s: %w", record.JobID, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("atomic rename for job %s: %w", record.JobID, err)
	}
	return nil
}

func (s *Store) path(jobID string) (string, error) {
	if !ValidJobID(jobID) {
		return "", ErrNotFound
	}
	return filepath.Join(s.dir, jobID+recordSuffix), nil
}

func (s *Store) lock(jobID string) func() {
	s.mu.Lock()
	l, ok := s.locks[jobID]
	if !ok {
		l = &keyLock{}
		s.locks[jobID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, jobID)
		}
		s.mu.Unlock()
	}
}
