package jobs

import (
	"fmt"
	"time"

	"github.com/yourusername/quickpdf/internal/pdf"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Terminal は done/error のどちらかであれば true を返します。
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Known は定義済みの状態であれば true を返します。
func (s Status) Known() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusDone, StatusError:
		return true
	}
	return false
}

// CanTransitionTo は queued → processing → {done, error} の前進だけを許可します。
// processing → processing は再配送時の再実行として許可します。
// 未知の状態からは error にだけ進めます。
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusProcessing || next == StatusDone || next == StatusError
	case StatusDone, StatusError:
		return false
	default:
		return next == StatusError
	}
}

// Record はジョブの現在状態を表します。JOBS_DIR/<job_id>.json にそのまま保存されます。
type Record struct {
	JobID              string            `json:"job_id"`
	Status             Status            `json:"status"`
	Operation          pdf.OperationType `json:"operation"`
	InputFilenames     []string          `json:"input_filenames"`
	OutputFilename     string            `json:"output_filename"`
	OutputDownloadName string            `json:"output_download_name"`
	Pages              []int             `json:"pages"`
	ErrorMessage       string            `json:"error_message,omitempty"`
	DownloadTokenHash  string            `json:"download_token_hash"`
	Downloads          int               `json:"downloads"`
	DownloadedAt       *time.Time        `json:"downloaded_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Advance は状態遷移を検証してから status と error_message を更新します。
func (r *Record) Advance(next Status, message string, now time.Time) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	if next == StatusError {
		r.ErrorMessage = message
	} else {
		r.ErrorMessage = ""
	}
	r.UpdatedAt = now
	return nil
}

// Expired は作成から ttl を超えていれば true を返します。
func (r *Record) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.CreatedAt) > ttl
}

// View はトークンのハッシュを含まない公開用の表現です。
type View struct {
	JobID              string            `json:"job_id"`
	Status             Status            `json:"status"`
	Operation          pdf.OperationType `json:"operation"`
	InputFilenames     []string          `json:"input_filenames"`
	OutputDownloadName string            `json:"output_download_name"`
	Pages              []int             `json:"pages"`
	ErrorMessage       string            `json:"error_message,omitempty"`
	Downloads          int               `json:"downloads"`
	DownloadedAt       *time.Time        `json:"downloaded_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	DownloadURL        string            `json:"download_url,omitempty"`
}

// View は公開用の表現を作ります。done の場合のみ相対ダウンロードURLを付けます。
func (r *Record) View() *View {
	v := &View{
		JobID:              r.JobID,
		Status:             r.Status,
		Operation:          r.Operation,
		InputFilenames:     append([]string(nil), r.InputFilenames...),
		OutputDownloadName: r.OutputDownloadName,
		Pages:              append([]int(nil), r.Pages...),
		ErrorMessage:       r.ErrorMessage,
		Downloads:          r.Downloads,
		DownloadedAt:       r.DownloadedAt,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.Status == StatusDone {
		v.DownloadURL = DownloadPath(r.JobID)
	}
	return v
}

// DownloadPath はダウンロードの相対パスを返します。
func DownloadPath(jobID string) string {
	return fmt.Sprintf("/api/jobs/%s/download", jobID)
}
