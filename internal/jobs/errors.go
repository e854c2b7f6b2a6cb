package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound はジョブレコードが存在しない場合に返されます。
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition は状態が後退・不正遷移する更新に対して返されます。
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrRecordMissing はキューから受け取ったIDにレコードが無い場合に返されます（再試行しない）。
	ErrRecordMissing = errors.New("job record missing")
	// ErrRecordCorrupt は status が読めないレコードに対して返されます（再試行しない）。
	ErrRecordCorrupt = errors.New("job record corrupt")

	errFinishedElsewhere = errors.New("job already finished")
)

// Kind はエラーの分類です。HTTP ステータスへの対応は http.go を参照。
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnavailable
	KindForbidden
	KindNotFound
	KindConflict
)

// Error はサービス層のエラーです。Message はそのまま利用者に返します。
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// KindOf は err に含まれる *Error の分類を返します。含まれない場合は KindInternal です。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
