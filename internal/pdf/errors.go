package pdf

// エラーコード
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeInvalidOperation  = "INVALID_OPERATION"
	CodeInvalidPages      = "INVALID_PAGES"
	CodePagesNotPositive  = "PAGES_NOT_POSITIVE"
	CodePageRangeOrder    = "PAGE_RANGE_ORDER"
	CodePageTooLarge      = "PAGE_TOO_LARGE"
	CodeInvalidOutputName = "INVALID_OUTPUT_NAME"
	CodeInvalidPDF        = "INVALID_PDF"
	CodeLimitExceeded     = "LIMIT_EXCEEDED"
)

// Error は利用者に返せる検証エラーです。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
