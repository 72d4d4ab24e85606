package mcp

import "fmt"

// Error codes carried in the failure envelope.
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeDataNotFound    = "DATA_NOT_FOUND"
	CodeFileParse       = "FILE_PARSE_ERROR"
	CodeCrawlTask       = "CRAWL_TASK_ERROR"
	CodeInternal        = "INTERNAL_ERROR"
)

// Error is a tool failure with a machine-readable code. Handlers return it
// directly when they want to control the envelope; plain errors from lower
// layers are classified by the dispatcher instead.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf builds an Error with a formatted message.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
