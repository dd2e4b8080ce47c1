// internal/common/errors/handler.go
package errors

// ErrorHandler turns failures of asynchronous entry points into user-facing
// messages after logging them with their standardized code.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err and returns the message to show the user. A nil error yields "".
func (h *ErrorHandler) Handle(operation string, err error) string {
	if err == nil {
		return ""
	}
	stdErr := Normalize(err)

	fields := map[string]interface{}{
		"operation":     operation,
		"errorCode":     string(stdErr.Code),
		"errorCategory": GetErrorCategory(stdErr.Code),
		"details":       stdErr.Details,
		"recoverable":   stdErr.Recoverable,
	}
	if stdErr.Recoverable {
		h.logger.Warn("operation failed", fields)
	} else {
		h.logger.Error("operation failed", fields)
	}

	return UserMessage(stdErr)
}

// UserMessage renders a StandardError as one line of user-facing text.
func UserMessage(stdErr *StandardError) string {
	if stdErr == nil {
		return ""
	}
	if stdErr.Recoverable {
		return stdErr.Message + ". Please try again."
	}
	return stdErr.Message + "."
}
