package diag

import (
	"errors"
	"fmt"
)

// ErrStructural marks malformed input that aborts the conversion of a file:
// an interval ending before it starts, a missing numeric field, or an input
// with nothing to convert.
var ErrStructural = errors.New("structural error")

// ErrPrecondition is returned before anything is written when an output
// artifact already exists.
var ErrPrecondition = errors.New("precondition failed")

// ErrUnsupported is returned when a value cannot be serialized.
var ErrUnsupported = errors.New("unsupported operation")

// Structuralf wraps ErrStructural with a formatted message.
func Structuralf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStructural, fmt.Sprintf(format, args...))
}

// Warning is a data-quality issue that never aborts a conversion.
type Warning struct {
	URI     string `json:"uri"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	if w.URI == "" {
		return w.Message
	}
	return w.URI + ": " + w.Message
}

// Warnf builds a Warning for uri.
func Warnf(uri, format string, args ...any) Warning {
	return Warning{URI: uri, Message: fmt.Sprintf(format, args...)}
}
