package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorClass buckets an error into a low-cardinality tag value. Well-known
// failure modes of the execution path get stable names; anything else falls
// back to the innermost error's type name so new failure modes still group.
func ErrorClass(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return "network"
	}

	// Unwrap to the innermost error; wrapper types carry no signal.
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	name := strings.TrimLeft(fmt.Sprintf("%T", err), "*")
	name = strings.ToLower(strings.ReplaceAll(name, ".", "_"))
	if name == "" {
		return "unknown"
	}
	return name
}
