package f

import (
	"errors"

	"github.com/ztrue/tracerr"
)

// Check panics with a traced error when a required dependency is missing.
func Check(value any, err string) {
	if value == nil {
		panic(tracerr.Wrap(errors.New(err)))
	}
}

// Trace annotates err with the caller stack frames.
func Trace(err error) error {
	if err == nil {
		return nil
	}
	return tracerr.Wrap(err)
}

// SprintTrace formats a traced error with its frames, or err.Error() otherwise.
func SprintTrace(err error) string {
	if err == nil {
		return ""
	}
	var traced tracerr.Error
	if errors.As(err, &traced) {
		return tracerr.Sprint(traced)
	}
	return err.Error()
}
