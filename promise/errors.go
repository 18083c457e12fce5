package promise

import (
	"errors"
	"strings"
)

// ErrNoPromiseResolved is the rejection reason for Any called with no
// input promises.
var ErrNoPromiseResolved = errors.New("promise: no promises to resolve")

// AggregateError is the rejection reason for Any when every input promise
// rejects; it carries each input's rejection reason in input order.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return "promise: all promises rejected: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the individual errors for errors.Is/errors.As.
func (e *AggregateError) Unwrap() []error { return e.Errors }

// Unwrap returns the recovered panic value when it is an error (nil
// otherwise), so errors.Is/errors.As can see through a PanicError to an
// underlying error panic value.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
