package executor

import "errors"

// Category describes how an error should be handled.
type Category int

const (
	// CategoryTransient errors are retried until attempts run out.
	CategoryTransient Category = iota
	// CategoryPermanent errors stop the retry loop immediately.
	CategoryPermanent
)

// Classifier maps an error to a handling category.
type Classifier func(err error) Category

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable regardless of the classifier.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
