package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable marks network, timeout and non-success status failures of a source.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrInvalidTicker is returned for an empty ticker argument.
	ErrInvalidTicker = errors.New("invalid ticker")
)

// Unavailable wraps err so that errors.Is(err, ErrSourceUnavailable) holds.
func Unavailable(source string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSourceUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", source, ErrSourceUnavailable, err)
}

// ParseError describes a single malformed upstream record.
type ParseError struct {
	Source string
	Record string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse %s: %v", e.Source, e.Record, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
