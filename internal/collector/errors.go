package collector

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a fetch failed.
type ErrorKind int

const (
	// NotFound means the symbol is unknown or has no data.
	NotFound ErrorKind = iota + 1
	// NetworkFailure covers transport errors and unavailable upstreams.
	NetworkFailure
	// UpstreamMalformed means the provider answered with data we cannot use.
	UpstreamMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case NetworkFailure:
		return "network failure"
	case UpstreamMalformed:
		return "upstream malformed"
	default:
		return "unknown"
	}
}

// ErrEmptySymbol is returned when a fetch is attempted without a symbol.
var ErrEmptySymbol = errors.New("symbol is required")

// FetchError is the only error kind a Fetcher reports for provider trouble.
type FetchError struct {
	Kind   ErrorKind
	Symbol string
	Err    error
}

func newFetchError(kind ErrorKind, symbol string, err error) *FetchError {
	return &FetchError{Kind: kind, Symbol: symbol, Err: err}
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Symbol, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Symbol, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// KindOf extracts the fetch error kind from err.
func KindOf(err error) (ErrorKind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// IsNotFound reports whether err is a NotFound fetch error.
func IsNotFound(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == NotFound
}
