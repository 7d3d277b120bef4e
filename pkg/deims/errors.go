package deims

import (
	"errors"
	"fmt"
)

// ErrNoBoundaries is returned when the registry has no boundary for a site.
var ErrNoBoundaries = errors.New("deims: site has no boundary features")

// InvalidIdentifierError reports input that is not a site UUID.
type InvalidIdentifierError struct {
	Input string
	Err   error
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("deims: invalid site identifier %q", e.Input)
}

func (e *InvalidIdentifierError) Unwrap() error {
	return e.Err
}

// RemoteFetchError reports a failed or malformed registry response.
type RemoteFetchError struct {
	URL string
	Err error
}

func (e *RemoteFetchError) Error() string {
	return fmt.Sprintf("deims: fetch %s: %v", e.URL, e.Err)
}

func (e *RemoteFetchError) Unwrap() error {
	return e.Err
}
