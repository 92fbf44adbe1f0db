// Package lookup resolves aircraft identities into enrichment data through a
// chain of caches and a rate-limited remote provider.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/vradarserver/vrscore-sub000/internal/aircraft"
	"github.com/vradarserver/vrscore-sub000/internal/icao"
)

// SupplierDetails describes where a provider's data comes from.
type SupplierDetails struct {
	Name    string `json:"name"`
	Credits string `json:"credits,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Provider looks aircraft up in a remote source.
type Provider interface {
	// MaxBatchSize is the largest number of identities per LookupICAOs call.
	MaxBatchSize() int
	// MinSecondsBetweenRequests is the minimum gap between calls. Values
	// below one are treated as one.
	MinSecondsBetweenRequests() int
	// MaxSecondsAfterFailedRequest caps the gap after repeated failures.
	MaxSecondsAfterFailedRequest() int

	Supplier() SupplierDetails
	InitialiseSupplierDetails(ctx context.Context) error

	// LookupICAOs resolves ids. Transport failures are returned as
	// *NetworkError; any other error is unexpected and gets logged.
	LookupICAOs(ctx context.Context, ids []icao.ID) (aircraft.BatchedLookupOutcome, error)
}

// NetworkError wraps a failure to reach the provider.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err is a transport-level failure that should
// be retried quietly.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
