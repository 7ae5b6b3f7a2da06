// Package forcing provides the exogenous time series read by external node
// inputs. A Collection exposes one value per (variable, location) pair; the
// values stay fixed between two calls to Refresh.
package forcing

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrBackwardWindow indicates a window that lies before the active
	// record. Series are read forward only.
	ErrBackwardWindow = errors.New("forcing: window before active record")

	// ErrNotCovered indicates a window that ends after the last record.
	ErrNotCovered = errors.New("forcing: window not covered by data")

	// ErrSpansRecords indicates a window that overlaps two records.
	ErrSpansRecords = errors.New("forcing: window spans more than one record")

	// ErrEmptyWindow indicates a window whose end is not after its start.
	ErrEmptyWindow = errors.New("forcing: empty window")
)

// Address locates one value inside a Collection. It stays valid for the
// lifetime of the collection.
type Address int

type Collection interface {
	VariableNames() []string
	LocationsOf(variable string) ([]string, error)
	ValueAddress(variable, location string) (Address, error)
	Value(a Address) float64
	// Refresh loads the values valid for [windowStart, windowEnd).
	Refresh(ctx context.Context, windowStart, windowEnd time.Time) error
}
