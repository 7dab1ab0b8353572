// Package analyzer defines the workers that index devnet activity into
// target storage.
package analyzer

import (
	"context"
)

// Analyzer is a worker that indexes a subset of devnet activity.
type Analyzer interface {
	// Start starts the analyzer and blocks until ctx is done or the analyzer
	// fails.
	Start(ctx context.Context) error

	// Name returns the name of the analyzer.
	Name() string
}
