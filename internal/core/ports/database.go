// Package ports defines the core interfaces for the application.
package ports

import "go.trai.ch/anvil/internal/core/domain"

// Database persists rule results and the build iteration counter across
// builds and process restarts.
//
// Implementations may buffer writes during a build but must make every
// SetRuleResult durable before BuildComplete returns. The engine calls a
// Database only from the build loop; implementations need not be re-entrant.
//
//go:generate go run go.uber.org/mock/mockgen -source=database.go -destination=mocks/mock_database.go -package=mocks
type Database interface {
	// GetCurrentIteration returns the persisted iteration counter.
	GetCurrentIteration() (uint64, error)

	// SetCurrentIteration stores the iteration counter.
	SetCurrentIteration(iteration uint64) error

	// LookupRuleResult returns the stored result for a key, or nil if the
	// key has no record. A corrupt record is reported as nil.
	LookupRuleResult(key domain.Key) (*domain.Result, error)

	// SetRuleResult stores the latest result for a key, overwriting any
	// prior record.
	SetRuleResult(key domain.Key, result domain.Result) error

	// BuildStarted marks the beginning of a build.
	BuildStarted() error

	// BuildComplete flushes any buffered state.
	BuildComplete() error
}
