// Package db implements the result database: an in-memory reference
// implementation and a durable bbolt-backed store.
package db

import (
	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/anvil/internal/core/ports"
)

// Memory implements ports.Database entirely in memory. It is the reference
// implementation used by tests; nothing survives the process.
type Memory struct {
	iteration uint64
	results   map[domain.Key]domain.Result
}

var _ ports.Database = (*Memory)(nil)

// NewMemory creates an empty in-memory database.
func NewMemory() *Memory {
	return &Memory{results: make(map[domain.Key]domain.Result)}
}

// GetCurrentIteration returns the stored iteration counter.
func (m *Memory) GetCurrentIteration() (uint64, error) {
	return m.iteration, nil
}

// SetCurrentIteration stores the iteration counter.
func (m *Memory) SetCurrentIteration(iteration uint64) error {
	m.iteration = iteration
	return nil
}

// LookupRuleResult returns the stored result for a key, or nil.
func (m *Memory) LookupRuleResult(key domain.Key) (*domain.Result, error) {
	result, ok := m.results[key]
	if !ok {
		return nil, nil
	}
	return &result, nil
}

// SetRuleResult stores the latest result for a key.
func (m *Memory) SetRuleResult(key domain.Key, result domain.Result) error {
	m.results[key] = result
	return nil
}

// BuildStarted marks the beginning of a build.
func (m *Memory) BuildStarted() error { return nil }

// BuildComplete marks the end of a build.
func (m *Memory) BuildComplete() error { return nil }
