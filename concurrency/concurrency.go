// Package concurrency bounds the number of executions a worker runs at once.
package concurrency

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrOverRelease is returned when Release is called without a held slot.
var ErrOverRelease = errors.New("concurrency: release without acquire")

// Manager is a counting semaphore over execution slots.
type Manager struct {
	maxConcurrent int32
	current       atomic.Int32
	semaphore     chan struct{}

	totalExecutions atomic.Int64
	rejectedCount   atomic.Int64
}

// Metrics is a snapshot of slot usage.
type Metrics struct {
	Max             int32 `json:"max"`
	Current         int32 `json:"current"`
	TotalExecutions int64 `json:"totalExecutions"`
	RejectedCount   int64 `json:"rejectedCount"`
}

// NewManager creates a manager with max slots.
//
//	slots, err := concurrency.NewManager(4)
//	if slots.TryAcquire() {
//	    go func() {
//	        defer slots.Release()
//	        // execute
//	    }()
//	}
func NewManager(max int32) (*Manager, error) {
	if max <= 0 {
		return nil, fmt.Errorf("max concurrent must be positive, got: %d", max)
	}

	return &Manager{
		maxConcurrent: max,
		semaphore:     make(chan struct{}, max),
	}, nil
}

// TryAcquire takes a slot if one is free, without blocking.
func (m *Manager) TryAcquire() bool {
	select {
	case m.semaphore <- struct{}{}:
		m.current.Add(1)
		m.totalExecutions.Add(1)
		return true
	default:
		m.rejectedCount.Add(1)
		return false
	}
}

// Release frees a slot taken by TryAcquire.
func (m *Manager) Release() error {
	select {
	case <-m.semaphore:
		m.current.Add(-1)
		return nil
	default:
		return ErrOverRelease
	}
}

// Available returns the number of free slots.
func (m *Manager) Available() int32 {
	return m.maxConcurrent - m.current.Load()
}

// InUse returns the number of held slots.
func (m *Manager) InUse() int32 {
	return m.current.Load()
}

// Max returns the slot capacity.
func (m *Manager) Max() int32 {
	return m.maxConcurrent
}

// GetMetrics returns current metrics
func (m *Manager) GetMetrics() Metrics {
	return Metrics{
		Max:             m.maxConcurrent,
		Current:         m.current.Load(),
		TotalExecutions: m.totalExecutions.Load(),
		RejectedCount:   m.rejectedCount.Load(),
	}
}
