////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Error message.
const closeMultiErr = "multi stoppable %q failed to close %d/%d stoppables"

// Multi aggregates a list of Stoppable interfaces so that a group of service
// goroutines can be stopped as one. It adheres to the Stoppable interface.
type Multi struct {
	name       string
	stoppables []Stoppable
	mux        sync.RWMutex
	once       sync.Once
}

// NewMulti returns a new empty multi Stoppable.
func NewMulti(name string) *Multi {
	return &Multi{
		name: name,
	}
}

// Add adds the given Stoppable to the list of stoppables.
func (m *Multi) Add(stoppable Stoppable) {
	m.mux.Lock()
	m.stoppables = append(m.stoppables, stoppable)
	m.mux.Unlock()
}

// Name returns the name of the Multi Stoppable and the names of all stoppables
// it contains.
func (m *Multi) Name() string {
	m.mux.RLock()

	names := make([]string, len(m.stoppables))
	for i, s := range m.stoppables {
		names[i] = s.Name()
	}

	m.mux.RUnlock()

	return m.name + "{" + strings.Join(names, ", ") + "}"
}

// GetStatus returns the lowest status of all of the Stoppable children. The
// status is not the status of all children, but the status of the least
// stopped child.
func (m *Multi) GetStatus() Status {
	lowestStatus := Stopped
	m.mux.RLock()

	for _, s := range m.stoppables {
		status := s.GetStatus()
		if status < lowestStatus {
			lowestStatus = status
		}
	}

	m.mux.RUnlock()

	return lowestStatus
}

// IsRunning returns true if any of the contained stoppables are running.
func (m *Multi) IsRunning() bool {
	return m.GetStatus() == Running
}

// Close issues a close to all child stoppables. An error is returned if any
// child fails to close; the rest are still closed.
func (m *Multi) Close() error {
	var err error

	m.once.Do(func() {
		var numErrors int

		m.mux.Lock()
		defer m.mux.Unlock()

		for _, stoppable := range m.stoppables {
			if closeErr := stoppable.Close(); closeErr != nil {
				numErrors++
			}
		}

		if numErrors > 0 {
			err = errors.Errorf(
				closeMultiErr, m.name, numErrors, len(m.stoppables))
		}
	})

	return err
}
