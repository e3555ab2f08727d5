////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package stoppable provides a quit-channel lifecycle for the service
// goroutines of the client, primarily the polling loops.
package stoppable

// Status describes the state of a Stoppable.
type Status uint32

const (
	Running Status = iota
	Stopping
	Stopped
)

// String prints a string representation of the Status. This function satisfies
// the fmt.Stringer interface.
func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stoppable is the interface for stopping a service goroutine.
type Stoppable interface {
	Name() string
	GetStatus() Status
	IsRunning() bool
	Close() error
}
