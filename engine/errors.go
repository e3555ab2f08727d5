////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package engine

import "github.com/pkg/errors"

// connectivityError marks a transport failure where no response reached the
// server. The polling loops swallow these and retry on the next tick.
type connectivityError struct {
	cause error
}

func (e *connectivityError) Error() string {
	return "no network connection: " + e.cause.Error()
}

// NewConnectivityError wraps a transport failure.
func NewConnectivityError(cause error) error {
	return &connectivityError{cause: cause}
}

// IsConnectivity reports whether the error is a transport failure that should
// be silently retried.
func IsConnectivity(err error) bool {
	_, ok := errors.Cause(err).(*connectivityError)
	return ok
}

// ServerError carries an error the server reported explicitly, or a generic
// description when the response body could not be parsed. These are surfaced
// to the event reporting collaborator; polling continues.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// NewServerError creates a ServerError with the given description.
func NewServerError(message string) error {
	return &ServerError{Message: message}
}

// IsServerError reports whether the error is server-reported.
func IsServerError(err error) bool {
	_, ok := errors.Cause(err).(*ServerError)
	return ok
}
