////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package engine abstracts the request/response transport of the chat server
// API. The polling components depend only on the Engine interface; the HTTP
// implementation lives in http.go.
package engine

// Engine issues requests against the chat server. Poll methods are
// synchronous: the caller owns the goroutine and the single-flight policy.
// Send, get, and user-command methods follow the listener contract of the
// wire protocol: all callbacks must be supplied. A nil callback is a
// programming error and panics at call time.
type Engine interface {
	// PollMessages requests new messages above the watermark. Errors are
	// classified with IsConnectivity and IsServerError.
	PollMessages(req PollRequest) (*PollResponse, error)

	// PollMaintenance requests new maintenance actions and events above the
	// action watermark.
	PollMaintenance(req MaintenanceRequest) (*MaintenanceResponse, error)

	// SendMessage delivers an outbound message. onProgress receives upload
	// progress in percent, at minimum 0 and 100. Exactly one of onSuccess or
	// onError is invoked before SendMessage returns.
	SendMessage(req SendRequest, onSuccess func(*SendResponse),
		onProgress func(percent int), onError func(error))

	// GetMessage fetches a single message by ID.
	GetMessage(req GetMessageRequest, onSuccess func(*PollResponse),
		onError func(error))

	// SendUserCommand delivers an out-of-band user command.
	SendUserCommand(req UserCommandRequest, onSuccess func([]byte),
		onError func(error))
}
