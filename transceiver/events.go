////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package transceiver

import "gitlab.com/tidechat/client/engine"

// Event is the tagged union delivered to message stream subscribers. Consumers
// type switch on the variants below and ignore the ones they do not handle.
type Event interface {
	isEvent()
}

// Batch carries the unseen messages of one poll response, already in display
// order. Restore marks a bootstrap batch of full conversation history rather
// than a live delta.
type Batch struct {
	Messages []engine.Message
	NowTime  string
	Restore  bool
}

// Heartbeat is emitted on every successful poll, with or without messages. It
// carries the server's reported current time.
type Heartbeat struct {
	NowTime string
}

// Pending announces one unacknowledged private conversation from a poll
// response.
type Pending struct {
	Chat engine.PendingChat
}

// Mapping announces that a send resolved a placeholder recipient identity to
// a stable one.
type Mapping struct {
	Mapping engine.UserMapping
}

// Sent carries the server's echo of a successfully sent message.
type Sent struct {
	Message engine.Message
}

func (Batch) isEvent()     {}
func (Heartbeat) isEvent() {}
func (Pending) isEvent()   {}
func (Mapping) isEvent()   {}
func (Sent) isEvent()      {}
