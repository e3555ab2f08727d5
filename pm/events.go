////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package pm

import "gitlab.com/tidechat/client/engine"

// Event is the tagged union delivered to router subscribers. Consumers type
// switch on the variants below and ignore the ones they do not handle.
type Event interface {
	isEvent()
}

// Created announces a lazily created conversation.
type Created struct {
	Conversation *Conversation
}

// Delivered announces a message routed into a conversation's view.
type Delivered struct {
	Conversation *Conversation
	Message      engine.Message
}

// InvitationRaised prompts the user to accept, block, or dismiss a new peer.
type InvitationRaised struct {
	Conversation *Conversation
	Message      engine.Message
}

// Opened announces a conversation auto-opened by a new message, raised
// instead of an invitation when confirmation prompts are disabled.
type Opened struct {
	Conversation *Conversation
}

// Restored signals that a bootstrap history batch has been fully
// reconstructed, so persisted open/minimized/active flags can be applied in
// one pass.
type Restored struct {
	Conversations []*Conversation
}

// Remapped announces that a peer's placeholder identity resolved to a stable
// one, so state keyed by the old hash must migrate to the new one.
type Remapped struct {
	OldHash string
	NewHash string
}

func (Created) isEvent()          {}
func (Delivered) isEvent()        {}
func (InvitationRaised) isEvent() {}
func (Opened) isEvent()           {}
func (Restored) isEvent()         {}
func (Remapped) isEvent()         {}
