////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package pm routes inbound private messages to per-peer conversations:
// lazy conversation creation, the invitation state machine, identity
// remapping of placeholder peers, and the pending/recent chat lists.
package pm

import (
	"sync"

	"gitlab.com/tidechat/client/engine"
)

// View is the message sink of one conversation. Rendering is an external
// collaborator; the router only pushes messages into it.
type View interface {
	ShowMessage(msg engine.Message)
}

// ViewFactory creates the view of a freshly created conversation.
type ViewFactory func(conv *Conversation) View

// Conversation is one private 1:1 thread. The hash is stable for the
// conversation's lifetime; the public ID is rewritten when the peer's
// placeholder identity resolves to a real account. Conversations are never
// destroyed, only hidden in persisted UI state.
type Conversation struct {
	hash string

	mux               sync.RWMutex
	publicID          string
	name              string
	invitationEnabled bool
	view              View
}

func newConversation(hash, publicID, name string) *Conversation {
	return &Conversation{
		hash:              hash,
		publicID:          publicID,
		name:              name,
		invitationEnabled: true,
	}
}

// Hash returns the stable peer hash.
func (c *Conversation) Hash() string {
	return c.hash
}

// PublicID returns the peer's current public ID, used to address sends.
func (c *Conversation) PublicID() string {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return c.publicID
}

// SetPublicID rewrites the peer's public ID after an identity remap.
func (c *Conversation) SetPublicID(publicID string) {
	c.mux.Lock()
	c.publicID = publicID
	c.mux.Unlock()
}

// Name returns the peer's display name.
func (c *Conversation) Name() string {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return c.name
}

// SetName rewrites the peer's display name, used when the server refreshes a
// plain user name.
func (c *Conversation) SetName(name string) {
	c.mux.Lock()
	c.name = name
	c.mux.Unlock()
}

// InvitationEnabled reports whether a new inbound message may raise an
// invitation prompt. It is toggled off while the conversation's view is
// actively displayed and on again when hidden.
func (c *Conversation) InvitationEnabled() bool {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return c.invitationEnabled
}

// SetInvitationEnabled toggles the invitation gate.
func (c *Conversation) SetInvitationEnabled(enabled bool) {
	c.mux.Lock()
	c.invitationEnabled = enabled
	c.mux.Unlock()
}

// View returns the conversation's message sink.
func (c *Conversation) View() View {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return c.view
}

func (c *Conversation) setView(v View) {
	c.mux.Lock()
	c.view = v
	c.mux.Unlock()
}

func (c *Conversation) deliver(msg engine.Message) {
	if v := c.View(); v != nil {
		v.ShowMessage(msg)
	}
}
