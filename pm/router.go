////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package pm

import (
	"sync"

	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/tidechat/client/engine"
	"gitlab.com/tidechat/client/session"
	"gitlab.com/tidechat/client/storage/prefs"
)

// Router classifies inbound private messages and routes them to the correct
// conversation, creating one lazily on first contact while enforcing the
// invitation and ignore policies. It does nothing until the session's user
// data has been assigned.
type Router struct {
	cfg         session.Config
	state       *session.State
	ignore      *prefs.IgnoreList
	identities  *IdentityMap
	invitations *InvitationList
	viewFactory ViewFactory

	// Conversations are append-only for the process lifetime.
	conversations []*Conversation
	byHash        map[string]*Conversation
	mux           sync.Mutex

	subscribers []func(Event)
	subMux      sync.RWMutex
}

// NewRouter creates a Router with no conversations.
func NewRouter(cfg session.Config, state *session.State,
	ignore *prefs.IgnoreList, viewFactory ViewFactory) *Router {
	return &Router{
		cfg:         cfg,
		state:       state,
		ignore:      ignore,
		identities:  NewIdentityMap(),
		invitations: NewInvitationList(),
		viewFactory: viewFactory,
		byHash:      make(map[string]*Conversation),
	}
}

// Subscribe registers a consumer of router events.
func (r *Router) Subscribe(fn func(Event)) {
	r.subMux.Lock()
	r.subscribers = append(r.subscribers, fn)
	r.subMux.Unlock()
}

// Identities returns the identity map used for hash translation.
func (r *Router) Identities() *IdentityMap {
	return r.identities
}

// Conversations returns every conversation created so far.
func (r *Router) Conversations() []*Conversation {
	r.mux.Lock()
	defer r.mux.Unlock()
	convs := make([]*Conversation, len(r.conversations))
	copy(convs, r.conversations)
	return convs
}

// Get looks up the conversation for a peer hash, translating a remapped hash
// back to the original first.
func (r *Router) Get(hash string) (*Conversation, bool) {
	original := r.identities.Original(hash)
	r.mux.Lock()
	defer r.mux.Unlock()
	conv, ok := r.byHash[original]
	return conv, ok
}

// HandleBatch routes the private messages of one delivered batch. A restore
// batch reconstructs conversations without invitation prompts and signals
// completion in one Restored event. The batch is dropped when the local user
// identity has not been assigned yet.
func (r *Router) HandleBatch(messages []engine.Message, restore bool) {
	if !r.cfg.EnablePrivateMessages {
		return
	}

	ud, ok := r.state.UserData()
	if !ok {
		jww.TRACE.Print("Dropping private batch: no user data assigned")
		return
	}

	if restore {
		r.restore(ud, messages)
		return
	}

	for _, msg := range messages {
		if msg.IsPrivate {
			r.processMessage(ud, msg)
		}
	}
}

// processMessage classifies one live private message. Self-sent messages are
// delivered to an existing conversation but never trigger invitations;
// messages from ignored peers and messages addressed to someone else are
// dropped entirely.
func (r *Router) processMessage(ud session.UserData, msg engine.Message) {
	senderHash := r.identities.Original(msg.SenderHash)
	recipientHash := r.identities.Original(msg.RecipientHash)

	if senderHash == ud.Hash {
		if conv, ok := r.lookup(recipientHash); ok {
			conv.deliver(msg)
			r.publish(Delivered{Conversation: conv, Message: msg})
		}
		return
	}

	if recipientHash != ud.Hash {
		jww.TRACE.Printf("Dropping message %d addressed to %s, not this user",
			msg.ID, recipientHash)
		return
	}

	if r.ignore.Contains(senderHash) {
		jww.DEBUG.Printf("Dropping message %d from ignored peer %s",
			msg.ID, senderHash)
		return
	}

	conv, created := r.getOrCreate(senderHash, msg.SenderID, msg.SenderName)
	if created {
		r.publish(Created{Conversation: conv})
	}

	conv.deliver(msg)
	r.publish(Delivered{Conversation: conv, Message: msg})

	if !conv.InvitationEnabled() || r.invitations.InProgress(senderHash) {
		return
	}

	// Without confirmation prompts the conversation opens on its own.
	if !r.cfg.PrivateMessageConfirmation {
		r.publish(Opened{Conversation: conv})
		return
	}

	if r.invitations.Begin(senderHash) {
		r.publish(InvitationRaised{Conversation: conv, Message: msg})
	}
}

// restore reconstructs conversations from a history batch without prompting.
// Ignored peers are silently skipped.
func (r *Router) restore(ud session.UserData, messages []engine.Message) {
	for _, msg := range messages {
		if !msg.IsPrivate {
			continue
		}

		peerHash := r.identities.Original(msg.SenderHash)
		peerID, peerName := msg.SenderID, msg.SenderName
		if peerHash == ud.Hash {
			peerHash = r.identities.Original(msg.RecipientHash)
			peerID, peerName = msg.RecipientID, msg.RecipientName
		}

		if r.ignore.Contains(peerHash) {
			continue
		}

		conv, _ := r.getOrCreate(peerHash, peerID, peerName)
		conv.deliver(msg)
	}

	r.publish(Restored{Conversations: r.Conversations()})
}

// ResolveAccept resolves a pending invitation by opening the conversation.
// The invitation gate is closed while the conversation is displayed.
func (r *Router) ResolveAccept(hash string) *Conversation {
	original := r.identities.Original(hash)
	r.invitations.Clear(original)

	conv, ok := r.lookup(original)
	if !ok {
		return nil
	}
	conv.SetInvitationEnabled(false)
	return conv
}

// ResolveBlock resolves a pending invitation by declining it and adding the
// peer to the ignore list.
func (r *Router) ResolveBlock(hash string) error {
	original := r.identities.Original(hash)
	r.invitations.Clear(original)
	return r.ignore.Add(original)
}

// ResolveDismiss resolves a pending invitation by declining it only; the
// peer's next message prompts again.
func (r *Router) ResolveDismiss(hash string) {
	r.invitations.Clear(r.identities.Original(hash))
}

// HandleUserMapping applies a send acknowledgement's identity resolution: the
// originating conversation is re-addressed to the stable public ID, the new
// hash is recorded for lookup indirection, and a Remapped event is broadcast
// so hash-keyed UI state migrates.
func (r *Router) HandleUserMapping(m engine.UserMapping) {
	original := r.identities.Original(m.Hash)

	if conv, ok := r.lookup(original); ok {
		conv.SetPublicID(m.Map.PublicID)
	}

	r.identities.Record(m.Map.Hash, original)
	jww.DEBUG.Printf("Peer identity resolved: %s -> %s", original, m.Map.Hash)

	r.publish(Remapped{OldHash: original, NewHash: m.Map.Hash})
}

// RenamePeer rewrites the display name of the peer's conversation, if one
// exists.
func (r *Router) RenamePeer(hash, name string) {
	if conv, ok := r.lookup(r.identities.Original(hash)); ok {
		conv.SetName(name)
	}
}

func (r *Router) lookup(hash string) (*Conversation, bool) {
	r.mux.Lock()
	defer r.mux.Unlock()
	conv, ok := r.byHash[hash]
	return conv, ok
}

func (r *Router) getOrCreate(hash, publicID, name string) (
	*Conversation, bool) {
	r.mux.Lock()
	if conv, ok := r.byHash[hash]; ok {
		r.mux.Unlock()
		return conv, false
	}

	conv := newConversation(hash, publicID, name)
	r.byHash[hash] = conv
	r.conversations = append(r.conversations, conv)
	r.mux.Unlock()

	if r.viewFactory != nil {
		conv.setView(r.viewFactory(conv))
	}

	jww.DEBUG.Printf("Created conversation with peer %s (%s)", name, hash)
	return conv, true
}

func (r *Router) publish(e Event) {
	r.subMux.RLock()
	subscribers := r.subscribers
	r.subMux.RUnlock()

	for _, fn := range subscribers {
		fn(e)
	}
}
