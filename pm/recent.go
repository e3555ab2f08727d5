////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package pm

import (
	"sync"

	"gitlab.com/tidechat/client/engine"
)

// recentPreviewLength bounds the message preview of a recent chat entry.
const recentPreviewLength = 50

// AckFunc acknowledges a pending chat with the server so it is not
// re-announced; wired to the checkPendingChat user command.
type AckFunc func(chat engine.PendingChat)

// RecentChats tracks announced-but-unacknowledged private chats and the list
// of recently active ones. A pending chat for the currently active
// conversation is acknowledged immediately; the rest are promoted to recent
// when their conversation is activated.
type RecentChats struct {
	ack          AckFunc
	activeLookup func() (string, bool)

	mux     sync.Mutex
	pending map[string]engine.PendingChat
	recent  []engine.PendingChat
	nowTime string
}

// NewRecentChats creates an empty list. ack may be nil when no server
// acknowledgement is wanted.
func NewRecentChats(ack AckFunc) *RecentChats {
	return &RecentChats{
		ack:     ack,
		pending: make(map[string]engine.PendingChat),
	}
}

// SetActiveLookup registers the accessor for the currently active
// conversation.
func (rc *RecentChats) SetActiveLookup(lookup func() (string, bool)) {
	rc.mux.Lock()
	rc.activeLookup = lookup
	rc.mux.Unlock()
}

// HandlePending records one announced pending chat. A chat for the active
// conversation is acknowledged immediately instead of being held.
func (rc *RecentChats) HandlePending(chat engine.PendingChat) {
	rc.mux.Lock()
	lookup := rc.activeLookup
	rc.mux.Unlock()

	if lookup != nil {
		if active, ok := lookup(); ok && active == chat.Hash {
			rc.acknowledge(chat)
			return
		}
	}

	rc.mux.Lock()
	rc.pending[chat.Hash] = chat
	rc.mux.Unlock()
}

// MarkActive promotes the peer's pending chat, if any, to the recent list and
// acknowledges it.
func (rc *RecentChats) MarkActive(hash string) {
	rc.mux.Lock()
	chat, ok := rc.pending[hash]
	if ok {
		delete(rc.pending, hash)
		rc.recent = append([]engine.PendingChat{chat}, rc.recent...)
	}
	rc.mux.Unlock()

	if ok {
		rc.acknowledge(chat)
	}
}

// Heartbeat records the server's reported current time, used for elapsed
// time labels on the recent list.
func (rc *RecentChats) Heartbeat(nowTime string) {
	rc.mux.Lock()
	rc.nowTime = nowTime
	rc.mux.Unlock()
}

// NowTime returns the last reported server time.
func (rc *RecentChats) NowTime() string {
	rc.mux.Lock()
	defer rc.mux.Unlock()
	return rc.nowTime
}

// SeedFromRestore rebuilds the recent list from a history batch, newest
// first, one entry per peer, skipping self-sent messages. Previews are
// truncated.
func (rc *RecentChats) SeedFromRestore(
	messages []engine.Message, selfHash string, identities *IdentityMap) {
	rc.mux.Lock()
	defer rc.mux.Unlock()

	rc.recent = nil
	seeded := make(map[string]struct{})

	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if !msg.IsPrivate {
			continue
		}

		peerHash := identities.Original(msg.SenderHash)
		if peerHash == selfHash {
			continue
		}
		if _, ok := seeded[peerHash]; ok {
			continue
		}
		seeded[peerHash] = struct{}{}

		rc.recent = append(rc.recent, engine.PendingChat{
			Hash:    peerHash,
			Name:    msg.SenderName,
			Message: truncate(msg.Rendered, recentPreviewLength),
			Date:    msg.Timestamp,
		})
	}
}

// Pending returns the held pending chats.
func (rc *RecentChats) Pending() []engine.PendingChat {
	rc.mux.Lock()
	defer rc.mux.Unlock()

	pending := make([]engine.PendingChat, 0, len(rc.pending))
	for _, chat := range rc.pending {
		pending = append(pending, chat)
	}
	return pending
}

// Recent returns the recent chats, newest first.
func (rc *RecentChats) Recent() []engine.PendingChat {
	rc.mux.Lock()
	defer rc.mux.Unlock()

	recent := make([]engine.PendingChat, len(rc.recent))
	copy(recent, rc.recent)
	return recent
}

func (rc *RecentChats) acknowledge(chat engine.PendingChat) {
	if rc.ack != nil {
		rc.ack(chat)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
