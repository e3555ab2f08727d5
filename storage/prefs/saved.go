////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package prefs

import (
	"sync"

	"gitlab.com/tidechat/client/storage/versioned"
)

const (
	savedConversationsDoc = "savedConversations"

	// Key decorations within a channel section. Minimized flags share the
	// section with open flags under a reserved prefix; the active pointer
	// lives under a reserved key.
	minimizedKeyPrefix = "__m__"
	activeKey          = "__active__"

	flagSet = "1"
)

// ActivationListener is called when a conversation is marked active.
type ActivationListener func(key string)

// SavedConversations tracks which conversations are open, which are
// minimized, and which one is active, per channel, surviving reloads.
type SavedConversations struct {
	settings  *Settings
	channelID string

	mux      sync.RWMutex
	listener ActivationListener
}

// NewSavedConversations loads the saved conversation flags for the channel.
func NewSavedConversations(
	settings *Settings, channelID string) *SavedConversations {
	return &SavedConversations{settings: settings, channelID: channelID}
}

// LoadSavedConversations loads the channel's saved conversation flags from
// their standard document.
func LoadSavedConversations(
	kv *versioned.KV, channelID string) *SavedConversations {
	return NewSavedConversations(
		NewSettings(kv, savedConversationsDoc), channelID)
}

// SetActivationListener registers the single listener notified on MarkActive.
func (sc *SavedConversations) SetActivationListener(l ActivationListener) {
	sc.mux.Lock()
	defer sc.mux.Unlock()
	sc.listener = l
}

// MarkOpen records the conversation as open.
func (sc *SavedConversations) MarkOpen(key string) error {
	return sc.settings.Set(sc.channelID, key, flagSet)
}

// IsOpen reports whether the conversation is recorded as open.
func (sc *SavedConversations) IsOpen(key string) bool {
	_, ok := sc.settings.Get(sc.channelID, key)
	return ok
}

// Clear forgets the conversation entirely: open flag, minimized flag, and the
// active pointer when it refers to the conversation.
func (sc *SavedConversations) Clear(key string) error {
	if err := sc.settings.Delete(sc.channelID, key); err != nil {
		return err
	}
	if err := sc.settings.Delete(
		sc.channelID, minimizedKeyPrefix+key); err != nil {
		return err
	}

	if active, ok := sc.settings.Get(sc.channelID, activeKey); ok &&
		active == key {
		return sc.settings.Delete(sc.channelID, activeKey)
	}
	return nil
}

// Open returns every conversation recorded as open.
func (sc *SavedConversations) Open() []string {
	var open []string
	for _, key := range sc.settings.Keys(sc.channelID) {
		if key == activeKey || isMinimizedKey(key) {
			continue
		}
		open = append(open, key)
	}
	return open
}

// MarkActive records the conversation as the active one and notifies the
// activation listener.
func (sc *SavedConversations) MarkActive(key string) error {
	if err := sc.settings.Set(sc.channelID, activeKey, key); err != nil {
		return err
	}

	sc.mux.RLock()
	listener := sc.listener
	sc.mux.RUnlock()
	if listener != nil {
		listener(key)
	}
	return nil
}

// GetActive returns the active conversation, if any.
func (sc *SavedConversations) GetActive() (string, bool) {
	return sc.settings.Get(sc.channelID, activeKey)
}

// ClearActive forgets the active pointer.
func (sc *SavedConversations) ClearActive() error {
	return sc.settings.Delete(sc.channelID, activeKey)
}

// MarkMinimized records the conversation as minimized.
func (sc *SavedConversations) MarkMinimized(key string) error {
	return sc.settings.Set(sc.channelID, minimizedKeyPrefix+key, flagSet)
}

// UnmarkMinimized removes the minimized flag.
func (sc *SavedConversations) UnmarkMinimized(key string) error {
	return sc.settings.Delete(sc.channelID, minimizedKeyPrefix+key)
}

// IsMinimized reports whether the conversation is recorded as minimized.
func (sc *SavedConversations) IsMinimized(key string) bool {
	_, ok := sc.settings.Get(sc.channelID, minimizedKeyPrefix+key)
	return ok
}

// Migrate moves all flags keyed by oldKey to newKey. Used when a peer's
// placeholder identity resolves to a stable one.
func (sc *SavedConversations) Migrate(oldKey, newKey string) error {
	if sc.IsOpen(oldKey) {
		if err := sc.settings.Set(
			sc.channelID, newKey, flagSet); err != nil {
			return err
		}
		if err := sc.settings.Delete(sc.channelID, oldKey); err != nil {
			return err
		}
	}

	if sc.IsMinimized(oldKey) {
		if err := sc.settings.Set(
			sc.channelID, minimizedKeyPrefix+newKey, flagSet); err != nil {
			return err
		}
		if err := sc.settings.Delete(
			sc.channelID, minimizedKeyPrefix+oldKey); err != nil {
			return err
		}
	}

	if active, ok := sc.settings.Get(sc.channelID, activeKey); ok &&
		active == oldKey {
		return sc.settings.Set(sc.channelID, activeKey, newKey)
	}
	return nil
}

func isMinimizedKey(key string) bool {
	return len(key) >= len(minimizedKeyPrefix) &&
		key[:len(minimizedKeyPrefix)] == minimizedKeyPrefix
}
