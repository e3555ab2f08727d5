////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package prefs

import "gitlab.com/tidechat/client/storage/versioned"

const ignoreListDoc = "ignoreList"

// IgnoreList is the persisted set of peer hashes whose messages are dropped
// before routing.
type IgnoreList struct {
	settings  *Settings
	channelID string
}

// NewIgnoreList loads the ignore list for the channel.
func NewIgnoreList(settings *Settings, channelID string) *IgnoreList {
	return &IgnoreList{settings: settings, channelID: channelID}
}

// LoadIgnoreList loads the channel's ignore list from its standard document.
func LoadIgnoreList(kv *versioned.KV, channelID string) *IgnoreList {
	return NewIgnoreList(NewSettings(kv, ignoreListDoc), channelID)
}

// Add records the peer as ignored.
func (il *IgnoreList) Add(hash string) error {
	return il.settings.Set(il.channelID, hash, flagSet)
}

// Remove forgets the peer. Removing an absent peer is a no-op.
func (il *IgnoreList) Remove(hash string) error {
	return il.settings.Delete(il.channelID, hash)
}

// Contains reports whether the peer is ignored.
func (il *IgnoreList) Contains(hash string) bool {
	_, ok := il.settings.Get(il.channelID, hash)
	return ok
}

// All returns every ignored peer hash.
func (il *IgnoreList) All() []string {
	return il.settings.Keys(il.channelID)
}
