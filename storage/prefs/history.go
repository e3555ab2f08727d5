////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package prefs

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"gitlab.com/tidechat/client/storage/versioned"
)

const (
	historyPrefix  = "inputHistory"
	historyVersion = 0

	// maxHistoryEntries bounds the recall ring; the oldest entry is dropped
	// when full.
	maxHistoryEntries = 50
)

// InputHistory is a bounded ring of recently sent message texts per channel,
// used for input recall across reloads.
type InputHistory struct {
	kv        *versioned.KV
	channelID string

	mux     sync.RWMutex
	entries []string
}

// NewInputHistory loads the channel's input history or starts an empty one.
func NewInputHistory(kv *versioned.KV, channelID string) *InputHistory {
	ih := &InputHistory{
		kv:        kv.Prefix(historyPrefix),
		channelID: channelID,
	}

	obj, err := ih.kv.Get(channelID, historyVersion)
	if err != nil {
		return ih
	}

	if err = json.Unmarshal(obj.Data, &ih.entries); err != nil {
		ih.entries = nil
	}

	return ih
}

// Append records a sent text as the newest entry, evicting the oldest when
// the ring is full.
func (ih *InputHistory) Append(text string) error {
	ih.mux.Lock()
	defer ih.mux.Unlock()

	ih.entries = append(ih.entries, text)
	if len(ih.entries) > maxHistoryEntries {
		ih.entries = ih.entries[len(ih.entries)-maxHistoryEntries:]
	}

	return ih.save()
}

// All returns the entries oldest first.
func (ih *InputHistory) All() []string {
	ih.mux.RLock()
	defer ih.mux.RUnlock()

	entries := make([]string, len(ih.entries))
	copy(entries, ih.entries)
	return entries
}

// Len returns the number of stored entries.
func (ih *InputHistory) Len() int {
	ih.mux.RLock()
	defer ih.mux.RUnlock()
	return len(ih.entries)
}

// save must be called under the write lock.
func (ih *InputHistory) save() error {
	data, err := json.Marshal(ih.entries)
	if err != nil {
		return errors.Wrap(err, "Failed to marshal input history")
	}

	obj := versioned.Object{
		Version:   historyVersion,
		Timestamp: time.Now(),
		Data:      data,
	}

	return ih.kv.Set(ih.channelID, &obj)
}
