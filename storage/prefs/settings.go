////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package prefs persists per-channel UI and session state that must survive a
// reload: open/minimized/active conversation flags, the ignore list, and the
// sent-input recall ring. Single writer, last writer wins.
package prefs

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"gitlab.com/tidechat/client/storage/versioned"
)

const (
	settingsPrefix  = "prefs"
	settingsVersion = 0
)

// Settings is a named nested document of channelId -> key -> value, stored
// whole under a single versioned key and rewritten on every mutation.
type Settings struct {
	kv   *versioned.KV
	name string
	doc  map[string]map[string]string
	mux  sync.RWMutex
}

// NewSettings loads the named document from storage or starts an empty one.
func NewSettings(kv *versioned.KV, name string) *Settings {
	s := &Settings{
		kv:   kv.Prefix(settingsPrefix),
		name: name,
		doc:  make(map[string]map[string]string),
	}

	obj, err := s.kv.Get(name, settingsVersion)
	if err != nil {
		return s
	}

	if err = json.Unmarshal(obj.Data, &s.doc); err != nil {
		// A corrupted document is abandoned rather than crashing startup.
		s.doc = make(map[string]map[string]string)
	}

	return s
}

// Get returns the value stored for the key in the channel's section.
func (s *Settings) Get(channelID, key string) (string, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	section, ok := s.doc[channelID]
	if !ok {
		return "", false
	}
	value, ok := section[key]
	return value, ok
}

// Set stores the value for the key in the channel's section.
func (s *Settings) Set(channelID, key, value string) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	section, ok := s.doc[channelID]
	if !ok {
		section = make(map[string]string)
		s.doc[channelID] = section
	}
	section[key] = value

	return s.save()
}

// Delete removes the key from the channel's section. Deleting an absent key is
// a no-op.
func (s *Settings) Delete(channelID, key string) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	section, ok := s.doc[channelID]
	if !ok {
		return nil
	}
	if _, ok = section[key]; !ok {
		return nil
	}
	delete(section, key)

	return s.save()
}

// Keys returns every key in the channel's section.
func (s *Settings) Keys(channelID string) []string {
	s.mux.RLock()
	defer s.mux.RUnlock()

	section := s.doc[channelID]
	keys := make([]string, 0, len(section))
	for key := range section {
		keys = append(keys, key)
	}
	return keys
}

// save must be called under the write lock.
func (s *Settings) save() error {
	data, err := json.Marshal(s.doc)
	if err != nil {
		return errors.Wrapf(err, "Failed to marshal settings %q", s.name)
	}

	obj := versioned.Object{
		Version:   settingsVersion,
		Timestamp: time.Now(),
		Data:      data,
	}

	return s.kv.Set(s.name, &obj)
}
