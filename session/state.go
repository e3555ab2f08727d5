////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package session

import (
	"sync"

	jww "github.com/spf13/jwalterweatherman"
)

// Rights are the moderation permissions of the local user, assigned by the
// server through the maintenance stream.
type Rights struct {
	DeleteMessages bool `json:"deleteMessages"`
	BanUsers       bool `json:"banUsers"`
	EditMessages   bool `json:"editMessages"`
	SpamReport     bool `json:"spamReport"`
}

// UserData is the identity of the local user, assigned by the server through
// the maintenance stream once the session registers.
type UserData struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// State is the mutable session state. It is owned by the maintenance executor
// for writes; all other components read snapshots through the accessors.
type State struct {
	checksum string
	rights   Rights
	userData *UserData
	mux      sync.RWMutex
}

// NewState seeds the session state from the bootstrap configuration.
func NewState(cfg Config) *State {
	return &State{checksum: cfg.Checksum}
}

// Checksum returns the current rotating request token.
func (s *State) Checksum() string {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.checksum
}

// UpdateChecksum stores a new rotating request token. An empty token never
// overwrites a previously valid one.
func (s *State) UpdateChecksum(checksum string) {
	if checksum == "" {
		jww.TRACE.Print("Ignoring empty checksum update")
		return
	}

	s.mux.Lock()
	s.checksum = checksum
	s.mux.Unlock()
}

// Rights returns a snapshot of the local user's rights.
func (s *State) Rights() Rights {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.rights
}

// UpdateRights replaces the local user's rights.
func (s *State) UpdateRights(rights Rights) {
	s.mux.Lock()
	s.rights = rights
	s.mux.Unlock()
}

// UserData returns a snapshot of the local user identity and whether it has
// been assigned yet. Private message routing is inert until it is.
func (s *State) UserData() (UserData, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	if s.userData == nil {
		return UserData{}, false
	}
	return *s.userData, true
}

// SetUserData stores the local user identity.
func (s *State) SetUserData(ud UserData) {
	s.mux.Lock()
	s.userData = &ud
	s.mux.Unlock()
	jww.DEBUG.Printf("Session user data assigned: hash %s", ud.Hash)
}
