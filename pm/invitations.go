////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package pm

import "sync"

// InvitationList tracks peers with an unresolved invitation prompt, keyed by
// peer hash. It suppresses duplicate prompts while a prior one for the same
// peer is pending.
type InvitationList struct {
	inProgress map[string]struct{}
	mux        sync.Mutex
}

// NewInvitationList creates an empty invitation list.
func NewInvitationList() *InvitationList {
	return &InvitationList{inProgress: make(map[string]struct{})}
}

// Begin marks an invitation for the peer as in progress. It returns false if
// one is already pending, in which case no new prompt may be raised.
func (il *InvitationList) Begin(hash string) bool {
	il.mux.Lock()
	defer il.mux.Unlock()

	if _, ok := il.inProgress[hash]; ok {
		return false
	}
	il.inProgress[hash] = struct{}{}
	return true
}

// Clear resolves the peer's pending invitation, allowing a later message to
// prompt again.
func (il *InvitationList) Clear(hash string) {
	il.mux.Lock()
	delete(il.inProgress, hash)
	il.mux.Unlock()
}

// InProgress reports whether an invitation for the peer is unresolved.
func (il *InvitationList) InProgress(hash string) bool {
	il.mux.Lock()
	defer il.mux.Unlock()
	_, ok := il.inProgress[hash]
	return ok
}
