////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package pm

import "sync"

// IdentityMap records placeholder identity resolutions. A conversation keeps
// the hash it was created under; once the server mints a stable identity for
// the peer, inbound hashes are translated back through this map before any
// comparison. One level of indirection suffices; the server never re-maps an
// already mapped hash.
type IdentityMap struct {
	// newHash -> original hash the conversation is keyed by.
	m   map[string]string
	mux sync.RWMutex
}

// NewIdentityMap creates an empty identity map.
func NewIdentityMap() *IdentityMap {
	return &IdentityMap{m: make(map[string]string)}
}

// Record stores the resolution of originalHash to newHash.
func (im *IdentityMap) Record(newHash, originalHash string) {
	im.mux.Lock()
	im.m[newHash] = originalHash
	im.mux.Unlock()
}

// Original translates a possibly remapped hash back to the hash the
// conversation was created under. Unmapped hashes are returned unchanged.
func (im *IdentityMap) Original(hash string) string {
	im.mux.RLock()
	defer im.mux.RUnlock()
	if original, ok := im.m[hash]; ok {
		return original
	}
	return hash
}
