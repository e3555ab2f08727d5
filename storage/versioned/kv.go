////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package versioned wraps an ekv.KeyValue with prefixed, versioned keys. All
// durable client state (saved conversations, ignore lists, input history)
// goes through this layer.
package versioned

import (
	"fmt"

	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"
)

const PrefixSeparator = "/"

type root struct {
	data ekv.KeyValue
}

// KV stores versioned data under a prefix hierarchy.
type KV struct {
	r      *root
	prefix string
}

// NewKV creates a versioned key/value store backed by anything implementing
// ekv.KeyValue.
func NewKV(data ekv.KeyValue) *KV {
	return &KV{r: &root{data: data}}
}

// Get gets the data stored at key. Make sure to inspect the version returned
// in the versioned object.
func (v *KV) Get(key string, version uint64) (*Object, error) {
	key = v.makeKey(key, version)
	result := Object{}
	err := v.r.data.Get(key, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Delete removes a given key from the data store.
func (v *KV) Delete(key string, version uint64) error {
	key = v.makeKey(key, version)
	jww.TRACE.Printf("delete %p with key %v", v.r.data, key)
	return v.r.data.Delete(key)
}

// Set upserts new data into storage. The Object carries the version the data
// is stored under.
func (v *KV) Set(key string, object *Object) error {
	key = v.makeKey(key, object.Version)
	return v.r.data.Set(key, object)
}

// GetPrefix returns the prefix of the KV.
func (v *KV) GetPrefix() string {
	return v.prefix
}

// Prefix returns a new KV with the new prefix appended.
func (v *KV) Prefix(prefix string) *KV {
	return &KV{
		r:      v.r,
		prefix: v.prefix + prefix + PrefixSeparator,
	}
}

// IsMemStore returns true if the underlying store is ephemeral.
func (v *KV) IsMemStore() bool {
	_, success := v.r.data.(*ekv.Memstore)
	return success
}

// GetFullKey returns the key with all prefixes appended.
func (v *KV) GetFullKey(key string, version uint64) string {
	return v.makeKey(key, version)
}

func (v *KV) makeKey(key string, version uint64) string {
	return fmt.Sprintf("%s%s_%d", v.prefix, key, version)
}

// Exists returns false if the error indicates the element doesn't exist.
func (v *KV) Exists(err error) bool {
	return ekv.Exists(err)
}
