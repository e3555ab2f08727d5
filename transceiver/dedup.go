////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package transceiver

import (
	"sync"

	"gitlab.com/tidechat/client/engine"
	"gitlab.com/tidechat/client/session"
)

// dedup filters already seen message IDs out of poll batches and tracks the
// high-water mark. The seen set grows for the life of the session; bounding
// it is an accepted memory tradeoff.
type dedup struct {
	seen   map[int64]struct{}
	lastID int64
	mux    sync.Mutex
}

func newDedup(lastID int64) *dedup {
	return &dedup{
		seen:   make(map[int64]struct{}),
		lastID: lastID,
	}
}

// LastID returns the current watermark.
func (d *dedup) LastID() int64 {
	d.mux.Lock()
	defer d.mux.Unlock()
	return d.lastID
}

// filter returns only the unseen messages of the batch in the configured
// display order. The batch is not assumed sorted: the watermark advances per
// message, for duplicates too, and a message is admitted at most once even
// within a single batch.
func (d *dedup) filter(
	batch []engine.Message, order session.Order) []engine.Message {
	d.mux.Lock()
	defer d.mux.Unlock()

	var unseen []engine.Message
	for _, msg := range batch {
		if msg.ID > d.lastID {
			d.lastID = msg.ID
		}

		if _, ok := d.seen[msg.ID]; ok {
			continue
		}
		d.seen[msg.ID] = struct{}{}
		unseen = append(unseen, msg)
	}

	if order == session.Descending {
		for i, j := 0, len(unseen)-1; i < j; i, j = i+1, j-1 {
			unseen[i], unseen[j] = unseen[j], unseen[i]
		}
	}

	return unseen
}
