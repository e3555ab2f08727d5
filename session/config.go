////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package session holds the per-widget-instance configuration and the mutable
// session state shared by the polling components. The state is mutated only
// through defined update operations; everything else reads snapshots.
package session

import "time"

// Order determines how a poll batch is emitted to the views.
type Order int

const (
	// Ascending keeps server order; new messages render at the bottom.
	Ascending Order = iota

	// Descending reverses each batch before emission; new messages render at
	// the top.
	Descending
)

// Default refresh periods. The maintenance stream is deliberately slower than
// the message stream.
const (
	DefaultMessagesRefresh    = 3 * time.Second
	DefaultMaintenanceRefresh = 20 * time.Second
)

// Config is the static, per-instance configuration of a chat client. It is
// never mutated after the client is constructed; everything that changes at
// runtime lives in State.
type Config struct {
	// ChannelID identifies the public channel this instance is bound to.
	ChannelID string

	// ChannelName is the display name of the public channel.
	ChannelName string

	// BlogID is forwarded on message polls when Multisite is set.
	BlogID    string
	Multisite bool

	// MessagesRefresh is the message stream polling period.
	MessagesRefresh time.Duration

	// MaintenanceRefresh is the maintenance stream polling period.
	MaintenanceRefresh time.Duration

	// MessagesOrder controls batch emission order.
	MessagesOrder Order

	// EnablePrivateMessages enables the private conversation subsystem.
	EnablePrivateMessages bool

	// AllowToReceiveMessages enables the message polling stream.
	AllowToReceiveMessages bool

	// PrivateMessageConfirmation raises an invitation prompt for the first
	// message of an unknown peer instead of auto-opening the conversation.
	PrivateMessageConfirmation bool

	// LastID and LastActionID seed the watermarks from bootstrap data.
	LastID       int64
	LastActionID int64

	// Checksum seeds the rotating request token.
	Checksum string
}

// FillDefaults populates zero-valued refresh periods.
func (c *Config) FillDefaults() {
	if c.MessagesRefresh == 0 {
		c.MessagesRefresh = DefaultMessagesRefresh
	}
	if c.MaintenanceRefresh == 0 {
		c.MaintenanceRefresh = DefaultMaintenanceRefresh
	}
}
