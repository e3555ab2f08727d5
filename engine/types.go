////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package engine

import "encoding/json"

// Message is a single chat message as delivered by the server. It is
// immutable once delivered and identified uniquely by ID. Rendered is a
// server-rendered fragment and is treated as opaque by the client.
type Message struct {
	ID            int64  `json:"id"`
	SenderHash    string `json:"senderHash"`
	RecipientHash string `json:"recipientHash,omitempty"`
	IsPrivate     bool   `json:"isPrivate,omitempty"`
	SenderID      string `json:"senderId"`
	RecipientID   string `json:"recipientId,omitempty"`
	SenderName    string `json:"senderName"`
	RecipientName string `json:"recipientName,omitempty"`
	Rendered      string `json:"text"`

	// Messaging permissions in each direction of a private conversation.
	AllowedSenderToRecipient bool `json:"allowedSenderToRecipient,omitempty"`
	AllowedRecipientToSender bool `json:"allowedRecipientToSender,omitempty"`

	Timestamp string `json:"timestamp,omitempty"`
}

// PendingChat announces an unacknowledged private conversation, delivered
// alongside poll results.
type PendingChat struct {
	ID      string `json:"id"`
	Hash    string `json:"hash"`
	Name    string `json:"name"`
	Message string `json:"message"`
	Date    string `json:"date"`
}

// Action is a single maintenance command with a monotonic ID. The ID space is
// distinct from message IDs.
type Action struct {
	ID      int64   `json:"id"`
	Command Command `json:"command"`
}

// Command names a maintenance operation and carries its payload.
type Command struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// NamedEvent is a transient maintenance notification. Unlike actions, events
// are redelivered on every poll and are not deduplicated.
type NamedEvent struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// UserMapping is returned by a send when the recipient's placeholder identity
// resolved to a freshly minted stable one.
type UserMapping struct {
	// Hash is the placeholder identity the message was addressed to.
	Hash string `json:"hash"`

	// Map carries the stable identity it resolved to.
	Map struct {
		Hash     string `json:"hash"`
		PublicID string `json:"publicId"`
	} `json:"map"`
}

// PollRequest is the message-stream poll request. PrivateMessages marks the
// one-shot private conversation preload, which always polls from zero.
type PollRequest struct {
	ChannelID       string
	LastID          int64
	Checksum        string
	BlogID          string
	PrivateMessages bool
}

// PollResponse is the message-stream poll response.
type PollResponse struct {
	Result                      []Message     `json:"result"`
	NowTime                     string        `json:"nowTime"`
	PendingChats                []PendingChat `json:"pendingChats,omitempty"`
	RestorePrivateConversations bool          `json:"restorePrivateConversations,omitempty"`
	Error                       string        `json:"error,omitempty"`
}

// MaintenanceRequest is the maintenance-stream poll request.
type MaintenanceRequest struct {
	LastActionID int64
	ChannelID    string
	Checksum     string
}

// MaintenanceResponse is the maintenance-stream poll response.
type MaintenanceResponse struct {
	Actions []Action     `json:"actions,omitempty"`
	Events  []NamedEvent `json:"events,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// SendRequest carries an outbound message.
type SendRequest struct {
	Content     string
	Attachments []string
	Custom      map[string]string
	ChannelID   string
	Checksum    string
}

// SendResponse acknowledges a sent message.
type SendResponse struct {
	Error       string       `json:"error,omitempty"`
	Message     *Message     `json:"message,omitempty"`
	UserMapping *UserMapping `json:"userMapping,omitempty"`
}

// GetMessageRequest fetches a single message by ID.
type GetMessageRequest struct {
	MessageID int64
	ChannelID string
	Checksum  string
}

// UserCommandRequest carries an out-of-band user command such as
// checkPendingChat.
type UserCommandRequest struct {
	Command    string
	Parameters map[string]string
	ChannelID  string
	Checksum   string
}
