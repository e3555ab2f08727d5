////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package chat assembles one complete client instance: the message
// transceiver, the maintenance executor, the private conversation router,
// and the persisted UI state, wired together per widget instance with no
// process-wide globals.
package chat

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"

	"gitlab.com/tidechat/client/engine"
	"gitlab.com/tidechat/client/event"
	"gitlab.com/tidechat/client/maintenance"
	"gitlab.com/tidechat/client/pm"
	"gitlab.com/tidechat/client/session"
	"gitlab.com/tidechat/client/stoppable"
	"gitlab.com/tidechat/client/storage/prefs"
	"gitlab.com/tidechat/client/storage/versioned"
	"gitlab.com/tidechat/client/transceiver"
)

const clientStoppableName = "chatClient"

// Error messages.
const (
	missingListenersErr    = "Missing listeners for %s call"
	unknownConversationErr = "no conversation for peer hash %q"
)

// InvitationCallback prompts the host UI to accept, block, or dismiss a new
// peer.
type InvitationCallback func(conv *pm.Conversation, msg engine.Message)

// RestoreCallback tells the host UI how to present one reconstructed
// conversation, using the flags persisted before the reload.
type RestoreCallback func(conv *pm.Conversation, open, minimized, active bool)

// OpenCallback tells the host UI to display a conversation that opened
// without an invitation prompt.
type OpenCallback func(conv *pm.Conversation)

// Client is one chat widget instance. All state is instance scoped; multiple
// clients with separate stores and channels can coexist in one process.
type Client struct {
	cfg    session.Config
	state  *session.State
	events event.Manager

	transceiver *transceiver.Transceiver
	maintenance *maintenance.Executor
	router      *pm.Router
	recent      *pm.RecentChats

	saved   *prefs.SavedConversations
	ignore  *prefs.IgnoreList
	history *prefs.InputHistory

	// channelView receives public channel messages; nil drops them.
	channelView pm.View

	mux                  sync.RWMutex
	invitationCallback   InvitationCallback
	restoreCallback      RestoreCallback
	openCallback         OpenCallback
	reloadCallback       func()
	usersCounterCallback func(total int)
	presenceCallback     func(joined, left []string)

	startOnce sync.Once
	stop      *stoppable.Multi
}

// NewClient assembles a client over the given transport engine and durable
// store. The view factory creates the sink of each private conversation;
// channelView receives public channel messages and may be nil.
func NewClient(cfg session.Config, eng engine.Engine, store ekv.KeyValue,
	viewFactory pm.ViewFactory, channelView pm.View) *Client {
	cfg.FillDefaults()

	kv := versioned.NewKV(store)
	state := session.NewState(cfg)
	events := event.NewEventManager()

	c := &Client{
		cfg:         cfg,
		state:       state,
		events:      events,
		saved:       prefs.LoadSavedConversations(kv, cfg.ChannelID),
		ignore:      prefs.LoadIgnoreList(kv, cfg.ChannelID),
		history:     prefs.NewInputHistory(kv, cfg.ChannelID),
		channelView: channelView,
	}

	c.transceiver = transceiver.New(cfg, state, eng, events)
	c.maintenance = maintenance.New(cfg, state, eng, events)
	c.router = pm.NewRouter(cfg, state, c.ignore, viewFactory)
	c.recent = pm.NewRecentChats(c.acknowledgePendingChat)

	c.recent.SetActiveLookup(c.saved.GetActive)
	c.saved.SetActivationListener(c.recent.MarkActive)

	c.transceiver.Subscribe(c.handleStreamEvent)
	c.router.Subscribe(c.handleRouterEvent)

	c.maintenance.SetUserDataHook(func(session.UserData) {
		c.transceiver.LoadPrivateMessages()
	})
	c.maintenance.RegisterHandler("showErrorMessage", c.showErrorMessage)
	c.maintenance.RegisterHandler("reload", func(json.RawMessage) {
		c.mux.RLock()
		reload := c.reloadCallback
		c.mux.RUnlock()
		if reload != nil {
			reload()
		}
	})
	c.maintenance.RegisterHandler("refreshUsersCounter", c.refreshUsersCounter)
	c.maintenance.RegisterHandler("reportNewUsers", func(data json.RawMessage) {
		c.reportUsers(data, true)
	})
	c.maintenance.RegisterHandler("reportAbsentUsers",
		func(data json.RawMessage) {
			c.reportUsers(data, false)
		})
	c.maintenance.RegisterHandler("refreshPlainUserNameByHash",
		c.refreshPlainUserName)

	return c
}

// Start launches the event service and both polling loops. Calling Start
// again returns the same stoppable.
func (c *Client) Start() (stoppable.Stoppable, error) {
	var err error
	c.startOnce.Do(func() {
		multi := stoppable.NewMulti(clientStoppableName)

		var evtStop stoppable.Stoppable
		evtStop, err = c.events.EventService()
		if err != nil {
			err = errors.WithMessage(err, "failed to start event service")
			return
		}
		multi.Add(evtStop)

		multi.Add(c.transceiver.Start())
		multi.Add(c.maintenance.Start())
		c.stop = multi
	})
	if err != nil {
		return nil, err
	}
	return c.stop, nil
}

// SetInvitationCallback registers the prompt shown for a new peer's first
// message. Without one, invitations can only be resolved programmatically.
func (c *Client) SetInvitationCallback(cb InvitationCallback) {
	c.mux.Lock()
	c.invitationCallback = cb
	c.mux.Unlock()
}

// SetRestoreCallback registers the presenter run for each conversation
// reconstructed from a history batch.
func (c *Client) SetRestoreCallback(cb RestoreCallback) {
	c.mux.Lock()
	c.restoreCallback = cb
	c.mux.Unlock()
}

// SetOpenCallback registers the presenter run when a conversation auto-opens
// because invitation confirmation is disabled.
func (c *Client) SetOpenCallback(cb OpenCallback) {
	c.mux.Lock()
	c.openCallback = cb
	c.mux.Unlock()
}

// SetReloadCallback registers the handler for the server's reload command.
func (c *Client) SetReloadCallback(cb func()) {
	c.mux.Lock()
	c.reloadCallback = cb
	c.mux.Unlock()
}

// SetUsersCounterCallback registers the handler for online user counter
// refreshes.
func (c *Client) SetUsersCounterCallback(cb func(total int)) {
	c.mux.Lock()
	c.usersCounterCallback = cb
	c.mux.Unlock()
}

// SetPresenceCallback registers the handler for join/leave notifications.
// Exactly one of the slices is populated per event.
func (c *Client) SetPresenceCallback(cb func(joined, left []string)) {
	c.mux.Lock()
	c.presenceCallback = cb
	c.mux.Unlock()
}

// OnMaintenance binds a handler to a maintenance command name.
func (c *Client) OnMaintenance(name string, h maintenance.Handler) {
	c.maintenance.RegisterHandler(name, h)
}

// OnUnhandledMaintenance binds a handler for maintenance commands without a
// named handler.
func (c *Client) OnUnhandledMaintenance(fn maintenance.CatchAll) {
	c.maintenance.RegisterCatchAll(fn)
}

// Send delivers a public channel message. All the listeners must be
// specified. The text is appended to the input recall history on success.
func (c *Client) Send(content string, attachments []string,
	custom map[string]string, onSuccess func(*engine.SendResponse),
	onProgress func(int), onError func(error)) {
	if onSuccess == nil || onProgress == nil || onError == nil {
		jww.FATAL.Panicf(missingListenersErr, "Send")
	}

	c.transceiver.Send(content, attachments, custom,
		func(resp *engine.SendResponse) {
			if err := c.history.Append(content); err != nil {
				jww.WARN.Printf("Failed to record input history: %+v", err)
			}
			onSuccess(resp)
		}, onProgress, onError)
}

// SendPrivate delivers a message to one conversation, addressed by the
// peer's current public ID. All the listeners must be specified.
func (c *Client) SendPrivate(conv *pm.Conversation, content string,
	attachments []string, onSuccess func(*engine.SendResponse),
	onProgress func(int), onError func(error)) {
	if onSuccess == nil || onProgress == nil || onError == nil {
		jww.FATAL.Panicf(missingListenersErr, "SendPrivate")
	}

	custom := map[string]string{"recipientPublicId": conv.PublicID()}
	c.Send(content, attachments, custom, onSuccess, onProgress, onError)
}

// AcceptInvitation opens the peer's conversation and persists it as open.
func (c *Client) AcceptInvitation(hash string) error {
	conv := c.router.ResolveAccept(hash)
	if conv == nil {
		return errors.Errorf(unknownConversationErr, hash)
	}
	return c.saved.MarkOpen(conv.Hash())
}

// BlockInvitation declines the invitation and silences the peer for good.
func (c *Client) BlockInvitation(hash string) error {
	return c.router.ResolveBlock(hash)
}

// DismissInvitation declines the invitation only; the peer's next message
// prompts again.
func (c *Client) DismissInvitation(hash string) {
	c.router.ResolveDismiss(hash)
}

// OpenConversation marks the peer's conversation open and closes its
// invitation gate while displayed.
func (c *Client) OpenConversation(hash string) error {
	conv, ok := c.router.Get(hash)
	if !ok {
		return errors.Errorf(unknownConversationErr, hash)
	}
	conv.SetInvitationEnabled(false)
	return c.saved.MarkOpen(conv.Hash())
}

// CloseConversation hides the peer's conversation and re-arms its invitation
// gate. The conversation itself is kept for the process lifetime.
func (c *Client) CloseConversation(hash string) error {
	conv, ok := c.router.Get(hash)
	if !ok {
		return errors.Errorf(unknownConversationErr, hash)
	}
	conv.SetInvitationEnabled(true)
	return c.saved.Clear(conv.Hash())
}

// MinimizeConversation persists the peer's conversation as minimized.
func (c *Client) MinimizeConversation(hash string) error {
	conv, ok := c.router.Get(hash)
	if !ok {
		return errors.Errorf(unknownConversationErr, hash)
	}
	return c.saved.MarkMinimized(conv.Hash())
}

// UnminimizeConversation removes the peer's minimized flag.
func (c *Client) UnminimizeConversation(hash string) error {
	conv, ok := c.router.Get(hash)
	if !ok {
		return errors.Errorf(unknownConversationErr, hash)
	}
	return c.saved.UnmarkMinimized(conv.Hash())
}

// ActivateConversation persists the peer's conversation as the active one,
// promoting its pending chat to the recent list.
func (c *Client) ActivateConversation(hash string) error {
	conv, ok := c.router.Get(hash)
	if !ok {
		return errors.Errorf(unknownConversationErr, hash)
	}
	return c.saved.MarkActive(conv.Hash())
}

// Router returns the private conversation router.
func (c *Client) Router() *pm.Router {
	return c.router
}

// RecentChats returns the pending/recent chat lists.
func (c *Client) RecentChats() *pm.RecentChats {
	return c.recent
}

// InputHistory returns the sent-input recall ring.
func (c *Client) InputHistory() *prefs.InputHistory {
	return c.history
}

// SavedConversations returns the persisted conversation flags.
func (c *Client) SavedConversations() *prefs.SavedConversations {
	return c.saved
}

// State returns the mutable session state.
func (c *Client) State() *session.State {
	return c.state
}

// Events returns the event reporting manager.
func (c *Client) Events() event.Manager {
	return c.events
}

// handleStreamEvent fans one message stream event out to the channel view,
// the router, and the recent chat list.
func (c *Client) handleStreamEvent(e transceiver.Event) {
	switch evt := e.(type) {
	case transceiver.Batch:
		if c.channelView != nil {
			for _, msg := range evt.Messages {
				if !msg.IsPrivate {
					c.channelView.ShowMessage(msg)
				}
			}
		}

		if evt.Restore {
			if ud, ok := c.state.UserData(); ok {
				c.recent.SeedFromRestore(
					evt.Messages, ud.Hash, c.router.Identities())
			}
		}

		c.router.HandleBatch(evt.Messages, evt.Restore)

	case transceiver.Heartbeat:
		c.recent.Heartbeat(evt.NowTime)

	case transceiver.Pending:
		c.recent.HandlePending(evt.Chat)

	case transceiver.Mapping:
		c.router.HandleUserMapping(evt.Mapping)
	}
}

// handleRouterEvent applies router outcomes to the persisted flags and the
// host UI callbacks.
func (c *Client) handleRouterEvent(e pm.Event) {
	switch evt := e.(type) {
	case pm.InvitationRaised:
		c.mux.RLock()
		cb := c.invitationCallback
		c.mux.RUnlock()
		if cb != nil {
			cb(evt.Conversation, evt.Message)
		}

	case pm.Opened:
		evt.Conversation.SetInvitationEnabled(false)
		if err := c.saved.MarkOpen(evt.Conversation.Hash()); err != nil {
			jww.WARN.Printf("Failed to persist auto-opened conversation %s: %+v",
				evt.Conversation.Hash(), err)
		}

		c.mux.RLock()
		cb := c.openCallback
		c.mux.RUnlock()
		if cb != nil {
			cb(evt.Conversation)
		}

	case pm.Restored:
		c.applyPersistedFlags(evt.Conversations)

	case pm.Remapped:
		if err := c.saved.Migrate(evt.OldHash, evt.NewHash); err != nil {
			jww.WARN.Printf("Failed to migrate saved flags %s -> %s: %+v",
				evt.OldHash, evt.NewHash, err)
		}
	}
}

// applyPersistedFlags presents every reconstructed conversation with the
// open/minimized/active flags persisted before the reload, in one pass.
func (c *Client) applyPersistedFlags(convs []*pm.Conversation) {
	c.mux.RLock()
	cb := c.restoreCallback
	c.mux.RUnlock()

	active, _ := c.saved.GetActive()
	for _, conv := range convs {
		open := c.saved.IsOpen(conv.Hash())
		if open {
			conv.SetInvitationEnabled(false)
		}

		if cb != nil {
			cb(conv, open, c.saved.IsMinimized(conv.Hash()),
				active == conv.Hash())
		}
	}
}

// acknowledgePendingChat confirms receipt of a pending chat so the server
// stops re-announcing it.
func (c *Client) acknowledgePendingChat(chat engine.PendingChat) {
	c.transceiver.SendUserCommand("checkPendingChat", map[string]string{
		"pendingChatId": chat.ID,
		"hash":          chat.Hash,
	}, func([]byte) {
		jww.TRACE.Printf("Acknowledged pending chat %s", chat.ID)
	}, func(err error) {
		jww.WARN.Printf("Failed to acknowledge pending chat %s: %+v",
			chat.ID, err)
	})
}

// refreshUsersCounter forwards the online user total to the host UI.
func (c *Client) refreshUsersCounter(data json.RawMessage) {
	var payload struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		jww.DEBUG.Printf("Malformed refreshUsersCounter payload: %s", data)
		return
	}

	c.mux.RLock()
	cb := c.usersCounterCallback
	c.mux.RUnlock()
	if cb != nil {
		cb(payload.Total)
	}
}

// reportUsers forwards a join or leave notification to the host UI.
func (c *Client) reportUsers(data json.RawMessage, joined bool) {
	var payload struct {
		Users []string `json:"users"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		jww.DEBUG.Printf("Malformed user report payload: %s", data)
		return
	}

	c.mux.RLock()
	cb := c.presenceCallback
	c.mux.RUnlock()
	if cb == nil {
		return
	}
	if joined {
		cb(payload.Users, nil)
	} else {
		cb(nil, payload.Users)
	}
}

// refreshPlainUserName rewrites a peer's display name by hash.
func (c *Client) refreshPlainUserName(data json.RawMessage) {
	var payload struct {
		Hash string `json:"hash"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		jww.DEBUG.Printf("Malformed refreshPlainUserNameByHash payload: %s",
			data)
		return
	}
	c.router.RenamePeer(payload.Hash, payload.Name)
}

// showErrorMessage surfaces a server-pushed error banner through the event
// manager.
func (c *Client) showErrorMessage(data json.RawMessage) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		jww.DEBUG.Printf("Malformed showErrorMessage payload: %s", data)
		return
	}
	c.events.Report(1, "server", "showErrorMessage", payload.Message)
}
