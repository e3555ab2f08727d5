////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package maintenance drives the out-of-band command stream: an independent
// poll loop delivering administrative actions (executed at most once, ordered
// by action ID) and transient events (redelivered every poll). Actions that
// mutate the session state itself are acknowledged here; everything else is
// dispatched by command name to registered handlers, with unrecognized names
// handed to a catch-all.
package maintenance

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/tidechat/client/engine"
	"gitlab.com/tidechat/client/event"
	"gitlab.com/tidechat/client/session"
	"gitlab.com/tidechat/client/stoppable"
)

const pollLoopStoppableName = "maintenancePollLoop"

// Event report parameters.
const (
	reportPriority = 1
	reportCategory = "maintenance"
)

// Command names acknowledged internally because they mutate the session
// state the executor itself polls with.
const (
	commandChecksum = "checkSum"
	commandRights   = "rights"
	commandUserData = "userData"
)

// Handler consumes the payload of one named command.
type Handler func(data json.RawMessage)

// CatchAll consumes commands no named handler is registered for.
type CatchAll func(name string, data json.RawMessage)

// UserDataHook is called once the server assigns the local user identity.
type UserDataHook func(ud session.UserData)

// Executor polls the maintenance stream. One instance serves one chat widget
// instance.
type Executor struct {
	cfg    session.Config
	state  *session.State
	engine engine.Engine
	events event.Manager

	// Action dedup cache and watermark; ID space is distinct from messages.
	seen         map[int64]struct{}
	lastActionID int64
	seenMux      sync.Mutex

	inFlight  uint32
	startOnce sync.Once
	stop      *stoppable.Single

	handlers     map[string][]Handler
	catchAll     []CatchAll
	userDataHook UserDataHook
	handlerMux   sync.RWMutex
}

// New creates an Executor seeded with the bootstrap action watermark. It does
// not poll until Start is called.
func New(cfg session.Config, state *session.State, eng engine.Engine,
	events event.Manager) *Executor {
	return &Executor{
		cfg:          cfg,
		state:        state,
		engine:       eng,
		events:       events,
		seen:         make(map[int64]struct{}),
		lastActionID: cfg.LastActionID,
		handlers:     make(map[string][]Handler),
	}
}

// RegisterHandler binds a handler to a command name. Multiple handlers per
// name are allowed.
func (e *Executor) RegisterHandler(name string, h Handler) {
	e.handlerMux.Lock()
	e.handlers[name] = append(e.handlers[name], h)
	e.handlerMux.Unlock()
}

// RegisterCatchAll binds a handler for commands without a named handler.
func (e *Executor) RegisterCatchAll(fn CatchAll) {
	e.handlerMux.Lock()
	e.catchAll = append(e.catchAll, fn)
	e.handlerMux.Unlock()
}

// SetUserDataHook registers the single hook run when the server assigns the
// local user identity.
func (e *Executor) SetUserDataHook(hook UserDataHook) {
	e.handlerMux.Lock()
	e.userDataHook = hook
	e.handlerMux.Unlock()
}

// Start launches the poll loop: one poll immediately, then one per refresh
// period. Calling Start again is a no-op returning the same stoppable.
func (e *Executor) Start() stoppable.Stoppable {
	e.startOnce.Do(func() {
		e.stop = stoppable.NewSingle(pollLoopStoppableName)
		go e.pollLoop(e.stop)
	})
	return e.stop
}

func (e *Executor) pollLoop(stop *stoppable.Single) {
	jww.INFO.Printf(
		"Starting maintenance poll loop for channel %s with period %s",
		e.cfg.ChannelID, e.cfg.MaintenanceRefresh)

	e.PollNow()

	ticker := time.NewTicker(e.cfg.MaintenanceRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-stop.Quit():
			stop.ToStopped()
			return
		case <-ticker.C:
			e.PollNow()
		}
	}
}

// PollNow issues one maintenance poll unless one is already outstanding, in
// which case it returns immediately.
func (e *Executor) PollNow() {
	if !atomic.CompareAndSwapUint32(&e.inFlight, 0, 1) {
		jww.TRACE.Print("Skipping maintenance poll tick: request in flight")
		return
	}
	defer atomic.StoreUint32(&e.inFlight, 0)

	resp, err := e.engine.PollMaintenance(engine.MaintenanceRequest{
		LastActionID: e.LastActionID(),
		ChannelID:    e.cfg.ChannelID,
		Checksum:     e.state.Checksum(),
	})
	if err != nil {
		e.reportError(err)
		return
	}
	if resp.Error != "" {
		e.reportError(engine.NewServerError(resp.Error))
		return
	}

	for _, action := range resp.Actions {
		if !e.admit(action.ID) {
			continue
		}
		e.execute(action.Command.Name, action.Command.Data)
	}

	// Events carry no IDs and are redelivered on every poll by design.
	for _, evt := range resp.Events {
		e.execute(evt.Name, evt.Data)
	}
}

// LastActionID returns the current action watermark.
func (e *Executor) LastActionID() int64 {
	e.seenMux.Lock()
	defer e.seenMux.Unlock()
	return e.lastActionID
}

// admit advances the watermark for the action ID and reports whether the
// action has not been executed before.
func (e *Executor) admit(id int64) bool {
	e.seenMux.Lock()
	defer e.seenMux.Unlock()

	if id > e.lastActionID {
		e.lastActionID = id
	}

	if _, ok := e.seen[id]; ok {
		return false
	}
	e.seen[id] = struct{}{}
	return true
}

// execute applies one command: internal session-state commands are
// acknowledged directly, everything else goes to the named handlers or, when
// none are bound, to the catch-all.
func (e *Executor) execute(name string, data json.RawMessage) {
	switch name {
	case commandChecksum:
		e.applyChecksum(data)
		return
	case commandRights:
		e.applyRights(data)
		return
	case commandUserData:
		e.applyUserData(data)
		return
	}

	e.handlerMux.RLock()
	handlers := e.handlers[name]
	catchAll := e.catchAll
	e.handlerMux.RUnlock()

	if len(handlers) == 0 {
		for _, fn := range catchAll {
			fn(name, data)
		}
		return
	}

	for _, h := range handlers {
		h(data)
	}
}

// applyChecksum rotates the request token. The payload is either a bare JSON
// string or an object with a checksum field; an empty value never erases a
// previously valid token.
func (e *Executor) applyChecksum(data json.RawMessage) {
	var checksum string
	if err := json.Unmarshal(data, &checksum); err != nil {
		var wrapped struct {
			Checksum string `json:"checksum"`
		}
		if err = json.Unmarshal(data, &wrapped); err != nil {
			jww.DEBUG.Printf("Malformed checksum payload: %s", data)
			return
		}
		checksum = wrapped.Checksum
	}

	e.state.UpdateChecksum(checksum)
}

func (e *Executor) applyRights(data json.RawMessage) {
	var rights session.Rights
	if err := json.Unmarshal(data, &rights); err != nil {
		jww.DEBUG.Printf("Malformed rights payload: %s", data)
		return
	}
	e.state.UpdateRights(rights)
}

func (e *Executor) applyUserData(data json.RawMessage) {
	var ud session.UserData
	if err := json.Unmarshal(data, &ud); err != nil {
		jww.DEBUG.Printf("Malformed user data payload: %s", data)
		return
	}
	e.state.SetUserData(ud)

	e.handlerMux.RLock()
	hook := e.userDataHook
	e.handlerMux.RUnlock()
	if hook != nil {
		hook(ud)
	}
}

func (e *Executor) reportError(err error) {
	if engine.IsConnectivity(err) {
		jww.TRACE.Printf(
			"[PollMaintenance] No connectivity, retrying next tick: %s", err)
		return
	}

	jww.WARN.Printf("[PollMaintenance] Server error: %s", err)
	e.events.Report(
		reportPriority, reportCategory, "PollMaintenance", err.Error())
}
