////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package transceiver drives the message stream: the recurring poll loop, the
// one-shot private conversation preload, deduplication and ordering of the
// raw batches, and the send path. Results fan out to subscribers as tagged
// Event variants.
package transceiver

import (
	"sync"
	"sync/atomic"
	"time"

	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/tidechat/client/engine"
	"gitlab.com/tidechat/client/event"
	"gitlab.com/tidechat/client/session"
	"gitlab.com/tidechat/client/stoppable"
)

const pollLoopStoppableName = "transceiverPollLoop"

// Error message.
const missingListenersErr = "Missing listeners for %s call"

// Event report parameters.
const (
	reportPriority = 1
	reportCategory = "transceiver"
)

// Transceiver polls the message stream and sends outbound messages. One
// instance serves one chat widget instance.
type Transceiver struct {
	cfg    session.Config
	state  *session.State
	engine engine.Engine
	events event.Manager

	dedup *dedup

	// Single-flight flags, one per logical stream.
	pollInFlight     uint32
	preloadTriggered uint32

	// kick wakes the poll loop early, after a successful send.
	kick chan struct{}

	startOnce sync.Once
	stop      *stoppable.Single

	subscribers []func(Event)
	subMux      sync.RWMutex
}

// New creates a Transceiver seeded with the bootstrap watermark. It does not
// poll until Start is called.
func New(cfg session.Config, state *session.State, eng engine.Engine,
	events event.Manager) *Transceiver {
	return &Transceiver{
		cfg:    cfg,
		state:  state,
		engine: eng,
		events: events,
		dedup:  newDedup(cfg.LastID),
		kick:   make(chan struct{}, 1),
	}
}

// Subscribe registers a consumer of message stream events. Subscribers are
// invoked synchronously on the polling goroutine; they must not block.
func (t *Transceiver) Subscribe(fn func(Event)) {
	t.subMux.Lock()
	t.subscribers = append(t.subscribers, fn)
	t.subMux.Unlock()
}

// Start launches the poll loop. Calling Start again is a no-op returning the
// same stoppable. When receiving is disabled by configuration, the loop idles
// until stopped.
func (t *Transceiver) Start() stoppable.Stoppable {
	t.startOnce.Do(func() {
		t.stop = stoppable.NewSingle(pollLoopStoppableName)
		go t.pollLoop(t.stop)
	})
	return t.stop
}

// pollLoop waits one full refresh period before the first poll, then polls on
// every tick or kick. Ticks falling while a poll is in flight are skipped by
// the single-flight check, never queued.
func (t *Transceiver) pollLoop(stop *stoppable.Single) {
	if !t.cfg.AllowToReceiveMessages {
		jww.INFO.Print("Message receiving disabled; poll loop idle")
		<-stop.Quit()
		stop.ToStopped()
		return
	}

	jww.INFO.Printf("Starting message poll loop for channel %s with period %s",
		t.cfg.ChannelID, t.cfg.MessagesRefresh)

	ticker := time.NewTicker(t.cfg.MessagesRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-stop.Quit():
			stop.ToStopped()
			return
		case <-ticker.C:
			t.PollNow()
		case <-t.kick:
			t.PollNow()
		}
	}
}

// PollNow issues one message poll unless one is already outstanding, in which
// case it returns immediately.
func (t *Transceiver) PollNow() {
	if !atomic.CompareAndSwapUint32(&t.pollInFlight, 0, 1) {
		jww.TRACE.Print("Skipping message poll tick: request in flight")
		return
	}
	defer atomic.StoreUint32(&t.pollInFlight, 0)

	req := engine.PollRequest{
		ChannelID: t.cfg.ChannelID,
		LastID:    t.dedup.LastID(),
		Checksum:  t.state.Checksum(),
	}
	if t.cfg.Multisite {
		req.BlogID = t.cfg.BlogID
	}

	resp, err := t.engine.PollMessages(req)
	if err != nil {
		t.reportError("PollMessages", err)
		return
	}
	if resp.Error != "" {
		t.reportError("PollMessages", engine.NewServerError(resp.Error))
		return
	}

	t.deliver(resp)
}

// LoadPrivateMessages triggers the one-shot preload of private conversation
// history, polling from watermark zero. Repeated triggers are no-ops; a
// failed attempt re-arms the trigger so a later caller can retry.
func (t *Transceiver) LoadPrivateMessages() {
	if !t.cfg.EnablePrivateMessages {
		return
	}
	if !atomic.CompareAndSwapUint32(&t.preloadTriggered, 0, 1) {
		return
	}

	go func() {
		req := engine.PollRequest{
			ChannelID:       t.cfg.ChannelID,
			LastID:          0,
			Checksum:        t.state.Checksum(),
			PrivateMessages: true,
		}
		if t.cfg.Multisite {
			req.BlogID = t.cfg.BlogID
		}

		resp, err := t.engine.PollMessages(req)
		if err != nil {
			atomic.StoreUint32(&t.preloadTriggered, 0)
			t.reportError("LoadPrivateMessages", err)
			return
		}
		if resp.Error != "" {
			atomic.StoreUint32(&t.preloadTriggered, 0)
			t.reportError(
				"LoadPrivateMessages", engine.NewServerError(resp.Error))
			return
		}

		t.deliver(resp)
	}()
}

// deliver runs a successful poll response through deduplication and fans the
// results out: a heartbeat always, a batch only when something new or a
// restore flag arrived, and each pending chat individually.
func (t *Transceiver) deliver(resp *engine.PollResponse) {
	filtered := t.dedup.filter(resp.Result, t.cfg.MessagesOrder)

	t.publish(Heartbeat{NowTime: resp.NowTime})

	if len(filtered) > 0 || resp.RestorePrivateConversations {
		t.publish(Batch{
			Messages: filtered,
			NowTime:  resp.NowTime,
			Restore:  resp.RestorePrivateConversations,
		})
	}

	for _, pending := range resp.PendingChats {
		t.publish(Pending{Chat: pending})
	}
}

// Send delivers an outbound message. All the listeners must be specified. A
// user mapping in the acknowledgement is broadcast before the success
// listener runs; after a success the poll loop is kicked so the echo arrives
// without waiting out the refresh period.
func (t *Transceiver) Send(content string, attachments []string,
	custom map[string]string, onSuccess func(*engine.SendResponse),
	onProgress func(int), onError func(error)) {
	if onSuccess == nil || onProgress == nil || onError == nil {
		jww.FATAL.Panicf(missingListenersErr, "Send")
	}

	req := engine.SendRequest{
		Content:     content,
		Attachments: attachments,
		Custom:      custom,
		ChannelID:   t.cfg.ChannelID,
		Checksum:    t.state.Checksum(),
	}

	t.engine.SendMessage(req, func(resp *engine.SendResponse) {
		if resp.UserMapping != nil {
			t.publish(Mapping{Mapping: *resp.UserMapping})
		}
		if resp.Message != nil {
			t.publish(Sent{Message: *resp.Message})
		}

		onSuccess(resp)

		if t.cfg.AllowToReceiveMessages {
			select {
			case t.kick <- struct{}{}:
			default:
			}
		}
	}, onProgress, onError)
}

// GetMessage fetches a single message by ID, bypassing deduplication. All the
// listeners must be specified.
func (t *Transceiver) GetMessage(messageID int64,
	onSuccess func(engine.Message), onError func(error)) {
	if onSuccess == nil || onError == nil {
		jww.FATAL.Panicf(missingListenersErr, "GetMessage")
	}

	req := engine.GetMessageRequest{
		MessageID: messageID,
		ChannelID: t.cfg.ChannelID,
		Checksum:  t.state.Checksum(),
	}

	t.engine.GetMessage(req, func(resp *engine.PollResponse) {
		for _, msg := range resp.Result {
			onSuccess(msg)
		}
	}, onError)
}

// SendUserCommand delivers an out-of-band user command such as
// checkPendingChat. All the listeners must be specified.
func (t *Transceiver) SendUserCommand(command string,
	parameters map[string]string, onSuccess func([]byte),
	onError func(error)) {
	if onSuccess == nil || onError == nil {
		jww.FATAL.Panicf(missingListenersErr, "SendUserCommand")
	}

	t.engine.SendUserCommand(engine.UserCommandRequest{
		Command:    command,
		Parameters: parameters,
		ChannelID:  t.cfg.ChannelID,
		Checksum:   t.state.Checksum(),
	}, onSuccess, onError)
}

func (t *Transceiver) publish(e Event) {
	t.subMux.RLock()
	subscribers := t.subscribers
	t.subMux.RUnlock()

	for _, fn := range subscribers {
		fn(e)
	}
}

// reportError applies the error taxonomy: connectivity failures are swallowed
// and retried on the next tick; everything else is surfaced to the event
// reporting collaborator while polling continues.
func (t *Transceiver) reportError(call string, err error) {
	if engine.IsConnectivity(err) {
		jww.TRACE.Printf("[%s] No connectivity, retrying next tick: %s",
			call, err)
		return
	}

	jww.WARN.Printf("[%s] Server error: %s", call, err)
	t.events.Report(reportPriority, reportCategory, call, err.Error())
}
