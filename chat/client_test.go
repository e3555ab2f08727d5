////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"gitlab.com/elixxir/ekv"

	"gitlab.com/tidechat/client/engine"
	"gitlab.com/tidechat/client/pm"
	"gitlab.com/tidechat/client/session"
	"gitlab.com/tidechat/client/stoppable"
	"gitlab.com/tidechat/client/storage/prefs"
	"gitlab.com/tidechat/client/storage/versioned"
	"gitlab.com/tidechat/client/transceiver"
)

type fakeEngine struct {
	mux sync.Mutex

	pollReqs  []engine.PollRequest
	pollQueue []*engine.PollResponse

	maintQueue []*engine.MaintenanceResponse

	commands []engine.UserCommandRequest

	sendResp *engine.SendResponse
}

func (f *fakeEngine) PollMessages(req engine.PollRequest) (
	*engine.PollResponse, error) {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.pollReqs = append(f.pollReqs, req)

	if len(f.pollQueue) == 0 {
		return &engine.PollResponse{NowTime: "t0"}, nil
	}
	resp := f.pollQueue[0]
	f.pollQueue = f.pollQueue[1:]
	return resp, nil
}

func (f *fakeEngine) PollMaintenance(engine.MaintenanceRequest) (
	*engine.MaintenanceResponse, error) {
	f.mux.Lock()
	defer f.mux.Unlock()

	if len(f.maintQueue) == 0 {
		return &engine.MaintenanceResponse{}, nil
	}
	resp := f.maintQueue[0]
	f.maintQueue = f.maintQueue[1:]
	return resp, nil
}

func (f *fakeEngine) SendMessage(req engine.SendRequest,
	onSuccess func(*engine.SendResponse), onProgress func(int),
	onError func(error)) {
	onProgress(0)
	onProgress(100)
	resp := f.sendResp
	if resp == nil {
		resp = &engine.SendResponse{Message: &engine.Message{ID: 1}}
	}
	onSuccess(resp)
}

func (f *fakeEngine) GetMessage(engine.GetMessageRequest,
	func(*engine.PollResponse), func(error)) {
}

func (f *fakeEngine) SendUserCommand(req engine.UserCommandRequest,
	onSuccess func([]byte), onError func(error)) {
	f.mux.Lock()
	f.commands = append(f.commands, req)
	f.mux.Unlock()
	onSuccess([]byte("{}"))
}

func (f *fakeEngine) pollRequests() []engine.PollRequest {
	f.mux.Lock()
	defer f.mux.Unlock()
	reqs := make([]engine.PollRequest, len(f.pollReqs))
	copy(reqs, f.pollReqs)
	return reqs
}

func (f *fakeEngine) userCommands() []engine.UserCommandRequest {
	f.mux.Lock()
	defer f.mux.Unlock()
	cmds := make([]engine.UserCommandRequest, len(f.commands))
	copy(cmds, f.commands)
	return cmds
}

type fakeView struct {
	mux      sync.Mutex
	messages []engine.Message
}

func (fv *fakeView) ShowMessage(msg engine.Message) {
	fv.mux.Lock()
	fv.messages = append(fv.messages, msg)
	fv.mux.Unlock()
}

func (fv *fakeView) count() int {
	fv.mux.Lock()
	defer fv.mux.Unlock()
	return len(fv.messages)
}

func testConfig() session.Config {
	return session.Config{
		ChannelID:              "ch",
		Checksum:               "seed",
		EnablePrivateMessages:  true,
		AllowToReceiveMessages: true,
	}
}

func viewFactory(*pm.Conversation) pm.View { return &fakeView{} }

// Full bootstrap: the userData maintenance action triggers the private
// preload, the restore batch reconstructs conversations, and the flags
// persisted before the reload are applied in one pass.
func TestClient_Bootstrap_Restore(t *testing.T) {
	store := ekv.MakeMemstore()

	// Persist flags as a previous session would have.
	presaved := prefs.LoadSavedConversations(versioned.NewKV(store), "ch")
	if err := presaved.MarkOpen("hashA"); err != nil {
		t.Fatalf("Failed to preseed flags: %+v", err)
	}
	if err := presaved.MarkMinimized("hashA"); err != nil {
		t.Fatalf("Failed to preseed flags: %+v", err)
	}
	if err := presaved.MarkActive("hashA"); err != nil {
		t.Fatalf("Failed to preseed flags: %+v", err)
	}

	history := []engine.Message{
		{ID: 1, SenderHash: "hashA", SenderID: "idA", SenderName: "alice",
			RecipientHash: "selfHash", IsPrivate: true, Rendered: "hello"},
	}
	fe := &fakeEngine{
		pollQueue: []*engine.PollResponse{{
			Result:                      history,
			NowTime:                     "t1",
			RestorePrivateConversations: true,
		}},
		maintQueue: []*engine.MaintenanceResponse{{
			Actions: []engine.Action{{ID: 1, Command: engine.Command{
				Name: "userData",
				Data: json.RawMessage(
					`{"id":"me","name":"self","hash":"selfHash"}`),
			}}},
		}},
	}

	c := NewClient(testConfig(), fe, store, viewFactory, nil)

	type restored struct {
		hash                    string
		open, minimized, active bool
	}
	var restoredMux sync.Mutex
	var presented []restored
	c.SetRestoreCallback(
		func(conv *pm.Conversation, open, minimized, active bool) {
			restoredMux.Lock()
			presented = append(presented, restored{
				conv.Hash(), open, minimized, active})
			restoredMux.Unlock()
		})

	c.maintenance.PollNow()

	// The preload runs on its own goroutine.
	deadline := time.After(time.Second)
	for {
		restoredMux.Lock()
		n := len(presented)
		restoredMux.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("The restore was never presented.")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	reqs := fe.pollRequests()
	if len(reqs) != 1 || !reqs[0].PrivateMessages || reqs[0].LastID != 0 {
		t.Errorf("The preload request was malformed: %+v", reqs)
	}

	restoredMux.Lock()
	first := presented[0]
	restoredMux.Unlock()
	if first.hash != "hashA" ||
		!first.open || !first.minimized || !first.active {
		t.Errorf("The persisted flags were not applied: %+v", first)
	}

	if _, ok := c.router.Get("hashA"); !ok {
		t.Error("The conversation was not reconstructed.")
	}

	recent := c.recent.Recent()
	if len(recent) != 1 || recent[0].Hash != "hashA" {
		t.Errorf("The recent list was not seeded from the restore: %v",
			recent)
	}
}

// Tests that an identity remap migrates the persisted flags to the new hash
// and keeps routing to the same conversation.
func TestClient_Remap_MigratesFlags(t *testing.T) {
	fe := &fakeEngine{}
	c := NewClient(testConfig(), fe, ekv.MakeMemstore(), viewFactory, nil)
	c.state.SetUserData(
		session.UserData{ID: "me", Name: "self", Hash: "selfHash"})

	c.handleStreamEvent(transceiver.Batch{Messages: []engine.Message{
		{ID: 1, SenderHash: "hashA", SenderID: "idA", SenderName: "alice",
			RecipientHash: "selfHash", IsPrivate: true},
	}})
	if err := c.OpenConversation("hashA"); err != nil {
		t.Fatalf("Failed to open the conversation: %+v", err)
	}

	mapping := engine.UserMapping{Hash: "hashA"}
	mapping.Map.Hash = "hashB"
	mapping.Map.PublicID = "stableID"
	c.handleStreamEvent(transceiver.Mapping{Mapping: mapping})

	if !c.saved.IsOpen("hashB") || c.saved.IsOpen("hashA") {
		t.Error("The open flag was not migrated to the new hash.")
	}

	conv, ok := c.router.Get("hashB")
	if !ok || conv.PublicID() != "stableID" {
		t.Error("The conversation was not re-addressed.")
	}
}

// Tests that with confirmation disabled a new peer's first message opens the
// conversation: the open flag is persisted, the invitation gate closes, and
// the host UI is told to display it.
func TestClient_AutoOpen(t *testing.T) {
	fe := &fakeEngine{}
	c := NewClient(testConfig(), fe, ekv.MakeMemstore(), viewFactory, nil)
	c.state.SetUserData(
		session.UserData{ID: "me", Name: "self", Hash: "selfHash"})

	var opened []string
	c.SetOpenCallback(func(conv *pm.Conversation) {
		opened = append(opened, conv.Hash())
	})

	c.handleStreamEvent(transceiver.Batch{Messages: []engine.Message{
		{ID: 1, SenderHash: "hashA", SenderID: "idA", SenderName: "alice",
			RecipientHash: "selfHash", IsPrivate: true},
	}})

	if len(opened) != 1 || opened[0] != "hashA" {
		t.Fatalf("The conversation was not presented: %v", opened)
	}
	if !c.saved.IsOpen("hashA") {
		t.Error("The auto-opened conversation was not persisted as open.")
	}

	conv, ok := c.router.Get("hashA")
	if !ok {
		t.Fatal("The conversation was not created.")
	}
	if conv.InvitationEnabled() {
		t.Error("The invitation gate was left open on a displayed " +
			"conversation.")
	}

	c.handleStreamEvent(transceiver.Batch{Messages: []engine.Message{
		{ID: 2, SenderHash: "hashA", SenderID: "idA", SenderName: "alice",
			RecipientHash: "selfHash", IsPrivate: true},
	}})
	if len(opened) != 1 {
		t.Errorf("A displayed conversation was presented again."+
			"\nexpected: %d\nreceived: %d", 1, len(opened))
	}
}

// Tests that a successful send is recorded in the input recall history.
func TestClient_Send_RecordsHistory(t *testing.T) {
	fe := &fakeEngine{}
	c := NewClient(testConfig(), fe, ekv.MakeMemstore(), viewFactory, nil)

	c.Send("hello there", nil, nil,
		func(*engine.SendResponse) {},
		func(int) {},
		func(err error) { t.Fatalf("Send failed: %+v", err) })

	entries := c.history.All()
	if len(entries) != 1 || entries[0] != "hello there" {
		t.Errorf("The sent text was not recorded: %v", entries)
	}
}

// Tests that a pending chat for the active conversation is acknowledged with
// the checkPendingChat command.
func TestClient_PendingChat_Acknowledged(t *testing.T) {
	fe := &fakeEngine{}
	c := NewClient(testConfig(), fe, ekv.MakeMemstore(), viewFactory, nil)

	if err := c.saved.MarkActive("hashA"); err != nil {
		t.Fatalf("Failed to mark active: %+v", err)
	}

	c.handleStreamEvent(transceiver.Pending{
		Chat: engine.PendingChat{ID: "p1", Hash: "hashA"}})

	cmds := fe.userCommands()
	if len(cmds) != 1 || cmds[0].Command != "checkPendingChat" {
		t.Fatalf("The pending chat was not acknowledged: %+v", cmds)
	}
	if cmds[0].Parameters["pendingChatId"] != "p1" {
		t.Errorf("The acknowledgement carried the wrong chat: %+v",
			cmds[0].Parameters)
	}
}

// Tests that public channel messages go to the channel view, not the router.
func TestClient_ChannelMessages(t *testing.T) {
	fe := &fakeEngine{}
	channelView := &fakeView{}
	c := NewClient(
		testConfig(), fe, ekv.MakeMemstore(), viewFactory, channelView)
	c.state.SetUserData(
		session.UserData{ID: "me", Name: "self", Hash: "selfHash"})

	c.handleStreamEvent(transceiver.Batch{Messages: []engine.Message{
		{ID: 1, SenderHash: "hashA", SenderName: "alice"},
		{ID: 2, SenderHash: "hashA", RecipientHash: "selfHash",
			IsPrivate: true},
	}})

	if channelView.count() != 1 {
		t.Errorf("The channel view received the wrong messages."+
			"\nexpected: %d\nreceived: %d", 1, channelView.count())
	}
	if len(c.router.Conversations()) != 1 {
		t.Error("The private message did not reach the router.")
	}
}

// Tests the built-in maintenance bindings: user counter, presence reports,
// and peer rename.
func TestClient_MaintenanceBindings(t *testing.T) {
	fe := &fakeEngine{maintQueue: []*engine.MaintenanceResponse{{
		Actions: []engine.Action{
			{ID: 1, Command: engine.Command{Name: "refreshUsersCounter",
				Data: json.RawMessage(`{"total":7}`)}},
			{ID: 2, Command: engine.Command{Name: "reportNewUsers",
				Data: json.RawMessage(`{"users":["alice"]}`)}},
			{ID: 3, Command: engine.Command{Name: "reportAbsentUsers",
				Data: json.RawMessage(`{"users":["bob"]}`)}},
			{ID: 4, Command: engine.Command{
				Name: "refreshPlainUserNameByHash",
				Data: json.RawMessage(`{"hash":"hashA","name":"Alice R"}`)}},
		},
	}}}
	c := NewClient(testConfig(), fe, ekv.MakeMemstore(), viewFactory, nil)
	c.state.SetUserData(
		session.UserData{ID: "me", Name: "self", Hash: "selfHash"})

	c.handleStreamEvent(transceiver.Batch{Messages: []engine.Message{
		{ID: 1, SenderHash: "hashA", SenderID: "idA", SenderName: "alice",
			RecipientHash: "selfHash", IsPrivate: true},
	}})

	var total int
	var joined, left []string
	c.SetUsersCounterCallback(func(n int) { total = n })
	c.SetPresenceCallback(func(j, l []string) {
		joined = append(joined, j...)
		left = append(left, l...)
	})

	c.maintenance.PollNow()

	if total != 7 {
		t.Errorf("The user counter was not forwarded."+
			"\nexpected: %d\nreceived: %d", 7, total)
	}
	if len(joined) != 1 || joined[0] != "alice" {
		t.Errorf("The join report was not forwarded: %v", joined)
	}
	if len(left) != 1 || left[0] != "bob" {
		t.Errorf("The leave report was not forwarded: %v", left)
	}

	conv, ok := c.router.Get("hashA")
	if !ok || conv.Name() != "Alice R" {
		t.Error("The peer was not renamed.")
	}
}

// Tests that Start is idempotent and the whole client shuts down cleanly.
func TestClient_Start(t *testing.T) {
	fe := &fakeEngine{}
	c := NewClient(testConfig(), fe, ekv.MakeMemstore(), viewFactory, nil)

	stop, err := c.Start()
	if err != nil {
		t.Fatalf("Failed to start the client: %+v", err)
	}
	again, err := c.Start()
	if err != nil || again != stop {
		t.Error("A second Start did not return the same stoppable.")
	}

	if err = stop.Close(); err != nil {
		t.Errorf("Failed to close the client: %+v", err)
	}

	deadline := time.After(time.Second)
	for stop.GetStatus() != stoppable.Stopped {
		select {
		case <-deadline:
			t.Fatalf("The client did not stop: status %s", stop.GetStatus())
		default:
			time.Sleep(time.Millisecond)
		}
	}
}
