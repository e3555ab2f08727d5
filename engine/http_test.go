////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package engine

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestEngine(handler http.HandlerFunc) (*HTTPEngine, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewHTTPEngine(EndpointsFromBase(srv.URL)), srv
}

// Happy path of HTTPEngine.PollMessages.
func TestHTTPEngine_PollMessages(t *testing.T) {
	e, srv := newTestEngine(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("lastId") != "7" {
			t.Errorf("Poll request did not carry the watermark."+
				"\nexpected: %s\nreceived: %s",
				"7", r.URL.Query().Get("lastId"))
		}
		if r.URL.Query().Get("checksum") != "cs" {
			t.Errorf("Poll request did not carry the checksum."+
				"\nexpected: %s\nreceived: %s",
				"cs", r.URL.Query().Get("checksum"))
		}
		fmt.Fprint(w, `{"result":[{"id":8,"senderName":"bob","text":"<p>hi</p>"}],"nowTime":"t1"}`)
	})
	defer srv.Close()

	resp, err := e.PollMessages(
		PollRequest{ChannelID: "ch", LastID: 7, Checksum: "cs"})
	if err != nil {
		t.Fatalf("PollMessages returned an error: %+v", err)
	}

	if len(resp.Result) != 1 || resp.Result[0].ID != 8 {
		t.Errorf("PollMessages returned the wrong batch: %+v", resp.Result)
	}
	if resp.NowTime != "t1" {
		t.Errorf("PollMessages returned the wrong server time."+
			"\nexpected: %s\nreceived: %s", "t1", resp.NowTime)
	}
}

// Tests that a transport failure is classified as a connectivity error.
func TestHTTPEngine_PollMessages_Connectivity(t *testing.T) {
	e, srv := newTestEngine(func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := e.PollMessages(PollRequest{ChannelID: "ch"})
	if !IsConnectivity(err) {
		t.Errorf("A transport failure was not classified as connectivity: %v",
			err)
	}
}

// Tests that a non-OK status with a parseable error body is surfaced as the
// server-reported message.
func TestHTTPEngine_PollMessages_ServerError(t *testing.T) {
	e, srv := newTestEngine(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"access denied"}`)
	})
	defer srv.Close()

	_, err := e.PollMessages(PollRequest{ChannelID: "ch"})
	if !IsServerError(err) {
		t.Fatalf("A failed response was not classified as a server error: %v",
			err)
	}
	if err.Error() != "access denied" {
		t.Errorf("The server-reported message was not preserved."+
			"\nexpected: %s\nreceived: %s", "access denied", err.Error())
	}
}

// Tests that a malformed response body is caught and surfaced as a generic
// server error instead of crashing the caller.
func TestHTTPEngine_PollMessages_Malformed(t *testing.T) {
	e, srv := newTestEngine(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>fatal database failure`)
	})
	defer srv.Close()

	_, err := e.PollMessages(PollRequest{ChannelID: "ch"})
	if !IsServerError(err) {
		t.Errorf("A malformed body was not classified as a server error: %v",
			err)
	}
}

// Tests that SendMessage reports progress, intercepts nothing, and delivers
// the user mapping of the acknowledgement.
func TestHTTPEngine_SendMessage(t *testing.T) {
	e, srv := newTestEngine(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("Failed to parse send form: %+v", err)
		}
		if r.PostForm.Get("message") != "hello" {
			t.Errorf("Send request did not carry the content."+
				"\nexpected: %s\nreceived: %s",
				"hello", r.PostForm.Get("message"))
		}
		fmt.Fprint(w, `{"message":{"id":9},"userMapping":{"hash":"old","map":{"hash":"new","publicId":"p1"}}}`)
	})
	defer srv.Close()

	var progress []int
	var received *SendResponse
	e.SendMessage(
		SendRequest{Content: "hello", ChannelID: "ch", Checksum: "cs"},
		func(resp *SendResponse) { received = resp },
		func(percent int) { progress = append(progress, percent) },
		func(err error) { t.Fatalf("SendMessage failed: %+v", err) },
	)

	if received == nil || received.UserMapping == nil {
		t.Fatal("SendMessage did not deliver the acknowledgement.")
	}
	if received.UserMapping.Map.PublicID != "p1" {
		t.Errorf("SendMessage did not deliver the user mapping."+
			"\nexpected: %s\nreceived: %s",
			"p1", received.UserMapping.Map.PublicID)
	}
	if len(progress) != 2 || progress[0] != 0 || progress[1] != 100 {
		t.Errorf("SendMessage reported the wrong progress: %v", progress)
	}
}

// Tests that an error field in a 200 acknowledgement goes to the error
// listener.
func TestHTTPEngine_SendMessage_ServerReported(t *testing.T) {
	e, srv := newTestEngine(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"you are banned"}`)
	})
	defer srv.Close()

	var received error
	e.SendMessage(SendRequest{Content: "hello", ChannelID: "ch"},
		func(resp *SendResponse) { t.Fatal("Success listener invoked.") },
		func(percent int) {},
		func(err error) { received = err },
	)

	if !IsServerError(received) || received.Error() != "you are banned" {
		t.Errorf("The server-reported send error was not preserved: %v",
			received)
	}
}

// Tests that a missing listener is a fatal programming error at call time.
func TestHTTPEngine_SendMessage_MissingListeners(t *testing.T) {
	e := NewHTTPEngine(EndpointsFromBase("http://localhost"))

	defer func() {
		if r := recover(); r == nil {
			t.Error("SendMessage did not panic with missing listeners.")
		}
	}()

	e.SendMessage(SendRequest{Content: "hello"}, nil, nil, nil)
}

// Tests that SendUserCommand forwards the command name and parameters.
func TestHTTPEngine_SendUserCommand(t *testing.T) {
	e, srv := newTestEngine(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("Failed to parse command form: %+v", err)
		}
		if r.PostForm.Get("command") != "checkPendingChat" {
			t.Errorf("Command request carried the wrong command."+
				"\nexpected: %s\nreceived: %s",
				"checkPendingChat", r.PostForm.Get("command"))
		}
		if r.PostForm.Get("userPublicId") != "p1" {
			t.Errorf("Command request dropped a parameter."+
				"\nexpected: %s\nreceived: %s",
				"p1", r.PostForm.Get("userPublicId"))
		}
		fmt.Fprint(w, `{}`)
	})
	defer srv.Close()

	succeeded := false
	e.SendUserCommand(UserCommandRequest{
		Command:    "checkPendingChat",
		Parameters: map[string]string{"userPublicId": "p1"},
		ChannelID:  "ch",
	},
		func([]byte) { succeeded = true },
		func(err error) { t.Fatalf("SendUserCommand failed: %+v", err) },
	)

	if !succeeded {
		t.Error("SendUserCommand did not invoke the success listener.")
	}
}
