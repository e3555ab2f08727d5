////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	jww "github.com/spf13/jwalterweatherman"
)

// Error message.
const missingListenersErr = "Missing listeners for %s call"

// Endpoints are the URLs of the chat server API. An endpoint may carry its
// own query string; additional parameters are appended.
type Endpoints struct {
	Messages    string
	Maintenance string
	Message     string
	MessageGet  string
	UserCommand string
}

// EndpointsFromBase derives the endpoint set from a base URL.
func EndpointsFromBase(base string) Endpoints {
	base = strings.TrimRight(base, "/")
	return Endpoints{
		Messages:    base + "/messages",
		Maintenance: base + "/maintenance",
		Message:     base + "/message",
		MessageGet:  base + "/message/get",
		UserCommand: base + "/command",
	}
}

// HTTPEngine implements Engine over plain HTTP with JSON responses.
type HTTPEngine struct {
	endpoints Endpoints
	client    *http.Client
}

// NewHTTPEngine creates an HTTP engine for the given endpoints. No client
// side timeout is imposed; a hung request blocks its stream's next tick until
// the transport gives up on its own.
func NewHTTPEngine(endpoints Endpoints) *HTTPEngine {
	return &HTTPEngine{
		endpoints: endpoints,
		client:    &http.Client{},
	}
}

// PollMessages requests new messages above the watermark.
func (e *HTTPEngine) PollMessages(req PollRequest) (*PollResponse, error) {
	q := url.Values{}
	q.Set("channelId", req.ChannelID)
	q.Set("lastId", strconv.FormatInt(req.LastID, 10))
	q.Set("checksum", req.Checksum)
	if req.BlogID != "" {
		q.Set("blogId", req.BlogID)
	}
	if req.PrivateMessages {
		q.Set("privateMessages", "1")
	}

	body, err := e.get(e.endpoints.Messages, q)
	if err != nil {
		return nil, err
	}

	response := &PollResponse{}
	if err = e.decode("PollMessages", body, response); err != nil {
		return nil, err
	}

	return response, nil
}

// PollMaintenance requests new maintenance actions and events above the
// action watermark.
func (e *HTTPEngine) PollMaintenance(req MaintenanceRequest) (
	*MaintenanceResponse, error) {
	q := url.Values{}
	q.Set("lastActionId", strconv.FormatInt(req.LastActionID, 10))
	q.Set("channelId", req.ChannelID)
	q.Set("checksum", req.Checksum)

	body, err := e.get(e.endpoints.Maintenance, q)
	if err != nil {
		return nil, err
	}

	response := &MaintenanceResponse{}
	if err = e.decode("PollMaintenance", body, response); err != nil {
		return nil, err
	}

	return response, nil
}

// SendMessage delivers an outbound message. All the listeners must be
// specified.
func (e *HTTPEngine) SendMessage(req SendRequest,
	onSuccess func(*SendResponse), onProgress func(int),
	onError func(error)) {
	if onSuccess == nil || onProgress == nil || onError == nil {
		jww.FATAL.Panicf(missingListenersErr, "SendMessage")
	}

	onProgress(0)

	form := url.Values{}
	for k, v := range req.Custom {
		form.Set(k, v)
	}
	for _, attachment := range req.Attachments {
		form.Add("attachments[]", attachment)
	}
	form.Set("channelId", req.ChannelID)
	form.Set("message", req.Content)
	form.Set("checksum", req.Checksum)

	body, err := e.post(e.endpoints.Message, form)
	if err != nil {
		onError(err)
		return
	}

	response := &SendResponse{}
	if err = e.decode("SendMessage", body, response); err != nil {
		onError(err)
		return
	}

	onProgress(100)

	if response.Error != "" {
		onError(NewServerError(response.Error))
		return
	}

	onSuccess(response)
}

// GetMessage fetches a single message by ID. All the listeners must be
// specified.
func (e *HTTPEngine) GetMessage(req GetMessageRequest,
	onSuccess func(*PollResponse), onError func(error)) {
	if onSuccess == nil || onError == nil {
		jww.FATAL.Panicf(missingListenersErr, "GetMessage")
	}

	q := url.Values{}
	q.Set("channelId", req.ChannelID)
	q.Set("messageId", strconv.FormatInt(req.MessageID, 10))
	q.Set("checksum", req.Checksum)

	body, err := e.get(e.endpoints.MessageGet, q)
	if err != nil {
		onError(err)
		return
	}

	response := &PollResponse{}
	if err = e.decode("GetMessage", body, response); err != nil {
		onError(err)
		return
	}

	if response.Error != "" {
		onError(NewServerError(response.Error))
		return
	}

	onSuccess(response)
}

// SendUserCommand delivers an out-of-band user command. All the listeners
// must be specified.
func (e *HTTPEngine) SendUserCommand(req UserCommandRequest,
	onSuccess func([]byte), onError func(error)) {
	if onSuccess == nil || onError == nil {
		jww.FATAL.Panicf(missingListenersErr, "SendUserCommand")
	}

	form := url.Values{}
	for k, v := range req.Parameters {
		form.Set(k, v)
	}
	form.Set("command", req.Command)
	form.Set("channelId", req.ChannelID)
	form.Set("checksum", req.Checksum)

	body, err := e.post(e.endpoints.UserCommand, form)
	if err != nil {
		onError(err)
		return
	}

	var response struct {
		Error string `json:"error"`
	}
	if err = e.decode("SendUserCommand", body, &response); err != nil {
		onError(err)
		return
	}

	if response.Error != "" {
		onError(NewServerError(response.Error))
		return
	}

	onSuccess(body)
}

// get performs a GET request and classifies failures per the error taxonomy.
func (e *HTTPEngine) get(endpoint string, q url.Values) ([]byte, error) {
	resp, err := e.client.Get(joinQuery(endpoint, q))
	if err != nil {
		return nil, NewConnectivityError(err)
	}

	return e.readBody(resp)
}

// post performs a form POST request and classifies failures per the error
// taxonomy.
func (e *HTTPEngine) post(endpoint string, form url.Values) ([]byte, error) {
	resp, err := e.client.PostForm(endpoint, form)
	if err != nil {
		return nil, NewConnectivityError(err)
	}

	return e.readBody(resp)
}

func (e *HTTPEngine) readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewConnectivityError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, e.serverError(body, resp.StatusCode)
	}

	return body, nil
}

// serverError extracts the server-reported error from a failed response, or
// falls back to a generic description when the body is unparseable.
func (e *HTTPEngine) serverError(body []byte, status int) error {
	var response struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &response); err == nil &&
		response.Error != "" {
		return NewServerError(response.Error)
	}

	e.debug("serverError", body)
	return NewServerError(fmt.Sprintf("server error: status %d", status))
}

// decode unmarshals a response body. Parse failures are logged at debug
// granularity and surfaced as a generic server error.
func (e *HTTPEngine) decode(call string, body []byte, out interface{}) error {
	if err := json.Unmarshal(body, out); err != nil {
		e.debug(call, body)
		jww.DEBUG.Printf("[HTTPEngine] [%s] [exception] %s", call, err)
		return NewServerError("server error: corrupted data")
	}
	return nil
}

func (e *HTTPEngine) debug(call string, body []byte) {
	jww.DEBUG.Printf("[HTTPEngine] [%s] [responseText] %s", call, body)
}

func joinQuery(endpoint string, q url.Values) string {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + q.Encode()
}
