////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"gitlab.com/tidechat/client/engine"
)

// devServer is a self-contained in-memory chat server for exercising the
// client locally. It speaks the same five endpoints the HTTP engine expects.
type devServer struct {
	mux      sync.Mutex
	messages []engine.Message
	nextID   int64
	checksum string
	userHash string
}

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run an in-memory chat server for local development",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		initLog()

		ds := &devServer{
			checksum: uuid.NewString(),
			userHash: uuid.NewString(),
		}

		r := mux.NewRouter()
		r.HandleFunc("/messages", ds.handleMessages).Methods(http.MethodGet)
		r.HandleFunc("/maintenance", ds.handleMaintenance).
			Methods(http.MethodGet)
		r.HandleFunc("/message", ds.handleSend).Methods(http.MethodPost)
		r.HandleFunc("/message/get", ds.handleGet).Methods(http.MethodGet)
		r.HandleFunc("/command", ds.handleCommand).Methods(http.MethodPost)

		addr := fmt.Sprintf(":%d", viper.GetUint("port"))
		jww.INFO.Printf("Dev server listening on %s", addr)
		if err := http.ListenAndServe(addr, r); err != nil {
			jww.FATAL.Panicf("Dev server failed: %+v", err)
		}
	},
}

func (ds *devServer) handleMessages(w http.ResponseWriter, r *http.Request) {
	lastID, _ := strconv.ParseInt(r.URL.Query().Get("lastId"), 10, 64)

	ds.mux.Lock()
	var result []engine.Message
	for _, msg := range ds.messages {
		if msg.ID > lastID {
			result = append(result, msg)
		}
	}
	ds.mux.Unlock()

	respondJSON(w, &engine.PollResponse{
		Result:  result,
		NowTime: time.Now().Format(time.RFC3339),
	})
}

// handleMaintenance always serves the bootstrap actions; the client's action
// dedup makes re-delivery harmless.
func (ds *devServer) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	ds.mux.Lock()
	checksum, userHash := ds.checksum, ds.userHash
	ds.mux.Unlock()

	userData, _ := json.Marshal(map[string]string{
		"id":   "dev-user",
		"name": "Developer",
		"hash": userHash,
	})
	checksumData, _ := json.Marshal(checksum)

	respondJSON(w, &engine.MaintenanceResponse{
		Actions: []engine.Action{
			{ID: 1, Command: engine.Command{
				Name: "checkSum", Data: checksumData}},
			{ID: 2, Command: engine.Command{
				Name: "userData", Data: userData}},
		},
	})
}

func (ds *devServer) handleSend(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondJSON(w, &engine.SendResponse{Error: "malformed form"})
		return
	}

	ds.mux.Lock()
	ds.nextID++
	msg := engine.Message{
		ID:         ds.nextID,
		SenderID:   "dev-user",
		SenderName: "Developer",
		SenderHash: ds.userHash,
		Rendered:   r.PostForm.Get("message"),
		Timestamp:  time.Now().Format(time.RFC3339),
	}
	ds.messages = append(ds.messages, msg)
	ds.mux.Unlock()

	respondJSON(w, &engine.SendResponse{Message: &msg})
}

func (ds *devServer) handleGet(w http.ResponseWriter, r *http.Request) {
	messageID, _ := strconv.ParseInt(r.URL.Query().Get("messageId"), 10, 64)

	ds.mux.Lock()
	var result []engine.Message
	for _, msg := range ds.messages {
		if msg.ID == messageID {
			result = append(result, msg)
		}
	}
	ds.mux.Unlock()

	respondJSON(w, &engine.PollResponse{
		Result:  result,
		NowTime: time.Now().Format(time.RFC3339),
	})
}

func (ds *devServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondJSON(w, map[string]string{"error": "malformed form"})
		return
	}
	jww.INFO.Printf("Received command %q", r.PostForm.Get("command"))
	respondJSON(w, map[string]string{})
}

func respondJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		jww.ERROR.Printf("Failed to encode response: %+v", err)
	}
}

func init() {
	devserverCmd.Flags().Uint("port", 8080, "Port to listen on")
	if err := viper.BindPFlag(
		"port", devserverCmd.Flags().Lookup("port")); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(devserverCmd)
}
