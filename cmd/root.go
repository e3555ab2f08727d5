////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package cmd initializes the CLI and config parameters and starts a chat
// client against a running server.
package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/ekv"

	"gitlab.com/tidechat/client/chat"
	"gitlab.com/tidechat/client/engine"
	"gitlab.com/tidechat/client/pm"
	"gitlab.com/tidechat/client/session"
)

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen once
// to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tidechat",
	Short: "Polling chat client",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		initLog()

		cfg := session.Config{
			ChannelID:                  viper.GetString("channel"),
			ChannelName:                viper.GetString("channelName"),
			BlogID:                     viper.GetString("blogId"),
			Multisite:                  viper.GetString("blogId") != "",
			MessagesRefresh:            viper.GetDuration("refresh"),
			EnablePrivateMessages:      viper.GetBool("privateMessages"),
			AllowToReceiveMessages:     true,
			PrivateMessageConfirmation: viper.GetBool("confirmation"),
			Checksum:                   viper.GetString("checksum"),
		}
		if viper.GetBool("descending") {
			cfg.MessagesOrder = session.Descending
		}

		store, err := ekv.NewFilestore(
			viper.GetString("session"), viper.GetString("password"))
		if err != nil {
			jww.FATAL.Panicf("Failed to open session storage: %+v", err)
		}

		eng := engine.NewHTTPEngine(
			engine.EndpointsFromBase(viper.GetString("server")))

		client := chat.NewClient(cfg, eng, store,
			func(conv *pm.Conversation) pm.View {
				return consoleView{label: conv.Name()}
			},
			consoleView{label: cfg.ChannelName})

		client.SetInvitationCallback(
			func(conv *pm.Conversation, msg engine.Message) {
				fmt.Printf("Invitation from %s; accepting\n", conv.Name())
				if err := client.AcceptInvitation(conv.Hash()); err != nil {
					jww.ERROR.Printf("Failed to accept invitation: %+v", err)
				}
			})

		err = client.Events().RegisterEventCallback("console",
			func(priority int, category, evtType, details string) {
				fmt.Printf("[%s/%s] %s\n", category, evtType, details)
			})
		if err != nil {
			jww.FATAL.Panicf("Failed to register event callback: %+v", err)
		}

		stop, err := client.Start()
		if err != nil {
			jww.FATAL.Panicf("Failed to start client: %+v", err)
		}
		jww.INFO.Printf("Client started on channel %s", cfg.ChannelID)

		done := make(chan os.Signal, 1)
		signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
		<-done

		if err = stop.Close(); err != nil {
			jww.ERROR.Printf("Failed to stop client: %+v", err)
		}
	},
}

// consoleView prints delivered messages to standard output.
type consoleView struct {
	label string
}

func (v consoleView) ShowMessage(msg engine.Message) {
	fmt.Printf("[%s] %s: %s\n", v.label, msg.SenderName, msg.Rendered)
}

// initLog initializes logging thresholds and the log path.
func initLog() {
	logPath := viper.GetString("log")
	logLevel := viper.GetUint("logLevel")

	logFile, err := os.OpenFile(logPath,
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Printf("Could not open log file %s!\n", logPath)
		return
	}

	if logLevel > 1 {
		jww.SetLogThreshold(jww.LevelTrace)
		jww.SetStdoutThreshold(jww.LevelTrace)
	} else if logLevel == 1 {
		jww.SetLogThreshold(jww.LevelDebug)
		jww.SetStdoutThreshold(jww.LevelDebug)
	} else {
		jww.SetLogThreshold(jww.LevelInfo)
		jww.SetStdoutThreshold(jww.LevelInfo)
	}

	jww.SetLogOutput(logFile)
	log.SetOutput(logFile)
}

// init is the initialization function for Cobra which defines flags.
func init() {
	rootCmd.PersistentFlags().StringP("server", "s",
		"http://localhost:8080", "Base URL of the chat server")
	rootCmd.PersistentFlags().StringP("channel", "c", "main",
		"Channel ID to join")
	rootCmd.PersistentFlags().String("channelName", "Main",
		"Channel display name")
	rootCmd.PersistentFlags().String("session", ".tidechat-session",
		"Session storage directory")
	rootCmd.PersistentFlags().StringP("password", "p", "",
		"Session storage password")
	rootCmd.PersistentFlags().String("checksum", "",
		"Bootstrap request token")
	rootCmd.PersistentFlags().String("blogId", "",
		"Multisite blog ID forwarded on polls")
	rootCmd.PersistentFlags().Duration("refresh",
		session.DefaultMessagesRefresh, "Message stream polling period")
	rootCmd.PersistentFlags().Bool("privateMessages", true,
		"Enable private conversations")
	rootCmd.PersistentFlags().Bool("confirmation", false,
		"Prompt before opening a new peer's conversation")
	rootCmd.PersistentFlags().Bool("descending", false,
		"Render new messages at the top")
	rootCmd.PersistentFlags().UintP("logLevel", "v", 0,
		"Verbosity of log printing: 0 = info, 1 = debug, 2 = trace")
	rootCmd.PersistentFlags().String("log", "tidechat.log",
		"Path to the log output file")

	for _, flag := range []string{"server", "channel", "channelName",
		"session", "password", "checksum", "blogId", "refresh",
		"privateMessages", "confirmation", "descending", "logLevel", "log"} {
		if err := viper.BindPFlag(
			flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}
