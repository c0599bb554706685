package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"chatline/callcore/internal/api"
	"chatline/callcore/internal/call"
	"chatline/callcore/internal/config"
	"chatline/callcore/internal/domain"
	"chatline/callcore/internal/media"
	sigclient "chatline/callcore/internal/signal"
	"chatline/callcore/internal/webrtc"
)

const helpText = `callcore - one-to-one audio/video call client

Commands:
  call <userId>  start a call
  accept         accept the incoming call
  reject         reject the incoming call
  end            hang up
  quit           exit

Environment Variables (required):
  CALLCORE_USER_ID  Local user identity
  CALLCORE_TOKEN    Bearer token for the API and signaling server
`

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Print(helpText)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr}
	log := zerolog.New(w).Level(level).With().Timestamp().Logger()

	source, err := media.NewDeviceSource(log)
	if err != nil {
		log.Fatal().Err(err).Msg("media capture unavailable")
	}

	directory := api.NewClient(cfg.APIBaseURL, cfg.Token, log)

	controller := call.New(call.Config{
		LocalUserID: cfg.UserID,
		Directory:   directory,
		Source:      source,
		NewPeer: func() (call.Peer, error) {
			return webrtc.NewManager(webrtc.Config{STUNServers: cfg.STUNServers}, log)
		},
		Events: call.Events{
			OnLocalStream: func(s *media.Stream) {
				log.Info().Int("tracks", len(s.Tracks())).Msg("local media ready")
			},
			OnRemoteStream: func(s *media.Stream) {
				log.Info().Int("tracks", len(s.Tracks())).Msg("remote media ready")
			},
			OnRemoteVideoStatusChanged: func(enabled bool) {
				log.Info().Bool("enabled", enabled).Msg("remote video")
			},
			OnRemoteAudioStatusChanged: func(enabled bool) {
				log.Info().Bool("enabled", enabled).Msg("remote audio")
			},
			OnCallConnected:    func() { log.Info().Msg("call connected") },
			OnCallDisconnected: func() { log.Warn().Msg("call disconnected") },
			OnCallEnded:        func() { log.Info().Msg("call ended") },
			OnError: func(err error) {
				var me *domain.MediaError
				if errors.As(err, &me) {
					log.Error().Str("hint", me.Hint()).Msg("media error")
					return
				}
				log.Error().Err(err).Msg("call error")
			},
		},
		Logger: log,
	})

	// The controller needs the signaling channel and the signaling client
	// needs the controller as its handler; inject the client afterwards.
	sc := sigclient.NewClient(sigclient.Config{
		URL:    cfg.SignalURL,
		Token:  cfg.Token,
		UserID: cfg.UserID,
	}, controller, log)
	controller.SetSignaling(sc)

	if err := sc.Connect(); err != nil {
		log.Fatal().Err(err).Msg("signaling connect")
	}
	defer sc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		_ = controller.EndCall(ctx)
		cancel()
	}()

	go commandLoop(ctx, controller, log, cancel)

	<-ctx.Done()
}

func commandLoop(ctx context.Context, controller *call.Controller, log zerolog.Logger, cancel context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print(helpText)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		var err error
		switch fields[0] {
		case "call":
			if len(fields) != 2 {
				fmt.Println("usage: call <userId>")
				continue
			}
			err = controller.InitiateCall(ctx, fields[1])
		case "accept":
			err = controller.AcceptCall(ctx)
		case "reject":
			err = controller.RejectCall(ctx)
		case "end":
			err = controller.EndCall(ctx)
		case "quit":
			_ = controller.EndCall(ctx)
			cancel()
			return
		default:
			fmt.Println("unknown command:", fields[0])
			continue
		}
		if err != nil {
			var me *domain.MediaError
			if errors.As(err, &me) {
				fmt.Println(me.Hint())
				continue
			}
			log.Error().Err(err).Msg("command failed")
		}
	}
}
