// Command callclient joins a call room from a terminal. It renders the call
// overlay as log lines and reads actions from stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/pflag"

	"github.com/mossy-p/webrtc-signaling/config"
	"github.com/mossy-p/webrtc-signaling/internal/call"
	"github.com/mossy-p/webrtc-signaling/internal/logging"
	"github.com/mossy-p/webrtc-signaling/internal/media"
	"github.com/mossy-p/webrtc-signaling/internal/middleware"
	"github.com/mossy-p/webrtc-signaling/internal/rtc"
	"github.com/mossy-p/webrtc-signaling/internal/transport"
)

const commandTimeout = 10 * time.Second

func main() {
	fs := config.ClientFlags()
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.LoadClient(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logging.Setup(cfg.Environment, cfg.LogLevel)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("call client failed")
	}
}

func run(cfg *config.ClientConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	token := cfg.Token
	if token == "" {
		var err error
		if token, err = middleware.IssueToken(cfg.JWTSecret, cfg.UserID, 24*time.Hour); err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
	}

	signaling := transport.NewProvider(func() (transport.Transport, error) {
		return transport.NewWebSocket(cfg.ServerURL, token), nil
	})
	defer signaling.Teardown()

	tr, err := signaling.GetOrCreate()
	if err != nil {
		return err
	}

	peerName := cfg.PeerName
	if peerName == "" {
		peerName = lookupPeer(ctx, tr, cfg)
	}

	devices, err := media.NewDevices()
	if err != nil {
		return fmt.Errorf("init media: %w", err)
	}
	factory, err := rtc.NewFactory(rtc.Config{
		ICEServers:          cfg.ICEServers,
		DisconnectedTimeout: cfg.ICEDisconnectedTimeout,
		FailedTimeout:       cfg.ICEFailedTimeout,
	}, devices)
	if err != nil {
		return err
	}

	sess, err := call.Open(ctx, call.Config{
		RoomID:        cfg.RoomID,
		ParticipantID: cfg.UserID,
		Transport:     tr,
		Media:         devices,
		NewPeer:       factory.NewPeer,
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), commandTimeout)
		defer closeCancel()
		if err := sess.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("close session")
		}
	}()

	presenter := call.NewPresenter(peerName)
	stopWatch := sess.Watch(func(snap call.Snapshot) {
		render(presenter.Update(snap))
		if cfg.AutoAccept && snap.State == call.StateIncoming {
			go func() {
				if err := sess.AcceptCall(ctx); err != nil {
					log.Warn().Err(err).Msg("auto accept failed")
				}
			}()
		}
	})
	defer stopWatch()

	log.Info().Str("room", cfg.RoomID).Str("user", cfg.UserID).
		Msg("ready: call | call video | accept | reject | end | mute | camera | dismiss | quit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok || line == "quit" {
				return nil
			}
			if line == "dismiss" {
				render(presenter.Dismiss())
				continue
			}
			if err := dispatch(ctx, sess, line); err != nil {
				log.Warn().Err(err).Str("command", line).Msg("command failed")
			}
		}
	}
}

// lookupPeer names the other participant of the room, falling back to "peer".
func lookupPeer(ctx context.Context, tr transport.Transport, cfg *config.ClientConfig) string {
	ws, ok := tr.(*transport.WebSocket)
	if !ok {
		return "peer"
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	room, err := ws.Room(ctx, cfg.RoomID)
	if err != nil {
		log.Warn().Err(err).Msg("room lookup failed")
		return "peer"
	}
	if other := room.OtherParticipant(cfg.UserID); other != "" {
		return other
	}
	return "peer"
}

func dispatch(ctx context.Context, sess *call.Session, line string) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch line {
	case "":
		return nil
	case "call":
		return sess.StartCall(ctx, false)
	case "call video":
		return sess.StartCall(ctx, true)
	case "accept":
		return sess.AcceptCall(ctx)
	case "reject":
		return sess.RejectCall(ctx)
	case "end":
		return sess.EndCall(ctx)
	case "mute":
		muted, err := sess.ToggleAudio(ctx)
		if err == nil {
			log.Info().Bool("muted", muted).Msg("microphone")
		}
		return err
	case "camera":
		off, err := sess.ToggleVideo(ctx)
		if err == nil {
			log.Info().Bool("off", off).Msg("camera")
		}
		return err
	default:
		return fmt.Errorf("unknown command %q", line)
	}
}

func render(v call.View) {
	if !v.Visible() {
		log.Info().Msg("call overlay hidden")
		return
	}
	ev := log.Info().
		Str("screen", v.Screen.String()).
		Str("peer", v.PeerName).
		Bool("video", v.WithVideo).
		Strs("actions", lo.Map(v.Actions, func(a call.Action, _ int) string { return string(a) }))
	if v.Screen == call.StateConnected {
		ev = ev.Bool("muted", v.AudioMuted).Bool("camera_off", v.VideoOff)
		if v.Remote != nil {
			ev = ev.Int("remote_tracks", len(v.Remote.Tracks()))
		}
	}
	ev.Msg("call overlay")
}
