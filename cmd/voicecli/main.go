// Command voicecli is a manual test harness for the conference core: it
// joins a room, streams microphone audio to whoever else joins, and prints
// every lifecycle event to stdout.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kestrelvoice/voicecore/pkg/applog"
	"github.com/kestrelvoice/voicecore/pkg/conference"
	"github.com/kestrelvoice/voicecore/pkg/config"
	"github.com/kestrelvoice/voicecore/pkg/events"
)

// consoleEmitter prints every conference event to stdout, standing in for
// a desktop UI layer driven by these same events.
type consoleEmitter struct{}

func (consoleEmitter) Emit(event string, payload any) error {
	fmt.Printf("[event] %s: %+v\n", event, payload)
	return nil
}

func main() {
	room := flag.String("room", "", "room id to join")
	flag.Parse()
	if *room == "" {
		fmt.Fprintln(os.Stderr, "usage: voicecli -room <room-id>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	var logger applog.Logger
	if cfg.LogFile != "" {
		logger = applog.NewRotatingFile(cfg.LogFile, 50, 3, 28, true)
	} else {
		logger = applog.NewConsole(cfg.LogLevel == "debug")
	}

	mgr := conference.NewManager(conference.ManagerOptions{
		SignalingURL:      cfg.SignalingURL,
		StunURL:           cfg.StunURL,
		Logger:            logger,
		VADThreshold:      cfg.VADThreshold,
		VADHangoverFrames: cfg.VADHangoverFrames,
		JitterTarget:      cfg.JitterTargetSamples,
		HeartbeatInterval: time.Duration(cfg.HeartbeatIntervalMs) * time.Millisecond,
		PeerTimeoutCheck:  time.Duration(cfg.PeerTimeoutCheckMs) * time.Millisecond,
		PeerTimeout:       time.Duration(cfg.PeerTimeoutMs) * time.Millisecond,
		ReconnectBackoff:  time.Duration(cfg.ReconnectBackoffMs) * time.Millisecond,
		ResetDrain:        time.Duration(cfg.ResetDrainMs) * time.Millisecond,
	})

	audioState := &conference.AudioState{}
	emitter := consoleEmitter{}

	fmt.Printf("local client id: %s\n", mgr.LocalClientID())
	if err := mgr.Join(emitter, *room, audioState); err != nil {
		fmt.Fprintf(os.Stderr, "join: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("commands: mute, unmute, deafen, undeafen, leave, quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "mute":
			audioState.IsMuted.Store(true)
		case "unmute":
			audioState.IsMuted.Store(false)
		case "deafen":
			audioState.IsDeafened.Store(true)
		case "undeafen":
			audioState.IsDeafened.Store(false)
		case "leave":
			mgr.Leave(emitter)
		case "quit":
			mgr.Leave(emitter)
			return
		}
	}
}
