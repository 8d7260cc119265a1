package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/focusclass/focusd/internal/simulate"
	"github.com/focusclass/focusd/pkg/logger"
)

// Default configuration constants.
const (
	defaultParticipants   = 5
	defaultHeartbeat      = 5 * time.Second
	defaultViolationEvery = 8 * time.Second
	defaultBurstSize      = 3
)

func main() {
	var (
		url            = flag.String("url", "ws://localhost:8765/ws", "Authority websocket endpoint")
		code           = flag.String("code", "", "Session code handed out by the operator")
		password       = flag.String("password", "", "Session password handed out by the operator")
		name           = flag.String("name", "sim", "Display name prefix for simulated participants")
		participants   = flag.Int("participants", defaultParticipants, "Number of concurrent participants")
		heartbeat      = flag.Duration("heartbeat", defaultHeartbeat, "Heartbeat cadence")
		violationEvery = flag.Duration("violations", defaultViolationEvery, "Violation burst cadence (0 disables)")
		burst          = flag.Int("burst", defaultBurstSize, "Raw events per violation burst")
		ackFocus       = flag.Bool("ack-focus", true, "Acknowledge focus commands")
		ackFrames      = flag.Bool("ack-frames", true, "Acknowledge received frames")
		duration       = flag.Duration("duration", 0, "Run duration (0 = until the session ends)")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if *code == "" || *password == "" {
		os.Stderr.WriteString("both -code and -password are required\n")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := simulate.Run(ctx, simulate.Config{
		URL:               *url,
		SessionCode:       *code,
		Password:          *password,
		DisplayName:       *name,
		Participants:      *participants,
		HeartbeatInterval: *heartbeat,
		ViolationEvery:    *violationEvery,
		BurstSize:         *burst,
		AckFocus:          *ackFocus,
		AckFrames:         *ackFrames,
		Duration:          *duration,
	})
	if err != nil {
		logger.Get().Error(ctx, "simulation finished with errors", logger.Error(err))
		os.Exit(1)
	}
	logger.Get().Info(ctx, "simulation finished")
}
