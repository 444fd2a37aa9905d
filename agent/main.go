package agent

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"screenrelay/pkg/logger"
)

// Main is the agent entrypoint, invoked from cmd/agent
func Main() {
	serverURL := flag.String("server", "ws://localhost:8080/ws", "Relay WebSocket URL (use wss:// behind TLS)")
	sessionID := flag.String("session", "", "Client session ID (default: derived from machine identity)")
	interval := flag.Duration("interval", 30*time.Second, "Capture interval")
	quality := flag.Int("quality", 85, "JPEG quality, 100 for lossless PNG")
	queueSize := flag.Int("queue", 32, "Max captures held while disconnected")
	insecure := flag.Bool("insecure", false, "Skip TLS certificate verification")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	flag.Parse()

	logger.Init(logger.LogLevel(*logLevel), *logFormat)
	log := logger.Get()

	id := *sessionID
	if id == "" {
		var err error
		id, err = NewSessionIdentity().SessionID()
		if err != nil {
			log.ErrorWithErr("could not derive session identity", err)
			os.Exit(1)
		}
	}
	log.InfoWith("agent starting", "session", id, "server", *serverURL)

	agent := New(Config{
		ServerURL:        *serverURL,
		SessionID:        id,
		CaptureInterval:  *interval,
		CaptureQuality:   *quality,
		OfflineQueueSize: *queueSize,
		InsecureTLS:      *insecure,
	}, func(requestID, body string) {
		log.InfoWith("operator answered", "requestID", requestID, "body", body)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.InfoWith("received signal, stopping", "signal", sig.String())
		cancel()
	}()

	if err := agent.Run(ctx); err != nil && err != context.Canceled {
		log.ErrorWithErr("agent stopped with error", err)
		os.Exit(1)
	}
	log.Info("agent stopped")
}
