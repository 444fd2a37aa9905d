package server

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"screenrelay/pkg/config"
	"screenrelay/pkg/logger"
)

// Main is the relay server entrypoint, invoked from cmd/server
func Main() {
	addr := flag.String("addr", "", "Listen address (overrides config)")
	configPath := flag.String("config", "", "Config file path (optional)")
	certFile := flag.String("cert", "", "TLS certificate file")
	keyFile := flag.String("key", "", "TLS key file")
	useTLS := flag.Bool("tls", false, "Enable TLS (use false behind a terminating proxy)")
	webUsername := flag.String("web-user", "", "Panel username (overrides config)")
	webPassword := flag.String("web-pass", "", "Panel password (overrides config)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	flag.Parse()

	logger.Init(logger.LogLevel(*logLevel), *logFormat)
	log := logger.Get()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.ErrorWithErr("failed to load configuration", err)
		os.Exit(1)
	}

	// Flags override file and environment
	if *addr != "" {
		cfg.Address = *addr
	}
	if *webUsername != "" {
		cfg.WebUI.Username = *webUsername
	}
	if *webPassword != "" {
		cfg.WebUI.Password = *webPassword
	}
	if *certFile != "" {
		cfg.TLS.CertFile = *certFile
	}
	if *keyFile != "" {
		cfg.TLS.KeyFile = *keyFile
	}
	if *useTLS {
		cfg.TLS.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		log.ErrorWithErr("invalid configuration", err)
		os.Exit(1)
	}

	log.InfoWith("configuration loaded",
		"address", cfg.Address, "db", cfg.Database.Type, "tls", cfg.TLS.Enabled)

	srv, err := NewServer(cfg)
	if err != nil {
		log.ErrorWithErr("failed to create server", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	errorChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errorChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		log.InfoWith("received signal, shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.ErrorWithErr("error during shutdown", err)
		}

	case err := <-errorChan:
		log.ErrorWithErr("server failed", err)
		os.Exit(1)
	}
}
