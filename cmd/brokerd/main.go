// Command brokerd runs the rendezvous and tunnel-broker server: agents
// register over a websocket, get matched by UUID prefix, and are handed a
// short-lived sshd to relay their tunnel through.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/relayforge/broker/internal/config"
	"github.com/relayforge/broker/internal/hostkey"
	"github.com/relayforge/broker/internal/httpapi"
	"github.com/relayforge/broker/internal/keys"
	"github.com/relayforge/broker/internal/registry"
	"github.com/relayforge/broker/internal/signaling"
	"github.com/relayforge/broker/internal/sshd"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg)

	if err := config.Preflight(cfg); err != nil {
		log.Fatal().Err(err).Msg("preflight check failed")
	}

	hostKeyPaths, err := hostkey.EnsureAll(cfg.KeysFolder, hostkey.DefaultSpecs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to provision host keys")
	}
	for _, p := range hostKeyPaths {
		if fp, err := hostkey.Fingerprint(p); err == nil {
			log.Info().Str("key", p).Str("fingerprint", fp).Msg("host key ready")
		}
	}

	emitter, err := keys.NewEmitter(cfg.AuthorizedKeysDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare authorized_keys directory")
	}

	state := registry.NewState(cfg.OpenedPorts)
	sup := signaling.NewSupervisor(sshd.NewSupervisor())

	engine := signaling.NewEngine(state, emitter, sup, signaling.Config{
		ForwardingUser: cfg.ForwardingUser,
		SSHDPath:       cfg.SSHDPath,
		HostKeyPaths:   hostKeyPaths,
		ReadyTimeout:   3 * time.Second,
	})

	srv := httpapi.New(cfg.ListenAddr, engine, state, cfg.WebsocketRateLimit, cfg.WebsocketBurst)

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("broker listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down broker...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("broker forced to shutdown")
	}

	log.Info().Msg("broker exited")
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "pretty" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
