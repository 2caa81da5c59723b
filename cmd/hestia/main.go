package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hestia-agent/hestia/agent"
	"github.com/hestia-agent/hestia/config"
	"github.com/hestia-agent/hestia/devices"
	"github.com/hestia-agent/hestia/llm"
	"github.com/hestia-agent/hestia/prompt"
	"github.com/hestia-agent/hestia/server"
	"github.com/hestia-agent/hestia/session"
	"github.com/hestia-agent/hestia/tools"
)

func main() {
	promptFlag := flag.String("p", "", "Process a single utterance and exit")
	addrFlag := flag.String("addr", "", "Listen address (overrides configuration)")
	sessionDirFlag := flag.String("session-dir", "", "Directory for persisted conversations")
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debugFlag {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}
	if *addrFlag != "" {
		cfg.ListenAddr = *addrFlag
	}

	hassToken := cfg.HomeAssistant.Token
	if hassToken == "" {
		hassToken = os.Getenv("HASS_TOKEN")
	}
	hass := devices.NewHassClient(cfg.HomeAssistant.URL, hassToken, log)

	provider := devices.NewProvider(hass, cfg.ExtraAttributes, cfg.ExposedEntityPatterns, log)
	composer := prompt.NewComposer()

	catalog := tools.NewCatalog()
	catalog.Register(tools.NewCallServiceTool(hass, cfg.AllowedDomains, cfg.AllowedServices, log))

	sessionDir := *sessionDirFlag
	if sessionDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			sessionDir = home + "/.hestia/sessions"
		}
	}
	store := session.NewStore(sessionDir)

	factory := func(ctx context.Context) (llm.Client, error) {
		return llm.NewClient(ctx, cfg, log)
	}
	a := agent.New(cfg, store, provider, composer, catalog, factory, log)

	if *promptFlag != "" {
		result := a.Process(context.Background(), *promptFlag, "")
		fmt.Println(result.Text)
		if result.IsError {
			os.Exit(1)
		}
		return
	}

	srvCfg := server.DefaultConfig(cfg.ListenAddr)
	srvCfg.Language = cfg.Language
	srv := server.New(a, srvCfg, log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
	}
}
