// Colony Relay - Dark Colony lobby & battle relay server
//
// Colony Relay terminates TCP connections from original Dark Colony
// game clients, places each into a lobby room, maintains the
// authoritative slot state, and relays in-battle commands between
// peers. A REST monitor API, an operator console, MQTT telemetry and
// a SQLite history log observe the relay from the side.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/colonyrelay-project/colonyrelay/internal/api"
	"github.com/colonyrelay-project/colonyrelay/internal/cli"
	"github.com/colonyrelay-project/colonyrelay/internal/config"
	"github.com/colonyrelay-project/colonyrelay/internal/db"
	"github.com/colonyrelay-project/colonyrelay/internal/events"
	"github.com/colonyrelay-project/colonyrelay/internal/lobby"
	"github.com/colonyrelay-project/colonyrelay/internal/network"
	"github.com/colonyrelay-project/colonyrelay/internal/relay"
	"github.com/colonyrelay-project/colonyrelay/internal/scheduler"
	"github.com/colonyrelay-project/colonyrelay/internal/telemetry"
	"github.com/colonyrelay-project/colonyrelay/internal/util"
)

const (
	AppName    = "Colony Relay"
	AppVersion = "1.0.0"
	Banner     = `
   _____      _                    _____      _
  / ____|    | |                  |  __ \    | |
 | |     ___ | | ___  _ __  _   _ | |__) |___| | __ _ _   _
 | |    / _ \| |/ _ \| '_ \| | | ||  _  // _ \ |/ _' | | | |
 | |___| (_) | | (_) | | | | |_| || | \ \  __/ | (_| | |_| |
  \_____\___/|_|\___/|_| |_|\__, ||_|  \_\___|_|\__,_|\__, |
                             __/ |                     __/ |
                            |___/   v%s               |___/
 Dark Colony Lobby & Battle Relay
`
)

func main() {
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Initialize logger with defaults first (reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting Colony Relay")

	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logCfg := util.LogConfig{
		Level:      cfg.Application.Logging.Level,
		Directory:  cfg.Application.Logging.Directory,
		MaxBackups: cfg.Application.Logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		log.Fatal().Msg("configuration validation failed, please fix the errors above")
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core components
	relayCfg := cfg.GetRelay()
	bus := events.NewEventBus()
	defaultMap := lobby.MapDescriptor{
		Type:        relayCfg.MapType,
		PlayerCount: relayCfg.MapPlayerCount,
		Filename:    relayCfg.MapFilename,
		DisplayName: relayCfg.MapDisplayName,
	}
	manager := lobby.NewManager(defaultMap, bus, nil)
	relaySrv := relay.NewServer(relayCfg, manager, bus)
	listener := network.NewTCPListener(relayCfg.BindAddress, relayCfg.GamePort, relaySrv)
	sched := scheduler.NewScheduler(relayCfg, manager, relaySrv)

	// History database
	var history *db.History
	if cfg.Application.History.Enabled {
		history, err = db.NewHistory(cfg.Application.History.Path)
		if err != nil {
			log.Error().Err(err).Msg("failed to open history database, continuing without it")
		} else {
			history.Subscribe(bus)
			defer history.Close()
		}
	}

	// Shutdown via signal or console command
	bus.Subscribe(events.EventShutdown, "main.shutdown", func(ctx context.Context, event events.Event) error {
		log.Info().Str("source", event.Source).Msg("shutdown requested")
		cancel()
		return nil
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("signal received, shutting down")
		cancel()
	}()

	var wg sync.WaitGroup
	fatalErr := make(chan error, 2)

	// Game listener: a bind failure here is fatal.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Start(ctx); err != nil {
			fatalErr <- fmt.Errorf("game listener: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		apiSrv := api.NewServer(cfg, relaySrv, history, AppVersion)
		if err := apiSrv.Start(ctx); err != nil {
			fatalErr <- fmt.Errorf("monitor API: %w", err)
		}
	}()

	if cfg.Application.MQTT.Enabled {
		mqttHandler, err := telemetry.NewMQTTHandler(cfg.Application.MQTT, bus)
		if err != nil {
			log.Warn().Err(err).Msg("MQTT telemetry unavailable")
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := mqttHandler.Start(ctx); err != nil {
					log.Warn().Err(err).Msg("MQTT telemetry stopped")
				}
			}()
		}
	}

	if cfg.Application.CLI {
		go cli.NewCLI(bus, relaySrv).Start(ctx)
	}

	log.Info().
		Int("game_port", relayCfg.GamePort).
		Int("api_port", cfg.Application.APIPort).
		Msg("Colony Relay running")

	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-fatalErr:
		log.Error().Err(err).Msg("fatal component error")
		exitCode = 1
		cancel()
	}

	relaySrv.CloseAll(context.Background())
	bus.Stop()
	wg.Wait()

	// os.Exit skips deferred calls, so the history db is closed here.
	if history != nil {
		history.Close()
	}

	log.Info().Msg("Colony Relay stopped")
	os.Exit(exitCode)
}
