// Package scheduler runs the relay's periodic tasks: the lobby ping
// broadcaster and the idle connection reaper.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/colonyrelay-project/colonyrelay/internal/config"
	"github.com/colonyrelay-project/colonyrelay/internal/lobby"
	"github.com/colonyrelay-project/colonyrelay/internal/relay"
)

// Scheduler manages the periodic background tasks.
type Scheduler struct {
	cfg     config.RelayData
	manager *lobby.Manager
	server  *relay.Server
}

// NewScheduler creates a new task scheduler.
func NewScheduler(cfg config.RelayData, manager *lobby.Manager, server *relay.Server) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		manager: manager,
		server:  server,
	}
}

// Start launches the tickers and blocks until the context is
// cancelled. Ticks are fire-and-forget; a slow broadcast never delays
// the next tick observation.
func (s *Scheduler) Start(ctx context.Context) {
	tasks := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context)
	}{
		{"lobby_ping", time.Duration(s.cfg.LobbyPingIntervalMS) * time.Millisecond, s.lobbyPing},
		{"idle_reaper", time.Duration(s.cfg.ReapIntervalMS) * time.Millisecond, s.reapIdle},
	}

	for _, task := range tasks {
		if task.interval <= 0 {
			continue
		}

		task := task
		go func() {
			ticker := time.NewTicker(task.interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					go task.fn(ctx)
				}
			}
		}()
	}

	log.Info().Int("tasks", len(tasks)).Msg("scheduler started")

	<-ctx.Done()
	log.Info().Msg("scheduler stopped")
}

// lobbyPing keeps NAT mappings alive for every mapped client in rooms
// still sitting in the lobby.
func (s *Scheduler) lobbyPing(ctx context.Context) {
	s.manager.LobbyPingTick()
}

// reapIdle disconnects clients that have sent nothing for the idle
// timeout.
func (s *Scheduler) reapIdle(ctx context.Context) {
	if reaped := s.server.ReapIdle(ctx); reaped > 0 {
		log.Info().Int("reaped", reaped).Msg("idle connections reaped")
	}
}
