// Package daemon wires one peer process together: configuration, the
// transport connection, the engine core (or a read-only spectator), and
// the optional debug HTTP surface.
package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/htttp-net/htttp/internal/api"
	"github.com/htttp-net/htttp/internal/domain"
	"github.com/htttp-net/htttp/internal/engine"
	"github.com/htttp-net/htttp/internal/infra/codec"
	"github.com/htttp-net/htttp/internal/spectator"
)

// Daemon owns a peer's collaborators for the lifetime of the process.
type Daemon struct {
	cfg        Config
	core       *engine.Core
	spectator  *spectator.Spectator
	httpServer *http.Server
}

// New constructs a Daemon bound to cfg and transport. transport is the
// caller's connection to the exchange named by cfg.Player.Exchange —
// the concrete broker binding is always the embedding application's
// choice.
func New(cfg Config, transport domain.Transport, handlers domain.Handlers) *Daemon {
	d := &Daemon{cfg: cfg}

	if cfg.Player.Spectate {
		d.spectator = spectator.New(spectator.Config{
			Exchange:  cfg.Player.Exchange,
			Transport: transport,
			Codec:     codec.New(),
		})
	} else {
		d.core = engine.New(engine.Config{
			PlayerID:           domain.PlayerID(cfg.Player.PlayerID),
			Exchange:           cfg.Player.Exchange,
			Transport:          transport,
			Codec:              codec.New(),
			Handlers:           handlers,
			HeartbeatFrequency: cfg.Heartbeat.frequency(),
			HeartbeatLifetime:  cfg.Heartbeat.lifetime(),
		})
	}

	return d
}

// Core returns the engine core, or nil when running as a spectator.
func (d *Daemon) Core() *engine.Core { return d.core }

// Spectator returns the spectator role, or nil when running as a player.
func (d *Daemon) Spectator() *spectator.Spectator { return d.spectator }

// Start joins the game (or begins observing) and, if configured, brings
// up the debug HTTP server.
func (d *Daemon) Start() error {
	if d.spectator != nil {
		if err := d.spectator.Start(); err != nil {
			return fmt.Errorf("start spectator: %w", err)
		}
	} else if err := d.core.Join(); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	if d.cfg.API.Port > 0 {
		d.startHTTP()
	}
	return nil
}

func (d *Daemon) startHTTP() {
	srv := api.NewServer(d.core)
	if d.cfg.API.EnableMetrics {
		srv.EnableMetrics()
	}
	if d.spectator != nil {
		srv.SetSpectator(d.spectator)
	}

	addr := fmt.Sprintf("%s:%d", d.cfg.API.Host, d.cfg.API.Port)
	d.httpServer = &http.Server{Addr: addr, Handler: srv.Handler()}
	go func() {
		if err := d.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[daemon] debug http server stopped: %v", err)
		}
	}()
	log.Printf("[daemon] debug http listening on %s", addr)
}

// Stop leaves the game (or stops observing) and shuts down the debug
// HTTP server if one is running.
func (d *Daemon) Stop(ctx context.Context) {
	if d.core != nil {
		d.core.Close()
	}
	if d.spectator != nil {
		d.spectator.Close()
	}
	if d.httpServer != nil {
		_ = d.httpServer.Shutdown(ctx)
	}
}
