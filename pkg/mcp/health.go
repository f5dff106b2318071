package mcp

import (
	"context"
	"time"
)

// healthMonitor is the single supervisory loop: each tick it walks the
// execution and client registries and enforces the idle, exec, cancel
// and client timeouts. It never frees memory directly — it only nudges
// state; actual cleanup follows from the registries' own invariants.
type healthMonitor struct {
	server *Server
	done   chan struct{}
}

func newHealthMonitor(s *Server) *healthMonitor {
	return &healthMonitor{server: s, done: make(chan struct{})}
}

func (h *healthMonitor) start(ctx context.Context) {
	go h.run(ctx)
}

func (h *healthMonitor) stop() {
	close(h.done)
}

func (h *healthMonitor) run(ctx context.Context) {
	ticker := time.NewTicker(h.server.cfg.healthInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			h.tick()
		}
	}
}

func (h *healthMonitor) tick() {
	s := h.server

	cancelTimeoutExceeded, newlyCancelled := s.executions.sweep(s.cfg)
	for _, breach := range cancelTimeoutExceeded {
		// Policy stops short of forcible termination — this
		// is deliberately a log-only nudge; reclaiming the slot is a
		// host-application decision.
		s.logger.Error("tool callback has not acknowledged cancellation", "token", breach.token, "cancel_timeout", s.cfg.cancelTimeout())
		if breach.span != nil {
			breach.span.AddEvent("cancel_timeout_exceeded")
		}
	}
	for _, token := range newlyCancelled {
		s.logger.Warn("execution cancelled by health monitor", "token", token)
	}

	stale := s.clients.sweepIdleClients(s.cfg.clientTimeout())
	for range stale {
		s.logger.Info("client removed for exceeding client_timeout")
	}
}
