package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Start launches the periodic fleet broadcast. The schedule is owned by the
// gateway and has exactly one live instance for the process lifetime.
func (g *Gateway) Start() error {
	g.cron = cron.New(cron.WithSeconds())
	if _, err := g.cron.AddFunc(fmt.Sprintf("@every %s", g.interval), g.broadcastFleetViews); err != nil {
		return fmt.Errorf("schedule broadcast: %w", err)
	}
	g.cron.Start()
	g.log.Info().Dur("interval", g.interval).Msg("broadcast scheduler started")
	return nil
}

// Stop cancels the schedule and waits briefly for an in-flight tick.
func (g *Gateway) Stop() {
	if g.cron == nil {
		return
	}
	ctx := g.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}
	g.log.Info().Msg("broadcast scheduler stopped")
}

// broadcastFleetViews recomputes and delivers each connected
// administrator's fleet view. A failure for one connection is reported to
// that connection only; the schedule keeps ticking regardless.
func (g *Gateway) broadcastFleetViews() {
	for _, admin := range g.hub.Admins() {
		go g.pushFleetView(context.Background(), admin)
	}
}
