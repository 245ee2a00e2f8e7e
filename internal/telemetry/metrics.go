// Package telemetry provides Prometheus metrics for the bot's moderation
// activity and an optional /metrics listener.
package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	commandsHandled     prometheus.Counter
	grantsIssued        prometheus.Counter
	sweepScans          prometheus.Counter
	rolesRevoked        prometheus.Counter
	broadcastsSent      prometheus.Counter
	broadcastsThrottled prometheus.Counter
	membersBanned       prometheus.Counter
)

// Init registers metrics (idempotent). Components call the Inc helpers
// below, which are no-ops until Init has run.
func Init() {
	once.Do(func() {
		commandsHandled = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_commands_handled_total", Help: "Commands dispatched by the router"})
		grantsIssued = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_grants_issued_total", Help: "Temporary role grants issued"})
		sweepScans = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_sweep_scans_total", Help: "Sweep scans over the timeout store"})
		rolesRevoked = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_roles_revoked_total", Help: "Expired roles revoked by the sweep"})
		broadcastsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_broadcasts_sent_total", Help: "Highlight broadcasts sent"})
		broadcastsThrottled = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_broadcasts_throttled_total", Help: "Highlight broadcasts rejected by the cooldown"})
		membersBanned = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_members_banned_total", Help: "Members banned by the new-account heuristic"})
	})
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

func IncCommandsHandled()     { inc(commandsHandled) }
func IncGrantsIssued()        { inc(grantsIssued) }
func IncSweepScans()          { inc(sweepScans) }
func IncRolesRevoked()        { inc(rolesRevoked) }
func IncBroadcastsSent()      { inc(broadcastsSent) }
func IncBroadcastsThrottled() { inc(broadcastsThrottled) }
func IncMembersBanned()       { inc(membersBanned) }

// Serve exposes /metrics on addr until ctx is canceled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
