package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/kanbanhq/controlplane/pkg/log"
	"github.com/kanbanhq/controlplane/pkg/metrics"
	"github.com/kanbanhq/controlplane/pkg/types"
)

const (
	autoStartPollInterval = 2 * time.Second
	autoStartTimeout      = 60 * time.Second
)

// ServeTenant resolves slug's team, auto-starting it if suspended, and
// proxies r to its internal API address verbatim.
func (d *Deps) ServeTenant(w http.ResponseWriter, r *http.Request, slug string) {
	team, err := d.Store.GetTeamBySlug(slug)
	if err != nil {
		http.Error(w, "unknown tenant", http.StatusNotFound)
		return
	}

	if team.Status == types.TeamSuspended {
		if !d.autoStart(r.Context(), team) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"detail":"tenant unavailable: auto-start did not complete in time"}`))
			return
		}
	}

	d.proxyToTenant(w, r, slug)
}

// autoStart enqueues a team.start task and polls until the team reaches
// active or autoStartTimeout elapses.
func (d *Deps) autoStart(ctx context.Context, team *types.Team) bool {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.AutoStartDuration)

	_, err := d.Broker.Enqueue(ctx, "provisioning", types.TaskTeamStart, map[string]string{
		"team_id":   team.ID,
		"team_slug": team.Slug,
	}, "", types.PriorityHigh)
	if err != nil {
		log.Logger.Error().Err(err).Str("team_slug", team.Slug).Msg("failed to enqueue auto-start task")
		return false
	}

	deadline := time.Now().Add(autoStartTimeout)
	for time.Now().Before(deadline) {
		current, err := d.Store.GetTeam(team.ID)
		if err == nil && current.Status == types.TeamActive {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(autoStartPollInterval):
		}
	}
	return false
}

// proxyToTenant forwards r verbatim to kanban-team-{slug}-api-1:8000,
// mapping transport failures to status codes: any dial failure (refused
// or timed out) -> 503, other timeouts such as a read timeout -> 504,
// anything else -> 500.
func (d *Deps) proxyToTenant(w http.ResponseWriter, r *http.Request, slug string) {
	target, err := url.Parse(fmt.Sprintf("http://kanban-team-%s-api-1:8000", slug))
	if err != nil {
		http.Error(w, "invalid tenant address", http.StatusInternalServerError)
		return
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	failed := false
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = target.Host
		req.Header.Set("X-Forwarded-For", clientIP(r))
		req.Header.Set("X-Forwarded-Proto", "https")
		req.Header.Set("X-Forwarded-Host", r.Host)
		// Authorization is passed through verbatim; the tenant's own API
		// does its own authorization, independent of the gateway's.
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		failed = true
		status := http.StatusInternalServerError
		outcome := "error"
		var netErr net.Error
		if e, ok := err.(net.Error); ok {
			netErr = e
		}
		switch {
		case isConnectionRefused(err):
			status = http.StatusServiceUnavailable
			outcome = "unreachable"
		case netErr != nil && netErr.Timeout():
			status = http.StatusGatewayTimeout
			outcome = "timeout"
		}
		metrics.ProxyRequestsTotal.WithLabelValues(outcome).Inc()
		log.Logger.Warn().Err(err).Str("tenant", slug).Int("status", status).Msg("proxy error")
		w.WriteHeader(status)
	}
	proxy.ServeHTTP(w, r)
	if !failed {
		metrics.ProxyRequestsTotal.WithLabelValues("ok").Inc()
	}
}

func isConnectionRefused(err error) bool {
	var opErr *net.OpError
	for e := err; e != nil; e = unwrap(e) {
		if o, ok := e.(*net.OpError); ok && o.Op == "dial" {
			opErr = o
			break
		}
	}
	return opErr != nil
}

func unwrap(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return nil
}
