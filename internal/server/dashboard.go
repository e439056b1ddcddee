package server

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/ravenexp/crates-io-proxy/internal/stats"
)

// StatsResponse is the JSON body served at /stats.
type StatsResponse struct {
	TotalEvents    int64             `json:"total_events"`
	DistinctCrates int64             `json:"distinct_crates"`
	TotalBytesSent int64             `json:"total_bytes_sent"`
	Recent         []RecentEventView `json:"recent"`
}

// RecentEventView is one ledger row as rendered in /stats and the dashboard.
type RecentEventView struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Outcome string `json:"outcome"`
	Bytes   int64  `json:"bytes"`
	At      string `json:"at"`
}

func newStatsHandler(ledger *stats.Ledger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if ledger == nil {
			http.Error(w, "stats ledger not configured", http.StatusServiceUnavailable)
			return
		}

		totals, err := ledger.Totals(ctx)
		if err != nil {
			logger.Error("failed to get stats totals", "error", err)
			http.Error(w, "failed to get stats", http.StatusInternalServerError)
			return
		}

		recent, err := ledger.Recent(ctx, 50)
		if err != nil {
			logger.Error("failed to get recent stats", "error", err)
			http.Error(w, "failed to get stats", http.StatusInternalServerError)
			return
		}

		resp := StatsResponse{
			TotalEvents:    totals.TotalEvents,
			DistinctCrates: totals.DistinctCrates,
			TotalBytesSent: totals.TotalBytesSent,
			Recent:         toRecentEventViews(recent),
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("failed to encode stats response", "error", err)
		}
	}
}

func toRecentEventViews(events []stats.Event) []RecentEventView {
	views := make([]RecentEventView, 0, len(events))
	for _, ev := range events {
		views = append(views, RecentEventView{
			Kind:    ev.Kind,
			Name:    ev.Name,
			Version: ev.Version,
			Outcome: string(ev.Outcome),
			Bytes:   ev.Bytes,
			At:      ev.At.Format(time.RFC3339),
		})
	}
	return views
}

// dashboardData feeds the root HTML dashboard template.
type dashboardData struct {
	TotalEvents    int64
	DistinctCrates int64
	TotalBytesSent int64
	Recent         []RecentEventView
}

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head><title>crates-io-proxy</title></head>
<body>
<h1>crates-io-proxy</h1>
<ul>
<li>Total events: {{.TotalEvents}}</li>
<li>Distinct crates: {{.DistinctCrates}}</li>
<li>Total bytes sent: {{.TotalBytesSent}}</li>
</ul>
<table border="1" cellpadding="4">
<tr><th>Kind</th><th>Name</th><th>Version</th><th>Outcome</th><th>Bytes</th><th>At</th></tr>
{{range .Recent}}<tr><td>{{.Kind}}</td><td>{{.Name}}</td><td>{{.Version}}</td><td>{{.Outcome}}</td><td>{{.Bytes}}</td><td>{{.At}}</td></tr>
{{end}}</table>
</body>
</html>
`))

func newDashboardHandler(ledger *stats.Ledger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		data := dashboardData{}
		if ledger != nil {
			if totals, err := ledger.Totals(ctx); err != nil {
				logger.Error("failed to get stats totals for dashboard", "error", err)
			} else {
				data.TotalEvents = totals.TotalEvents
				data.DistinctCrates = totals.DistinctCrates
				data.TotalBytesSent = totals.TotalBytesSent
			}
			if recent, err := ledger.Recent(ctx, 20); err != nil {
				logger.Error("failed to get recent stats for dashboard", "error", err)
			} else {
				data.Recent = toRecentEventViews(recent)
			}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := dashboardTemplate.Execute(w, data); err != nil {
			logger.Error("failed to render dashboard", "error", err)
		}
	}
}
