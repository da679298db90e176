// Package metrics exposes Prometheus collectors for logins, actions and
// campaigns.
package metrics

import "github.com/prometheus/client_golang/prometheus"

//nolint:gochecknoglobals // process-wide collectors
var (
	Logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_logins_total",
			Help: "Login and challenge submissions by classified outcome",
		},
		[]string{"flow", "outcome"},
	)

	SessionChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_session_checks_total",
			Help: "Session validation results",
		},
		[]string{"validity"},
	)

	Actions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_actions_total",
			Help: "Executed operations by kind and status",
		},
		[]string{"kind", "status"},
	)

	ActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parley_action_duration_seconds",
			Help:    "Time taken by a single external operation",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"kind"},
	)

	CampaignsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parley_campaigns_running",
			Help: "Campaigns currently executing",
		},
	)

	Campaigns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_campaigns_total",
			Help: "Finished campaigns by terminal status",
		},
		[]string{"status"},
	)
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		Logins,
		SessionChecks,
		Actions,
		ActionDuration,
		CampaignsRunning,
		Campaigns,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
