// internal/player/metrics.go

package player

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiekky_playback_sessions_opened_total",
		Help: "Story playback sessions opened",
	})

	sessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiekky_playback_sessions_ended_total",
		Help: "Story playback sessions ended, by reason",
	}, []string{"reason"})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kiekky_playback_sessions_active",
		Help: "Websocket playback sessions currently connected",
	})

	viewReports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiekky_playback_view_reports_total",
		Help: "Story view reports sent by playback sessions, by result",
	}, []string{"result"})

	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiekky_playback_commands_total",
		Help: "Client commands received, by type",
	}, []string{"type"})
)
