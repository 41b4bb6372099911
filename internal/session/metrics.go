// Package session – Prometheus instrumentation
//
// Core lifecycle counters for dashboards: session starts and ends (by
// reason), recorded turns (by role), and profile merges. Cardinality is
// bounded: reasons and roles are small fixed sets.
package session

import "github.com/prometheus/client_golang/prometheus"

var (
	// sessionsStarted counts sessions created by the registry.
	sessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voice_sessions_started_total",
			Help: "Total number of voice sessions started.",
		},
	)

	// sessionsEnded counts sessions ended, labeled by end reason
	// (ended, participant_disconnected, idle_timeout).
	sessionsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_sessions_ended_total",
			Help: "Total number of voice sessions ended, by reason.",
		},
		[]string{"reason"},
	)

	// turnsRecorded counts persisted conversation turns, by role.
	turnsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_turns_recorded_total",
			Help: "Total number of conversation turns recorded, by role.",
		},
		[]string{"role"},
	)

	// profilesMerged counts anonymous-to-authenticated profile merges.
	profilesMerged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voice_profiles_merged_total",
			Help: "Total number of anonymous profiles merged into authenticated ones.",
		},
	)
)

func init() {
	prometheus.MustRegister(sessionsStarted, sessionsEnded, turnsRecorded, profilesMerged)
}
