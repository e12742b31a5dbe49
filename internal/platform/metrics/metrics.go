// Package metrics defines the Prometheus collectors for the audit pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsRecorded counts audit events accepted by a recorder, by origin
	// service.
	EventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditflow_events_recorded_total",
		Help: "Audit events accepted by the local recorder.",
	}, []string{"service"})

	// RelayOutcomes counts relay deliveries by terminal outcome
	// (delivered, lost_at_publish, lost_at_consume).
	RelayOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditflow_relay_outcomes_total",
		Help: "Relay messages by terminal delivery outcome.",
	}, []string{"outcome"})

	// WSConnections tracks currently connected fan-out sessions per gateway.
	WSConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "auditflow_ws_connections",
		Help: "Currently connected WebSocket sessions.",
	}, []string{"gateway"})

	// BroadcastsSent counts room broadcasts per gateway.
	BroadcastsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditflow_broadcasts_sent_total",
		Help: "Room broadcasts emitted by fan-out gateways.",
	}, []string{"gateway"})

	// NotificationsCreated counts notifications materialized by the projector
	// or the REST surface, by type.
	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditflow_notifications_created_total",
		Help: "Notifications created, by notification type.",
	}, []string{"type"})
)
