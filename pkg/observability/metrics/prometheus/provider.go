/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fedway"

// Metrics records federation activity in Prometheus collectors.
type Metrics struct {
	activitiesSent        *prometheus.CounterVec
	deliveriesAttempted   prometheus.Counter
	deliveriesRetried     prometheus.Counter
	deliveriesGivenUp     prometheus.Counter
	deliveryTime          prometheus.Histogram
	inboxActivitiesByType *prometheus.CounterVec
	inboxDuplicates       prometheus.Counter
}

// New returns Prometheus-backed metrics registered with the given registerer.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		activitiesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "activities_sent_total",
			Help:      "The number of activities posted for delivery.",
		}, []string{"type"}),
		deliveriesAttempted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "deliveries_attempted_total",
			Help:      "The number of delivery attempts to remote inboxes.",
		}),
		deliveriesRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "deliveries_retried_total",
			Help:      "The number of failed deliveries scheduled for retry.",
		}),
		deliveriesGivenUp: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "deliveries_given_up_total",
			Help:      "The number of deliveries abandoned after exhausting retries.",
		}),
		deliveryTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "delivery_seconds",
			Help:      "The duration of delivery attempts.",
		}),
		inboxActivitiesByType: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inbox",
			Name:      "activities_handled_total",
			Help:      "The number of inbound activities dispatched to listeners.",
		}, []string{"type"}),
		inboxDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inbox",
			Name:      "activities_deduplicated_total",
			Help:      "The number of inbound activities dropped as duplicates.",
		}),
	}

	registerer.MustRegister(m.activitiesSent, m.deliveriesAttempted, m.deliveriesRetried,
		m.deliveriesGivenUp, m.deliveryTime, m.inboxActivitiesByType, m.inboxDuplicates)

	return m
}

// ActivitySent increments the sent-activities counter for the given type.
func (m *Metrics) ActivitySent(activityType string) {
	m.activitiesSent.WithLabelValues(activityType).Inc()
}

// DeliveryAttempted increments the delivery-attempts counter.
func (m *Metrics) DeliveryAttempted() {
	m.deliveriesAttempted.Inc()
}

// DeliveryRetried increments the retried-deliveries counter.
func (m *Metrics) DeliveryRetried() {
	m.deliveriesRetried.Inc()
}

// DeliveryGivenUp increments the abandoned-deliveries counter.
func (m *Metrics) DeliveryGivenUp() {
	m.deliveriesGivenUp.Inc()
}

// DeliveryTime records the duration of a delivery attempt.
func (m *Metrics) DeliveryTime(value time.Duration) {
	m.deliveryTime.Observe(value.Seconds())
}

// InboxActivityHandled increments the inbox-activities counter for the given type.
func (m *Metrics) InboxActivityHandled(activityType string) {
	m.inboxActivitiesByType.WithLabelValues(activityType).Inc()
}

// InboxActivityDeduplicated increments the inbox-duplicates counter.
func (m *Metrics) InboxActivityDeduplicated() {
	m.inboxDuplicates.Inc()
}
