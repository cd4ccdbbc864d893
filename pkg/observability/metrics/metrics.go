/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package metrics

import "time"

// Metrics records federation activity for monitoring.
type Metrics interface {
	// ActivitySent is invoked when an activity is posted for delivery.
	ActivitySent(activityType string)

	// DeliveryAttempted is invoked for each delivery attempt to a remote inbox.
	DeliveryAttempted()

	// DeliveryRetried is invoked when a failed delivery is scheduled for retry.
	DeliveryRetried()

	// DeliveryGivenUp is invoked when a delivery has exhausted its retries.
	DeliveryGivenUp()

	// DeliveryTime records the duration of a delivery attempt.
	DeliveryTime(value time.Duration)

	// InboxActivityHandled is invoked when an inbound activity is dispatched to a listener.
	InboxActivityHandled(activityType string)

	// InboxActivityDeduplicated is invoked when an inbound activity is dropped as a duplicate.
	InboxActivityDeduplicated()
}

// NoOp returns a Metrics implementation that discards all measurements.
func NoOp() Metrics {
	return &noop{}
}

type noop struct{}

func (m *noop) ActivitySent(string)         {}
func (m *noop) DeliveryAttempted()          {}
func (m *noop) DeliveryRetried()            {}
func (m *noop) DeliveryGivenUp()            {}
func (m *noop) DeliveryTime(time.Duration)  {}
func (m *noop) InboxActivityHandled(string) {}
func (m *noop) InboxActivityDeduplicated()  {}
