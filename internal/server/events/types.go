// Package events fans record and reconciliation events out to the
// real-time transports.
package events

import "time"

// EventType names what happened.
type EventType string

const (
	RecordDeleted  EventType = "record.deleted"
	RecordUpserted EventType = "record.upserted"

	ReconcileCompleted EventType = "reconcile.completed"
	ReconcileFailed    EventType = "reconcile.failed"

	ClientConnected EventType = "client.connected"
)

// Event is one published event. Seq increases by one per Publish call,
// dropped events included, so a consumer can detect gaps.
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}
