// Package eventsink defines the outbound intent sink the dispatch core
// enqueues to on dispatch completion and tour-run cancellation (spec §6).
// The sink's own delivery semantics (queueing, webhooks, retries) are an
// external collaborator's concern; this module only needs an interface
// to enqueue against and a concrete adapter to compile and test with.
package eventsink

import (
	"context"
	"time"
)

// IntentType names the kind of outbound event the core raises.
type IntentType string

const (
	IntentDispatchCompleted  IntentType = "dispatch.completed"
	IntentTourRunCancelled   IntentType = "tour_run.cancelled"
)

// Intent is one outbound event the core hands to the sink. Payload
// carries whatever attribution the receiving system needs (run key,
// booking IDs, warning ID); the core never assumes anything about what
// happens to it downstream.
type Intent struct {
	Type           IntentType
	OrganizationID string
	OccurredAt     time.Time
	Payload        map[string]interface{}
}

// Sink is the interface every dispatch-completing or warning-resolving
// operation enqueues outbound intents through.
type Sink interface {
	// Enqueue hands an intent to the sink. GetName identifies the
	// concrete adapter, mirroring the teacher's SMSGateway.GetName()
	// convention for naming swappable external collaborators.
	Enqueue(ctx context.Context, intent Intent) error
	GetName() string
}
