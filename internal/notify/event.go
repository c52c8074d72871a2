// Package notify fans out execution and chat events to subscribers.
package notify

import (
	"fmt"
	"time"
)

// Message types sent to clients.
const (
	TypeWorkflowStatus = "workflow_status"
	TypeStepStatus     = "step_status"
	TypeNewMessage     = "new_message"
)

// EventKind distinguishes plan-level from step-level run events.
type EventKind string

const (
	KindPlanStatus EventKind = "plan_status"
	KindStepStatus EventKind = "step_status"
)

// Event is a run progress notification.
type Event struct {
	Kind      EventKind `json:"kind"`
	PlanID    string    `json:"planId"`
	StepID    string    `json:"stepId,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is one frame delivered to subscribers.
type Message struct {
	Topic     string    `json:"topic"`
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers messages to a topic. Publish never blocks.
type Publisher interface {
	Publish(topic string, msg Message)
}

// UserTopic is the per-user topic every connection joins.
func UserTopic(userID string) string { return fmt.Sprintf("user:%s", userID) }

// WorkflowTopic carries the run events of one plan.
func WorkflowTopic(planID string) string { return fmt.Sprintf("workflow:%s", planID) }

// EventMessage wraps a run event in the frame published on its workflow topic.
func EventMessage(ev Event) (topic string, msg Message) {
	typ := TypeWorkflowStatus
	if ev.Kind == KindStepStatus {
		typ = TypeStepStatus
	}
	topic = WorkflowTopic(ev.PlanID)
	return topic, Message{Topic: topic, Type: typ, Data: ev, Timestamp: ev.Timestamp}
}

// PublishEvent publishes a run event on its workflow topic.
func PublishEvent(p Publisher, ev Event) {
	topic, msg := EventMessage(ev)
	p.Publish(topic, msg)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(string, Message) {}
