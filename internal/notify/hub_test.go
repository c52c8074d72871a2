package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/tradeflow/internal/metrics"
)

func recv(t *testing.T, s *Subscription) Message {
	t.Helper()
	select {
	case msg, ok := <-s.C():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func assertEmpty(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case msg := <-s.C():
		t.Fatalf("unexpected message %+v", msg)
	default:
	}
}

func TestHub_TopicRouting(t *testing.T) {
	hub := NewHub(HubConfig{})
	defer hub.Close()

	alice := hub.Subscribe(UserTopic("alice"))
	bob := hub.Subscribe(UserTopic("bob"), WorkflowTopic("p1"))

	hub.Publish(UserTopic("alice"), Message{Type: TypeNewMessage, Data: "hi"})
	hub.Publish(WorkflowTopic("p1"), Message{Type: TypeWorkflowStatus})

	got := recv(t, alice)
	assert.Equal(t, "user:alice", got.Topic)
	assert.Equal(t, "hi", got.Data)
	assertEmpty(t, alice)

	got = recv(t, bob)
	assert.Equal(t, "workflow:p1", got.Topic)
	assertEmpty(t, bob)
}

func TestHub_JoinLeave(t *testing.T) {
	hub := NewHub(HubConfig{})
	defer hub.Close()

	s := hub.Subscribe(UserTopic("u1"))
	s.Join(WorkflowTopic("p1"))
	assert.ElementsMatch(t, []string{"user:u1", "workflow:p1"}, s.Topics())
	assert.Equal(t, 1, hub.Subscribers(WorkflowTopic("p1")))

	s.Leave(WorkflowTopic("p1"))
	assert.Equal(t, 0, hub.Subscribers(WorkflowTopic("p1")))

	hub.Publish(WorkflowTopic("p1"), Message{Type: TypeStepStatus})
	assertEmpty(t, s)
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(HubConfig{})
	defer hub.Close()

	assert.NotPanics(t, func() {
		hub.Publish(WorkflowTopic("nobody"), Message{Type: TypeWorkflowStatus})
	})
	assert.Equal(t, 0, hub.Subscribers(WorkflowTopic("nobody")))
}

func TestHub_FullBufferDrops(t *testing.T) {
	_, m := metrics.NewRegistry()
	hub := NewHub(HubConfig{BufferSize: 2, Metrics: m})
	defer hub.Close()

	slow := hub.Subscribe(WorkflowTopic("p1"))
	fast := hub.Subscribe(WorkflowTopic("p1"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			hub.Publish(WorkflowTopic("p1"), Message{Type: TypeStepStatus, Data: i})
			<-fast.C()
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	assert.Equal(t, int64(3), slow.Dropped())
	assert.Equal(t, int64(0), fast.Dropped())
	assert.Equal(t, 0, recv(t, slow).Data)
	assert.Equal(t, 1, recv(t, slow).Data)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.NotificationsDropped.WithLabelValues(TypeStepStatus)))
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	hub := NewHub(HubConfig{})
	defer hub.Close()

	s := hub.Subscribe(UserTopic("u1"), WorkflowTopic("p1"))
	s.Close()
	s.Close()

	_, ok := <-s.C()
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers(UserTopic("u1")))
	assert.Empty(t, s.Topics())

	s.Join(WorkflowTopic("p2"))
	assert.Equal(t, 0, hub.Subscribers(WorkflowTopic("p2")))
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(HubConfig{})
	a := hub.Subscribe(UserTopic("u1"))
	b := hub.Subscribe(UserTopic("u1"), WorkflowTopic("p1"))

	hub.Close()
	hub.Close()

	for _, s := range []*Subscription{a, b} {
		_, ok := <-s.C()
		assert.False(t, ok)
		s.Close()
	}

	late := hub.Subscribe(UserTopic("u2"))
	_, ok := <-late.C()
	assert.False(t, ok)
	hub.Publish(UserTopic("u1"), Message{Type: TypeNewMessage})
}

func TestHub_ConcurrentPublishSubscribe(t *testing.T) {
	hub := NewHub(HubConfig{BufferSize: 8})
	defer hub.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s := hub.Subscribe(WorkflowTopic("p1"))
			s.Join(UserTopic("u1"))
			s.Close()
		}()
		go func(i int) {
			defer wg.Done()
			hub.Publish(WorkflowTopic("p1"), Message{Type: TypeStepStatus, Data: i})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Subscribers(WorkflowTopic("p1")))
}

func TestEventMessage(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	topic, msg := EventMessage(Event{Kind: KindStepStatus, PlanID: "p1", StepID: "p1-step-1", Status: "running", Timestamp: ts})
	assert.Equal(t, "workflow:p1", topic)
	assert.Equal(t, TypeStepStatus, msg.Type)
	assert.Equal(t, ts, msg.Timestamp)

	_, msg = EventMessage(Event{Kind: KindPlanStatus, PlanID: "p1", Status: "completed"})
	assert.Equal(t, TypeWorkflowStatus, msg.Type)

	hub := NewHub(HubConfig{})
	defer hub.Close()
	s := hub.Subscribe(WorkflowTopic("p1"))
	PublishEvent(hub, Event{Kind: KindPlanStatus, PlanID: "p1", Status: "executing"})
	got := recv(t, s)
	assert.Equal(t, "executing", got.Data.(Event).Status)

	assert.NotPanics(t, func() { PublishEvent(Nop{}, Event{PlanID: "p1"}) })
}
