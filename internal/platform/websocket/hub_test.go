package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newTestClient(id string, topics ...string) *Client {
	return &Client{ID: id, Topics: topics, Send: make(chan []byte, 8)}
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient("c1", TopicQueue)

	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount(TopicQueue) != 1 {
		t.Fatalf("expected 1 queue subscriber, got %d", hub.TopicCount(TopicQueue))
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.TopicCount(TopicQueue) != 0 {
		t.Fatal("expected hub to be empty after unregister")
	}
	if _, ok := <-client.Send; ok {
		t.Error("expected Send channel to be closed")
	}

	// second unregister is a no-op
	hub.Unregister(client)
}

func TestHub_PublishDefaultsTopicAndTimestamp(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient("c1", TopicQueue)
	hub.Register(client)

	err := hub.Publish(context.Background(), Event{Type: EventPatientAdmitted, PatientID: "p-1", Priority: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case data := <-client.Send:
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Topic != TopicQueue {
			t.Errorf("expected topic %q, got %q", TopicQueue, evt.Topic)
		}
		if evt.Priority != 2 || evt.PatientID != "p-1" {
			t.Errorf("unexpected event payload: %+v", evt)
		}
		if evt.Timestamp.IsZero() {
			t.Error("expected timestamp to be set")
		}
	default:
		t.Fatal("expected an event on the client channel")
	}
}

func TestHub_BroadcastOnlyToSubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	queue := newTestClient("queue", TopicQueue)
	other := newTestClient("other", "other")
	hub.Register(queue)
	hub.Register(other)

	hub.Broadcast(TopicQueue, Event{Type: EventPatientStatus, Topic: TopicQueue})

	if len(queue.Send) != 1 {
		t.Errorf("expected queue subscriber to receive 1 event, got %d", len(queue.Send))
	}
	if len(other.Send) != 0 {
		t.Errorf("expected other subscriber to receive nothing, got %d", len(other.Send))
	}
}

func TestHub_BroadcastDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := &Client{ID: "slow", Topics: []string{TopicQueue}, Send: make(chan []byte, 1)}
	hub.Register(client)

	hub.Broadcast(TopicQueue, Event{Type: EventPatientPriority})
	hub.Broadcast(TopicQueue, Event{Type: EventPatientPriority})

	if len(client.Send) != 1 {
		t.Errorf("expected buffered event count 1, got %d", len(client.Send))
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient("c1")
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{TopicQueue, "vitals"}})
	if hub.TopicCount(TopicQueue) != 1 || hub.TopicCount("vitals") != 1 {
		t.Fatal("expected subscriptions to be added")
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{"vitals"}})
	if hub.TopicCount("vitals") != 0 {
		t.Error("expected vitals subscription to be removed")
	}
	if len(client.Topics) != 1 || client.Topics[0] != TopicQueue {
		t.Errorf("expected remaining topics [queue], got %v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unknown", Topics: []string{"x"}})
	if hub.TopicCount("x") != 0 {
		t.Error("unknown action must not subscribe")
	}
}

func TestHub_ConcurrentPublish(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := newTestClient("c", TopicQueue)
			hub.Register(c)
			hub.Unregister(c)
		}()
		go func() {
			defer wg.Done()
			_ = hub.Publish(context.Background(), Event{Type: EventPatientAdmitted})
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHandler_RejectsPlainHTTP(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	h := NewHandler(hub, nil)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	_ = h.HandleConnect(c)
	if hub.ClientCount() != 0 {
		t.Error("expected no client registered for a non-upgrade request")
	}
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, []string{"http://triage.local"}).RegisterRoutes(e.Group(""))
	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("expected dial to fail for foreign origin")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
}

func TestHandler_ReceivesQueueEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, nil).RegisterRoutes(e.Group(""))
	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(time.Second)
	for hub.TopicCount(TopicQueue) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.TopicCount(TopicQueue) != 1 {
		t.Fatal("expected the connection to be subscribed to the queue topic")
	}

	_ = hub.Publish(context.Background(), Event{Type: EventPatientAdmitted, PatientID: "abc", Priority: 1})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt Event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if evt.Type != EventPatientAdmitted || evt.PatientID != "abc" {
		t.Errorf("unexpected event: %+v", evt)
	}
}
