package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/dicefunnel/internal/model"
	"github.com/mcoot/dicefunnel/internal/testutil"
)

func newRunningHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(testutil.NopLogger())
	go hub.Run()
	t.Cleanup(hub.Close)
	return hub
}

func TestFormatSSEMessage(t *testing.T) {
	tests := []struct {
		name      string
		eventName string
		data      string
		expected  string
	}{
		{
			name:      "single line data",
			eventName: "funnel-event",
			data:      `{"stage":"entered"}`,
			expected:  "event: funnel-event\ndata: {\"stage\":\"entered\"}\n\n",
		},
		{
			name:      "multi-line data",
			eventName: "note",
			data:      "line1\nline2",
			expected:  "event: note\ndata: line1\ndata: line2\n\n",
		},
		{
			name:      "empty data",
			eventName: "ping",
			data:      "",
			expected:  "event: ping\ndata: \n\n",
		},
		{
			name:      "data with carriage returns",
			eventName: "test",
			data:      "line1\r\nline2",
			expected:  "event: test\ndata: line1\ndata: line2\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatSSEMessage(tt.eventName, tt.data)
			if string(result) != tt.expected {
				t.Errorf("formatSSEMessage(%q, %q)\ngot:  %q\nwant: %q",
					tt.eventName, tt.data, string(result), tt.expected)
			}
		})
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "single line", input: "hello", expected: []string{"hello"}},
		{name: "two lines", input: "line1\nline2", expected: []string{"line1", "line2"}},
		{name: "trailing newline", input: "line1\n", expected: []string{"line1"}},
		{name: "empty string", input: "", expected: []string{""}},
		{name: "crlf line endings", input: "line1\r\nline2\r\n", expected: []string{"line1", "line2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, splitLines(tt.input))
		})
	}
}

func TestHub_RegisterAndBroadcast(t *testing.T) {
	hub := newRunningHub(t)

	client := NewClient(hub, "dash-1")
	require.True(t, hub.Register(client))
	time.Sleep(10 * time.Millisecond)

	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", hub.ClientCount())
	}

	hub.BroadcastEvent("test-event", "test data")

	select {
	case msg := <-client.send:
		expected := "event: test-event\ndata: test data\n\n"
		if string(msg) != expected {
			t.Errorf("client received %q, want %q", string(msg), expected)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("client did not receive message")
	}
}

func TestHub_Unregister(t *testing.T) {
	hub := newRunningHub(t)

	client := NewClient(hub, "dash-1")
	hub.Register(client)
	hub.Unregister(client)
	time.Sleep(10 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after unregister, want 0", hub.ClientCount())
	}

	_, open := <-client.send
	assert.False(t, open, "send channel should be closed")
}

func TestHub_BroadcastToMultipleClients(t *testing.T) {
	hub := newRunningHub(t)

	clients := []*Client{NewClient(hub, "a"), NewClient(hub, "b"), NewClient(hub, "c")}
	for _, c := range clients {
		hub.Register(c)
	}

	hub.BroadcastEvent("update", "data")

	for i, client := range clients {
		select {
		case msg := <-client.send:
			assert.Equal(t, "event: update\ndata: data\n\n", string(msg))
		case <-time.After(100 * time.Millisecond):
			t.Errorf("client %d did not receive message", i+1)
		}
	}
}

func TestHub_SlowClientDropsInsteadOfBlocking(t *testing.T) {
	hub := newRunningHub(t)

	slow := NewClient(hub, "slow")
	hub.Register(slow)

	for i := 0; i < sendBufferSize+10; i++ {
		hub.BroadcastEvent("update", "data")
	}
	time.Sleep(50 * time.Millisecond)

	fast := NewClient(hub, "fast")
	require.True(t, hub.Register(fast))
	hub.BroadcastEvent("after", "ok")

	deadline := time.After(time.Second)
	for {
		select {
		case msg := <-fast.send:
			if strings.Contains(string(msg), "event: after") {
				assert.LessOrEqual(t, len(slow.send), sendBufferSize)
				return
			}
		case <-deadline:
			t.Fatal("fast client starved by slow client")
		}
	}
}

func TestHub_RegisterAfterClose(t *testing.T) {
	hub := NewHub(testutil.NopLogger())
	go hub.Run()
	hub.Close()
	hub.Close()

	assert.False(t, hub.Register(NewClient(hub, "late")))
}

func TestBroadcaster_PublishesFunnelEvent(t *testing.T) {
	hub := newRunningHub(t)
	broadcaster := NewBroadcaster(hub, testutil.NopLogger())

	client := NewClient(hub, "dash-1")
	hub.Register(client)

	broadcaster.Publish(&model.FunnelEvent{
		ID:       "ev-1",
		Identity: "9876543210",
		Name:     "Asha",
		Stage:    model.StageRewardDrawn,
	})

	select {
	case msg := <-client.send:
		s := string(msg)
		assert.Contains(t, s, "event: funnel-event")
		assert.Contains(t, s, `"stage":"reward_drawn"`)
		assert.Contains(t, s, `"id":"ev-1"`)
	case <-time.After(100 * time.Millisecond):
		t.Error("client did not receive message")
	}
}

func TestServeSSE_StreamsEvents(t *testing.T) {
	hub := newRunningHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil).WithContext(ctx)
	rr := httptest.NewRecorder()

	go func() {
		for hub.ClientCount() == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		hub.BroadcastEvent(EventFunnel, `{"stage":"entered"}`)
	}()

	serveSSE(rr, req, hub, "dash-1", 20*time.Millisecond)

	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rr.Header().Get("Cache-Control"))
	body := rr.Body.String()
	assert.Contains(t, body, "retry: 3000")
	assert.Contains(t, body, "event: connected")
	assert.Contains(t, body, "event: funnel-event")
	assert.Contains(t, body, ": keepalive")
}
