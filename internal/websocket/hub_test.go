package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distconsole/internal/config"
	"distconsole/internal/snapshot"
	"distconsole/pkg/contracts/domain"
)

var testWSConfig = config.WebSocketConfig{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	PingPeriod:      time.Second,
	PongWait:        2 * time.Second,
	MaxMessageSize:  4096,
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, func() bool { return hub.Stats().Running }, time.Second, time.Millisecond)
	return hub, cancel
}

func decode(t *testing.T, payload []byte) Message {
	t.Helper()
	var m Message
	require.NoError(t, json.Unmarshal(payload, &m))
	return m
}

func recv(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		require.True(t, ok, "send queue closed")
		return decode(t, payload)
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestHub_RegisterSendsGreeting(t *testing.T) {
	hub, _ := startHub(t)
	client := NewClient(hub, NewMockConnection(), testWSConfig, "trace-9", nil)

	hub.Register(client)

	msg := recv(t, client)
	assert.Equal(t, TypeConnection, msg.Type)
	assert.Equal(t, "trace-9", msg.TraceID)
	assert.Equal(t, client.ID(), msg.Data.(map[string]any)["client_id"])
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	hub, _ := startHub(t)
	a := NewClient(hub, NewMockConnection(), testWSConfig, "", nil)
	b := NewClient(hub, NewMockConnection(), testWSConfig, "", nil)
	hub.Register(a)
	hub.Register(b)
	recv(t, a)
	recv(t, b)

	hub.Broadcast(context.Background(), TypeSnapshotHistory, map[string]int{"len": 2})

	for _, c := range []*Client{a, b} {
		msg := recv(t, c)
		assert.Equal(t, TypeSnapshotHistory, msg.Type)
		assert.Equal(t, float64(2), msg.Data.(map[string]any)["len"])
	}
	assert.Eventually(t, func() bool { return hub.Stats().MessagesSent == 2 }, time.Second, time.Millisecond)
}

func TestHub_ReplaysLatestSnapshots(t *testing.T) {
	hub, _ := startHub(t)
	hub.Broadcast(context.Background(), TypeSnapshotDistribution, "old")
	hub.Broadcast(context.Background(), TypeSnapshotDistribution, "new")
	hub.Broadcast(context.Background(), TypeNotification, "not replayed")
	hub.Broadcast(context.Background(), TypeSnapshotConfigurations, "cfg")

	// broadcasts are processed in order, so a client registered afterwards
	// sees the final state
	require.Eventually(t, func() bool { return len(hub.broadcast) == 0 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	client := NewClient(hub, NewMockConnection(), testWSConfig, "", nil)
	hub.Register(client)

	assert.Equal(t, TypeConnection, recv(t, client).Type)
	first := recv(t, client)
	second := recv(t, client)
	assert.Equal(t, TypeSnapshotConfigurations, first.Type)
	assert.Equal(t, TypeSnapshotDistribution, second.Type)
	assert.Equal(t, "new", second.Data)
	assert.Empty(t, client.send)
}

func TestHub_Notify(t *testing.T) {
	hub, _ := startHub(t)
	client := NewClient(hub, NewMockConnection(), testWSConfig, "", nil)
	hub.Register(client)
	recv(t, client)

	hub.Notify(context.Background(), domain.Notification{
		Level: domain.NotificationError,
		Title: "Unexpected error",
	})

	msg := recv(t, client)
	assert.Equal(t, TypeNotification, msg.Type)
	data := msg.Data.(map[string]any)
	assert.Equal(t, "error", data["level"])
	assert.Equal(t, "Unexpected error", data["title"])
}

func TestHub_DisconnectsSlowClient(t *testing.T) {
	hub, _ := startHub(t)
	client := NewClient(hub, NewMockConnection(), testWSConfig, "", nil)
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, time.Millisecond)

	// nobody drains the queue; greeting plus sendBuffer broadcasts overflow it
	for i := 0; i < sendBuffer; i++ {
		hub.Broadcast(context.Background(), TypeNotification, i)
	}

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, time.Millisecond)
}

func TestHub_RunCancelClosesClients(t *testing.T) {
	hub, cancel := startHub(t)
	client := NewClient(hub, NewMockConnection(), testWSConfig, "", nil)
	hub.Register(client)
	recv(t, client)

	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-client.send:
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return !hub.Stats().Running }, time.Second, time.Millisecond)

	late := NewClient(hub, NewMockConnection(), testWSConfig, "", nil)
	hub.Register(late)
	_, ok := <-late.send
	assert.False(t, ok, "registering after shutdown closes the queue")
}

func TestForward(t *testing.T) {
	hub, _ := startHub(t)
	client := NewClient(hub, NewMockConnection(), testWSConfig, "", nil)
	hub.Register(client)
	recv(t, client)

	pub := snapshot.NewPublisher(0, nil)
	unsubscribe := Forward(hub, TypeSnapshotDataset, pub.Subscribe)

	pub.Publish(1, 7)
	msg := recv(t, client)
	assert.Equal(t, TypeSnapshotDataset, msg.Type)
	assert.Equal(t, float64(7), msg.Data)

	unsubscribe()
	pub.Publish(2, 8)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, client.send)
}

func TestClient_WritePumpWritesAndCloses(t *testing.T) {
	hub := NewHub(nil, nil)
	conn := NewMockConnection()
	client := NewClient(hub, conn, testWSConfig, "", nil)

	done := make(chan struct{})
	go func() {
		client.WritePump()
		close(done)
	}()

	client.send <- []byte(`{"type":"x"}`)
	close(client.send)
	<-done

	types, frames := conn.Written()
	require.Len(t, frames, 2)
	assert.Equal(t, websocket.TextMessage, types[0])
	assert.Equal(t, `{"type":"x"}`, string(frames[0]))
	assert.Equal(t, websocket.CloseMessage, types[1])
	assert.True(t, conn.IsClosed())
}

func TestHandler_EndToEnd(t *testing.T) {
	hub, _ := startHub(t)
	srv := httptest.NewServer(NewHandler(hub, testWSConfig, []string{"http://localhost:3000"}, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{"Origin": []string{"http://localhost:3000"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	var greeting Message
	require.NoError(t, conn.ReadJSON(&greeting))
	assert.Equal(t, TypeConnection, greeting.Type)

	hub.Broadcast(context.Background(), TypeSnapshotHistory, []string{"a"})
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, TypeSnapshotHistory, msg.Type)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	hub, _ := startHub(t)
	srv := httptest.NewServer(NewHandler(hub, testWSConfig, []string{"http://localhost:3000"}, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://evil.test"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://app.test"})
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "console:8080", true},
		{"http://app.test", "console:8080", true},
		{"HTTP://APP.TEST", "console:8080", true},
		{"http://console:8080", "console:8080", true},
		{"http://other.test", "console:8080", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Host = tt.host
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, check(r), tt.origin)
	}
	assert.True(t, originChecker([]string{"*"})(httptest.NewRequest(http.MethodGet, "/ws", nil)))
}
