package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecs/backend/internal/domain"
	"ecs/backend/internal/pool"
)

// fakeRelay 记录转发的事件
type fakeRelay struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (r *fakeRelay) Publish(_ context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *fakeRelay) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

// headerAuth 带 X-Test-User 头的请求视为已登录
func headerAuth(c *gin.Context) (*domain.User, error) {
	if c.GetHeader("X-Test-User") == "" {
		return nil, errors.New("not logged in")
	}
	return &domain.User{ID: 1, Username: c.GetHeader("X-Test-User")}, nil
}

func setupHub(t *testing.T, opts Options) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(opts, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws", HandleWebSocket(hub, headerAuth))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return hub, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sampleEvent() domain.Event {
	c := &domain.Correspondence{
		ID:              7,
		Subject:         "Budget request",
		ReferenceNumber: "ECS-20240101-ABCDEF12",
		Type:            domain.DirectionIncoming,
	}
	return domain.NewCorrespondenceEvent(domain.EventCorrespondenceAdded, c, "Registry", time.Now())
}

func TestHub_BroadcastsToLoggedInClients(t *testing.T) {
	hub, url := setupHub(t, Options{})

	header := http.Header{"X-Test-User": []string{"clerk"}}
	first := dial(t, url, header)
	second := dial(t, url, header)

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(sampleEvent())

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var event domain.Event
		require.NoError(t, conn.ReadJSON(&event))

		assert.Equal(t, domain.EventCorrespondenceAdded, event.Type)
		assert.Equal(t, uint(7), event.Data.ID)
		assert.Equal(t, "ECS-20240101-ABCDEF12", event.Data.ReferenceNumber)
		assert.Equal(t, "Registry", event.Data.Department)
	}
}

func TestHub_EventWireFormat(t *testing.T) {
	data, err := json.Marshal(sampleEvent())
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "correspondence_added", raw["type"])
	assert.Contains(t, raw, "timestamp")
	payload := raw["data"].(map[string]interface{})
	assert.Equal(t, "ECS-20240101-ABCDEF12", payload["reference_number"])
	assert.Equal(t, "incoming", payload["type"])
}

func TestHub_RejectsAnonymous(t *testing.T) {
	_, url := setupHub(t, Options{})

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	_, url := setupHub(t, Options{AllowedOrigins: []string{"https://office.example.com"}})

	header := http.Header{
		"X-Test-User": []string{"clerk"},
		"Origin":      []string{"https://evil.example.com"},
	}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://office.example.com")
	dial(t, url, header)
}

func TestHub_PingPong(t *testing.T) {
	hub, url := setupHub(t, Options{})
	conn := dial(t, url, http.Header{"X-Test-User": []string{"clerk"}})
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageTypePong, msg.Type)
}

func TestHub_UnregistersOnClose(t *testing.T) {
	hub, url := setupHub(t, Options{})
	conn := dial(t, url, http.Header{"X-Test-User": []string{"clerk"}})
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_RelaysThroughPool(t *testing.T) {
	relay := &fakeRelay{}
	workers := pool.NewWorkerPool(1, 8, nil)
	workers.Start(context.Background())
	t.Cleanup(workers.Stop)

	hub, _ := setupHub(t, Options{Relay: relay, Pool: workers})

	hub.Publish(sampleEvent())
	assert.Eventually(t, func() bool { return relay.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}
