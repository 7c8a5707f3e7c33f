package push

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
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, user string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?user="+user, nil)
	require.NoError(t, err)
	return conn
}

func TestPublishReachesEverySessionOfUser(t *testing.T) {
	hub, url := startHub(t)
	a := dial(t, url, "u1")
	defer a.Close()
	b := dial(t, url, "u1")
	defer b.Close()
	other := dial(t, url, "u2")
	defer other.Close()

	require.Eventually(t, func() bool { return hub.Sessions("u1") == 2 && hub.Sessions("u2") == 1 },
		time.Second, 10*time.Millisecond)

	hub.Publish(context.Background(), "u1", "order.status_changed", map[string]string{"orderId": "o1"})

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var env struct {
			Type    string            `json:"type"`
			Payload map[string]string `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(data, &env))
		assert.Equal(t, "order.status_changed", env.Type)
		assert.Equal(t, "o1", env.Payload["orderId"])
	}

	other.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "other users receive nothing")
}

func TestSessionRemovedOnDisconnect(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url, "u1")
	require.Eventually(t, func() bool { return hub.Sessions("u1") == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Sessions("u1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestPublishWithoutSessionsIsNoop(t *testing.T) {
	hub := NewHub()
	assert.NotPanics(t, func() {
		hub.Publish(context.Background(), "nobody", "order.placed", nil)
	})
}
