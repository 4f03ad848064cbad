package notifier

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSSession_DeliversHintAndLeavesOnDisconnect(t *testing.T) {
	h := newHub()
	upgrader := websocket.Upgrader{}
	left := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s := NewWSSession(conn, WithPingInterval(time.Second), WithWriteTimeout(time.Second))
		if err := h.Join(s); err != nil {
			return
		}
		go s.Run(func() {
			h.Leave(s.ID())
			close(left)
		})
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, h.Broadcast(t.Context()))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Equal(t, "newData", string(msg))

	require.NoError(t, conn.Close())
	select {
	case <-left:
	case <-time.After(3 * time.Second):
		t.Fatal("session was not removed after disconnect")
	}
	assert.Equal(t, 0, h.Count())
}

func TestWSSession_FullBufferReportsFailure(t *testing.T) {
	s := &WSSession{send: make(chan []byte, 1), done: make(chan struct{})}
	assert.True(t, s.Send([]byte("newData")))
	assert.False(t, s.Send([]byte("newData")))
}
