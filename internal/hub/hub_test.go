package hub

import (
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConn struct {
	id   string
	conn *websocket.Conn
}

func dialObserver(t *testing.T, h *Hub, srv *httptest.Server, joined chan string) *testConn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	select {
	case id := <-joined:
		return &testConn{id: id, conn: conn}
	case <-time.After(2 * time.Second):
		t.Fatal("observer never joined")
		return nil
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func TestBroadcastReachesEveryObserver(t *testing.T) {
	h := NewHub(log.New(io.Discard, "", 0))
	joined := make(chan string, 4)
	h.OnJoin = func(id string) { joined <- id }

	srv := httptest.NewServer(h)
	defer srv.Close()

	first := dialObserver(t, h, srv, joined)
	second := dialObserver(t, h, srv, joined)
	assert.NotEqual(t, first.id, second.id)

	h.Broadcast("session_status", "lap1---100")

	for _, tc := range []*testConn{first, second} {
		env := readEnvelope(t, tc.conn)
		assert.Equal(t, "session_status", env.Event)
		assert.Equal(t, "lap1---100", env.Data)
	}
}

func TestSendToTargetsOneObserver(t *testing.T) {
	h := NewHub(log.New(io.Discard, "", 0))
	joined := make(chan string, 4)
	h.OnJoin = func(id string) { joined <- id }

	srv := httptest.NewServer(h)
	defer srv.Close()

	first := dialObserver(t, h, srv, joined)
	second := dialObserver(t, h, srv, joined)

	h.SendTo(first.id, "error", "no session is running")
	h.Broadcast("presence", []string{"rpi-7"})

	env := readEnvelope(t, first.conn)
	assert.Equal(t, "error", env.Event)

	// The second observer sees only the broadcast.
	env = readEnvelope(t, second.conn)
	assert.Equal(t, "presence", env.Event)
}

func TestRequestsAreForwarded(t *testing.T) {
	h := NewHub(log.New(io.Discard, "", 0))
	joined := make(chan string, 1)
	h.OnJoin = func(id string) { joined <- id }
	requests := make(chan Request, 1)
	h.OnRequest = func(_ string, req Request) { requests <- req }

	srv := httptest.NewServer(h)
	defer srv.Close()

	tc := dialObserver(t, h, srv, joined)
	require.NoError(t, tc.conn.WriteJSON(Request{Action: ActionStartTest, Name: "lap1"}))

	select {
	case req := <-requests:
		assert.Equal(t, ActionStartTest, req.Action)
		assert.Equal(t, "lap1", req.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("request never forwarded")
	}
}

func TestDisconnectUnregistersObserver(t *testing.T) {
	h := NewHub(log.New(io.Discard, "", 0))
	joined := make(chan string, 1)
	left := make(chan string, 1)
	h.OnJoin = func(id string) { joined <- id }
	h.OnLeave = func(id string) { left <- id }

	srv := httptest.NewServer(h)
	defer srv.Close()

	tc := dialObserver(t, h, srv, joined)
	require.NoError(t, tc.conn.Close())

	select {
	case id := <-left:
		assert.Equal(t, tc.id, id)
	case <-time.After(2 * time.Second):
		t.Fatal("observer never left")
	}

	// Sending to a gone observer is a harmless no-op.
	h.SendTo(tc.id, "presence", []string{})
}
