package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"matrixhub/internal/models"
)

// wsPair spins up a throwaway websocket server and returns both ends of
// one upgraded connection.
func wsPair(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()

	upgraded := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		upgraded <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	select {
	case serverConn := <-upgraded:
		t.Cleanup(func() { serverConn.Close() })
		return serverConn, clientConn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for upgrade")
		return nil, nil
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) models.StateMessage {
	t.Helper()
	var msg models.StateMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestRegisterSendsSnapshotOnce(t *testing.T) {
	h := NewHub(zap.NewNop())
	h.SetSnapshot(func() interface{} {
		return models.NewStateMessage(models.StateDocument{Mode: 1, Brightness: 42, Rotation: 90})
	})

	serverConn, clientConn := wsPair(t)
	c := NewClient(h, serverConn)
	h.Register(c)

	msg := readMessage(t, clientConn)
	assert.Equal(t, models.MessageTypeState, msg.Type)
	assert.Equal(t, 1, msg.Mode)
	assert.Equal(t, 42, msg.Brightness)
	assert.Equal(t, 90, msg.Rotation)

	// Registering twice is idempotent: no second snapshot, membership
	// unchanged.
	h.Register(c)
	assert.Equal(t, 1, h.Len())

	clientConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var extra models.StateMessage
	assert.Error(t, clientConn.ReadJSON(&extra), "no duplicate snapshot expected")
}

func TestLateConnectorGetsCurrentDocumentOnly(t *testing.T) {
	h := NewHub(zap.NewNop())

	doc := models.StateDocument{Mode: 0, Brightness: 60, Rotation: 0}
	h.SetSnapshot(func() interface{} { return models.NewStateMessage(doc) })

	// Several broadcasts happen before anyone connects.
	for i := 1; i <= 5; i++ {
		doc.Mode = i
		h.Broadcast(models.NewStateMessage(doc))
	}

	serverConn, clientConn := wsPair(t)
	c := NewClient(h, serverConn)
	h.Register(c)

	msg := readMessage(t, clientConn)
	assert.Equal(t, 5, msg.Mode, "snapshot reflects the current document, not history")

	clientConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var extra models.StateMessage
	assert.Error(t, clientConn.ReadJSON(&extra), "exactly one synchronization message expected")
}

func TestBroadcastFIFOPerConnection(t *testing.T) {
	h := NewHub(zap.NewNop())

	serverConn, clientConn := wsPair(t)
	c := NewClient(h, serverConn)
	h.Register(c)

	for i := 1; i <= 10; i++ {
		h.Broadcast(models.NewStateMessage(models.StateDocument{Mode: i, Brightness: 60}))
	}

	for i := 1; i <= 10; i++ {
		msg := readMessage(t, clientConn)
		assert.Equal(t, i, msg.Mode, "messages must arrive in broadcast order")
	}
}

func TestBroadcastPrunesDeadClient(t *testing.T) {
	h := NewHub(zap.NewNop())

	healthyServer, healthyClient := wsPair(t)
	deadServer, _ := wsPair(t)

	healthy := NewClient(h, healthyServer)
	dead := NewClient(h, deadServer)
	h.Register(healthy)
	h.Register(dead)
	assert.Equal(t, 2, h.Len())

	// Kill the second client's queue without unregistering it.
	dead.close()

	h.Broadcast(models.NewStateMessage(models.StateDocument{Mode: 7, Brightness: 60}))

	msg := readMessage(t, healthyClient)
	assert.Equal(t, 7, msg.Mode, "healthy client still receives the broadcast")
	assert.Equal(t, 1, h.Len(), "dead client pruned during the pass")
}

func TestUnregisterIdempotent(t *testing.T) {
	h := NewHub(zap.NewNop())

	serverConn, _ := wsPair(t)
	c := NewClient(h, serverConn)
	h.Register(c)
	assert.Equal(t, 1, h.Len())

	h.Unregister(c)
	h.Unregister(c)
	assert.Equal(t, 0, h.Len())
}

func TestPeerDisconnectDropsMembership(t *testing.T) {
	h := NewHub(zap.NewNop())

	serverConn, clientConn := wsPair(t)
	c := NewClient(h, serverConn)
	h.Register(c)

	done := make(chan struct{})
	go func() {
		c.ReadLoop()
		close(done)
	}()

	clientConn.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not exit after peer disconnect")
	}
	assert.Equal(t, 0, h.Len())
}

func TestShutdownClosesEverything(t *testing.T) {
	h := NewHub(zap.NewNop())

	s1, _ := wsPair(t)
	s2, _ := wsPair(t)
	h.Register(NewClient(h, s1))
	h.Register(NewClient(h, s2))
	assert.Equal(t, 2, h.Len())

	h.Shutdown()
	assert.Equal(t, 0, h.Len())
}
