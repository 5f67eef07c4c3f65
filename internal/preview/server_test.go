package preview

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestServerPublishesFrameToConnectedClient(t *testing.T) {
	s := New("127.0.0.1:18281", "test-session")
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())
	time.Sleep(20 * time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:18281/preview", nil)
	require.NoError(t, err)
	defer conn.Close()

	// Drain the initial "no frame yet" case: nothing is sent until the
	// first Publish, so read only after publishing.
	s.Publish([]byte{0xFF, 0xD8, 0xFF})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, []byte{0xFF, 0xD8, 0xFF}, data)
}

func TestServerSendsLastFrameOnConnect(t *testing.T) {
	s := New("127.0.0.1:18282", "test-session")
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())
	time.Sleep(20 * time.Millisecond)

	s.Publish([]byte{1, 2, 3})

	conn, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:18282/preview", nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, data)
}

func TestServerDropsFrameForSlowClientRatherThanBlocking(t *testing.T) {
	s := New("127.0.0.1:18283", "test-session")
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())
	time.Sleep(20 * time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:18283/preview", nil)
	require.NoError(t, err)
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			s.Publish([]byte{byte(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow client")
	}
}

func TestServerRejectsNonWebSocketRequests(t *testing.T) {
	s := New("127.0.0.1:18284", "test-session")
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())
	time.Sleep(20 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:18284/preview")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NotEqual(t, http.StatusOK, resp.StatusCode)
}
