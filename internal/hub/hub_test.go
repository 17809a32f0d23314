package hub

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThomasChan/Farm-Land/internal/logger"
)

type fakeSource struct {
	mu     sync.Mutex
	replay [][]byte
	events [][]byte
}

func (s *fakeSource) Replay() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replay
}

func (s *fakeSource) Dispatch(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, msg)
	return nil
}

func (s *fakeSource) received() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func setupHub(t *testing.T, source *fakeSource, opts Options) (*Hub, string) {
	t.Helper()
	h := New(opts, logger.Nop())
	h.SetSource(source)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.Serve(w, r)
	}))
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})

	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Count() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestServe_ReplaysSceneThenBroadcasts(t *testing.T) {
	source := &fakeSource{replay: [][]byte{[]byte(`{"op":"init"}`), []byte(`{"op":"draw"}`)}}
	h, url := setupHub(t, source, Options{})

	conn := dial(t, url, nil)
	waitForClients(t, h, 1)

	assert.Equal(t, `{"op":"init"}`, readText(t, conn))
	assert.Equal(t, `{"op":"draw"}`, readText(t, conn))

	h.Broadcast([]byte(`{"op":"clear"}`))
	assert.Equal(t, `{"op":"clear"}`, readText(t, conn))
}

func TestServe_ReplaysSceneLargerThanSendBuffer(t *testing.T) {
	total := sendBuffer + 150
	replay := make([][]byte, total)
	for i := range replay {
		replay[i] = []byte(fmt.Sprintf(`{"op":"draw","overlay":"ov-%d"}`, i))
	}
	h, url := setupHub(t, &fakeSource{replay: replay}, Options{})

	conn := dial(t, url, nil)
	waitForClients(t, h, 1)

	for i := 0; i < total; i++ {
		require.Equal(t, string(replay[i]), readText(t, conn), "command %d", i)
	}

	// Live commands still follow the replay
	h.Broadcast([]byte(`{"op":"clear"}`))
	assert.Equal(t, `{"op":"clear"}`, readText(t, conn))
}

func TestBroadcast_ReachesEveryTab(t *testing.T) {
	h, url := setupHub(t, &fakeSource{}, Options{})

	first := dial(t, url, nil)
	second := dial(t, url, nil)
	waitForClients(t, h, 2)

	h.Broadcast([]byte(`{"op":"center"}`))

	assert.Equal(t, `{"op":"center"}`, readText(t, first))
	assert.Equal(t, `{"op":"center"}`, readText(t, second))
}

func TestServe_ForwardsEvents(t *testing.T) {
	source := &fakeSource{}
	h, url := setupHub(t, source, Options{})

	conn := dial(t, url, nil)
	waitForClients(t, h, 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"click","overlay":"ov-1"}`)))

	require.Eventually(t, func() bool { return source.received() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestServe_DisconnectUnregisters(t *testing.T) {
	h, url := setupHub(t, &fakeSource{}, Options{})

	conn := dial(t, url, nil)
	waitForClients(t, h, 1)

	conn.Close()
	waitForClients(t, h, 0)
}

func TestServe_RejectsForeignOrigin(t *testing.T) {
	_, url := setupHub(t, &fakeSource{}, Options{AllowedOrigins: []string{"http://localhost:3000"}})

	header := http.Header{"Origin": []string{"http://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"http://localhost:3000"}}
	dial(t, url, header)
}

func TestClose_DisconnectsTabs(t *testing.T) {
	h, url := setupHub(t, &fakeSource{}, Options{})

	conn := dial(t, url, nil)
	waitForClients(t, h, 1)

	h.Close()
	assert.Equal(t, 0, h.Count())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "expected a normal close, got %v", err)

	_, _, err = websocket.DefaultDialer.Dial(url, nil)
	assert.Error(t, err)
}
