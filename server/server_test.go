package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluidsim/config"
	"fluidsim/core"
	"fluidsim/simulation"
)

type fakeController struct {
	mu       sync.Mutex
	splats   []core.SplatEvent
	sources  []string
	paused   []bool
	captures int
	full     bool
	stats    simulation.FrameStats
}

func (f *fakeController) QueueSplat(source string, ev core.SplatEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.sources = append(f.sources, source)
	f.splats = append(f.splats, ev)
	return true
}

func (f *fakeController) SetPaused(paused bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = append(f.paused, paused)
	return nil
}

func (f *fakeController) RequestCapture() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures++
}

func (f *fakeController) Stats() simulation.FrameStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func newTestServer(t *testing.T, interval time.Duration) (*Server, *fakeController, *config.Store, *httptest.Server) {
	t.Helper()
	store := config.NewStore(config.DefaultSimulation())
	ctl := &fakeController{stats: simulation.FrameStats{Frame: 42, FPS: 60}}
	s := New(nil, store, ctl, interval)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ctl, store, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readReply(t *testing.T, conn *websocket.Conn) Reply {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var r Reply
	require.NoError(t, json.Unmarshal(data, &r))
	return r
}

func TestHello(t *testing.T) {
	_, _, _, ts := newTestServer(t, time.Hour)
	conn := dial(t, ts)

	r := readReply(t, conn)
	assert.Equal(t, "hello", r.Type)
	assert.NotEmpty(t, r.Client)
	require.NotNil(t, r.Config)
	assert.Equal(t, config.DefaultSimulation().SimResolution, r.Config.SimResolution)
}

func TestConfigPatch(t *testing.T) {
	_, _, store, ts := newTestServer(t, time.Hour)
	conn := dial(t, ts)
	readReply(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"config":{"curl":12,"shading":false}}`)))
	r := readReply(t, conn)
	assert.Equal(t, "ack", r.Type)
	assert.Equal(t, float32(12), store.Load().Curl)
	assert.False(t, store.Load().Shading)
	assert.Equal(t, config.DefaultSimulation().PressureIterations, store.Load().PressureIterations)
}

func TestInvalidConfigPatchRejected(t *testing.T) {
	_, _, store, ts := newTestServer(t, time.Hour)
	conn := dial(t, ts)
	readReply(t, conn)
	before := *store.Load()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"config":{"curl":12,"simResolution":0}}`)))
	r := readReply(t, conn)
	assert.Equal(t, "error", r.Type)
	assert.NotEmpty(t, r.Error)
	assert.Equal(t, before, *store.Load())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	assert.Equal(t, "error", readReply(t, conn).Type)
}

func TestSplatPauseCapture(t *testing.T) {
	_, ctl, _, ts := newTestServer(t, time.Hour)
	conn := dial(t, ts)
	readReply(t, conn)

	msg := `{"splat":{"x":0.25,"y":0.75,"dx":10,"dy":-5,"color":[1,0,0]},"paused":true,"capture":true}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
	assert.Equal(t, "ack", readReply(t, conn).Type)

	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	require.Len(t, ctl.splats, 1)
	ev := ctl.splats[0]
	assert.Equal(t, simulation.SourceRemote, ctl.sources[0])
	assert.Equal(t, float32(0.25), ev.X)
	assert.Equal(t, float32(0.75), ev.Y)
	assert.Equal(t, float32(10), ev.Force[0])
	assert.Equal(t, float32(-5), ev.Force[1])
	require.NotNil(t, ev.Color)
	assert.Equal(t, float32(1), ev.Color[0])
	assert.Equal(t, []bool{true}, ctl.paused)
	assert.Equal(t, 1, ctl.captures)
}

func TestSplatQueueFull(t *testing.T) {
	_, ctl, _, ts := newTestServer(t, time.Hour)
	ctl.mu.Lock()
	ctl.full = true
	ctl.mu.Unlock()
	conn := dial(t, ts)
	readReply(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"splat":{"x":0.5,"y":0.5}}`)))
	r := readReply(t, conn)
	assert.Equal(t, "error", r.Type)
	assert.Contains(t, r.Error, "queue full")
}

func TestStatsBroadcast(t *testing.T) {
	s, _, _, ts := newTestServer(t, 10*time.Millisecond)
	conn := dial(t, ts)
	readReply(t, conn)

	assert.Eventually(t, func() bool {
		s.clientsMu.RLock()
		defer s.clientsMu.RUnlock()
		return len(s.clients) == 1
	}, time.Second, 5*time.Millisecond)

	s.broadcastStats()
	r := readReply(t, conn)
	assert.Equal(t, "stats", r.Type)
	require.NotNil(t, r.Stats)
	assert.Equal(t, uint64(42), r.Stats.Frame)
}

func TestConfigEndpoint(t *testing.T) {
	_, _, _, ts := newTestServer(t, time.Hour)

	resp, err := http.Get(ts.URL + "/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var cfg config.SimulationConfig
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &cfg))
	assert.Equal(t, config.DefaultSimulation(), cfg)

	resp2, err := http.Post(ts.URL+"/config", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	_, _, _, ts := newTestServer(t, time.Hour)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "fluidsim_")
}
