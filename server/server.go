// Package server exposes a local control surface for a running simulation:
// a websocket for live tuning and splats, the Prometheus metrics and the
// current configuration snapshot.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fluidsim/config"
	"fluidsim/core"
	"fluidsim/metrics"
	"fluidsim/simulation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Controller is the part of the frame driver the control surface drives.
type Controller interface {
	QueueSplat(source string, ev core.SplatEvent) bool
	SetPaused(paused bool) error
	RequestCapture()
	Stats() simulation.FrameStats
}

// Message is one command from a client. Any combination of fields may be
// present; they are applied in field order.
type Message struct {
	Config  jsoniter.RawMessage `json:"config,omitempty"`
	Splat   *SplatMessage       `json:"splat,omitempty"`
	Paused  *bool               `json:"paused,omitempty"`
	Capture bool                `json:"capture,omitempty"`
}

// SplatMessage places a splat in normalized coordinates, origin bottom left.
// A zero force makes a radial burst; zero volume or radius are picked by the
// driver.
type SplatMessage struct {
	X      float32     `json:"x"`
	Y      float32     `json:"y"`
	DX     float32     `json:"dx"`
	DY     float32     `json:"dy"`
	Volume float32     `json:"volume"`
	Radius float32     `json:"radius"`
	Color  *[3]float32 `json:"color,omitempty"`
}

// Event converts the message into a queued splat.
func (m SplatMessage) Event() core.SplatEvent {
	ev := core.SplatEvent{
		X:      m.X,
		Y:      m.Y,
		Force:  mgl32.Vec2{m.DX, m.DY},
		Volume: m.Volume,
		Radius: m.Radius,
	}
	if m.Color != nil {
		c := mgl32.Vec3(*m.Color)
		ev.Color = &c
	}
	return ev
}

// Reply is pushed to clients.
type Reply struct {
	Type   string                   `json:"type"`
	Client string                   `json:"client,omitempty"`
	Error  string                   `json:"error,omitempty"`
	Config *config.SimulationConfig `json:"config,omitempty"`
	Stats  *simulation.FrameStats   `json:"stats,omitempty"`
}

type client struct {
	id string
	mu sync.Mutex
}

type Server struct {
	log      *zap.Logger
	store    *config.Store
	ctl      Controller
	upgrader websocket.Upgrader
	interval time.Duration

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*client
}

// New creates a server. interval is the stats push period.
func New(log *zap.Logger, store *config.Store, ctl Controller, interval time.Duration) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Server{
		log:   log.Named("server"),
		store: store,
		ctl:   ctl,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local control panel
			},
		},
		interval: interval,
		clients:  make(map[*websocket.Conn]*client),
	}
}

// Handler routes /ws, /metrics and /config.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/config", s.handleConfig)
	return mux
}

// Run serves on addr and pushes stats until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("control server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.broadcastLoop(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.closeClients()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data, err := json.Marshal(s.store.Load())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	c := &client{id: uuid.NewString()}
	s.clientsMu.Lock()
	s.clients[conn] = c
	s.clientsMu.Unlock()
	metrics.Clients.Inc()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
		metrics.Clients.Dec()
	}()

	log := s.log.With(zap.String("client", c.id))
	log.Info("control client connected", zap.String("remote", r.RemoteAddr))

	s.send(conn, c, Reply{Type: "hello", Client: c.id, Config: s.store.Load()})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn("bad control message", zap.Error(err))
			s.send(conn, c, Reply{Type: "error", Error: err.Error()})
			continue
		}
		if err := s.apply(msg); err != nil {
			log.Warn("control message rejected", zap.Error(err))
			s.send(conn, c, Reply{Type: "error", Error: err.Error()})
			continue
		}
		s.send(conn, c, Reply{Type: "ack", Config: s.store.Load()})
	}
}

// apply executes one message. A config patch is applied atomically: an
// invalid value leaves the live snapshot untouched.
func (s *Server) apply(msg Message) error {
	if len(msg.Config) > 0 {
		err := s.store.Update(func(c *config.SimulationConfig) error {
			return json.Unmarshal(msg.Config, c)
		})
		if err != nil {
			return err
		}
	}
	if msg.Splat != nil {
		if !s.ctl.QueueSplat(simulation.SourceRemote, msg.Splat.Event()) {
			return errors.New("splat queue full")
		}
	}
	if msg.Paused != nil {
		if err := s.ctl.SetPaused(*msg.Paused); err != nil {
			return err
		}
	}
	if msg.Capture {
		s.ctl.RequestCapture()
	}
	return nil
}

func (s *Server) send(conn *websocket.Conn, c *client, r Reply) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcastStats()
		}
	}
}

func (s *Server) broadcastStats() {
	stats := s.ctl.Stats()
	reply := Reply{Type: "stats", Stats: &stats}

	s.clientsMu.RLock()
	var failed []*websocket.Conn
	for conn, c := range s.clients {
		if err := s.send(conn, c, reply); err != nil {
			s.log.Warn("websocket write error", zap.String("client", c.id), zap.Error(err))
			conn.Close()
			failed = append(failed, conn)
		}
	}
	s.clientsMu.RUnlock()

	if len(failed) > 0 {
		s.clientsMu.Lock()
		for _, conn := range failed {
			delete(s.clients, conn)
		}
		s.clientsMu.Unlock()
	}
}

func (s *Server) closeClients() {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for conn := range s.clients {
		conn.Close()
	}
}
