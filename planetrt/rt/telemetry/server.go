package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gekko3d/planets"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
)

const (
	viewerBuffer = 4
	writeTimeout = 2 * time.Second
)

type viewer struct {
	conn *websocket.Conn
	send chan []byte
}

// Server serves /metrics and a /frames websocket feed of FrameStats.
type Server struct {
	logger   planets.Logger
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader

	mu      sync.Mutex
	viewers map[*viewer]struct{}

	httpServer *http.Server
	listener   net.Listener
}

func NewServer(gatherer prometheus.Gatherer, logger planets.Logger) *Server {
	return &Server{
		logger:   planets.LoggerOrNop(logger),
		gatherer: gatherer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		viewers: make(map[*viewer]struct{}),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/frames", s.handleFrames)
	return mux
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = l
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("telemetry server stopped: %v", err)
		}
	}()
	s.logger.Infof("telemetry listening on %s", l.Addr())
	return nil
}

func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("websocket upgrade: %v", err)
		return
	}
	v := &viewer{conn: conn, send: make(chan []byte, viewerBuffer)}

	s.mu.Lock()
	s.viewers[v] = struct{}{}
	s.mu.Unlock()
	s.logger.Debugf("viewer connected from %s", r.RemoteAddr)

	go v.writeLoop()

	// Viewers only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.mu.Lock()
	delete(s.viewers, v)
	close(v.send)
	s.mu.Unlock()
	conn.Close()
	s.logger.Debugf("viewer disconnected from %s", r.RemoteAddr)
}

func (v *viewer) writeLoop() {
	for msg := range v.send {
		v.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := v.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			v.conn.Close()
			for range v.send {
			}
			return
		}
	}
}

// Publish sends fs to every viewer without blocking. A viewer whose buffer
// is full misses the frame.
func (s *Server) Publish(fs FrameStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.viewers) == 0 {
		return
	}
	msg, err := json.Marshal(fs)
	if err != nil {
		s.logger.Errorf("encoding frame stats: %v", err)
		return
	}
	for v := range s.viewers {
		select {
		case v.send <- msg:
		default:
		}
	}
}

func (s *Server) Viewers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.viewers)
}

func (s *Server) Close(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.mu.Lock()
	for v := range s.viewers {
		v.conn.Close()
	}
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}
