// Package server accepts control clients over websocket and feeds their
// requests to the gateway core.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"webdmx/internal/dmx"
	"webdmx/internal/gateway"
	"webdmx/internal/logger"
	"webdmx/internal/session"
)

const shutdownTimeout = 5 * time.Second

var (
	// ErrDecode marks a client message that could not be understood.
	ErrDecode = errors.New("server: malformed request")
	// ErrNoPreset is reported when a client loads a preset that does not exist.
	ErrNoPreset = errors.New("server: preset not found")
)

// Core is the part of the gateway the server drives.
type Core interface {
	Join(ctx context.Context, s session.Session) error
	Leave(s session.Session)
	Change(ctx context.Context, origin string, values []int, master int) error
	Save(ctx context.Context, origin session.Session, name string) (bool, error)
	Presets(ctx context.Context, origin session.Session) error
	Load(ctx context.Context, name string, mode dmx.Mode) (bool, error)
	Fade(ctx context.Context, target []int, stages int) error
}

// Status is reported by /healthz.
type Status struct {
	Sessions      int   `json:"sessions"`
	FaderRestarts int64 `json:"fader_restarts"`
	FaderDropped  int64 `json:"fader_dropped"`
}

// Options configures the listener and per-session behaviour.
type Options struct {
	Listen       string
	PingInterval time.Duration
	PongTimeout  time.Duration
	SendBuffer   int
	Status       func() Status
}

// Server serves /ws and /healthz.
type Server struct {
	log  logger.Logger
	core Core
	opts Options
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// the control UI is served from another origin
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// New конструктор.
func New(log logger.Logger, core Core, opts Options) *Server {
	return &Server{log: log, core: core, opts: opts}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Run listens until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errC := make(chan error, 1)
	go func() {
		s.log.With(logger.Fields{"module": "server"}).Infof("websocket: waiting clients on %s", s.opts.Listen)
		errC <- srv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		return fmt.Errorf("websocket server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	var st Status
	if s.opts.Status != nil {
		st = s.opts.Status()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		s.log.With(logger.Fields{"module": "server"}).Errorf("healthz: %v", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.With(logger.Fields{"module": "server"}).Errorf("websocket upgrade failed: %v", err)
		return
	}

	conn := session.NewConn(ws, s.opts.SendBuffer, s.opts.PingInterval, s.opts.PongTimeout)
	go conn.WritePump()
	s.serve(r.Context(), conn)
}

// serve runs one session until the client goes away or ctx ends. The
// session is always removed on exit.
func (s *Server) serve(ctx context.Context, conn *session.Conn) {
	log := s.log.With(logger.Fields{"module": "server", "session": conn.ID()})
	log.Info("websocket: client connected")

	defer func() {
		s.core.Leave(conn)
		conn.Close()
		log.Info("websocket: discarding client")
	}()

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-conn.Done():
		}
	}()

	conn.KeepAlive(s.opts.PongTimeout)

	if err := s.core.Join(ctx, conn); err != nil {
		log.Errorf("initial state not sent: %v", err)
		return
	}

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("websocket: connection closed with error: %v", err)
			} else {
				log.Debugf("websocket: connection closed: %v", err)
			}
			return
		}
		if err := s.handle(ctx, conn, data); err != nil {
			log.Warn(err)
		}
	}
}

// request is the client envelope. Value is a vector or a preset name
// depending on Type.
type request struct {
	Type   *string         `json:"type"`
	Value  json.RawMessage `json:"value"`
	Master *int            `json:"master"`
	Stages int             `json:"stages"`
}

// handle processes one client message. Returned errors are per-message and
// never end the session.
func (s *Server) handle(ctx context.Context, conn *session.Conn, data []byte) error {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if req.Type == nil {
		return fmt.Errorf("%w: missing type", ErrDecode)
	}

	s.log.With(logger.Fields{"module": "server", "session": conn.ID()}).Debugf("message received: %s", *req.Type)

	switch t := *req.Type; t {
	case gateway.TypeChange:
		var values []int
		if err := json.Unmarshal(req.Value, &values); err != nil {
			return fmt.Errorf("%w: change value: %v", ErrDecode, err)
		}
		if req.Master == nil {
			return fmt.Errorf("%w: change without master", ErrDecode)
		}
		return s.core.Change(ctx, conn.ID(), values, *req.Master)

	case gateway.TypeSave:
		name, err := presetName(req.Value)
		if err != nil {
			return err
		}
		_, err = s.core.Save(ctx, conn, name)
		return err

	case gateway.TypePresets:
		return s.core.Presets(ctx, conn)

	case string(dmx.ModeLoad), string(dmx.ModeAdd), string(dmx.ModeSub), string(dmx.ModeReplace):
		name, err := presetName(req.Value)
		if err != nil {
			return err
		}
		found, err := s.core.Load(ctx, name, dmx.Mode(t))
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %q", ErrNoPreset, name)
		}
		return nil

	case gateway.TypeFade:
		var target []int
		if err := json.Unmarshal(req.Value, &target); err != nil {
			return fmt.Errorf("%w: fade value: %v", ErrDecode, err)
		}
		return s.core.Fade(ctx, target, req.Stages)

	default:
		return fmt.Errorf("unknown request received: %s", t)
	}
}

func presetName(raw json.RawMessage) (string, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil || name == "" {
		return "", fmt.Errorf("%w: preset name expected", ErrDecode)
	}
	return name, nil
}
