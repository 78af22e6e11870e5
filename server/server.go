package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"naobridge/proto"
	"naobridge/robot"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // controller clients connect from anywhere on the LAN
	},
}

// Server accepts websocket clients and runs one read/dispatch/write loop per
// connection. Each connection gets its own robot session built from
// NewBackend, so disconnecting a client always releases that client's
// backend link. With the simulated backend this serves any number of
// clients; against a single physical robot run it with MaxClients(1).
type Server struct {
	Addr string

	newBackend func() robot.Backend
	httpServer *http.Server

	withJointsData bool
	withAudioData  bool
	maxClients     int

	cmu     sync.RWMutex
	clients map[string]*wsClient
}

func New(addr string, newBackend func() robot.Backend) *Server {
	return &Server{
		Addr:       addr,
		newBackend: newBackend,
		maxClients: 16,
		clients:    make(map[string]*wsClient),
	}
}

// SetMaxClients caps concurrent websocket clients.
func (s *Server) SetMaxClients(n int) {
	s.maxClients = n
}

// SetStreamDefaults enables joints and/or audio forwarding for every new
// connection without requiring StartJointsData / StartAudioData commands.
func (s *Server) SetStreamDefaults(withJoints, withAudio bool) {
	s.withJointsData = withJoints
	s.withAudioData = withAudio
}

// Routes returns the HTTP routes: the websocket endpoint plus two small
// status endpoints for probes and dashboards.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", s.handleWebSocket)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/state", s.handleState)
	return r
}

func (s *Server) Start() error {
	slog.Info("Starting robot bridge server", "addr", s.Addr)

	s.httpServer = &http.Server{
		Addr:    s.Addr,
		Handler: s.Routes(),
	}

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown() error {
	slog.Info("Shutting down robot bridge server", "addr", s.Addr)
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.cmu.RLock()
	clientCount := len(s.clients)
	s.cmu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"addr":       s.Addr,
		"clients":    clientCount,
		"maxClients": s.maxClients,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.cmu.RLock()
	clientCount := len(s.clients)
	s.cmu.RUnlock()

	if clientCount >= s.maxClients {
		slog.Warn("Max clients reached, rejecting connection", "remote_addr", r.RemoteAddr)
		http.Error(w, "too many clients", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection", "error", err)
		return
	}

	go s.handleConnection(conn, r.RemoteAddr)
}

func (s *Server) handleConnection(conn *websocket.Conn, remoteAddr string) {
	slog.Info("Client connected", "addr", remoteAddr)

	client := newWSClient(conn)
	session := robot.NewSession(s.newBackend())
	dispatcher := NewDispatcher(session, client.Send)

	s.cmu.Lock()
	s.clients[client.id] = client
	s.cmu.Unlock()

	defer func() {
		dispatcher.Close()
		s.resetAfterInteraction(session)
		if err := session.Close(); err != nil {
			slog.Warn("Error closing session", "error", err)
		}

		s.cmu.Lock()
		delete(s.clients, client.id)
		s.cmu.Unlock()

		client.close()
		slog.Info("Client disconnected", "addr", remoteAddr, "id", client.id)
	}()

	connected := s.attachSession(session, dispatcher)

	stateFrame, err := proto.NewFrame(proto.FrameRobotState, proto.RobotStatePayload{
		Connected: connected,
		Simulated: session.Simulated(),
	})
	if err == nil {
		if err := client.Send(stateFrame); err != nil {
			slog.Warn("Failed to send robot state", "error", err)
			return
		}
	}
	if connected {
		dispatcher.logToClient("INFO", "robot session established")
	}

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket connection error", "addr", remoteAddr, "error", err)
			}
			break
		}

		var frame proto.Frame
		if err := json.Unmarshal(messageBytes, &frame); err != nil {
			slog.Warn("Invalid JSON frame received", "error", err, "data", string(messageBytes))
			continue
		}

		switch frame.ID {
		case proto.FrameCommand:
			var cmd proto.Command
			if err := json.Unmarshal(frame.Data, &cmd); err != nil {
				slog.Warn("Invalid command frame", "error", err)
				continue
			}
			// Commands from one connection run in arrival order.
			dispatcher.Dispatch(cmd)
		default:
			slog.Warn("Unknown frame id", "id", frame.ID)
		}
	}
}

// attachSession connects the robot and brings it into interaction state:
// touch forwarding on, optional joints/audio forwarding, eyes and breathing
// set. Action failures here are logged, not fatal; a connect failure leaves
// the session gated and every command will answer NotConnected.
func (s *Server) attachSession(session *robot.Session, dispatcher *Dispatcher) bool {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := session.Connect(ctx); err != nil {
		slog.Error("Failed to connect to robot", "error", err)
		return false
	}

	if err := dispatcher.SubscribeTouch(); err != nil {
		slog.Warn("Failed to subscribe to touch events", "error", err)
	}
	if s.withJointsData {
		if err := dispatcher.SubscribeJoints(); err != nil {
			slog.Warn("Failed to subscribe to joints data", "error", err)
		}
	}
	if s.withAudioData {
		if err := dispatcher.SubscribeAudio(); err != nil {
			slog.Warn("Failed to subscribe to audio data", "error", err)
		}
	}

	s.initForInteraction(ctx, session)
	return true
}

// initForInteraction puts the robot into its ready stance.
func (s *Server) initForInteraction(ctx context.Context, session *robot.Session) {
	if err := session.ChangeEyesColor(ctx, "cyan"); err != nil {
		slog.Warn("Failed to set eyes color", "error", err)
	}
	if err := session.WakeUp(ctx); err != nil {
		slog.Warn("Failed to wake up robot", "error", err)
	}
	if err := session.SetBreathingEnabled(ctx, true, "Body"); err != nil {
		slog.Warn("Failed to enable breathing", "error", err)
	}
}

// resetAfterInteraction returns the robot to its idle stance.
func (s *Server) resetAfterInteraction(session *robot.Session) {
	if session.State() != robot.StateConnected {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := session.ChangeEyesColor(ctx, "white"); err != nil {
		slog.Warn("Failed to reset eyes color", "error", err)
	}
	if err := session.SetBreathingEnabled(ctx, false, "Body"); err != nil {
		slog.Warn("Failed to disable breathing", "error", err)
	}
	if err := session.Rest(ctx); err != nil {
		slog.Warn("Failed to rest robot", "error", err)
	}
}
