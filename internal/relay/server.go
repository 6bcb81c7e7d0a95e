// Package relay exposes Claude Code queries over WebSocket and REST. Runs
// execute in the background; every connected client receives their
// messages as they arrive.
package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chemistrywow31/claudecode"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	sendBufSize   = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow localhost origins for dev.
	},
}

// Server manages WebSocket connections and routes messages between
// clients and the run registry.
type Server struct {
	runs      *Registry
	logger    *slog.Logger
	clients   map[*client]bool
	clientsMu sync.RWMutex

	// subscriptions tracks which run subscriptions exist per client.
	// key: client, value: map[runID]subscriptionID
	subscriptions   map[*client]map[string]string
	subscriptionsMu sync.Mutex
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	server    *Server
}

// New creates a relay server over runs.
func New(runs *Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		runs:          runs,
		logger:        logger,
		clients:       make(map[*client]bool),
		subscriptions: make(map[*client]map[string]string),
	}
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint.
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API endpoints.
	mux.HandleFunc("POST /runs", s.handleCreateRun)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /runs/{id}/messages", s.handleRunMessages)
	mux.HandleFunc("DELETE /runs/{id}", s.handleDeleteRun)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleWebSocket upgrades an HTTP connection to WebSocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBufSize),
		done:   make(chan struct{}),
		server: s,
	}

	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	s.subscriptionsMu.Lock()
	s.subscriptions[c] = make(map[string]string)
	s.subscriptionsMu.Unlock()

	s.logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	// Send current run list to new client.
	for _, run := range s.runs.List() {
		s.sendTo(c, TypeRunUpdate, RunUpdatePayload{Run: run})
	}

	// Subscribe the new client to runs that are still going so it
	// receives their remaining messages.
	for _, run := range s.runs.List() {
		if !run.Finished() {
			s.subscribeClient(c, run.ID)
		}
	}

	go c.writePump()
	go c.readPump()
}

// readPump reads messages from the WebSocket connection.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		c.server.handleMessage(c, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// enqueue hands data to the write pump. It drops data for a full buffer
// or a client that has gone away.
func (c *client) enqueue(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.server.logger.Warn("client send buffer full, dropping message")
	}
}

// removeClient cleans up a disconnected client.
func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()

	// Unsubscribe from all runs.
	s.subscriptionsMu.Lock()
	subs := s.subscriptions[c]
	delete(s.subscriptions, c)
	s.subscriptionsMu.Unlock()

	for runID, subID := range subs {
		s.runs.Unsubscribe(runID, subID)
	}

	c.closeOnce.Do(func() { close(c.done) })
	s.logger.Debug("websocket client disconnected")
}

// handleMessage processes a validated client message.
func (s *Server) handleMessage(c *client, raw []byte) {
	msg, err := ValidateClientMessage(raw)
	if err != nil {
		s.sendError(c, ErrCodeInvalidMessage, err.Error())
		return
	}

	switch msg.Type {
	case TypeQueryStart:
		var payload QueryStartPayload
		json.Unmarshal(msg.Payload, &payload)

		if _, err := s.startRun(payload); err != nil {
			code, _ := classifyStartError(err)
			s.sendError(c, code, err.Error())
		}

	case TypeQueryCancel:
		var payload QueryCancelPayload
		json.Unmarshal(msg.Payload, &payload)

		if err := s.runs.Cancel(payload.RunID); err != nil {
			s.sendError(c, ErrCodeRunNotFound, err.Error())
		}
	}
}

// startRun starts a query and subscribes every connected client to it.
func (s *Server) startRun(req QueryStartPayload) (Run, error) {
	var opts *claudecode.Options
	if req.Options != nil {
		o, err := claudecode.OptionsFromMap(req.Options)
		if err != nil {
			return Run{}, &optionsError{err}
		}
		opts = &o
	}

	run, err := s.runs.Start(req.Prompt, opts)
	if err != nil {
		if errors.Is(err, ErrMaxRuns) {
			return Run{}, err
		}
		return Run{}, &optionsError{err}
	}

	s.broadcast(TypeRunUpdate, RunUpdatePayload{Run: run})
	s.subscribeAllClients(run.ID)
	return run, nil
}

// optionsError marks a start failure caused by the request's options.
type optionsError struct{ err error }

func (e *optionsError) Error() string { return "invalid options: " + e.err.Error() }
func (e *optionsError) Unwrap() error { return e.err }

// classifyStartError maps a startRun error to a WebSocket error code and an
// HTTP status.
func classifyStartError(err error) (string, int) {
	var optErr *optionsError
	switch {
	case errors.Is(err, ErrMaxRuns):
		return ErrCodeMaxRuns, http.StatusTooManyRequests
	case errors.As(err, &optErr):
		return ErrCodeInvalidOptions, http.StatusBadRequest
	default:
		return ErrCodeInvalidMessage, http.StatusBadRequest
	}
}

// broadcast sends a message to all connected clients.
func (s *Server) broadcast(msgType string, payload any) {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		s.logger.Error("encoding broadcast", "type", msgType, "error", err)
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for c := range s.clients {
		c.enqueue(data)
	}
}

// subscribeAllClients subscribes all connected clients to a run.
func (s *Server) subscribeAllClients(runID string) {
	s.clientsMu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range clients {
		s.subscribeClient(c, runID)
	}
}

// pendingSubscription reserves a client's slot for a run while the
// registry subscription is being made.
const pendingSubscription = ""

// subscribeClient replays a run's history to a client and forwards its
// later events. A client is subscribed to a run at most once.
func (s *Server) subscribeClient(c *client, runID string) {
	s.subscriptionsMu.Lock()
	subs, connected := s.subscriptions[c]
	if !connected {
		s.subscriptionsMu.Unlock()
		return
	}
	if _, exists := subs[runID]; exists {
		s.subscriptionsMu.Unlock()
		return // Already subscribed or being subscribed.
	}
	subs[runID] = pendingSubscription
	s.subscriptionsMu.Unlock()

	subID, ch, history, err := s.runs.Subscribe(runID)

	s.subscriptionsMu.Lock()
	subs, connected = s.subscriptions[c]
	switch {
	case err != nil:
		if connected && subs[runID] == pendingSubscription {
			delete(subs, runID)
		}
		s.subscriptionsMu.Unlock()
		return
	case !connected:
		// The client went away while subscribing.
		s.subscriptionsMu.Unlock()
		s.runs.Unsubscribe(runID, subID)
		return
	}
	subs[runID] = subID
	s.subscriptionsMu.Unlock()

	finished := false
	for _, event := range history {
		finished = s.sendEvent(c, event) || finished
	}

	go func() {
		for event := range ch {
			finished = s.sendEvent(c, event) || finished
		}

		s.subscriptionsMu.Lock()
		if subs, connected := s.subscriptions[c]; connected && subs[runID] == subID {
			delete(subs, runID)
		}
		s.subscriptionsMu.Unlock()

		// The finish event can be lost to a full subscriber buffer.
		if !finished {
			if run, err := s.runs.Get(runID); err == nil && run.Finished() {
				s.sendEvent(c, RunEvent{RunID: runID, Type: EventFinished, Run: run})
			}
		}
	}()
}

// sendEvent forwards one run event. It reports whether the event was the
// run's finish.
func (s *Server) sendEvent(c *client, event RunEvent) bool {
	switch event.Type {
	case EventMessage:
		data, err := json.Marshal(event.Message)
		if err != nil {
			s.logger.Error("encoding message", "run", event.RunID, "error", err)
			return false
		}
		s.sendTo(c, TypeRunMessage, RunMessagePayload{RunID: event.RunID, Message: data})
		return false

	case EventFinished:
		s.sendTo(c, TypeRunUpdate, RunUpdatePayload{Run: event.Run})
		s.sendTo(c, TypeRunFinished, RunFinishedPayload{
			RunID:    event.RunID,
			State:    event.Run.State,
			Error:    event.Run.Error,
			ExitCode: event.Run.ExitCode,
		})
		return true
	}
	return false
}

func (s *Server) sendTo(c *client, msgType string, payload any) {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		s.logger.Error("encoding message", "type", msgType, "error", err)
		return
	}
	c.enqueue(data)
}

func (s *Server) sendError(c *client, code, message string) {
	msg, err := NewErrorEnvelope(code, message)
	if err != nil {
		return
	}
	data, _ := json.Marshal(msg)
	c.enqueue(data)
}

// OnOptionsReload installs reloaded options as the run defaults and tells
// every client. A load error keeps the previous defaults.
func (s *Server) OnOptionsReload(path string, opts claudecode.Options, err error) {
	payload := OptionsUpdatePayload{Path: path}
	if err != nil {
		payload.Error = err.Error()
		s.logger.Warn("options reload failed", "path", path, "error", err)
	} else {
		s.runs.SetDefaults(&opts)
		s.logger.Info("options reloaded", "path", path)
	}
	s.broadcast(TypeOptionsUpdate, payload)
}

func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}
