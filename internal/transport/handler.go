package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/anatolykoptev/go_transcript/internal/session"
)

const (
	sessionIDHeader = "Mcp-Session-Id"
	maxBodyBytes    = 4 << 20
)

// ServerFactory builds a fresh dispatcher for one session.
type ServerFactory func() *mcp.Server

// Options configures a Handler.
type Options struct {
	Endpoint EndpointResolver
	// EventStore lets streamable clients resume dropped streams. Nil
	// disables replay.
	EventStore mcp.EventStore
	Failures   *engine.FailureLog
}

// Handler routes MCP traffic to per-session dispatchers and serves the
// operational endpoints.
type Handler struct {
	reg       *session.Registry
	newServer ServerFactory
	opts      Options
	mux       *http.ServeMux
}

// NewHandler wires the routes. Sessions are kept in reg.
func NewHandler(reg *session.Registry, newServer ServerFactory, opts Options) *Handler {
	h := &Handler{reg: reg, newServer: newServer, opts: opts, mux: http.NewServeMux()}
	h.mux.HandleFunc("/mcp", h.serveStreamable)
	h.mux.HandleFunc("/sse", h.serveEventStream)
	h.mux.HandleFunc("/message", h.serveMessage)
	h.mux.HandleFunc("GET /health", h.serveHealth)
	h.mux.HandleFunc("GET /metrics", h.serveMetrics)
	h.mux.HandleFunc("GET /debug/failures", h.serveFailures)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// mcpConn binds a transport's HTTP side to the session it feeds.
type mcpConn struct {
	http.Handler

	mu      sync.Mutex
	session *mcp.ServerSession
	closed  bool
}

// attach records ss. It reports false if the connection was already closed.
func (c *mcpConn) attach(ss *mcp.ServerSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.session = ss
	return true
}

func (c *mcpConn) Close() error {
	c.mu.Lock()
	ss := c.session
	c.session = nil
	c.closed = true
	c.mu.Unlock()
	if ss == nil {
		return nil
	}
	return ss.Close()
}

func (h *Handler) serveStreamable(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodPost, http.MethodDelete:
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.Header.Get(sessionIDHeader)
	if id == "" {
		h.openStreamable(w, r)
		return
	}
	s, err := h.reg.Lookup(session.Streamable, id)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if r.Method == http.MethodDelete {
		h.reg.Delete(id)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.Conn.ServeHTTP(w, r)
}

// openStreamable handles an id-less request, which must be an initialize.
func (h *Handler) openStreamable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Bad Request: missing "+sessionIDHeader+" header", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if !isInitialize(body) {
		http.Error(w, "Bad Request: no valid session ID provided", http.StatusBadRequest)
		return
	}

	var ss *mcp.ServerSession
	s, err := h.reg.Create(session.Streamable, func(id string) (session.Conn, error) {
		t := &mcp.StreamableServerTransport{SessionID: id, EventStore: h.opts.EventStore}
		var err error
		ss, err = h.newServer().Connect(r.Context(), t, nil)
		if err != nil {
			return nil, err
		}
		conn := &mcpConn{Handler: t}
		conn.attach(ss)
		return conn, nil
	})
	if err != nil {
		slog.Error("transport: streamable session failed", slog.Any("error", err))
		http.Error(w, "failed connection", http.StatusInternalServerError)
		return
	}
	go h.reapOnClose(s.ID, ss)

	s.Conn.ServeHTTP(w, r)
	if ss.InitializeParams() == nil {
		slog.Debug("transport: handshake incomplete, dropping session", slog.String("id", s.ID))
		h.reg.Delete(s.ID)
		return
	}
	slog.Info("transport: session opened", slog.String("id", s.ID), slog.String("kind", string(session.Streamable)))
}

// reapOnClose removes the session once its connection ends.
func (h *Handler) reapOnClose(id string, ss *mcp.ServerSession) {
	_ = ss.Wait()
	if h.reg.Delete(id) {
		slog.Debug("transport: session ended", slog.String("id", id))
	}
}

func (h *Handler) serveEventStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	base := h.opts.Endpoint.Resolve(r)
	var (
		transport *mcp.SSEServerTransport
		conn      *mcpConn
	)
	s, err := h.reg.Create(session.EventStream, func(id string) (session.Conn, error) {
		transport = &mcp.SSEServerTransport{Endpoint: base + "/message?sessionid=" + id, Response: w}
		conn = &mcpConn{Handler: transport}
		return conn, nil
	})
	if err != nil {
		slog.Error("transport: event-stream session failed", slog.Any("error", err))
		http.Error(w, "failed connection", http.StatusInternalServerError)
		return
	}
	defer h.reg.Delete(s.ID)

	// Connect sends the endpoint event, so the id is routable before the
	// client can learn it.
	ss, err := h.newServer().Connect(r.Context(), transport, nil)
	if err != nil {
		slog.Warn("transport: event-stream connect failed", slog.String("id", s.ID), slog.Any("error", err))
		return
	}
	if !conn.attach(ss) {
		_ = ss.Close()
		return
	}
	slog.Info("transport: session opened", slog.String("id", s.ID),
		slog.String("kind", string(session.EventStream)), slog.String("endpoint", transport.Endpoint))

	done := make(chan struct{})
	go func() {
		_ = ss.Wait()
		close(done)
	}()
	select {
	case <-r.Context().Done():
	case <-done:
	}
}

func (h *Handler) serveMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("sessionid")
	if id == "" {
		http.Error(w, "sessionid must be provided", http.StatusBadRequest)
		return
	}
	s, err := h.reg.Lookup(session.EventStream, id)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	s.Conn.ServeHTTP(w, r)
}

func (h *Handler) serveHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"status":   "ok",
		"sessions": h.reg.Active(),
	})
}

func (h *Handler) serveMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, engine.FormatMetrics())
}

func (h *Handler) serveFailures(w http.ResponseWriter, _ *http.Request) {
	failures := []engine.Failure{}
	var total int64
	if h.opts.Failures != nil {
		failures = h.opts.Failures.Snapshot()
		total = h.opts.Failures.Total()
	}
	writeJSON(w, map[string]any{
		"total":    total,
		"failures": failures,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("transport: write response", slog.Any("error", err))
	}
}

// isInitialize reports whether body holds an initialize request, alone or
// in a batch.
func isInitialize(body []byte) bool {
	msgs := []json.RawMessage{body}
	var batch []json.RawMessage
	if err := json.Unmarshal(body, &batch); err == nil {
		msgs = batch
	}
	for _, raw := range msgs {
		msg, err := jsonrpc.DecodeMessage(raw)
		if err != nil {
			continue
		}
		if req, ok := msg.(*jsonrpc.Request); ok && req.Method == "initialize" {
			return true
		}
	}
	return false
}
