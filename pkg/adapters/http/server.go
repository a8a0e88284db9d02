package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/go-chi/chi/v5"
)

// DefaultTimeout bounds how long a request waits for the interpreter to reply.
const DefaultTimeout = 30 * time.Second

// Interpreter is the surface of the interpreter the server exposes.
type Interpreter interface {
	ports.Receiver
	Sessions(ctx context.Context) ([]string, error)
	Session(ctx context.Context, sessionID string) (*domain.Snapshot, error)
	Kill(sessionID string, fault *domain.Fault) error
}

// Server maps HTTP requests onto interpreter operations: each POST is an
// inbound message whose reply becomes the response body.
type Server struct {
	Interpreter Interpreter
	Streams     *StreamManager

	timeout time.Duration
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithTimeout bounds the wait for a reply.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStreams enables GET /events. The manager's Hooks must be installed on
// the interpreter for events to flow.
func WithStreams(streams *StreamManager) Option {
	return func(s *Server) {
		s.Streams = streams
	}
}

// NewServer creates a server for the interpreter.
func NewServer(itp Interpreter, opts ...Option) *Server {
	s := &Server{
		Interpreter: itp,
		timeout:     DefaultTimeout,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewHandler creates the HTTP handler for the interpreter.
func NewHandler(itp Interpreter, opts ...Option) http.Handler {
	return NewServer(itp, opts...).Routes()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Post("/operations/{operation}", s.Invoke)
	r.Get("/sessions", s.ListSessions)
	r.Get("/sessions/{id}", s.GetSession)
	r.Delete("/sessions/{id}", s.KillSession)
	if s.Streams != nil {
		r.Get("/events", s.SubscribeEvents)
	}
	return enableCORS(r)
}

// Reply is the body of an operation response.
type Reply struct {
	SessionID string     `json:"session_id,omitempty"`
	Payload   any        `json:"payload,omitempty"`
	Fault     *FaultBody `json:"fault,omitempty"`
}

// FaultBody is the JSON form of a fault.
type FaultBody struct {
	Name    string `json:"name"`
	Payload any    `json:"payload,omitempty"`
}

// SessionView is the JSON form of a session snapshot.
type SessionView struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	Fault     string    `json:"fault,omitempty"`
	State     any       `json:"state,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Invoke handles POST /operations/{operation}. The optional session query
// parameter addresses a running session; without it a starter operation
// opens a new one.
func (s *Server) Invoke(w http.ResponseWriter, r *http.Request) {
	operation := chi.URLParam(r, "operation")

	payload := domain.NewValue()
	if r.ContentLength != 0 {
		var body any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			s.logger.Warn("Invoke: Invalid request body", "operation", operation, "error", err)
			return
		}
		payload = domain.ValueFromNative(body)
	}

	msg := domain.NewRequest(operation, r.URL.Path, payload)
	if id := r.URL.Query().Get("session"); id != "" {
		msg = msg.WithSessionID(id)
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	ch := memory.NewReplyChannel(operation)
	deliverErr := s.Interpreter.Deliver(ctx, msg, ch)
	reply, err := ch.Reply(ctx)
	if err != nil {
		status := http.StatusGatewayTimeout
		if deliverErr != nil {
			status = statusFor(deliverErr)
		}
		http.Error(w, fmt.Sprintf("No reply: %v", err), status)
		s.logger.Warn("Invoke: No reply", "operation", operation, "error", err)
		return
	}

	status := http.StatusOK
	if deliverErr != nil {
		status = statusFor(deliverErr)
	} else if reply.IsFault() {
		status = http.StatusUnprocessableEntity
		if reply.Fault().Name == domain.FaultTypeMismatch {
			status = http.StatusBadRequest
		}
	}
	s.logger.Debug("Invoke: Replied", "operation", operation, "session_id", reply.SessionID(), "status", status)
	writeJSON(w, status, replyBody(reply), s.logger)
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Interpreter.Sessions(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("List error: %v", err), http.StatusInternalServerError)
		s.logger.Error("ListSessions failed", "error", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids, s.logger)
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := s.Interpreter.Session(r.Context(), id)
	if err != nil {
		http.Error(w, fmt.Sprintf("Session error: %v", err), statusFor(err))
		return
	}
	view := SessionView{
		SessionID: snap.SessionID,
		Status:    string(snap.Status),
		Fault:     snap.Fault,
		StartedAt: snap.StartedAt,
		UpdatedAt: snap.UpdatedAt,
	}
	if snap.Root != nil {
		view.State = snap.Root.Native()
	}
	writeJSON(w, http.StatusOK, view, s.logger)
}

// KillSession handles DELETE /sessions/{id}. The optional fault query
// parameter names the fault the session is killed with.
func (s *Server) KillSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var fault *domain.Fault
	if name := r.URL.Query().Get("fault"); name != "" {
		fault = domain.NewFault(name, nil)
	}
	if err := s.Interpreter.Kill(id, fault); err != nil {
		http.Error(w, fmt.Sprintf("Kill error: %v", err), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

// SubscribeEvents handles the GET /events request (SSE). The session_id query
// parameter narrows the stream to one session.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sessionID := r.URL.Query().Get("session_id")
	s.logger.Info("SSE: Subscribing to session events", "session_id", sessionID)

	ch, unsubscribe := s.Streams.Subscribe(sessionID)
	defer unsubscribe()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "session_id", sessionID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func replyBody(msg *domain.Message) Reply {
	out := Reply{SessionID: msg.SessionID()}
	if msg.IsFault() {
		f := msg.Fault()
		out.Fault = &FaultBody{Name: f.Name}
		if f.Payload != nil && !f.Payload.IsEmpty() {
			out.Fault.Payload = f.Payload.Native()
		}
		return out
	}
	if p := msg.Payload(); p != nil && !p.IsEmpty() {
		out.Payload = p.Native()
	}
	return out
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownOperation), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInterpreterClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	var typeErr *domain.TypeCheckingError
	if errors.As(err, &typeErr) {
		return http.StatusBadRequest
	}
	if _, ok := domain.AsFault(err); ok {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Response encode failed", "error", err)
	}
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
