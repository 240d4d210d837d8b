package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
)

// historyTurns bounds the conversation context kept per websocket connection.
const historyTurns = 10

// Responder answers a user message given the prior conversation.
type Responder interface {
	Respond(ctx context.Context, query, conversation string) string
}

// VerseLookup resolves a scripture reference to display text.
type VerseLookup interface {
	Lookup(ctx context.Context, reference string) string
}

type Config struct {
	Addr           string
	AllowedOrigins []string
	Logger         *slog.Logger
}

type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type respondRequest struct {
	Query   string `json:"query"`
	Context string `json:"context"`
}

type WSServer struct {
	config    Config
	responder Responder
	verses    VerseLookup
	upgrader  websocket.Upgrader
}

func NewWSServer(config Config, responder Responder, verses VerseLookup) *WSServer {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &WSServer{
		config:    config,
		responder: responder,
		verses:    verses,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the routed, CORS-wrapped HTTP handler.
func (s *WSServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.logRequests)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
	router.HandleFunc("/api/respond", s.handleRespond).Methods(http.MethodPost)
	router.HandleFunc("/api/verse/{reference}", s.handleVerse).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleWebSocket)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	})
	return corsHandler.Handler(router)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *WSServer) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.config.Logger.Info("starting server", "addr", s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *WSServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(s.config.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(s.config.AllowedOrigins, origin)
}

func (s *WSServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.config.Logger.Debug("request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func (s *WSServer) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	response := s.responder.Respond(r.Context(), req.Query, req.Context)
	writeJSON(w, http.StatusOK, map[string]string{"response": response})
}

func (s *WSServer) handleVerse(w http.ResponseWriter, r *http.Request) {
	reference := mux.Vars(r)["reference"]
	writeJSON(w, http.StatusOK, map[string]string{"text": s.verses.Lookup(r.Context(), reference)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// wsConn serializes writes to one websocket and keeps its conversation.
type wsConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	historyMu sync.Mutex
	history   []string
}

func (c *wsConn) send(msgType, content string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(Message{Type: msgType, Content: content})
}

func (c *wsConn) conversation() string {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	return strings.Join(c.history, "\n")
}

func (c *wsConn) remember(turn string) {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	c.history = append(c.history, turn)
	if len(c.history) > historyTurns {
		c.history = c.history[len(c.history)-historyTurns:]
	}
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.config.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &wsConn{conn: conn}
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.config.Logger.Debug("websocket read ended", "error", err)
			}
			cancel()
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.reply(c, "error", "invalid message")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(ctx, c, msg)
		}()
	}
}

func (s *WSServer) handleMessage(ctx context.Context, c *wsConn, msg Message) {
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		s.reply(c, "error", "content is required")
		return
	}

	switch msg.Type {
	case "chat", "":
		response := s.responder.Respond(ctx, content, c.conversation())
		c.remember(response)
		s.reply(c, "response", response)
	case "verse":
		s.reply(c, "verse", s.verses.Lookup(ctx, content))
	default:
		s.reply(c, "error", "unknown message type "+msg.Type)
	}
}

func (s *WSServer) reply(c *wsConn, msgType, content string) {
	if err := c.send(msgType, content); err != nil {
		s.config.Logger.Debug("error sending message", "error", err)
	}
}
