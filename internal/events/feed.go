package events

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/circletel/circletel/internal/auth"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Feed streams bus events to admin WebSocket clients.
type Feed struct {
	bus      *Bus
	auth     auth.Provider
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewFeed creates a feed. An empty allowedOrigins (or "*") accepts any origin.
func NewFeed(bus *Bus, provider auth.Provider, allowedOrigins []string, logger *slog.Logger) *Feed {
	return &Feed{
		bus:      bus,
		auth:     provider,
		logger:   logger.With("component", "events"),
		upgrader: makeUpgrader(allowedOrigins),
	}
}

func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || originSet[origin]
		},
	}
}

// ServeHTTP authenticates an admin and streams events until the client goes away.
// Browsers cannot set headers on the handshake, so the token may be passed as ?token=.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	identity, err := f.auth.ValidateToken(r.Context(), token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !identity.IsAdmin() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := f.bus.Subscribe(128)
	defer cancel()

	f.logger.Info("event feed connected", "user", identity.UserID)
	defer f.logger.Info("event feed disconnected", "user", identity.UserID)

	// Reads only service control frames; any client message or error ends the feed.
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				f.logger.Debug("event feed write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
