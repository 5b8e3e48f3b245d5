package relay

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"blackboard/internal/bus"
	"blackboard/internal/config"
	"blackboard/internal/logging"
	"blackboard/internal/metrics"
	"blackboard/internal/persist"
	"blackboard/internal/room"
)

// Server wires the hub and the rooms API into gin routes.
type Server struct {
	cfg      *config.Config
	hub      *Hub
	bus      *bus.Bus
	store    persist.Catalog
	ident    *Identifier
	upgrader websocket.Upgrader
	engine   *gin.Engine
}

// NewServer builds the relay's HTTP handler.
func NewServer(cfg *config.Config, hub *Hub, b *bus.Bus, store persist.Catalog) *Server {
	s := &Server{
		cfg:   cfg,
		hub:   hub,
		bus:   b,
		store: store,
		ident: NewIdentifier(cfg.Security.JWTSecret),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.Relay.AllowedOrigins),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": hub.RoomCount()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ws/:roomId", s.handleWebSocket)

	api := r.Group("/api", s.ident.RequireToken())
	api.GET("/rooms", s.listRooms)
	api.POST("/rooms", s.createRoom)
	api.GET("/rooms/:roomId", s.getRoom)
	api.PUT("/rooms/:roomId", s.putRoom)
	api.DELETE("/rooms/:roomId", s.deleteRoom)
	api.GET("/rooms/:roomId/participants", s.participants)

	s.engine = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// HTTPServer returns an *http.Server listening on the configured address.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Str("subject", c.GetString(subjectKey)).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}

func (s *Server) handleWebSocket(c *gin.Context) {
	roomID := c.Param("roomId")
	if !room.Valid(roomID) {
		writeError(c, http.StatusBadRequest, errors.New("invalid room id"))
		return
	}
	userID, err := s.ident.Identify(c.Request)
	if err != nil {
		writeError(c, http.StatusUnauthorized, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		ID:     userID,
		connID: uuid.NewString(),
		conn:   conn,
		hub:    s.hub,
		send:   make(chan []byte, s.cfg.Relay.SendBuffer),
	}
	if s.cfg.Relay.FramesPerSec > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(s.cfg.Relay.FramesPerSec), s.cfg.Relay.FrameBurst)
	}

	if _, err := s.hub.join(roomID, client); err != nil {
		logging.Error().Err(err).Str("room", roomID).Msg("join room failed")
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "room unavailable"))
		conn.Close()
		return
	}
	metrics.RelayConnections.Inc()
	logging.Info().Str("room", roomID).Str("participant", userID).Str("color", client.Color).Msg("participant joined room")

	go client.writePump()
	client.readPump(s.bus)
}
