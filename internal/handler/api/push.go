package api

import (
	"net/http"
	"time"

	"SignalFeed/internal/service/notifier"
	xlogger "SignalFeed/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// PushHandler upgrades viewers to websocket sessions on the notifier hub.
type PushHandler struct {
	path         string
	hub          *notifier.Hub
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pingInterval time.Duration
	sendBuffer   int
	logger       *xlogger.Logger
}

func NewPushHandler(path string, hub *notifier.Hub, writeTimeout, pingInterval time.Duration, sendBuffer int, logger *xlogger.Logger) *PushHandler {
	if path == "" {
		path = "/ws"
	}
	return &PushHandler{
		path: path,
		hub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  512,
			WriteBufferSize: 512,
			// the feed is public and CORS is open; any page may subscribe
			CheckOrigin: func(*http.Request) bool { return true },
		},
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		sendBuffer:   sendBuffer,
		logger:       logger,
	}
}

func (h *PushHandler) RegisterRoutes(e *echo.Echo) {
	e.GET(h.path, h.Subscribe)
}

// Subscribe holds the connection open until the viewer leaves.
func (h *PushHandler) Subscribe(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.Debug("websocket upgrade failed", xlogger.Error(err))
		return nil
	}

	s := notifier.NewWSSession(conn,
		notifier.WithWriteTimeout(h.writeTimeout),
		notifier.WithPingInterval(h.pingInterval),
		notifier.WithSendBuffer(h.sendBuffer),
		notifier.WithSessionLogger(h.logger),
	)
	if err := h.hub.Join(s); err != nil {
		return nil
	}
	s.Run(func() { h.hub.Leave(s.ID()) })
	return nil
}
