package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	applogger "SignalFeed/pkg/logger"

	"github.com/gorilla/websocket"
)

// HintListener delivers change hints until ctx is done.
type HintListener interface {
	Listen(ctx context.Context, onHint func()) error
}

// WSHintListener subscribes to the server's websocket and redials on failure.
// Every successful connect, the first one included, reports one hint, since
// anything broadcast before the subscription existed has been missed.
type WSHintListener struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	dialer         *websocket.Dialer
	log            *applogger.Logger
	onState        func(connected bool)
}

func NewWSHintListener(wsURL string, reconnectDelay, pingInterval time.Duration, log *applogger.Logger) *WSHintListener {
	if reconnectDelay <= 0 {
		reconnectDelay = 2 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if log == nil {
		log = applogger.Nop()
	}
	return &WSHintListener{
		url:            wsURL,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		dialer:         websocket.DefaultDialer,
		log:            log,
	}
}

// OnState registers a callback for connection changes.
func (l *WSHintListener) OnState(fn func(connected bool)) {
	l.onState = fn
}

func (l *WSHintListener) Listen(ctx context.Context, onHint func()) error {
	for {
		conn, err := l.connect(ctx)
		if err == nil {
			onHint()
			err = l.read(ctx, conn, onHint)
			_ = conn.Close()
			l.state(false)
		}
		if ctx.Err() != nil {
			return nil
		}
		l.log.Warn("hint channel lost, reconnecting",
			applogger.String("url", l.url),
			applogger.Duration("delay", l.reconnectDelay),
			applogger.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.reconnectDelay):
		}
	}
}

func (l *WSHintListener) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := l.dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, fmt.Errorf("hint connect: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("hint connect: %w", err)
	}
	l.log.Info("hint channel connected", applogger.String("url", l.url))
	l.state(true)
	return conn, nil
}

func (l *WSHintListener) read(ctx context.Context, conn *websocket.Conn, onHint func()) error {
	done := make(chan struct{})
	defer close(done)

	// ping loop; closing the conn on ctx also unblocks ReadMessage
	go func() {
		ticker := time.NewTicker(l.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		kind, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("hint read: %w", err)
		}
		if kind != websocket.TextMessage || string(b) != "newData" {
			continue
		}
		onHint()
	}
}

func (l *WSHintListener) state(connected bool) {
	if l.onState != nil {
		l.onState(connected)
	}
}
