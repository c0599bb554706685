package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatline/callcore/internal/domain"
)

const defaultPingInterval = 30 * time.Second

// frame is the generic WebSocket message envelope. One logical inbound
// channel per user identity carries both raw signaling envelopes and
// call-record status notifications.
type frame struct {
	Kind      string                 `json:"kind"`
	UserID    string                 `json:"userId,omitempty"`
	SessionID string                 `json:"sessionId,omitempty"`
	Token     string                 `json:"token,omitempty"`
	Signal    *domain.SignalEnvelope `json:"signal,omitempty"`
	Status    *domain.CallRecord     `json:"status,omitempty"`
}

// Config holds the signaling connection settings.
type Config struct {
	URL          string
	Token        string
	UserID       string
	PingInterval time.Duration
}

// Client manages the WebSocket connection to the signaling server and
// implements domain.SignalingChannel.
type Client struct {
	cfg       Config
	sessionID string
	handler   domain.Handler
	log       zerolog.Logger

	conn *websocket.Conn

	mu        sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient creates a signaling client delivering inbound traffic to handler.
func NewClient(cfg Config, handler domain.Handler, log zerolog.Logger) *Client {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	return &Client{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		handler:   handler,
		log:       log.With().Str("component", "signal").Logger(),
		closed:    make(chan struct{}),
	}
}

// Connect dials the signaling WebSocket, subscribes the local user's
// channel, and starts the read and ping loops.
func (c *Client) Connect() error {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	c.log.Info().Str("url", c.cfg.URL).Msg("connecting")
	conn, _, err := websocket.DefaultDialer.Dial(c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn

	if err := c.writeJSON(frame{
		Kind:      "subscribe",
		UserID:    c.cfg.UserID,
		SessionID: c.sessionID,
		Token:     c.cfg.Token,
	}); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	go c.readLoop()
	go c.pingLoop()
	return nil
}

// Send transmits one signaling envelope. Implements domain.SignalingChannel.
func (c *Client) Send(_ context.Context, env domain.SignalEnvelope) error {
	return c.writeJSON(frame{
		Kind:      "signal",
		SessionID: c.sessionID,
		Signal:    &env,
	})
}

// Close shuts down the WebSocket connection. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) writeJSON(msg frame) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.log.Debug().RawJSON("frame", data).Msg(">>>")
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer c.Close()

	for {
		select {
		case <-c.closed:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.log.Error().Err(err).Msg("read")
			}
			return
		}

		c.log.Debug().RawJSON("frame", data).Msg("<<<")

		var msg frame
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg frame) {
	switch msg.Kind {
	case "signal":
		if msg.Signal == nil {
			c.log.Warn().Msg("signal frame without payload")
			return
		}
		c.handler.HandleEnvelope(*msg.Signal)

	case "call_status":
		if msg.Status == nil {
			c.log.Warn().Msg("call_status frame without payload")
			return
		}
		c.handler.HandleCallStatus(*msg.Status)

	case "subscribed", "ack":
		// no-op

	default:
		c.log.Warn().Str("kind", msg.Kind).Msg("unhandled frame kind")
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.conn.WriteControl(
				websocket.PingMessage,
				[]byte{},
				time.Now().Add(5*time.Second),
			)
			c.mu.Unlock()
			if err != nil {
				select {
				case <-c.closed:
				default:
					c.log.Error().Err(err).Msg("ping")
				}
				return
			}
		}
	}
}
