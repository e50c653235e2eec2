package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/statuslogger/internal/infrastructure/logging"
)

// Record stream channels.
const (
	ChannelMessages = "messages"
	ChannelErrors   = "errors"
)

// Stream message types.
const (
	MsgSubscribe   = "subscribe"
	MsgUnsubscribe = "unsubscribe"
	MsgPing        = "ping"
	MsgPong        = "pong"
	MsgRecord      = "record"
	MsgResponse    = "response"
	MsgError       = "error"
)

const (
	// clientBufferSize is the number of records queued per client before
	// further records are dropped for it.
	clientBufferSize = 256

	maxInboundSize = 8192
	pingInterval   = 30 * time.Second
	pongTimeout    = 10 * time.Second
)

// StreamMessage is the envelope for everything sent to or received from a
// stream client.
type StreamMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ChannelsPayload is the payload of subscribe and unsubscribe requests.
type ChannelsPayload struct {
	Channels []string `json:"channels"`
}

// RecordPayload is one sink record as seen by stream clients.
type RecordPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Recorder is an append-only record destination. *sink.Sink implements it.
type Recorder interface {
	Record(level slog.Level, msg string) error
}

// Hub fans sink records out to stream clients.
type Hub struct {
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*streamClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// register adds c to the hub. Once Run has returned, c is refused: its send
// channel and connection are closed and register reports false.
func (h *Hub) register(c *streamClient) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		h.logger.Debug("stream client refused, hub stopped")
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("stream client connected", "clients", n)
	return true
}

// unregister removes c. Whoever removes c from the map closes its send
// channel, so a second call is a no-op.
func (h *Hub) unregister(c *streamClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
		h.logger.Debug("stream client disconnected", "clients", n)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues rec for every client subscribed to channel. It never
// blocks: a client whose queue is full misses the record.
func (h *Hub) Broadcast(channel string, rec RecordPayload) {
	payload, err := json.Marshal(rec)
	if err != nil {
		h.logger.Error("encoding stream record failed", "error", err)
		return
	}
	data, err := json.Marshal(StreamMessage{
		Type:      MsgRecord,
		Channel:   channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding stream record failed", "error", err)
		return
	}

	// Send under the read lock so unregister cannot close a channel mid-send.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.channels.has(channel) {
			c.offer(data)
		}
	}
}

// Tee returns a Recorder that writes to next and broadcasts on channel every
// record next accepted. Records next rejected are not broadcast.
func (h *Hub) Tee(channel string, next Recorder) Recorder {
	return &teeRecorder{hub: h, channel: channel, next: next}
}

type teeRecorder struct {
	hub     *Hub
	channel string
	next    Recorder
}

func (t *teeRecorder) Record(level slog.Level, msg string) error {
	if err := t.next.Record(level, msg); err != nil {
		return err
	}
	t.hub.Broadcast(t.channel, RecordPayload{Level: level.String(), Message: msg})
	return nil
}

// channelSet is the set of channels a client listens on.
type channelSet struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

func newChannelSet(channels ...string) *channelSet {
	s := &channelSet{set: make(map[string]struct{}, len(channels))}
	s.add(channels...)
	return s
}

func (s *channelSet) has(ch string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.set[ch]
	return ok
}

func (s *channelSet) add(channels ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range channels {
		s.set[ch] = struct{}{}
	}
}

func (s *channelSet) remove(channels ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range channels {
		delete(s.set, ch)
	}
}

// parseChannels reads the channels query parameter. An empty value selects
// every channel.
func parseChannels(raw string) ([]string, bool) {
	if raw == "" {
		return []string{ChannelMessages, ChannelErrors}, true
	}
	var channels []string
	for _, ch := range strings.Split(raw, ",") {
		ch = strings.TrimSpace(ch)
		if !validChannel(ch) {
			return nil, false
		}
		channels = append(channels, ch)
	}
	return channels, true
}

func validChannel(ch string) bool {
	return ch == ChannelMessages || ch == ChannelErrors
}

// upgrader accepts any origin. The listener is loopback unless configured
// otherwise.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleStream upgrades the connection and streams sink records.
// GET /stream?channels=messages,errors
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	channels, ok := parseChannels(r.URL.Query().Get("channels"))
	if !ok {
		writeBadRequest(w, "channels must be a comma-separated list of messages, errors")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newStreamClient(s.hub, conn, channels...)
	if !s.hub.register(c) {
		return
	}
	go c.writeLoop()
	go c.readLoop()
}

// streamClient is one connected /stream consumer.
type streamClient struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	channels *channelSet
}

func newStreamClient(hub *Hub, conn *websocket.Conn, channels ...string) *streamClient {
	return &streamClient{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, clientBufferSize),
		channels: newChannelSet(channels...),
	}
}

// offer queues data without blocking. Callers hold the hub read lock.
func (c *streamClient) offer(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}

func (c *streamClient) readLoop() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	//nolint:errcheck // a failed deadline surfaces as a read error
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("stream read error", "error", err)
			}
			return
		}
		//nolint:errcheck // a failed deadline surfaces as a read error
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))

		if reply := c.handle(data); reply != nil {
			c.reply(reply)
		}
	}
}

func (c *streamClient) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			//nolint:errcheck // a failed deadline surfaces as a write error
			c.conn.SetWriteDeadline(time.Now().Add(pongTimeout))
			if !ok {
				//nolint:errcheck // connection is closing anyway
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // a failed deadline surfaces as a write error
			c.conn.SetWriteDeadline(time.Now().Add(pongTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle processes one inbound message and returns the reply, if any.
func (c *streamClient) handle(data []byte) *StreamMessage {
	var msg StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return errorReply("", "invalid JSON message")
	}

	switch msg.Type {
	case MsgPing:
		return &StreamMessage{Type: MsgPong, ID: msg.ID}
	case MsgSubscribe, MsgUnsubscribe:
		var p ChannelsPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || len(p.Channels) == 0 {
			return errorReply(msg.ID, "payload must contain a channels list")
		}
		for _, ch := range p.Channels {
			if !validChannel(ch) {
				return errorReply(msg.ID, "unknown channel: "+ch)
			}
		}
		key := "subscribed"
		if msg.Type == MsgSubscribe {
			c.channels.add(p.Channels...)
		} else {
			c.channels.remove(p.Channels...)
			key = "unsubscribed"
		}
		return payloadReply(msg.ID, MsgResponse, map[string][]string{key: p.Channels})
	default:
		return errorReply(msg.ID, "unknown message type: "+msg.Type)
	}
}

// reply queues msg for the client through the hub so that it cannot race
// with unregister closing the send channel.
func (c *streamClient) reply(msg *StreamMessage) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; ok {
		c.offer(data)
	}
}

func payloadReply(id, msgType string, payload any) *StreamMessage {
	raw, err := json.Marshal(payload)
	if err != nil {
		return &StreamMessage{Type: MsgError, ID: id}
	}
	return &StreamMessage{Type: msgType, ID: id, Payload: raw}
}

func errorReply(id, message string) *StreamMessage {
	return payloadReply(id, MsgError, map[string]string{"message": message})
}
