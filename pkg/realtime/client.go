package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/centsible/centsible/pkg/store"
)

const (
	topicPrefix       = "realtime:public:"
	heartbeatTopic    = "phoenix"
	heartbeatInterval = 25 * time.Second
)

// message is the framed envelope used on the change-feed socket.
type message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type changePayload struct {
	Record    store.Row `json:"record"`
	OldRecord store.Row `json:"old_record"`
}

// Client maintains one websocket connection to the hosted change feed and
// fans incoming row changes out to table subscriptions. A dropped connection
// is terminal for this client: reconnection policy belongs to the caller.
type Client struct {
	endpoint string
	apiKey   string
	tokens   oauth2.TokenSource

	mu        sync.Mutex
	conn      *websocket.Conn
	subs      map[*Subscription]struct{}
	topics    map[string]bool
	connected bool
}

func NewClient(baseURL string, apiKey string, tokens oauth2.TokenSource) *Client {
	return &Client{
		endpoint: baseURL,
		apiKey:   apiKey,
		tokens:   tokens,
		subs:     make(map[*Subscription]struct{}),
		topics:   make(map[string]bool),
	}
}

// Subscribe registers for change events on a table. The subscription is
// scoped by table, not by filter predicate; consumers apply their own
// filter-key check before acting on an event.
func (c *Client) Subscribe(table string, kinds ...EventKind) (*Subscription, error) {
	if table == "" {
		return nil, fmt.Errorf("table must not be empty")
	}
	if len(kinds) == 0 {
		kinds = AllEvents
	}

	var sub *Subscription
	sub = newSubscription(table, kinds, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, sub)
	})

	c.mu.Lock()
	c.subs[sub] = struct{}{}
	needJoin := !c.topics[table]
	c.topics[table] = true
	conn := c.conn
	c.mu.Unlock()

	if needJoin && conn != nil {
		if err := c.join(conn, table); err != nil {
			sub.Unsubscribe()
			return nil, err
		}
	}
	return sub, nil
}

// Run dials the change feed and pumps events to subscribers until ctx is
// cancelled or the connection drops. On return every open subscription is
// closed; there is no automatic reconnect.
func (c *Client) Run(ctx context.Context) error {
	wsURL, err := c.socketURL()
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("could not connect to change feed: %w", err)
	}
	defer conn.Close()
	defer c.closeAll()

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	topics := make([]string, 0, len(c.topics))
	for table := range c.topics {
		topics = append(topics, table)
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.connected = false
		c.mu.Unlock()
	}()

	for _, table := range topics {
		if err := c.join(conn, table); err != nil {
			return err
		}
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go c.heartbeat(heartbeatCtx, conn)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	log.Infof("connected to change feed at %s", c.endpoint)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("change feed connection dropped: %w", err)
		}
		c.dispatch(raw)
	}
}

func (c *Client) socketURL() (string, error) {
	parsed, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid change feed url: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	}
	parsed.Path = "/realtime/v1/websocket"
	query := url.Values{"apikey": {c.apiKey}, "vsn": {"1.0.0"}}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return "", fmt.Errorf("could not obtain access token: %w", err)
		}
		query.Set("token", token.AccessToken)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (c *Client) join(conn *websocket.Conn, table string) error {
	msg := message{
		Topic:   topicPrefix + table,
		Event:   "phx_join",
		Payload: json.RawMessage(`{}`),
		Ref:     uuid.NewString(),
	}
	if err := c.write(conn, msg); err != nil {
		return fmt.Errorf("could not join topic for table %s: %w", table, err)
	}
	log.Debugf("joined change feed topic for table %s", table)
	return nil
}

func (c *Client) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := message{
				Topic:   heartbeatTopic,
				Event:   "heartbeat",
				Payload: json.RawMessage(`{}`),
				Ref:     uuid.NewString(),
			}
			if err := c.write(conn, msg); err != nil {
				log.Warnf("change feed heartbeat failed: %v", err)
				return
			}
		}
	}
}

func (c *Client) write(conn *websocket.Conn, msg message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return conn.WriteJSON(msg)
}

func (c *Client) dispatch(raw []byte) {
	ev, ok := parseChange(raw)
	if !ok {
		return
	}
	c.mu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(ev)
	}
}

func (c *Client) closeAll() {
	c.mu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// parseChange decodes one socket frame into a ChangeEvent. Non-change frames
// (join replies, heartbeat acks, errors) and malformed frames are skipped;
// a bad frame must never take the feed down.
func parseChange(raw []byte) (ChangeEvent, bool) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Warnf("change feed: skipping malformed frame: %v", err)
		return ChangeEvent{}, false
	}

	var kind EventKind
	switch msg.Event {
	case string(EventInsert), string(EventUpdate), string(EventDelete):
		kind = EventKind(msg.Event)
	default:
		return ChangeEvent{}, false
	}

	table, ok := tableFromTopic(msg.Topic)
	if !ok {
		return ChangeEvent{}, false
	}

	dec := json.NewDecoder(bytes.NewReader(msg.Payload))
	dec.UseNumber()
	var payload changePayload
	if err := dec.Decode(&payload); err != nil {
		log.Warnf("change feed: skipping malformed %s payload for table %s: %v", kind, table, err)
		return ChangeEvent{}, false
	}

	return ChangeEvent{Kind: kind, Table: table, New: payload.Record, Old: payload.OldRecord}, true
}

func tableFromTopic(topic string) (string, bool) {
	if len(topic) <= len(topicPrefix) || topic[:len(topicPrefix)] != topicPrefix {
		return "", false
	}
	return topic[len(topicPrefix):], true
}
