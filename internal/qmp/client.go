package qmp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
)

type sessionState int

const (
	stateHandshake sessionState = iota
	stateReady
	stateClosed
)

// Client drives one QMP session. Session state moves monotonically through
// handshake, ready and closed. At most one command is outstanding at a
// time; events are demultiplexed to the registered handler by a background
// reader and never consume the pending command's reply slot.
type Client struct {
	conn io.ReadWriteCloser
	dec  *json.Decoder
	log  *slog.Logger

	onEvent func(Event)

	mu    sync.Mutex // serializes Execute; one request in flight
	wmu   sync.Mutex // serializes frame writes
	state sessionState

	stateMu sync.Mutex

	greeting Greeting
	replies  chan message
	done     chan struct{}
}

// NewClient wraps an established control socket. Negotiate must complete
// before any command is issued.
func NewClient(conn io.ReadWriteCloser, log *slog.Logger) *Client {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Client{
		conn:    conn,
		dec:     json.NewDecoder(conn),
		log:     log,
		replies: make(chan message, 1),
		done:    make(chan struct{}),
	}
}

// OnEvent registers the out-of-band event handler. Must be called before
// Negotiate; the handler runs on the reader goroutine.
func (c *Client) OnEvent(fn func(Event)) { c.onEvent = fn }

// Greeting returns the banner received during negotiation.
func (c *Client) Greeting() Greeting { return c.greeting }

func (c *Client) currentState() sessionState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Client) setState(s sessionState) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if s > c.state {
		c.state = s
	}
}

// Negotiate performs the connect handshake: it requires the greeting as
// the first inbound message, then sends qmp_capabilities and waits for its
// empty return. Until it succeeds every command fails with HandshakeError.
func (c *Client) Negotiate(ctx context.Context) error {
	if c.currentState() != stateHandshake {
		return &HandshakeError{Reason: "negotiation already performed"}
	}

	var first message
	if err := c.dec.Decode(&first); err != nil {
		c.close()
		return &HandshakeError{Reason: "reading greeting: " + err.Error()}
	}
	if first.QMP == nil {
		c.close()
		return &HandshakeError{Reason: "first message is not a greeting"}
	}
	if err := json.Unmarshal(first.QMP, &c.greeting); err != nil {
		c.close()
		return &HandshakeError{Reason: "malformed greeting: " + err.Error()}
	}

	go c.readLoop()

	reply, err := c.roundTrip(ctx, command{Execute: "qmp_capabilities"})
	if err != nil {
		c.close()
		return &HandshakeError{Reason: "capabilities negotiation: " + err.Error()}
	}
	if reply.Error != nil {
		c.close()
		return &HandshakeError{Reason: "capabilities rejected: " + reply.Error.Error()}
	}

	c.setState(stateReady)
	c.log.Debug("qmp session ready",
		"qemu", c.greeting.Version.Package,
		"capabilities", c.greeting.Capabilities)
	return nil
}

// Execute sends one command and returns its result. Commands are strictly
// sequential: callers queue on an internal lock, and the next non-event
// message is the pending command's reply. A rejected command returns
// *CommandError; a lost transport returns ErrDisconnected, never a retry.
func (c *Client) Execute(ctx context.Context, name string, args any) (json.RawMessage, error) {
	switch c.currentState() {
	case stateHandshake:
		return nil, &HandshakeError{Reason: "command " + name + " before capabilities negotiation"}
	case stateClosed:
		return nil, ErrDisconnected
	}

	reply, err := c.roundTrip(ctx, command{Execute: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	if reply.Error != nil {
		return nil, reply.Error
	}
	return reply.Return, nil
}

func (c *Client) roundTrip(ctx context.Context, cmd command) (message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Drop a stale reply left behind by a context-cancelled request so it
	// cannot be mistaken for this command's answer.
	select {
	case <-c.replies:
	default:
	}

	if err := c.send(cmd); err != nil {
		return message{}, err
	}
	select {
	case reply := <-c.replies:
		return reply, nil
	case <-c.done:
		return message{}, ErrDisconnected
	case <-ctx.Done():
		return message{}, ctx.Err()
	}
}

func (c *Client) send(cmd command) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	buf, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	buf = append(buf, '\n')
	if _, err := c.conn.Write(buf); err != nil {
		c.close()
		return ErrDisconnected
	}
	return nil
}

// readLoop demultiplexes inbound frames: events go to the handler, every
// other frame is the pending request's reply.
func (c *Client) readLoop() {
	defer close(c.done)
	for {
		var msg message
		if err := c.dec.Decode(&msg); err != nil {
			c.setState(stateClosed)
			if err != io.EOF {
				c.log.Debug("qmp transport lost", "error", err)
			}
			return
		}

		if msg.Event != "" {
			ev := Event{Name: msg.Event, Data: msg.Data, Timestamp: msg.Timestamp}
			c.log.Debug("qmp event", "event", ev.Name)
			if c.onEvent != nil {
				c.onEvent(ev)
			}
			continue
		}

		select {
		case c.replies <- msg:
		default:
			// Two replies without a consumer: the peer broke the
			// one-outstanding discipline. Log and drop.
			c.log.Warn("qmp reply with no pending command dropped")
		}
	}
}

// Close tears the session down. Safe to call more than once.
func (c *Client) Close() error {
	return c.close()
}

func (c *Client) close() error {
	c.setState(stateClosed)
	return c.conn.Close()
}
