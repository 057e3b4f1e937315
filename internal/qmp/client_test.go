package qmp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"
)

const testGreeting = `{"QMP": {"version": {"qemu": {"major": 9, "minor": 2, "micro": 0}, "package": "v9.2.0"}, "capabilities": ["oob"]}}` + "\n"

// fakeServer speaks the VM side of the protocol over one half of a
// net.Pipe.
type fakeServer struct {
	t    *testing.T
	conn net.Conn
	dec  *json.Decoder
}

func newPair(t *testing.T) (*Client, *fakeServer) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return NewClient(client, nil), &fakeServer{t: t, conn: server, dec: json.NewDecoder(server)}
}

func (s *fakeServer) sendRaw(raw string) {
	s.t.Helper()
	if _, err := s.conn.Write([]byte(raw)); err != nil {
		s.t.Errorf("server write: %v", err)
	}
}

func (s *fakeServer) expectExecute(name string) command {
	s.t.Helper()
	var cmd command
	if err := s.dec.Decode(&cmd); err != nil {
		s.t.Fatalf("server decode: %v", err)
	}
	if cmd.Execute != name {
		s.t.Fatalf("server got execute %q, want %q", cmd.Execute, name)
	}
	return cmd
}

// negotiated returns a client that has completed the handshake against the
// fake server.
func negotiated(t *testing.T) (*Client, *fakeServer) {
	t.Helper()
	c, s := newPair(t)
	go func() {
		s.sendRaw(testGreeting)
		s.expectExecute("qmp_capabilities")
		s.sendRaw(`{"return": {}}` + "\n")
	}()
	if err := c.Negotiate(context.Background()); err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	return c, s
}

func TestNegotiate(t *testing.T) {
	c, _ := negotiated(t)
	if got := c.Greeting().Version.QEMU.Major; got != 9 {
		t.Errorf("greeting major = %d, want 9", got)
	}
}

func TestNegotiateRejectsNonGreeting(t *testing.T) {
	c, s := newPair(t)
	go s.sendRaw(`{"event": "POWERDOWN", "timestamp": {"seconds": 1, "microseconds": 2}}` + "\n")

	err := c.Negotiate(context.Background())
	var he *HandshakeError
	if !errors.As(err, &he) {
		t.Fatalf("want *HandshakeError, got %T: %v", err, err)
	}
}

func TestExecuteBeforeNegotiation(t *testing.T) {
	c, _ := newPair(t)
	_, err := c.Execute(context.Background(), "query-status", nil)
	var he *HandshakeError
	if !errors.As(err, &he) {
		t.Fatalf("want *HandshakeError, got %T: %v", err, err)
	}
}

func TestExecuteReturnsResult(t *testing.T) {
	c, s := negotiated(t)
	go func() {
		s.expectExecute("query-status")
		s.sendRaw(`{"return": {"status": "running", "running": true}}` + "\n")
	}()

	raw, err := c.Execute(context.Background(), "query-status", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var status struct {
		Status  string `json:"status"`
		Running bool   `json:"running"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !status.Running || status.Status != "running" {
		t.Errorf("status = %+v", status)
	}
}

func TestExecuteRejectedCommand(t *testing.T) {
	c, s := negotiated(t)
	go func() {
		s.expectExecute("device_add")
		s.sendRaw(`{"error": {"class": "GenericError", "desc": "Bus 'pci.0' not found"}}` + "\n")
	}()

	_, err := c.Execute(context.Background(), "device_add", map[string]string{"driver": "e1000"})
	var ce *CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("want *CommandError, got %T: %v", err, err)
	}
	if ce.Class != "GenericError" {
		t.Errorf("class = %q", ce.Class)
	}
}

// An event arriving while a command is pending must reach the listener and
// must not be taken as the command's reply.
func TestEventDuringPendingCommand(t *testing.T) {
	c, s := newPair(t)

	events := make(chan Event, 4)
	c.OnEvent(func(ev Event) { events <- ev })

	go func() {
		s.sendRaw(testGreeting)
		s.expectExecute("qmp_capabilities")
		s.sendRaw(`{"return": {}}` + "\n")

		s.expectExecute("system_powerdown")
		s.sendRaw(`{"event": "POWERDOWN", "timestamp": {"seconds": 10, "microseconds": 5}}` + "\n")
		s.sendRaw(`{"return": {}}` + "\n")
	}()

	if err := c.Negotiate(context.Background()); err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if _, err := c.Execute(context.Background(), "system_powerdown", nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Name != "POWERDOWN" {
			t.Errorf("event = %q, want POWERDOWN", ev.Name)
		}
		if ev.Timestamp.Seconds != 10 {
			t.Errorf("timestamp = %+v", ev.Timestamp)
		}
	case <-time.After(time.Second):
		t.Fatal("event not dispatched")
	}
}

func TestDisconnectDuringCommand(t *testing.T) {
	c, s := negotiated(t)
	go func() {
		s.expectExecute("query-status")
		s.conn.Close()
	}()

	_, err := c.Execute(context.Background(), "query-status", nil)
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("want ErrDisconnected, got %v", err)
	}

	// The session is closed for good; later commands fail the same way.
	if _, err := c.Execute(context.Background(), "quit", nil); !errors.Is(err, ErrDisconnected) {
		t.Errorf("post-disconnect command: want ErrDisconnected, got %v", err)
	}
}
