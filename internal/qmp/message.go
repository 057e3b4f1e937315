// Package qmp implements a client for the QEMU Machine Protocol: JSON
// records over a local stream socket, following a request/response model
// with asynchronous out-of-band events.
package qmp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Greeting is the banner the VM process sends on connect, before any
// command is accepted.
type Greeting struct {
	Version struct {
		QEMU struct {
			Major int `json:"major"`
			Minor int `json:"minor"`
			Micro int `json:"micro"`
		} `json:"qemu"`
		Package string `json:"package"`
	} `json:"version"`
	Capabilities []string `json:"capabilities"`
}

// Timestamp is the event time as the VM process reports it.
type Timestamp struct {
	Seconds      int64 `json:"seconds"`
	Microseconds int64 `json:"microseconds"`
}

// Event is an asynchronous notification, dispatched out of band; it never
// satisfies a pending command's reply.
type Event struct {
	Name      string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp Timestamp       `json:"timestamp"`
}

// command is the request frame.
type command struct {
	Execute   string `json:"execute"`
	Arguments any    `json:"arguments,omitempty"`
}

// message is any inbound frame; exactly one of the marker fields is set.
type message struct {
	QMP    json.RawMessage `json:"QMP"`
	Event  string          `json:"event"`
	Return json.RawMessage `json:"return"`
	Error  *CommandError   `json:"error"`

	Data      json.RawMessage `json:"data"`
	Timestamp Timestamp       `json:"timestamp"`
}

// CommandError reports a command the VM process rejected.
type CommandError struct {
	Class string `json:"class"`
	Desc  string `json:"desc"`
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("qmp: %s: %s", e.Class, e.Desc)
}

// HandshakeError reports a violation of the connect protocol: a
// non-greeting first message, or a command sent before capabilities
// negotiation completed.
type HandshakeError struct {
	Reason string
}

func (e *HandshakeError) Error() string {
	return "qmp: handshake: " + e.Reason
}

// ErrDisconnected reports that the control socket was lost. The client
// never reconnects on its own; whether a disconnect is an expected VM
// exit is the orchestrator's call.
var ErrDisconnected = errors.New("qmp: disconnected")
