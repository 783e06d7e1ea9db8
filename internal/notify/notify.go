// Package notify pushes best-effort progress messages to an owner's live
// websocket session.
package notify

import (
	"context"
	"errors"
)

// Source identifies this pipeline in every payload.
const Source = "ingest-pipeline"

// Message types.
const (
	TypeMessage    = "message"
	TypeConnection = "connection"
	TypeDefault    = "default"
)

// Level is the severity shown to the user.
type Level string

const (
	LevelInfo    Level = "info"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// Notification is the JSON payload written to a connection.
type Notification struct {
	Source       string `json:"source"`
	Type         string `json:"type"`
	Message      string `json:"message"`
	ConnectionID string `json:"connectionId"`
	Level        Level  `json:"level,omitempty"`
}

// ErrConnectionGone is returned by Send when the connection id is not live.
var ErrConnectionGone = errors.New("connection gone")

// Sender delivers a payload to one connection.
type Sender interface {
	Send(ctx context.Context, connectionID string, n Notification) error
}

// Resolver finds the live connection for an owner. An owner with no live
// session resolves to "" with a nil error.
type Resolver interface {
	ConnectionID(ctx context.Context, owner string) (string, error)
}

// Notifier is what the workers depend on. Notify never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, target, kind, text string, level Level)
}

// Discard drops every notification.
type Discard struct{}

// Notify does nothing.
func (Discard) Notify(context.Context, string, string, string, Level) {}

// NoSessions resolves every owner to no connection.
type NoSessions struct{}

// ConnectionID returns "".
func (NoSessions) ConnectionID(context.Context, string) (string, error) { return "", nil }
