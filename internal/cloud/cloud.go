// Package cloud defines the agent's view of its remote management endpoint.
package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"farmbeats-agent/internal/twin"
)

// Status codes returned to remote method callers.
const (
	StatusOK    = 200
	StatusError = 500
)

// MethodRequest is one remote method invocation.
type MethodRequest struct {
	Name    string
	Payload []byte
}

// MethodResponse is returned synchronously to the caller.
type MethodResponse struct {
	Status  int
	Payload []byte
}

// MethodHandler serves a remote method.
type MethodHandler func(ctx context.Context, req MethodRequest) MethodResponse

// MethodRegistrar installs and removes handlers for named remote methods.
type MethodRegistrar interface {
	HandleMethod(name string, h MethodHandler) error
	RemoveMethod(name string) error
}

// Sender sends one device-to-cloud message.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}

// Session is a connected cloud session.
type Session interface {
	Sender
	MethodRegistrar
	DesiredConfiguration(ctx context.Context) (twin.Desired, error)
	ReportProperties(ctx context.Context, props map[string]any) error
	Close() error
}

// Publisher encodes documents as JSON and sends them. Failures are returned to the
// caller, which logs and drops the message.
type Publisher struct {
	sender Sender
	logger *slog.Logger
}

func NewPublisher(sender Sender, logger *slog.Logger) *Publisher {
	return &Publisher{sender: sender, logger: logger}
}

// Publish sends v as a JSON document.
func (p *Publisher) Publish(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", v, err)
	}
	p.logger.Debug("publishing", "type", fmt.Sprintf("%T", v), "size", len(data))
	if err := p.sender.Send(ctx, data); err != nil {
		return fmt.Errorf("send %T: %w", v, err)
	}
	return nil
}

// PublishOrLog publishes v and logs a failure instead of returning it.
func (p *Publisher) PublishOrLog(ctx context.Context, v any) {
	if err := p.Publish(ctx, v); err != nil {
		p.logger.Error("publish failed, message dropped", "error", err)
	}
}
