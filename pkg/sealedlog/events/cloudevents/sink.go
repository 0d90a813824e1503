// Package cloudevents delivers log events to an HTTP endpoint as CloudEvents.
package cloudevents

import (
	"context"
	"errors"
	"fmt"
	"time"

	ce "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/tendant/sealed-log/pkg/sealedlog"
)

// Event types.
const (
	TypeMessageAccepted          = "com.sealedlog.message.accepted"
	TypeMessageRejected          = "com.sealedlog.message.rejected"
	TypeKeyMaterialChanged       = "com.sealedlog.key.changed"
	TypeAdministratorTransferred = "com.sealedlog.key.administrator_transferred"
)

// DefaultSource is used when Config.Source is empty.
const DefaultSource = "sealed-log"

// Config for the CloudEvents sink
type Config struct {
	Target  string        // Receiver URL
	Source  string        // CloudEvents source attribute
	Timeout time.Duration // Per-event delivery timeout, 0 for none
}

// Sink sends every event to a single target in binary content mode.
type Sink struct {
	client  ce.Client
	target  string
	source  string
	timeout time.Duration
}

// New creates a CloudEvents sink
func New(config Config) (*Sink, error) {
	if config.Target == "" {
		return nil, errors.New("cloudevents target is required")
	}
	if config.Source == "" {
		config.Source = DefaultSource
	}

	client, err := ce.NewClientHTTP()
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudevents client: %w", err)
	}

	return &Sink{
		client:  client,
		target:  config.Target,
		source:  config.Source,
		timeout: config.Timeout,
	}, nil
}

func (s *Sink) send(ctx context.Context, eventType, subject string, at time.Time, data any) error {
	event := ce.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(s.source)
	event.SetType(eventType)
	event.SetTime(at)
	if subject != "" {
		event.SetSubject(subject)
	}
	if err := event.SetData(ce.ApplicationJSON, data); err != nil {
		return fmt.Errorf("failed to encode %s: %w", eventType, err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result := s.client.Send(ce.ContextWithTarget(ctx, s.target), event)
	if ce.IsUndelivered(result) {
		return fmt.Errorf("failed to deliver %s: %w", eventType, result)
	}
	if !ce.IsACK(result) {
		return fmt.Errorf("receiver refused %s: %w", eventType, result)
	}
	return nil
}

func (s *Sink) MessageAccepted(ctx context.Context, event sealedlog.MessageAcceptedEvent) error {
	return s.send(ctx, TypeMessageAccepted, string(event.Caller), event.Timestamp, event)
}

func (s *Sink) MessageRejected(ctx context.Context, event sealedlog.MessageRejectedEvent) error {
	return s.send(ctx, TypeMessageRejected, string(event.Caller), event.Timestamp, event)
}

func (s *Sink) KeyMaterialChanged(ctx context.Context, event sealedlog.KeyMaterialChangedEvent) error {
	return s.send(ctx, TypeKeyMaterialChanged, string(event.Administrator), event.Timestamp, event)
}

func (s *Sink) AdministratorTransferred(ctx context.Context, event sealedlog.AdministratorTransferredEvent) error {
	return s.send(ctx, TypeAdministratorTransferred, string(event.Current), event.Timestamp, event)
}

var _ sealedlog.EventSink = (*Sink)(nil)
