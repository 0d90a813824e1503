package sealedlog

import (
	"context"
	"errors"
	"log/slog"
)

// NoopClassifier is the zero-validation tier. It admits every payload.
type NoopClassifier struct{}

// Profile returns ProfileNone.
func (NoopClassifier) Profile() Profile {
	return ProfileNone
}

// Evaluate always accepts.
func (NoopClassifier) Evaluate(payload []byte) Verdict {
	return Verdict{Accepted: true, Reason: ReasonUnchecked}
}

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) MessageAccepted(ctx context.Context, event MessageAcceptedEvent) error {
	return nil
}

func (n *NoopEventSink) MessageRejected(ctx context.Context, event MessageRejectedEvent) error {
	return nil
}

func (n *NoopEventSink) KeyMaterialChanged(ctx context.Context, event KeyMaterialChangedEvent) error {
	return nil
}

func (n *NoopEventSink) AdministratorTransferred(ctx context.Context, event AdministratorTransferredEvent) error {
	return nil
}

// LoggingEventSink logs events but takes no other action.
// Useful for development and debugging
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink. A nil logger uses slog.Default.
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) MessageAccepted(ctx context.Context, event MessageAcceptedEvent) error {
	l.logger.InfoContext(ctx, "Message accepted",
		"caller", event.Caller, "topic", event.Topic, "index", event.Index)
	return nil
}

func (l *LoggingEventSink) MessageRejected(ctx context.Context, event MessageRejectedEvent) error {
	l.logger.InfoContext(ctx, "Message rejected",
		"caller", event.Caller, "topic", event.Topic, "reason", event.Reason)
	return nil
}

func (l *LoggingEventSink) KeyMaterialChanged(ctx context.Context, event KeyMaterialChangedEvent) error {
	l.logger.InfoContext(ctx, "Key material changed", "administrator", event.Administrator)
	return nil
}

func (l *LoggingEventSink) AdministratorTransferred(ctx context.Context, event AdministratorTransferredEvent) error {
	l.logger.InfoContext(ctx, "Administrator transferred",
		"previous", event.Previous, "current", event.Current)
	return nil
}

// MultiEventSink delivers every event to each sink in order.
type MultiEventSink []EventSink

func (m MultiEventSink) MessageAccepted(ctx context.Context, event MessageAcceptedEvent) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.MessageAccepted(ctx, event))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) MessageRejected(ctx context.Context, event MessageRejectedEvent) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.MessageRejected(ctx, event))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) KeyMaterialChanged(ctx context.Context, event KeyMaterialChangedEvent) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.KeyMaterialChanged(ctx, event))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) AdministratorTransferred(ctx context.Context, event AdministratorTransferredEvent) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.AdministratorTransferred(ctx, event))
	}
	return errors.Join(errs...)
}
