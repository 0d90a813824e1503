package scan

import (
	"context"
	"fmt"

	"github.com/tendant/sealed-log/pkg/sealedlog"
)

// MessageRef locates one stored message.
type MessageRef struct {
	Owner sealedlog.Identity `json:"owner"`
	Topic string             `json:"topic"`
	Index uint64             `json:"index"`
}

func (r MessageRef) String() string {
	return fmt.Sprintf("%s/%q#%d", r.Owner, r.Topic, r.Index)
}

// MessageProcessor handles one message found during a scan.
// Returning an error marks the message as failed; the scan continues.
type MessageProcessor interface {
	Process(ctx context.Context, ref MessageRef, payload []byte) error
}

// ReclassifyProcessor re-runs a classifier over stored payloads, for example
// before raising the server's profile from light to full.
type ReclassifyProcessor struct {
	Classifier sealedlog.Classifier
}

func (p ReclassifyProcessor) Process(_ context.Context, _ MessageRef, payload []byte) error {
	if v := p.Classifier.Evaluate(payload); !v.Accepted {
		return &sealedlog.RejectedError{Reason: v.Reason}
	}
	return nil
}

// ProcessorFunc adapts a function to the MessageProcessor interface.
type ProcessorFunc func(ctx context.Context, ref MessageRef, payload []byte) error

func (f ProcessorFunc) Process(ctx context.Context, ref MessageRef, payload []byte) error {
	return f(ctx, ref, payload)
}
