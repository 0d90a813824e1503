// Package scan walks stored messages and hands each payload to a processor.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tendant/sealed-log/pkg/sealedlog"
)

// Source is the read side of the message store. Both sealedlog.Service and
// the HTTP client satisfy it.
type Source interface {
	ListTopics(ctx context.Context, owner sealedlog.Identity) ([]string, error)
	Count(ctx context.Context, owner sealedlog.Identity, topic string) (uint64, error)
	Read(ctx context.Context, owner sealedlog.Identity, topic string, index uint64) ([]byte, error)
}

// Scanner reads every message of the given owners and processes it.
type Scanner struct {
	source Source
	logger *slog.Logger
}

// New creates a new Scanner instance.
func New(source Source, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{source: source, logger: logger}
}

// Options configures a scan.
type Options struct {
	// Owners whose logs are scanned, in order.
	Owners []sealedlog.Identity

	// Topics restricts the scan. Empty means every topic of each owner.
	Topics []string

	// Processor is called for every payload that could be read. With a nil
	// processor the scan only verifies that each message is readable.
	Processor MessageProcessor

	// OnProgress is called after each topic (optional).
	OnProgress func(processed, failed int64)
}

// Failure records a message that could not be read or processed.
type Failure struct {
	Ref MessageRef `json:"ref"`
	Err string     `json:"error"`
}

// Result contains statistics about a scan.
type Result struct {
	TotalFound     int64     `json:"total_found"`
	TotalProcessed int64     `json:"total_processed"`
	TotalFailed    int64     `json:"total_failed"`
	Corrupted      int64     `json:"corrupted"`
	Failures       []Failure `json:"failures,omitempty"`
}

// Scan walks the configured logs. Per-message failures are recorded in the
// result; only listing errors and context cancellation abort the scan.
func (s *Scanner) Scan(ctx context.Context, opts Options) (*Result, error) {
	result := &Result{}

	for _, owner := range opts.Owners {
		topics := opts.Topics
		if len(topics) == 0 {
			var err error
			if topics, err = s.source.ListTopics(ctx, owner); err != nil {
				return result, fmt.Errorf("failed to list topics of %s: %w", owner, err)
			}
		}

		for _, topic := range topics {
			n, err := s.source.Count(ctx, owner, topic)
			if err != nil {
				return result, fmt.Errorf("failed to count %s/%q: %w", owner, topic, err)
			}
			result.TotalFound += int64(n)

			for i := uint64(0); i < n; i++ {
				if err := ctx.Err(); err != nil {
					return result, err
				}
				ref := MessageRef{Owner: owner, Topic: topic, Index: i}
				if err := s.process(ctx, ref, opts.Processor); err != nil {
					result.fail(ref, err)
					s.logger.WarnContext(ctx, "Scan failed for message", "ref", ref.String(), "err", err)
					continue
				}
				result.TotalProcessed++
			}

			if opts.OnProgress != nil {
				opts.OnProgress(result.TotalProcessed, result.TotalFailed)
			}
		}
	}

	return result, nil
}

func (s *Scanner) process(ctx context.Context, ref MessageRef, p MessageProcessor) error {
	payload, err := s.source.Read(ctx, ref.Owner, ref.Topic, ref.Index)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	return p.Process(ctx, ref, payload)
}

func (r *Result) fail(ref MessageRef, err error) {
	r.TotalFailed++
	if errors.Is(err, sealedlog.ErrIntegrity) {
		r.Corrupted++
	}
	r.Failures = append(r.Failures, Failure{Ref: ref, Err: err.Error()})
}
