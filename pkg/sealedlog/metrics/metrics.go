// Package metrics exposes log activity as Prometheus counters.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/sealed-log/pkg/sealedlog"
)

const namespace = "sealedlog"

// Sink counts events. Register it with a prometheus.Registerer to export.
type Sink struct {
	accepted   prometheus.Counter
	rejected   *prometheus.CounterVec
	keyChanges prometheus.Counter
	adminMoves prometheus.Counter
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer, profile sealedlog.Profile) (*Sink, error) {
	constLabels := prometheus.Labels{"profile": string(profile)}
	s := &Sink{
		// Topic is left out of the labels since callers choose it freely.
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "messages_accepted_total",
			Help:        "Payloads appended to a message log.",
			ConstLabels: constLabels,
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "messages_rejected_total",
			Help:        "Payloads refused by the classifier, by reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		keyChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_material_changes_total",
			Help:      "Successful key material replacements.",
		}),
		adminMoves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "administrator_transfers_total",
			Help:      "Successful administrator transfers.",
		}),
	}

	for _, c := range []prometheus.Collector{s.accepted, s.rejected, s.keyChanges, s.adminMoves} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	// Expose every reason from the start so rates are defined before the first rejection.
	for _, r := range []sealedlog.Reason{sealedlog.ReasonTooShort, sealedlog.ReasonLooksLikePlaintext, sealedlog.ReasonLowEntropy} {
		s.rejected.WithLabelValues(string(r))
	}
	return s, nil
}

func (s *Sink) MessageAccepted(ctx context.Context, event sealedlog.MessageAcceptedEvent) error {
	s.accepted.Inc()
	return nil
}

func (s *Sink) MessageRejected(ctx context.Context, event sealedlog.MessageRejectedEvent) error {
	s.rejected.WithLabelValues(string(event.Reason)).Inc()
	return nil
}

func (s *Sink) KeyMaterialChanged(ctx context.Context, event sealedlog.KeyMaterialChangedEvent) error {
	s.keyChanges.Inc()
	return nil
}

func (s *Sink) AdministratorTransferred(ctx context.Context, event sealedlog.AdministratorTransferredEvent) error {
	s.adminMoves.Inc()
	return nil
}

var _ sealedlog.EventSink = (*Sink)(nil)
