package testutil

import (
	"context"
	"sync"

	"github.com/flexprice/invoicerecon/internal/publisher"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/samber/lo"
)

// RecordingNotifier keeps every signal in delivery order
type RecordingNotifier struct {
	mu      sync.RWMutex
	signals []*publisher.Signal
	// FailWith makes Notify return the error instead of recording
	FailWith error
}

var _ publisher.Notifier = (*RecordingNotifier)(nil)

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) Notify(_ context.Context, signal *publisher.Signal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.FailWith != nil {
		return n.FailWith
	}
	cp := *signal
	n.signals = append(n.signals, &cp)
	return nil
}

// Signals returns a copy of the recorded signals
func (n *RecordingNotifier) Signals() []*publisher.Signal {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*publisher.Signal, len(n.signals))
	copy(out, n.signals)
	return out
}

// Types returns the recorded signal types for one subscription
func (n *RecordingNotifier) Types(subscriptionID string) []types.SignalType {
	return lo.FilterMap(n.Signals(), func(s *publisher.Signal, _ int) (types.SignalType, bool) {
		return s.Type, s.SubscriptionID == subscriptionID
	})
}

func (n *RecordingNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.signals = nil
	n.FailWith = nil
}
