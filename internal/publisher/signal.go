package publisher

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/invoicerecon/internal/config"
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/logger"
	"github.com/flexprice/invoicerecon/internal/pubsub"
	"github.com/flexprice/invoicerecon/internal/pubsub/kafka"
	"github.com/flexprice/invoicerecon/internal/types"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Signal is a notification announcing an entitlement, invoice or payment
// transition to external listeners
type Signal struct {
	ID             string           `json:"id"`
	Type           types.SignalType `json:"type"`
	TenantID       string           `json:"tenant_id"`
	AccountID      string           `json:"account_id,omitempty"`
	SubscriptionID string           `json:"subscription_id"`
	EventID        string           `json:"event_id,omitempty"`
	InvoiceID      string           `json:"invoice_id,omitempty"`
	PaymentID      string           `json:"payment_id,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	Currency       string           `json:"currency,omitempty"`
	Status         string           `json:"status,omitempty"`
	EffectiveDate  time.Time        `json:"effective_date"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Notifier delivers signals. Signals of one subscription are delivered in
// the order Notify is called.
type Notifier interface {
	Notify(ctx context.Context, signal *Signal) error
}

type signalPublisher struct {
	pubsub pubsub.Publisher
	topic  string
	logger *logger.Logger
}

// NewSignalPublisher publishes signals as JSON messages on the configured topic
func NewSignalPublisher(cfg *config.Configuration, logger *logger.Logger, ps pubsub.Publisher) Notifier {
	return &signalPublisher{
		pubsub: ps,
		topic:  cfg.PubSub.Topic,
		logger: logger,
	}
}

func (p *signalPublisher) Notify(ctx context.Context, signal *Signal) error {
	if signal.ID == "" {
		signal.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SIGNAL)
	}
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(signal)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Signal could not be encoded").
			Mark(ierr.ErrSystem)
	}

	msg := message.NewMessage(signal.ID, payload)
	msg.Metadata.Set("signal_type", signal.Type.String())
	msg.Metadata.Set("tenant_id", signal.TenantID)
	msg.Metadata.Set("subscription_id", signal.SubscriptionID)
	msg.Metadata.Set(kafka.PartitionKeyMetadata, signal.SubscriptionID)

	p.logger.Debugw("publishing signal",
		"signal_id", signal.ID,
		"signal_type", signal.Type,
		"subscription_id", signal.SubscriptionID,
	)

	if err := p.pubsub.Publish(ctx, p.topic, msg); err != nil {
		return ierr.WithError(err).
			WithHint("Signal could not be published").
			WithReportableDetails(map[string]any{
				"signal_type":     signal.Type,
				"subscription_id": signal.SubscriptionID,
			}).
			Mark(ierr.ErrSystem)
	}
	return nil
}

// Decode parses a signal message payload
func Decode(msg *message.Message) (*Signal, error) {
	var signal Signal
	if err := json.Unmarshal(msg.Payload, &signal); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Signal payload is not valid").
			WithReportableDetails(map[string]any{"message_uuid": msg.UUID}).
			Mark(ierr.ErrValidation)
	}
	return &signal, nil
}
