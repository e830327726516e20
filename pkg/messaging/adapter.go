package messaging

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

// BrokerAdapter turns a channel-based Broker into a handler-based MessageBroker.
type BrokerAdapter struct {
	broker Broker
	logger *zerolog.Logger
}

func NewBrokerAdapter(broker Broker, logger *zerolog.Logger) MessageBroker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BrokerAdapter{broker: broker, logger: logger}
}

func (a *BrokerAdapter) Publish(ctx context.Context, topic string, payload []byte) error {
	return a.broker.Publish(ctx, topic, json.RawMessage(payload))
}

func (a *BrokerAdapter) Close() error {
	return a.broker.Close()
}

// Subscribe runs handler for every message until ctx ends. Handler errors are logged
// and do not stop the subscription.
func (a *BrokerAdapter) Subscribe(ctx context.Context, topic string, handler Handler) error {
	msgChan, err := a.broker.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgChan {
			if err := handler(ctx, msg); err != nil {
				a.logger.Error().Err(err).Str("topic", topic).Msg("message handler failed")
			}
		}
	}()

	return nil
}
