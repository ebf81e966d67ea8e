package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/distribo/services/recouvrement/config"
)

// Client wraps Azure Service Bus for the recouvrement service: it publishes
// urgency-change events and consumes payment events from the external
// payment system.
type Client struct {
	client    *azservicebus.Client
	sender    *azservicebus.Sender
	queueName string
}

// MessageHandler processes one received message
type MessageHandler func(ctx context.Context, message *azservicebus.ReceivedMessage) error

// NewClient creates a new Azure Service Bus client
func NewClient(cfg config.AzureConfig) (*Client, error) {
	if cfg.ConnectionString == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	sender, err := client.NewSender(cfg.PublishQueue, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus sender")
	}

	return &Client{
		client:    client,
		sender:    sender,
		queueName: cfg.PaymentQueue,
	}, nil
}

// Publish sends a JSON message to the publish queue
func (c *Client) Publish(ctx context.Context, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message body")
	}

	msg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"source": "recouvrement",
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	}

	return c.sender.SendMessage(ctx, msg, nil)
}

// ProcessMessages receives messages from the payment queue until the context
// is cancelled. Failed messages are abandoned so the queue redelivers them.
func (c *Client) ProcessMessages(ctx context.Context, handler MessageHandler) error {
	receiver, err := c.client.NewReceiverForQueue(c.queueName, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create Service Bus receiver")
	}
	defer receiver.Close(context.Background())

	for {
		messages, err := receiver.ReceiveMessages(ctx, 10, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to receive messages")
		}

		for _, message := range messages {
			if err := handler(ctx, message); err != nil {
				log.Error().Err(err).Str("message_id", message.MessageID).Msg("Failed to process message")
				if abandonErr := receiver.AbandonMessage(ctx, message, nil); abandonErr != nil {
					log.Error().Err(abandonErr).Str("message_id", message.MessageID).Msg("Failed to abandon message")
				}
				continue
			}

			if err := receiver.CompleteMessage(ctx, message, nil); err != nil {
				log.Error().Err(err).Str("message_id", message.MessageID).Msg("Failed to complete message")
			}
		}
	}
}

// Close closes the Service Bus client
func (c *Client) Close() error {
	if c.sender != nil {
		if err := c.sender.Close(context.Background()); err != nil {
			return err
		}
	}
	if c.client != nil {
		return c.client.Close(context.Background())
	}
	return nil
}
