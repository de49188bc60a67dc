// Package queue carries stage requests over SQS.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"license-verification/internal/common/logger"
)

type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Producer sends JSON messages to one queue.
type Producer struct {
	client   SQSAPI
	queueURL string
}

func NewProducer(client SQSAPI, queueURL string) *Producer {
	return &Producer{client: client, queueURL: queueURL}
}

// Send marshals body to JSON and enqueues it, returning the message id.
func (p *Producer) Send(ctx context.Context, body interface{}) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	out, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(raw)),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// MessageHandler processes one message body. A nil return deletes the message;
// an error leaves it for redelivery after the visibility timeout.
type MessageHandler func(ctx context.Context, body []byte) error

type ConsumerConfig struct {
	QueueURL          string
	WaitTimeSeconds   int32
	MaxMessages       int32
	VisibilityTimeout int32
}

// Consumer long-polls a queue and dispatches messages one at a time.
type Consumer struct {
	client SQSAPI
	cfg    ConsumerConfig
	logger logger.Logger
}

func NewConsumer(client SQSAPI, cfg ConsumerConfig, log logger.Logger) *Consumer {
	return &Consumer{
		client: client,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"queueUrl": cfg.QueueURL}),
	}
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("queue consumer started", nil)
	for {
		if ctx.Err() != nil {
			c.logger.Info("queue consumer stopped", nil)
			return nil
		}
		if _, err := c.PollOnce(ctx, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("receive failed", map[string]interface{}{"error": err.Error()})
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// PollOnce receives one batch and returns how many messages were handled
// successfully.
func (c *Consumer) PollOnce(ctx context.Context, handler MessageHandler) (int, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.cfg.QueueURL),
		MaxNumberOfMessages: c.cfg.MaxMessages,
		WaitTimeSeconds:     c.cfg.WaitTimeSeconds,
		VisibilityTimeout:   c.cfg.VisibilityTimeout,
	})
	if err != nil {
		return 0, fmt.Errorf("receive message: %w", err)
	}

	handled := 0
	for _, msg := range out.Messages {
		log := c.logger.WithFields(map[string]interface{}{"messageId": aws.ToString(msg.MessageId)})

		if err := handler(ctx, []byte(aws.ToString(msg.Body))); err != nil {
			log.Warn("message handling failed, leaving for redelivery", map[string]interface{}{"error": err.Error()})
			continue
		}

		if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(c.cfg.QueueURL),
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			log.Error("delete message failed", map[string]interface{}{"error": err.Error()})
			continue
		}
		handled++
	}
	return handled, nil
}
