package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-verification/internal/common/logger"
)

type MockSQS struct {
	SendMessageFunc    func(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessageFunc func(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageFunc  func(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

func (m *MockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	return m.SendMessageFunc(ctx, params, optFns...)
}

func (m *MockSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return m.ReceiveMessageFunc(ctx, params, optFns...)
}

func (m *MockSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	return m.DeleteMessageFunc(ctx, params, optFns...)
}

func TestProducer_Send(t *testing.T) {
	var body string
	mock := &MockSQS{
		SendMessageFunc: func(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
			assert.Equal(t, "https://queue", aws.ToString(params.QueueUrl))
			body = aws.ToString(params.MessageBody)
			return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
		},
	}

	id, err := NewProducer(mock, "https://queue").Send(context.Background(), map[string]string{"application_id": "abc123"})
	require.NoError(t, err)
	assert.Equal(t, "m-1", id)
	assert.JSONEq(t, `{"application_id":"abc123"}`, body)
}

func TestConsumer_PollOnce_DeletesOnlyHandledMessages(t *testing.T) {
	var deleted []string
	mock := &MockSQS{
		ReceiveMessageFunc: func(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
			assert.Equal(t, int32(20), params.WaitTimeSeconds)
			return &sqs.ReceiveMessageOutput{Messages: []types.Message{
				{MessageId: aws.String("1"), ReceiptHandle: aws.String("r1"), Body: aws.String(`ok`)},
				{MessageId: aws.String("2"), ReceiptHandle: aws.String("r2"), Body: aws.String(`bad`)},
			}}, nil
		},
		DeleteMessageFunc: func(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
			deleted = append(deleted, aws.ToString(params.ReceiptHandle))
			return &sqs.DeleteMessageOutput{}, nil
		},
	}

	c := NewConsumer(mock, ConsumerConfig{QueueURL: "https://queue", WaitTimeSeconds: 20, MaxMessages: 10}, logger.NewTestLogger(t))

	handled, err := c.PollOnce(context.Background(), func(ctx context.Context, body []byte) error {
		if string(body) == "bad" {
			return errors.New("third party down")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, handled)
	assert.Equal(t, []string{"r1"}, deleted)
}

func TestConsumer_PollOnce_ReceiveError(t *testing.T) {
	mock := &MockSQS{
		ReceiveMessageFunc: func(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
			return nil, errors.New("access denied")
		},
	}
	c := NewConsumer(mock, ConsumerConfig{QueueURL: "q"}, logger.NewNoOpLogger())

	_, err := c.PollOnce(context.Background(), func(context.Context, []byte) error { return nil })
	assert.Error(t, err)
}

func TestConsumer_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := &MockSQS{
		ReceiveMessageFunc: func(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
			cancel()
			return &sqs.ReceiveMessageOutput{}, nil
		},
	}
	c := NewConsumer(mock, ConsumerConfig{QueueURL: "q"}, logger.NewNoOpLogger())

	assert.NoError(t, c.Run(ctx, func(context.Context, []byte) error { return nil }))
}
