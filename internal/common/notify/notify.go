// Package notify publishes verification failure notices.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Failure notices published by the comparison stages. Subject and body are
// the same text.
const (
	MessageFaceMatchFailed    = "License photo validation FAILED"
	MessageDetailsMatchFailed = "Data validation between the license and the .csv file FAILED"
	MessageThirdPartyFailed   = "License validation by third party FAILED"
)

// Notifier delivers a notice. Delivery is fire-and-forget from the caller's
// point of view: stages log a returned error and carry on.
type Notifier interface {
	Publish(ctx context.Context, subject, message string) error
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SNSNotifier publishes to a topic.
type SNSNotifier struct {
	client   SNSService
	topicARN string
}

func NewSNSNotifier(client SNSService, topicARN string) *SNSNotifier {
	return &SNSNotifier{client: client, topicARN: topicARN}
}

func (n *SNSNotifier) Publish(ctx context.Context, subject, message string) error {
	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

// SESNotifier emails reviewers directly.
type SESNotifier struct {
	client     SESService
	from       string
	recipients []string
}

func NewSESNotifier(client SESService, from string, recipients []string) *SESNotifier {
	return &SESNotifier{client: client, from: from, recipients: recipients}
}

func (n *SESNotifier) Publish(ctx context.Context, subject, message string) error {
	_, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{ToAddresses: n.recipients},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(message)},
			},
		},
		Source: aws.String(n.from),
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}

// Multi publishes to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Publish(ctx context.Context, subject, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Publish(ctx, subject, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop drops every notice.
type Noop struct{}

func (Noop) Publish(context.Context, string, string) error { return nil }

// Notice is a published subject/message pair.
type Notice struct {
	Subject string
	Message string
}

// MemoryNotifier records notices in process.
type MemoryNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (m *MemoryNotifier) Publish(_ context.Context, subject, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, Notice{Subject: subject, Message: message})
	return nil
}

func (m *MemoryNotifier) Notices() []Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notice(nil), m.notices...)
}
