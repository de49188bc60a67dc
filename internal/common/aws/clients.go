package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/textract"
)

// Clients holds every AWS service client the verification stages talk to.
// All of them share one credentials chain and region.
type Clients struct {
	Config      aws.Config
	S3          *s3.Client
	DynamoDB    *dynamodb.Client
	Rekognition *rekognition.Client
	Textract    *textract.Client
	SNS         *sns.Client
	SES         *ses.Client
	SQS         *sqs.Client
}

// LoadConfig resolves the default credentials chain for region. An empty
// region defers to the environment and shared config files.
func LoadConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return cfg, nil
}

func NewClients(ctx context.Context, region string) (*Clients, error) {
	cfg, err := LoadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return NewClientsFromConfig(cfg), nil
}

func NewClientsFromConfig(cfg aws.Config) *Clients {
	return &Clients{
		Config:      cfg,
		S3:          s3.NewFromConfig(cfg),
		DynamoDB:    dynamodb.NewFromConfig(cfg),
		Rekognition: rekognition.NewFromConfig(cfg),
		Textract:    textract.NewFromConfig(cfg),
		SNS:         sns.NewFromConfig(cfg),
		SES:         ses.NewFromConfig(cfg),
		SQS:         sqs.NewFromConfig(cfg),
	}
}
