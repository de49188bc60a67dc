package aws

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
)

func TestNewClientsFromConfig(t *testing.T) {
	cfg := aws.Config{Region: "us-east-1"}

	clients := NewClientsFromConfig(cfg)

	assert.Equal(t, "us-east-1", clients.Config.Region)
	assert.NotNil(t, clients.S3)
	assert.NotNil(t, clients.DynamoDB)
	assert.NotNil(t, clients.Rekognition)
	assert.NotNil(t, clients.Textract)
	assert.NotNil(t, clients.SNS)
	assert.NotNil(t, clients.SES)
	assert.NotNil(t, clients.SQS)
}
