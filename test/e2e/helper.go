package e2e

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/require"

	"github.com/nimbuslocal/nimbus/internal/api"
	"github.com/nimbuslocal/nimbus/internal/config"
)

// env bundles an emulator instance listening on an ephemeral port with
// SDK clients pointed at it.
type env struct {
	Endpoint string
	SQS      *sqs.Client
	S3       *s3.Client
	DynamoDB *dynamodb.Client
	SNS      *sns.Client
}

func newEnv(t *testing.T) *env {
	t.Helper()

	server := api.New(config.Default())
	t.Cleanup(server.Close)

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	server.Queues().SetBaseURL(ts.URL)

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err)

	return &env{
		Endpoint: ts.URL,
		SQS: sqs.NewFromConfig(cfg, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(ts.URL)
		}),
		S3: s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(ts.URL)
			o.UsePathStyle = true
			// Plain request bodies; the emulator does not decode
			// aws-chunked trailer checksums.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}),
		DynamoDB: dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(ts.URL)
		}),
		SNS: sns.NewFromConfig(cfg, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(ts.URL)
		}),
	}
}
