// Package awsutil loads the AWS SDK configuration shared by the SNS, SQS and
// S3 adapters, including LocalStack-style endpoint overrides.
package awsutil

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/archon-research/ledger-engine/internal/pkg/env"
)

// Settings are the AWS values read from the environment.
type Settings struct {
	Region string

	// Endpoint overrides every service endpoint (e.g. LocalStack).
	Endpoint string

	// Static credentials, used only together with Endpoint. Real deployments
	// use the default credential chain.
	AccessKeyID     string
	SecretAccessKey string
}

// SettingsFromEnv reads AWS_REGION, AWS_ENDPOINT, AWS_ACCESS_KEY_ID and
// AWS_SECRET_ACCESS_KEY.
func SettingsFromEnv() Settings {
	return Settings{
		Region:          env.Get("AWS_REGION", "ap-south-1"),
		Endpoint:        env.Get("AWS_ENDPOINT", ""),
		AccessKeyID:     env.Get("AWS_ACCESS_KEY_ID", "test"),
		SecretAccessKey: env.Get("AWS_SECRET_ACCESS_KEY", "test"),
	}
}

// LoadConfig builds the SDK configuration.
func LoadConfig(ctx context.Context, s Settings) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(s.Region),
	}
	if s.Endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// SNSOptions returns client options honouring the endpoint override.
func (s Settings) SNSOptions() []func(*sns.Options) {
	if s.Endpoint == "" {
		return nil
	}
	return []func(*sns.Options){func(o *sns.Options) {
		o.BaseEndpoint = aws.String(s.Endpoint)
	}}
}

// SQSOptions returns client options honouring the endpoint override.
func (s Settings) SQSOptions() []func(*sqs.Options) {
	if s.Endpoint == "" {
		return nil
	}
	return []func(*sqs.Options){func(o *sqs.Options) {
		o.BaseEndpoint = aws.String(s.Endpoint)
	}}
}

// S3Options returns client options honouring the endpoint override. Local
// endpoints need path-style addressing.
func (s Settings) S3Options() []func(*s3.Options) {
	if s.Endpoint == "" {
		return nil
	}
	return []func(*s3.Options){func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.Endpoint)
		o.UsePathStyle = true
	}}
}
