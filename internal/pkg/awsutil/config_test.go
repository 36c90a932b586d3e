package awsutil

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AWS_ENDPOINT", "http://localhost:4566")
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")

	s := SettingsFromEnv()
	want := Settings{Region: "eu-west-1", Endpoint: "http://localhost:4566", AccessKeyID: "test", SecretAccessKey: "test"}
	if s != want {
		t.Errorf("settings = %+v, want %+v", s, want)
	}
}

func TestLoadConfig_StaticCredentialsForEndpoint(t *testing.T) {
	ctx := context.Background()
	cfg, err := LoadConfig(ctx, Settings{Region: "ap-south-1", Endpoint: "http://localhost:4566", AccessKeyID: "AKID", SecretAccessKey: "SECRET"})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Region != "ap-south-1" {
		t.Errorf("region = %s", cfg.Region)
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if creds.AccessKeyID != "AKID" || creds.SecretAccessKey != "SECRET" {
		t.Errorf("credentials = %+v", creds)
	}
}

func TestEndpointOptions(t *testing.T) {
	none := Settings{}
	if none.SNSOptions() != nil || none.SQSOptions() != nil || none.S3Options() != nil {
		t.Error("no endpoint must yield no options")
	}

	s := Settings{Endpoint: "http://localhost:4566"}

	var sqsOpts sqs.Options
	for _, fn := range s.SQSOptions() {
		fn(&sqsOpts)
	}
	if aws.ToString(sqsOpts.BaseEndpoint) != s.Endpoint {
		t.Errorf("sqs endpoint = %v", aws.ToString(sqsOpts.BaseEndpoint))
	}

	var s3Opts s3.Options
	for _, fn := range s.S3Options() {
		fn(&s3Opts)
	}
	if aws.ToString(s3Opts.BaseEndpoint) != s.Endpoint || !s3Opts.UsePathStyle {
		t.Errorf("s3 options = endpoint %v pathStyle %v", aws.ToString(s3Opts.BaseEndpoint), s3Opts.UsePathStyle)
	}
}
