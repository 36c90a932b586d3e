package sns

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
)

// mockSNSClient implements SNSPublisher for testing.
type mockSNSClient struct {
	publishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	calls       []*sns.PublishInput
}

func (m *mockSNSClient) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.calls = append(m.calls, params)
	if m.publishFunc != nil {
		return m.publishFunc(ctx, params, optFns...)
	}
	return &sns.PublishOutput{MessageId: aws.String("test-message-id")}, nil
}

const testTopicARN = "arn:aws:sns:ap-south-1:123456789:ledger-notifications"

func testNotification() entity.Notification {
	return entity.Notification{
		Email:   "user@example.com",
		Subject: "Transaction confirmation: deposit of 100.00 INR",
		Event: entity.LedgerEvent{
			TransactionID: "txn-1",
			UserID:        "user-1",
			Type:          entity.TransactionTypeDeposit,
			Amount:        decimal.NewFromInt(100),
			Currency:      "INR",
		},
	}
}

func fastConfig() Config {
	return Config{
		TopicARN:       testTopicARN,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}
}

func TestNewPublisher_Validation(t *testing.T) {
	tests := []struct {
		name    string
		client  SNSPublisher
		config  Config
		wantErr string
	}{
		{name: "nil client", client: nil, config: Config{TopicARN: testTopicARN}, wantErr: "sns client is required"},
		{name: "missing topic", client: &mockSNSClient{}, config: Config{}, wantErr: "topic ARN is required"},
		{name: "valid", client: &mockSNSClient{}, config: Config{TopicARN: testTopicARN}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPublisher(tt.client, tt.config)
			if tt.wantErr != "" {
				if err == nil || err.Error() != tt.wantErr {
					t.Fatalf("NewPublisher() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.config.MaxRetries != 3 || p.config.BackoffFactor != 2.0 {
				t.Errorf("defaults not applied: %+v", p.config)
			}
		})
	}
}

func TestPublishNotification_Success(t *testing.T) {
	client := &mockSNSClient{}
	p, err := NewPublisher(client, fastConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := p.PublishNotification(context.Background(), testNotification()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(client.calls))
	}

	call := client.calls[0]
	if *call.TopicArn != testTopicARN {
		t.Errorf("unexpected topic ARN: %s", *call.TopicArn)
	}
	if got := *call.MessageAttributes["transactionType"].StringValue; got != "deposit" {
		t.Errorf("transactionType attribute = %s, want deposit", got)
	}
	if got := *call.MessageAttributes["userId"].StringValue; got != "user-1" {
		t.Errorf("userId attribute = %s, want user-1", got)
	}

	var decoded entity.Notification
	if err := json.Unmarshal([]byte(*call.Message), &decoded); err != nil {
		t.Fatalf("failed to unmarshal message: %v", err)
	}
	if decoded.Email != "user@example.com" || decoded.Event.TransactionID != "txn-1" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestPublishNotification_RetriesTransientErrors(t *testing.T) {
	attempts := 0
	client := &mockSNSClient{
		publishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			attempts++
			if attempts < 3 {
				return nil, &types.ThrottledException{Message: aws.String("slow down")}
			}
			return &sns.PublishOutput{}, nil
		},
	}
	p, _ := NewPublisher(client, fastConfig())

	if err := p.PublishNotification(context.Background(), testNotification()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestPublishNotification_NonRetryableError(t *testing.T) {
	client := &mockSNSClient{
		publishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, &types.InvalidParameterException{Message: aws.String("bad")}
		},
	}
	p, _ := NewPublisher(client, fastConfig())

	err := p.PublishNotification(context.Background(), testNotification())
	if err == nil {
		t.Fatal("expected error")
	}
	var invalid *types.InvalidParameterException
	if !errors.As(err, &invalid) {
		t.Errorf("expected InvalidParameterException, got %v", err)
	}
	if len(client.calls) != 1 {
		t.Errorf("expected 1 call, got %d", len(client.calls))
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"throttled", &types.ThrottledException{}, true},
		{"internal", &types.InternalErrorException{}, true},
		{"invalid parameter", &types.InvalidParameterException{}, false},
		{"not found", &types.NotFoundException{}, false},
		{"network", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
