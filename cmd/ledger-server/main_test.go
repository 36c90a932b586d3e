package main

import (
	"strings"
	"testing"
	"time"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		envVars   map[string]string
		wantCfg   cliConfig
		wantError string
	}{
		{
			name:    "defaults",
			envVars: map[string]string{"PAYMENT_WEBHOOK_SECRET": "s3cret"},
			wantCfg: cliConfig{
				addr:          ":8080",
				currency:      "INR",
				webhookSecret: "s3cret",
				environment:   "development",
				shutdownGrace: 5 * time.Second,
			},
		},
		{
			name: "flags take precedence over env vars",
			args: []string{"-addr", ":9090", "-currency", "USD"},
			envVars: map[string]string{
				"PAYMENT_WEBHOOK_SECRET": "s3cret",
				"HTTP_ADDR":              ":7070",
				"DEFAULT_CURRENCY":       "EUR",
			},
			wantCfg: cliConfig{
				addr:          ":9090",
				currency:      "USD",
				webhookSecret: "s3cret",
				environment:   "development",
				shutdownGrace: 5 * time.Second,
			},
		},
		{
			name: "optional integrations from env",
			envVars: map[string]string{
				"PAYMENT_WEBHOOK_SECRET": "s3cret",
				"REDIS_ADDR":             "localhost:6379",
				"SNS_TOPIC_ARN":          "arn:aws:sns:ap-south-1:000000000000:ledger",
				"SHUTDOWN_GRACE":         "0s",
			},
			wantCfg: cliConfig{
				addr:          ":8080",
				currency:      "INR",
				webhookSecret: "s3cret",
				redisAddr:     "localhost:6379",
				snsTopicARN:   "arn:aws:sns:ap-south-1:000000000000:ledger",
				environment:   "development",
			},
		},
		{
			name:      "missing webhook secret",
			envVars:   map[string]string{"PAYMENT_WEBHOOK_SECRET": ""},
			wantError: "PAYMENT_WEBHOOK_SECRET",
		},
		{
			name:      "invalid grace period",
			envVars:   map[string]string{"PAYMENT_WEBHOOK_SECRET": "s3cret", "SHUTDOWN_GRACE": "soon"},
			wantError: "SHUTDOWN_GRACE",
		},
		{
			name:      "invalid flag",
			args:      []string{"--nonexistent"},
			wantError: "flag provided but not defined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"HTTP_ADDR", "DEFAULT_CURRENCY", "PAYMENT_WEBHOOK_SECRET", "REDIS_ADDR", "REDIS_PASSWORD", "SNS_TOPIC_ARN", "OTEL_EXPORTER_OTLP_ENDPOINT", "ENVIRONMENT", "SHUTDOWN_GRACE"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := parseConfig(tt.args)

			if tt.wantError != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.wantError)
				}
				if !strings.Contains(err.Error(), tt.wantError) {
					t.Fatalf("expected error containing %q, got %q", tt.wantError, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg != tt.wantCfg {
				t.Errorf("config = %+v, want %+v", cfg, tt.wantCfg)
			}
		})
	}
}
