package main

import (
	"strings"
	"testing"

	"github.com/archon-research/ledger-engine/internal/adapters/outbound/smtp"
)

func TestParseConfig(t *testing.T) {
	const queue = "https://sqs.ap-south-1.amazonaws.com/123/ledger-notifications"

	tests := []struct {
		name      string
		args      []string
		envVars   map[string]string
		wantCfg   cliConfig
		wantError string
	}{
		{
			name:    "queue from env, smtp dry run",
			envVars: map[string]string{"SQS_QUEUE_URL": queue},
			wantCfg: cliConfig{queueURL: queue, workers: 4, maxReceives: 5, smtp: smtp.Config{Port: "587"}},
		},
		{
			name: "flags and smtp settings",
			args: []string{"-queue", "https://cli-queue", "-workers", "2"},
			envVars: map[string]string{
				"SQS_QUEUE_URL":             queue,
				"NOTIFICATION_MAX_RECEIVES": "0",
				"SMTP_HOST":                 "smtp.example.com",
				"SMTP_PORT":                 "2525",
				"SMTP_USERNAME":             "ledger@example.com",
				"SMTP_PASSWORD":             "pw",
			},
			wantCfg: cliConfig{
				queueURL:    "https://cli-queue",
				workers:     2,
				maxReceives: 0,
				smtp:        smtp.Config{Host: "smtp.example.com", Port: "2525", Username: "ledger@example.com", Password: "pw"},
			},
		},
		{
			name:      "missing queue",
			wantError: "queue URL not provided",
		},
		{
			name:      "negative workers",
			args:      []string{"-queue", queue, "-workers", "-3"},
			wantError: "workers must be positive",
		},
		{
			name:      "invalid max receives",
			envVars:   map[string]string{"SQS_QUEUE_URL": queue, "NOTIFICATION_MAX_RECEIVES": "lots"},
			wantError: "NOTIFICATION_MAX_RECEIVES",
		},
		{
			name:      "invalid flag",
			args:      []string{"--nonexistent"},
			wantError: "flag provided but not defined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"SQS_QUEUE_URL", "NOTIFICATION_WORKERS", "NOTIFICATION_MAX_RECEIVES", "SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := parseConfig(tt.args)
			if tt.wantError != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantError) {
					t.Fatalf("expected error containing %q, got %v", tt.wantError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.queueURL != tt.wantCfg.queueURL || cfg.workers != tt.wantCfg.workers || cfg.maxReceives != tt.wantCfg.maxReceives {
				t.Errorf("config = %+v, want %+v", cfg, tt.wantCfg)
			}
			if cfg.smtp.Host != tt.wantCfg.smtp.Host || cfg.smtp.Port != tt.wantCfg.smtp.Port ||
				cfg.smtp.Username != tt.wantCfg.smtp.Username || cfg.smtp.Password != tt.wantCfg.smtp.Password {
				t.Errorf("smtp = %+v, want %+v", cfg.smtp, tt.wantCfg.smtp)
			}
		})
	}
}
